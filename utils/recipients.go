package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/xuri/excelize/v2"

	"outreach/models"
)

const DefaultRecipientName = "Valued Client"

var ErrUnsupportedRecipientFile = errors.New("unsupported recipient file")

// RecipientLoader reads the first sheet of a workbook (or a CSV file) where
// row 0 is a header, column A holds the name and column B the email.
type RecipientLoader struct {
	// Strict drops rows whose email fails the syntax check.
	Strict      bool
	DefaultName string
}

func (l RecipientLoader) LoadFile(path string) ([]models.Recipient, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err := readWorkbookRows(path)
		if err != nil {
			return nil, err
		}
		return l.FromRows(rows), nil
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open recipients %s: %w", path, err)
		}
		defer f.Close()
		return l.LoadCSV(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRecipientFile, path)
	}
}

func (l RecipientLoader) LoadCSV(r io.Reader) ([]models.Recipient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read recipients csv: %w", err)
	}
	return l.FromRows(rows), nil
}

// FromRows maps raw rows to recipients, skipping the header row.
func (l RecipientLoader) FromRows(rows [][]string) []models.Recipient {
	defaultName := l.DefaultName
	if defaultName == "" {
		defaultName = DefaultRecipientName
	}

	recipients := make([]models.Recipient, 0, len(rows))
	for i, row := range rows {
		if i == 0 || isBlankRow(row) {
			continue
		}
		name := strings.TrimSpace(cell(row, 0))
		email := strings.TrimSpace(cell(row, 1))
		if l.Strict && !IsValidEmailSyntax(email) {
			continue
		}
		if name == "" {
			name = defaultName
		}
		recipients = append(recipients, models.Recipient{Name: name, Email: email})
	}
	return recipients
}

// IsValidEmailSyntax reports whether email is local "@" domain shaped.
func IsValidEmailSyntax(email string) bool {
	if email == "" {
		return false
	}
	return checkmail.ValidateFormat(email) == nil
}

func readWorkbookRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open recipients %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("recipients %s has no sheets", path)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
