package models

// Recipient is one row of the campaign's recipient sheet.
type Recipient struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}
