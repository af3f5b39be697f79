package utils

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"

	"outreach/models"
)

const (
	TemplateIntroduction = "introduction"
	TemplateFollowUp     = "follow_up"
)

var ErrUnknownTemplate = errors.New("unknown email template")

// Signature is the block rendered under every outreach email.
type Signature struct {
	SenderName  string
	Title       string
	Phone       string
	Email       string
	CompanyName string
	CompanyURL  string
	LogoURL     string
}

type ComposerOptions struct {
	Template  string
	Subject   string
	FromName  string
	FromEmail string
	Cc        []string
	Signature Signature
}

type templateData struct {
	Subject   string
	Name      string
	Signature Signature
}

const signatureBlock = `{{define "signature"}}
<p>Thanks &amp; Regards,</p>
<table style="width: 100%; max-width: 500px; border-collapse: collapse;">
    <tr style="height: 100px;">
        {{if .Signature.LogoURL}}<td style="padding: 10px; width: 42%; vertical-align: middle; text-align: center;">
            <img src="{{.Signature.LogoURL}}" alt="logo" style="width: 100%; max-width: 150px; height: auto;" />
        </td>{{end}}
        <td style="padding: 10px; vertical-align: middle; font-family: Arial, sans-serif;">
            <p style="font-weight: bold; margin: 0;">{{.Signature.SenderName}}</p>
            {{if .Signature.Title}}<p style="font-weight: bold; margin: 0;">{{.Signature.Title}}</p>{{end}}
            {{if .Signature.Phone}}<p style="margin: 0;"><b>T:</b> {{.Signature.Phone}}</p>{{end}}
            <p style="margin: 0;"><b>E:</b> <a href="mailto:{{.Signature.Email}}">{{.Signature.Email}}</a>{{if .Signature.CompanyURL}} | <a href="{{.Signature.CompanyURL}}">{{.Signature.CompanyURL}}</a>{{end}}</p>
            {{if .Signature.CompanyName}}<p style="margin: 0;">{{.Signature.CompanyName}}</p>{{end}}
        </td>
    </tr>
</table>
{{end}}`

// Embedded outreach templates
var emailTemplates = map[string]string{
	TemplateIntroduction: `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <p>Hi {{.Name}},</p>
    <p>My name is {{.Signature.SenderName}}{{if .Signature.CompanyName}} and I represent {{.Signature.CompanyName}}{{end}}.</p>
    <p>We work with teams that need experienced engineers on a contract basis, and I would be happy to share some profiles that match what you are building.</p>
    <p>Looking forward to hearing from you soon!</p>
    {{template "signature" .}}
</body>
</html>`,

	TemplateFollowUp: `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <p>Hi {{.Name}},</p>
    <p>I hope this message finds you well! I wanted to follow up on my previous email about our engineers{{if .Signature.CompanyName}} at {{.Signature.CompanyName}}{{end}}.</p>
    <p>If you are interested in exploring further, please feel free to reach out. I would be happy to discuss your requirements and share relevant profiles with you.</p>
    <p>Looking forward to your response!</p>
    {{template "signature" .}}
</body>
</html>`,
}

var defaultSubjects = map[string]string{
	TemplateIntroduction: "Hire skilled developers for your next project",
	TemplateFollowUp:     "Following up: skilled developers for your next project",
}

var parsedTemplates = mustParseTemplates()

func mustParseTemplates() map[string]*template.Template {
	out := make(map[string]*template.Template, len(emailTemplates))
	for name, body := range emailTemplates {
		tmpl := template.Must(template.New(name).Parse(signatureBlock))
		out[name] = template.Must(tmpl.Parse(body))
	}
	return out
}

// OutboundMessage is one composed email addressed to a single recipient.
type OutboundMessage struct {
	To      string
	Message *gomail.Message
}

// Raw renders the full MIME message, headers included.
func (m *OutboundMessage) Raw() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.Message.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render message for %s: %w", m.To, err)
	}
	return buf.Bytes(), nil
}

type Composer struct {
	tmpl    *template.Template
	subject string
	from    string
	cc      []string
	sig     Signature
}

func NewComposer(opts ComposerOptions) (*Composer, error) {
	if opts.Template == "" {
		opts.Template = TemplateFollowUp
	}
	tmpl, ok := parsedTemplates[opts.Template]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, opts.Template)
	}
	if opts.FromEmail == "" {
		return nil, errors.New("sender address is required")
	}
	subject := opts.Subject
	if subject == "" {
		subject = defaultSubjects[opts.Template]
	}
	if opts.Signature.Email == "" {
		opts.Signature.Email = opts.FromEmail
	}
	if opts.Signature.SenderName == "" {
		opts.Signature.SenderName = opts.FromName
	}

	from := opts.FromEmail
	if opts.FromName != "" {
		from = gomail.NewMessage().FormatAddress(opts.FromEmail, opts.FromName)
	}

	var cc []string
	for _, addr := range opts.Cc {
		if addr = strings.TrimSpace(addr); addr != "" {
			cc = append(cc, addr)
		}
	}

	return &Composer{
		tmpl:    tmpl,
		subject: subject,
		from:    from,
		cc:      cc,
		sig:     opts.Signature,
	}, nil
}

func (c *Composer) Subject() string {
	return c.subject
}

// Compose renders the personalised HTML body for r and wraps it in a
// gomail message.
func (c *Composer) Compose(r models.Recipient) (*OutboundMessage, error) {
	var body bytes.Buffer
	data := templateData{Subject: c.subject, Name: r.Name, Signature: c.sig}
	if err := c.tmpl.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render template for %s: %w", r.Email, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", r.Email)
	if len(c.cc) > 0 {
		m.SetHeader("Cc", c.cc...)
	}
	m.SetHeader("Subject", c.subject)
	m.SetBody("text/html", body.String())

	return &OutboundMessage{To: r.Email, Message: m}, nil
}
