package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	texttmpl "text/template"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Subject string

		// Template bodies are executed against Data by Render.
		TextTemplate string
		HTMLTemplate string
		Data         interface{}

		TextContent string
		HTMLContent string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) Render() error {
	if m.TextTemplate != "" {
		tmpl, err := texttmpl.New("text").Option("missingkey=error").Parse(m.TextTemplate)
		if err != nil {
			return err
		}
		var buff bytes.Buffer
		if err := tmpl.Execute(&buff, m.Data); err != nil {
			return err
		}
		m.TextContent = buff.String()
	}
	if m.HTMLTemplate != "" {
		tmpl, err := htmltmpl.New("html").Option("missingkey=error").Parse(m.HTMLTemplate)
		if err != nil {
			return err
		}
		var buff bytes.Buffer
		if err := tmpl.Execute(&buff, m.Data); err != nil {
			return err
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
