// Package templates renders the transactional verification emails.
package templates

import (
	"bytes"
	"html/template"
	"log/slog"
)

// EmailLayoutProps fills the shared email shell.
type EmailLayoutProps struct {
	Preheader  string
	Content    string
	BrandName  string
	FooterText string
}

type emailTemplateData struct {
	Preheader  string
	Content    template.HTML
	BrandName  string
	FooterText string
}

var emailLayoutTemplate = template.Must(template.New("emailLayout").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8">
    <title>{{.BrandName}}</title>
  </head>
  <body style="font-family: Helvetica, sans-serif; font-size: 16px; line-height: 1.4; background-color: #0f1720; margin: 0; padding: 0;">
    <span style="display: none; max-height: 0; overflow: hidden; opacity: 0;">{{.Preheader}}</span>
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" width="100%" style="background-color: #0f1720;">
      <tr>
        <td align="center" style="padding: 24px 8px;">
          <table role="presentation" border="0" cellpadding="0" cellspacing="0" width="600" style="max-width: 600px; width: 100%; background: #ffffff; border-radius: 12px;">
            <tr>
              <td style="padding: 24px; color: #111827;">
                <p style="margin: 0 0 16px; font-size: 20px; font-weight: bold;">{{.BrandName}}</p>
                {{.Content}}
              </td>
            </tr>
          </table>
          <p style="color: #9ca3af; font-size: 13px; margin: 16px 0 0;">{{.FooterText}}</p>
        </td>
      </tr>
    </table>
  </body>
</html>`))

// GetEmailLayout wraps pre-rendered content in the shell.
func GetEmailLayout(props EmailLayoutProps) string {
	data := emailTemplateData{
		Preheader:  props.Preheader,
		Content:    template.HTML(props.Content),
		BrandName:  props.BrandName,
		FooterText: props.FooterText,
	}
	if data.BrandName == "" {
		data.BrandName = "Signals"
	}
	if data.FooterText == "" {
		data.FooterText = "You received this email because someone entered this address to unlock trading drills. Ignore it if that was not you."
	}

	var buf bytes.Buffer
	if err := emailLayoutTemplate.Execute(&buf, data); err != nil {
		slog.Error("Error executing email layout template", "error", err)
		return "<html><body>Template execution error</body></html>"
	}
	return buf.String()
}
