package templates

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/url"
)

// ButtonProps describes a call-to-action link.
type ButtonProps struct {
	Text string
	URL  string
}

var (
	buttonTemplate = template.Must(template.New("emailButton").Parse(`<table role="presentation" border="0" cellpadding="0" cellspacing="0" style="margin: 8px 0 16px;">
  <tr>
    <td style="border-radius: 6px; background-color: #16a34a;" bgcolor="#16a34a">
      <a href="{{.URL}}" target="_blank" style="display: inline-block; padding: 12px 24px; font-weight: bold; color: #ffffff; text-decoration: none;">{{.Text}}</a>
    </td>
  </tr>
</table>`))

	paragraphTemplate = template.Must(template.New("emailParagraph").Parse(`<p style="margin: 0 0 16px;">{{.}}</p>`))

	codeTemplate = template.Must(template.New("emailCode").Parse(`<p style="margin: 0 0 16px; font-family: Menlo, Consolas, monospace; font-size: 32px; letter-spacing: 8px; font-weight: bold;">{{.}}</p>`))
)

// GetButton renders a button. Links that are not absolute http(s) URLs
// are replaced with "#".
func GetButton(props ButtonProps) string {
	props.URL = sanitizeEmailURL(props.URL)
	return render(buttonTemplate, props, `<p>Button template error</p>`)
}

// GetParagraph renders escaped text.
func GetParagraph(text string) string {
	return render(paragraphTemplate, text, "")
}

// GetCodeBlock renders a verification code in a large monospace face.
func GetCodeBlock(code string) string {
	return render(codeTemplate, code, "")
}

func render(t *template.Template, data any, fallback string) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		slog.Error("Error executing email component template", "template", t.Name(), "error", err)
		return fallback
	}
	return buf.String()
}

func sanitizeEmailURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		slog.Warn("Invalid or unsafe URL in email button", "url", raw)
		return "#"
	}
	return u.String()
}
