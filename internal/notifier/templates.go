package notifier

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Layouts used when rendering log fields.
const (
	emailTimeLayout = "2006-01-02 15:04:05 MST"
	chatTimeLayout  = "2006-01-02 15:04:05"
)

var defaultEmailBody = template.Must(
	template.New("email_body.txt").Option("missingkey=zero").ParseFS(templateFS, "templates/email_body.txt"),
)

// templateFields returns the log fields exposed to user templates.
func templateFields(log *models.Log, timeLayout string) map[string]string {
	return map[string]string{
		"log_id":        log.ID,
		"twilio_sid":    log.SID,
		"log_type":      string(log.Kind),
		"timestamp":     log.Timestamp.Format(timeLayout),
		"status":        log.Status,
		"error_code":    log.ErrorCode,
		"error_message": log.ErrorMessage,
		"from_number":   log.From,
		"to_number":     log.To,
	}
}

// renderTemplate renders a user-supplied text/template. Fields are available
// both as map keys ({{ .status }}) and as functions ({{ status }}).
func renderTemplate(name, text string, fields map[string]string) (string, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}
	for k, v := range fields {
		v := v
		funcs[k] = func() string { return v }
	}

	tmpl, err := template.New(name).Option("missingkey=zero").Funcs(funcs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, fields); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return buf.String(), nil
}

func renderDefaultEmailBody(fields map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := defaultEmailBody.Execute(&buf, fields); err != nil {
		return "", fmt.Errorf("render default body: %w", err)
	}
	return buf.String(), nil
}

// formatPlaceholders substitutes {name} placeholders. "{{" and "}}" produce
// literal braces. An unknown name is an error.
func formatPlaceholders(text string, fields map[string]string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			name := text[i+1 : i+1+end]
			v, ok := fields[name]
			if !ok {
				return "", fmt.Errorf("unknown template field %q", name)
			}
			b.WriteString(v)
			i += end + 1
		case c == '}':
			return "", fmt.Errorf("single '}' at offset %d", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// kindTitle renders a log kind for headings, e.g. "message" -> "Message".
func kindTitle(kind models.LogKind) string {
	return cases.Title(language.English).String(string(kind))
}
