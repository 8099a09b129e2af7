package templates

import (
	"bytes"
	"html/template"
	"log"
	"sort"
	"time"
)

// AlertEmailProps is the alert rendered into a notification.
type AlertEmailProps struct {
	ID        string
	Severity  string
	Message   string
	Details   map[string]any
	Timestamp time.Time
}

type alertDetailRow struct {
	Key   string
	Value any
}

type alertTemplateData struct {
	ID        string
	Severity  string
	Color     string
	Message   string
	Rows      []alertDetailRow
	Timestamp string
}

var alertTemplate = template.Must(template.New("alertEmail").Parse(`
<h2 style="font-family: Helvetica, sans-serif; margin: 0 0 16px; color: {{.Color}};">{{.Severity}}: {{.Message}}</h2>
<p style="font-family: Helvetica, sans-serif; font-size: 14px; color: #6e7681; margin: 0 0 16px;">Alert <code>{{.ID}}</code> raised at {{.Timestamp}}</p>
{{if .Rows}}<table role="presentation" border="0" cellpadding="4" cellspacing="0" style="font-family: Helvetica, sans-serif; font-size: 14px; border-collapse: collapse;">
{{range .Rows}}  <tr><td style="color: #6e7681; padding-right: 16px;">{{.Key}}</td><td>{{.Value}}</td></tr>
{{end}}</table>{{end}}`))

var severityColors = map[string]string{
	"critical": "#e06c75",
	"warning":  "#e5c07b",
	"info":     "#56b6c2",
}

// GetAlertEmailContent renders the alert body. All values are escaped.
func GetAlertEmailContent(props AlertEmailProps) string {
	keys := make([]string, 0, len(props.Details))
	for k := range props.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]alertDetailRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, alertDetailRow{Key: k, Value: props.Details[k]})
	}

	color, ok := severityColors[props.Severity]
	if !ok {
		color = "#abb2bf"
	}

	data := alertTemplateData{
		ID:        props.ID,
		Severity:  props.Severity,
		Color:     color,
		Message:   props.Message,
		Rows:      rows,
		Timestamp: props.Timestamp.UTC().Format(time.RFC1123),
	}

	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, data); err != nil {
		log.Printf("Error executing alert email template: %v", err)
		return `<div style="color: red;">Alert template error</div>`
	}
	return buf.String()
}
