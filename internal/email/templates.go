package email

import (
	"bytes"
	"html/template"

	"github.com/patrickwarner/nest/internal/models"
)

var frame = template.Must(template.New("frame").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background-color: #f5f5f5; padding: 20px; text-align: center;">
    <h1 style="color: #333;">N.E.S.T.</h1>
    <p>Neighborhood Emergency &amp; Safety Tool</p>
  </div>
  <div style="padding: 20px;">
    {{- if eq .Kind "emergency"}}
    <h2>Emergency Alert</h2>
    <p>{{.Message}}</p>
    <p>Please take appropriate action immediately.</p>
    {{- else}}
    <h2>{{.Title}}</h2>
    <p>{{.Message}}</p>
    {{- if eq .Kind "status"}}
    <p>View more details on the N.E.S.T. platform.</p>
    {{- end}}
    {{- end}}
  </div>
  <div style="background-color: #f5f5f5; padding: 10px; text-align: center; font-size: 12px; color: #666;">
    <p>You received this email because you have notifications enabled on N.E.S.T.</p>
    <p>To update your notification preferences, visit your profile settings.</p>
  </div>
</div>`))

// Render builds the email for a notification. Title and message are
// HTML-escaped.
func Render(to string, n *models.Notification) (Message, error) {
	data := struct {
		Kind, Title, Message string
	}{Title: n.Title, Message: n.Message}

	subject := "N.E.S.T. Notification"
	switch n.Type {
	case models.NotificationEmergencyAlert:
		subject = "🚨 EMERGENCY ALERT: " + n.Title
		data.Kind = "emergency"
	case models.NotificationReportStatus:
		subject = "Report Status Update: " + n.Title
		data.Kind = "status"
	}

	var buf bytes.Buffer
	if err := frame.Execute(&buf, data); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, HTML: buf.String(), Text: n.Title + "\n\n" + n.Message}, nil
}
