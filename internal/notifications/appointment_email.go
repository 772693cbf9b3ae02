package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"haven-backend/internal/models"
)

const clientConfirmationTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>Hi {{.Name}},</p>
  <p>Your massage appointment is confirmed. Here are the details:</p>
  <ul>
    <li>Date: {{.Date}}</li>
    <li>Time: {{.Start}} - {{.End}}</li>
    <li>Duration: {{.DurationMinutes}} minutes</li>
    <li>Pressure: {{.PressureLabel}}</li>
    {{if .FocusAreas}}<li>Focus areas: {{.FocusAreas}}</li>{{end}}
    <li>Booking reference: {{.AppointmentID}}</li>
  </ul>
  <p>If you need to reschedule or cancel, reply to this email at least 24 hours in advance.</p>
  <p>See you soon.</p>
</body>
</html>`

const therapistNotificationTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>Hi {{.TherapistName}},</p>
  <p>A new appointment was booked:</p>
  <ul>
    <li>Client: {{.Name}}</li>
    <li>Email: {{.Email}}</li>
    <li>Phone: {{.Phone}}</li>
    <li>Date: {{.Date}}</li>
    <li>Time: {{.Start}} - {{.End}}</li>
    <li>Duration: {{.DurationMinutes}} minutes</li>
    <li>Pressure: {{.PressureLabel}}</li>
    {{if .FocusAreas}}<li>Focus areas: {{.FocusAreas}}</li>{{end}}
    {{if .SpecialRequest}}<li>Special request: {{.SpecialRequest}}</li>{{end}}
    <li>Booking reference: {{.AppointmentID}}</li>
  </ul>
</body>
</html>`

var (
	clientConfirmationTmpl    = template.Must(template.New("client_confirmation").Parse(clientConfirmationTemplate))
	therapistNotificationTmpl = template.Must(template.New("therapist_notification").Parse(therapistNotificationTemplate))
)

type appointmentEmailData struct {
	Name            string
	Email           string
	Phone           string
	TherapistName   string
	Date            string
	Start           string
	End             string
	DurationMinutes int
	PressureLabel   string
	FocusAreas      string
	SpecialRequest  string
	AppointmentID   string
}

func appointmentData(appt models.Appointment, therapistName string) appointmentEmailData {
	return appointmentEmailData{
		Name:            appt.ClientName,
		Email:           appt.ClientEmail,
		Phone:           appt.ClientPhone,
		TherapistName:   therapistName,
		Date:            appt.Date,
		Start:           appt.StartTime,
		End:             appt.EndTime,
		DurationMinutes: appt.Duration,
		PressureLabel:   pressureLabel(appt.Pressure),
		FocusAreas:      strings.Join(appt.FocusAreas, ", "),
		SpecialRequest:  appt.SpecialRequest,
		AppointmentID:   appt.ID,
	}
}

func buildClientConfirmationHTML(appt models.Appointment) (string, error) {
	var buf bytes.Buffer
	if err := clientConfirmationTmpl.Execute(&buf, appointmentData(appt, "")); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildTherapistNotificationHTML(appt models.Appointment, therapistName string) (string, error) {
	var buf bytes.Buffer
	if err := therapistNotificationTmpl.Execute(&buf, appointmentData(appt, therapistName)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func clientConfirmationSubject(appt models.Appointment) string {
	return fmt.Sprintf("Appointment confirmed - %s %s", appt.Date, appt.StartTime)
}

func therapistNotificationSubject(appt models.Appointment) string {
	return fmt.Sprintf("New booking - %s %s", appt.Date, appt.StartTime)
}

func pressureLabel(value string) string {
	switch value {
	case models.PressureLight:
		return "Light"
	case models.PressureMedium:
		return "Medium"
	case models.PressureDeep:
		return "Deep"
	default:
		return value
	}
}
