package notifications

import (
	"context"
	"log/slog"
	"strings"

	"haven-backend/internal/models"
)

// Mailer sends the booking emails through Brevo. Every send reports
// success as a bool; delivery problems are logged and never surface to
// the booking flow.
type Mailer struct {
	client         *BrevoClient
	therapistEmail string
	therapistName  string
	log            *slog.Logger
}

func NewMailer(client *BrevoClient, therapistEmail, therapistName string, log *slog.Logger) *Mailer {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(therapistName) == "" {
		therapistName = "there"
	}
	return &Mailer{
		client:         client,
		therapistEmail: therapistEmail,
		therapistName:  therapistName,
		log:            log,
	}
}

func (m *Mailer) SendClientConfirmation(ctx context.Context, appt models.Appointment) bool {
	if m == nil || m.client == nil {
		return false
	}
	html, err := buildClientConfirmationHTML(appt)
	if err != nil {
		m.log.Error("build client confirmation email failed", "error", err, "appointment_id", appt.ID)
		return false
	}
	messageID, err := m.client.sendHTML(ctx, appt.ClientEmail, appt.ClientName, clientConfirmationSubject(appt), html)
	if err != nil {
		m.log.Error("send client confirmation failed", "error", err, "appointment_id", appt.ID)
		return false
	}
	m.log.Info("client confirmation sent", "appointment_id", appt.ID, "message_id", messageID)
	return true
}

func (m *Mailer) SendTherapistNotification(ctx context.Context, appt models.Appointment) bool {
	if m == nil || m.client == nil {
		return false
	}
	if strings.TrimSpace(m.therapistEmail) == "" {
		return false
	}
	html, err := buildTherapistNotificationHTML(appt, m.therapistName)
	if err != nil {
		m.log.Error("build therapist notification email failed", "error", err, "appointment_id", appt.ID)
		return false
	}
	messageID, err := m.client.sendHTML(ctx, m.therapistEmail, m.therapistName, therapistNotificationSubject(appt), html)
	if err != nil {
		m.log.Error("send therapist notification failed", "error", err, "appointment_id", appt.ID)
		return false
	}
	m.log.Info("therapist notification sent", "appointment_id", appt.ID, "message_id", messageID)
	return true
}
