// Package calendar talks to the external calendar provider over its REST
// API. Calls are short-timeout and best-effort; the booking flow treats
// every failure here as non-fatal.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"haven-backend/internal/models"
)

type Client struct {
	baseURL    string
	apiKey     string
	calendarID string
	httpClient *http.Client
}

// NewClient returns nil when no provider is configured; callers treat a
// nil client as calendar sync disabled.
func NewClient(baseURL, apiKey, calendarID string) *Client {
	if strings.TrimSpace(baseURL) == "" || strings.TrimSpace(apiKey) == "" {
		return nil
	}
	if strings.TrimSpace(calendarID) == "" {
		calendarID = "primary"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		calendarID: calendarID,
		httpClient: &http.Client{Timeout: 8 * time.Second},
	}
}

type eventRequest struct {
	CalendarID string `json:"calendarId"`
	Summary    string `json:"summary"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

type eventResponse struct {
	ID string `json:"id"`
}

// CreateEvent mirrors the appointment into the external calendar and
// returns the provider's event id. The summary carries no client data
// beyond the first name; the calendar is outside the encrypted store.
func (c *Client) CreateEvent(ctx context.Context, appt models.Appointment) (string, error) {
	if c == nil {
		return "", errors.New("calendar client is nil")
	}

	payload := eventRequest{
		CalendarID: c.calendarID,
		Summary:    eventSummary(appt),
		Date:       appt.Date,
		Start:      appt.StartTime,
		End:        appt.EndTime,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("calendar marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("calendar create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("calendar create failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out eventResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("calendar decode response: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("calendar response missing event id")
	}
	return out.ID, nil
}

// DeleteEvent removes an event, typically as compensation after a failed
// booking insert. Missing events are not an error.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	if c == nil {
		return errors.New("calendar client is nil")
	}
	if strings.TrimSpace(eventID) == "" {
		return errors.New("missing event id")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/events/"+url.PathEscape(eventID), nil)
	if err != nil {
		return fmt.Errorf("calendar delete request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("calendar delete failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func eventSummary(appt models.Appointment) string {
	name := strings.TrimSpace(appt.ClientName)
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		name = name[:idx]
	}
	if name == "" {
		return "Massage appointment"
	}
	return "Massage - " + name
}
