package store

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"haven-backend/internal/crypto"
	"haven-backend/internal/models"
)

func TestSlotKeysCoverage(t *testing.T) {
	// 09:00-10:00 with a 15-minute break covers every minute of [540, 675).
	keys := slotKeys(540, 600, 15)
	if len(keys) != 135 {
		t.Fatalf("expected 135 keys, got %d: %v", len(keys), keys)
	}
	if keys[0] != 540 || keys[len(keys)-1] != 674 {
		t.Fatalf("unexpected key boundaries: %v", keys)
	}
}

func TestSlotKeysOverlapDetection(t *testing.T) {
	breakMinutes := 15
	base := slotKeys(600, 660, breakMinutes) // 10:00-11:00

	cases := []struct {
		name       string
		start, end int
		conflict   bool
	}{
		{"identical", 600, 660, true},
		{"starts inside", 630, 690, true},
		{"ends inside", 540, 630, true},
		{"contains", 570, 690, true},
		{"inside existing break", 660, 720, true},
		{"candidate break runs into existing", 540, 590, true}, // ends 09:50, break to 10:05
		{"break exactly reaches existing", 525, 585, false},    // ends 09:45, break to 10:00 sharp
		{"clear before", 480, 540, false},                      // 08:00-09:00, break to 09:15
		{"clear after", 675, 735, false},                       // 11:15 start
	}

	for _, tc := range cases {
		other := slotKeys(tc.start, tc.end, breakMinutes)
		if sharesKey(base, other) != tc.conflict {
			t.Fatalf("%s: expected conflict=%v for [%d,%d)", tc.name, tc.conflict, tc.start, tc.end)
		}
	}
}

func TestSlotKeysUnalignedIntervals(t *testing.T) {
	// 62-minute sessions with a 13-minute break: 09:02-10:04 is buffered
	// through 10:17, and the next session may start at 10:17 sharp.
	breakMinutes := 13
	first := slotKeys(542, 604, breakMinutes)
	next := slotKeys(617, 679, breakMinutes)
	if sharesKey(first, next) {
		t.Fatalf("back-to-back sessions must not conflict")
	}
	tooSoon := slotKeys(616, 678, breakMinutes)
	if !sharesKey(first, tooSoon) {
		t.Fatalf("session inside the break buffer must conflict")
	}
}

func sharesKey(a, b []int) bool {
	seen := map[int]bool{}
	for _, k := range a {
		seen[k] = true
	}
	for _, k := range b {
		if seen[k] {
			return true
		}
	}
	return false
}

func TestFocusAreasRoundTrip(t *testing.T) {
	areas := []string{"neck", "lower back", " shoulders "}
	joined := joinFocusAreas(areas)
	split := splitFocusAreas(joined)
	if len(split) != 3 || split[1] != "lower back" || split[2] != "shoulders" {
		t.Fatalf("unexpected round trip: %v", split)
	}
	if splitFocusAreas("") != nil {
		t.Fatalf("expected nil for empty input")
	}
	if joinFocusAreas(nil) != "" {
		t.Fatalf("expected empty join for nil input")
	}
}

func newTestStore(t *testing.T) *Store {
	key, err := crypto.KeyFromHex("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	if err != nil {
		t.Fatalf("KeyFromHex error: %v", err)
	}
	codec, err := crypto.NewCodec(key)
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	return &Store{
		codec: codec,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		loc:   time.UTC,
	}
}

func TestEncryptDecryptAppointment(t *testing.T) {
	s := newTestStore(t)
	appt := models.Appointment{
		ClientName:     "Marie Dupont",
		ClientEmail:    "marie@example.com",
		ClientPhone:    "+15145550199",
		Date:           "2026-02-02",
		StartTime:      "09:00",
		EndTime:        "10:00",
		Duration:       60,
		FocusAreas:     []string{"neck", "shoulders"},
		Pressure:       models.PressureMedium,
		SpecialRequest: "prefers warmed table",
		Status:         models.AppointmentStatusConfirmed,
	}

	doc, err := s.encryptAppointment(appt)
	if err != nil {
		t.Fatalf("encryptAppointment error: %v", err)
	}
	if doc.ClientName == appt.ClientName || doc.ClientEmail == appt.ClientEmail {
		t.Fatalf("client fields were not encrypted")
	}
	if doc.Date != appt.Date || doc.StartTime != appt.StartTime || doc.Duration != appt.Duration {
		t.Fatalf("scheduling columns must stay plaintext: %+v", doc)
	}

	out := s.decryptAppointment(doc)
	if out.ClientName != appt.ClientName || out.ClientEmail != appt.ClientEmail || out.ClientPhone != appt.ClientPhone {
		t.Fatalf("decrypted client fields mismatch: %+v", out)
	}
	if len(out.FocusAreas) != 2 || out.FocusAreas[0] != "neck" {
		t.Fatalf("decrypted focus areas mismatch: %v", out.FocusAreas)
	}
	if out.Pressure != appt.Pressure || out.SpecialRequest != appt.SpecialRequest {
		t.Fatalf("decrypted request fields mismatch: %+v", out)
	}
}

func TestDecryptAppointmentDegradesCorruptField(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.encryptAppointment(models.Appointment{
		ClientName:  "Marie Dupont",
		ClientEmail: "marie@example.com",
		Date:        "2026-02-02",
		StartTime:   "09:00",
		Duration:    60,
	})
	if err != nil {
		t.Fatalf("encryptAppointment error: %v", err)
	}

	doc.ClientEmail = "corrupted-blob"
	out := s.decryptAppointment(doc)
	if out.ClientEmail != "" {
		t.Fatalf("expected corrupt field to degrade to empty, got %q", out.ClientEmail)
	}
	if out.ClientName != "Marie Dupont" {
		t.Fatalf("healthy field must survive a sibling's corruption, got %q", out.ClientName)
	}
}
