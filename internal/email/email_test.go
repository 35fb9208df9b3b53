package email

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/rewired-gh/cashcast/internal/config"
	"github.com/rewired-gh/cashcast/internal/forecast"
	"github.com/rewired-gh/cashcast/internal/models"
	"github.com/shopspring/decimal"
)

func newCapturingSender(sendErr error) (*Sender, *[]*email.Email) {
	var sent []*email.Email
	s := NewSender(config.EmailConfig{
		Enabled:  true,
		SMTPHost: "smtp.example.com",
		SMTPPort: "587",
		From:     "cashcast@example.com",
		To:       []string{"owner@example.com"},
	})
	s.send = func(e *email.Email) error {
		sent = append(sent, e)
		return sendErr
	}
	return s, &sent
}

func TestSendLowBalance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result, err := forecast.Run(forecast.Request{
		StartingBalance:     decimal.NewFromInt(200),
		StartDate:           start,
		PeriodCount:         2,
		LowBalanceThreshold: decimal.NewFromInt(50),
		Entries: []models.FinancialEntry{{
			ID: "exp-1", Kind: models.KindExpense, Name: "Car",
			Amount: decimal.NewFromInt(175), Recurrence: models.OneTime,
			StartDate: start.AddDate(0, 0, 9),
		}},
	})
	if err != nil {
		t.Fatalf("forecast.Run: %v", err)
	}
	alert := models.Alert{
		ForecastStart:  start,
		LowestBalance:  result.LowestBalance,
		Threshold:      decimal.NewFromInt(50),
		FirstLowPeriod: 2,
		FirstLowDate:   start.AddDate(0, 0, 7),
		LowPeriodCount: 1,
	}

	s, sent := newCapturingSender(nil)
	if err := s.SendLowBalance(alert, result); err != nil {
		t.Fatalf("SendLowBalance: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(*sent))
	}
	e := (*sent)[0]
	if e.Subject != "Low balance projected: 25.00" {
		t.Errorf("subject = %q", e.Subject)
	}
	if e.From != "cashcast@example.com" || len(e.To) != 1 || e.To[0] != "owner@example.com" {
		t.Errorf("unexpected envelope: from=%q to=%v", e.From, e.To)
	}
	body := string(e.Text)
	for _, want := range []string{
		"starting 2024-01-01",
		"at or below 50.00",
		"First low week: 2 (starting 2024-01-08)",
		"2024-01-08  2024-01-14",
		"25.00  LOW",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Count(body, "LOW") != 1 {
		t.Errorf("expected exactly one LOW row:\n%s", body)
	}
}

func TestSendErrorAndRecovery(t *testing.T) {
	s, sent := newCapturingSender(nil)
	if err := s.SendError(errors.New("database is locked")); err != nil {
		t.Fatalf("SendError: %v", err)
	}
	if err := s.SendRecovery(3); err != nil {
		t.Fatalf("SendRecovery: %v", err)
	}
	if len(*sent) != 2 {
		t.Fatalf("sent %d emails, want 2", len(*sent))
	}
	if !strings.Contains(string((*sent)[0].Text), "database is locked") {
		t.Errorf("error body = %q", (*sent)[0].Text)
	}
	if !strings.Contains(string((*sent)[1].Text), "after 3 consecutive failure(s)") {
		t.Errorf("recovery body = %q", (*sent)[1].Text)
	}
}

func TestSend_PropagatesFailure(t *testing.T) {
	s, _ := newCapturingSender(errors.New("connection refused"))
	err := s.SendRecovery(1)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected wrapped send error, got %v", err)
	}
}
