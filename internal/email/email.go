// Package email sends monitor notifications over SMTP.
package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/rewired-gh/cashcast/internal/config"
	"github.com/rewired-gh/cashcast/internal/forecast"
	"github.com/rewired-gh/cashcast/internal/logger"
	"github.com/rewired-gh/cashcast/internal/models"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg  config.EmailConfig
	send func(e *email.Email) error
}

// NewSender creates a new email sender
func NewSender(cfg config.EmailConfig) *Sender {
	s := &Sender{cfg: cfg}
	s.send = s.sendSMTP
	return s
}

func (s *Sender) sendSMTP(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}
	return e.Send(addr, auth)
}

func (s *Sender) deliver(subject, body string) error {
	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = s.cfg.To
	e.Subject = subject
	e.Text = []byte(body)

	if err := s.send(e); err != nil {
		logger.Error("Failed to send email to %v: %v", s.cfg.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	logger.Info("Email sent to %v: %s", s.cfg.To, subject)
	return nil
}

// SendLowBalance sends a projected low-balance warning
func (s *Sender) SendLowBalance(alert models.Alert, result *forecast.Result) error {
	subject := fmt.Sprintf("Low balance projected: %s", alert.LowestBalance.StringFixed(2))
	return s.deliver(subject, lowBalanceBody(alert, result))
}

// SendError sends a monitoring error notification
func (s *Sender) SendError(cycleErr error) error {
	body := fmt.Sprintf("The cash-flow monitor failed to run:\n\n%s\n", cycleErr.Error())
	return s.deliver("Cash-flow monitor error", body)
}

// SendRecovery sends a recovery notification after consecutive failures
func (s *Sender) SendRecovery(failureCount int) error {
	body := fmt.Sprintf("The cash-flow monitor recovered after %d consecutive failure(s).\n", failureCount)
	return s.deliver("Cash-flow monitor recovered", body)
}

func lowBalanceBody(alert models.Alert, result *forecast.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your forecast starting %s projects a balance at or below %s.\n\n",
		alert.ForecastStart.Format(models.DateLayout), alert.Threshold.StringFixed(2))
	fmt.Fprintf(&b, "Lowest balance: %s\n", alert.LowestBalance.StringFixed(2))
	fmt.Fprintf(&b, "First low week: %d (starting %s)\n", alert.FirstLowPeriod, alert.FirstLowDate.Format(models.DateLayout))
	fmt.Fprintf(&b, "Low weeks: %d\n", alert.LowPeriodCount)

	if result != nil {
		b.WriteString("\nWeek  Start       End         Ending balance\n")
		for _, p := range result.Periods {
			marker := ""
			if p.IsLowBalance {
				marker = "  LOW"
			}
			fmt.Fprintf(&b, "%-5d %s  %s  %14s%s\n", p.Index,
				p.PeriodStart.Format(models.DateLayout), p.PeriodEnd.Format(models.DateLayout),
				p.EndingBalance.StringFixed(2), marker)
		}
	}
	return b.String()
}
