// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/cashcast/internal/forecast"
	"github.com/rewired-gh/cashcast/internal/logger"
	"github.com/rewired-gh/cashcast/internal/models"
)

// ForecastFunc produces the current forecast for the /forecast command.
type ForecastFunc func(ctx context.Context) (*forecast.Result, error)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
// forecastFn may be nil, in which case /forecast is unavailable.
func (c *Client) ListenForCommands(ctx context.Context, forecastFn ForecastFunc) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, update.Message, forecastFn)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, msg *tgbotapi.Message, forecastFn ForecastFunc) {
	var text string
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
		return
	case "forecast":
		if forecastFn == nil {
			text = escapeMarkdownV2("Forecast is not available.")
			break
		}
		result, err := forecastFn(ctx)
		if err != nil {
			logger.Warn("Forecast command failed: %v", err)
			text = fmt.Sprintf("⚠️ *Forecast failed*\n`%s`", escapeMarkdownV2(err.Error()))
			break
		}
		text = formatSummaryMessage(result)
	default:
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ParseMode = "MarkdownV2"
	if _, err := c.bot.Send(reply); err != nil {
		logger.Warn("Failed to reply to /%s: %v", msg.Command(), err)
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendLowBalance sends a projected low-balance warning.
func (c *Client) SendLowBalance(alert models.Alert, result *forecast.Result) error {
	return c.sendMarkdownV2(formatLowBalanceMessage(alert, result))
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// formatLowBalanceMessage formats an alert and its forecast into a Telegram MarkdownV2 message.
func formatLowBalanceMessage(alert models.Alert, result *forecast.Result) string {
	var b strings.Builder
	b.WriteString("🚨 *Low Balance Projected*\n\n")
	fmt.Fprintf(&b, "📅 Forecast from %s\n", escapeMarkdownV2(alert.ForecastStart.Format(models.DateLayout)))
	fmt.Fprintf(&b, "📉 Lowest balance: *%s*\n", escapeMarkdownV2(alert.LowestBalance.StringFixed(2)))
	fmt.Fprintf(&b, "🎯 Threshold: %s\n", escapeMarkdownV2(alert.Threshold.StringFixed(2)))
	fmt.Fprintf(&b, "⏳ First low week: %d \\(%s\\)\n", alert.FirstLowPeriod,
		escapeMarkdownV2(alert.FirstLowDate.Format(models.DateLayout)))
	fmt.Fprintf(&b, "🔢 Low weeks: %d\n", alert.LowPeriodCount)

	if result == nil {
		return b.String()
	}

	b.WriteString("\n")
	for _, p := range result.Periods {
		if !p.IsLowBalance {
			continue
		}
		fmt.Fprintf(&b, "%d\\. %s → %s: *%s*\n", p.Index,
			escapeMarkdownV2(p.PeriodStart.Format(models.DateLayout)),
			escapeMarkdownV2(p.PeriodEnd.Format(models.DateLayout)),
			escapeMarkdownV2(p.EndingBalance.StringFixed(2)))
	}
	return b.String()
}

// formatSummaryMessage formats a forecast overview for the /forecast command.
func formatSummaryMessage(result *forecast.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Forecast* %s → %s\n\n",
		escapeMarkdownV2(result.StartDate.Format(models.DateLayout)),
		escapeMarkdownV2(result.EndDate.Format(models.DateLayout)))
	fmt.Fprintf(&b, "Ending balance: *%s*\n", escapeMarkdownV2(result.EndingBalance.StringFixed(2)))
	fmt.Fprintf(&b, "Lowest: %s\n", escapeMarkdownV2(result.LowestBalance.StringFixed(2)))
	fmt.Fprintf(&b, "Highest: %s\n", escapeMarkdownV2(result.HighestBalance.StringFixed(2)))
	fmt.Fprintf(&b, "Inflows: %s\n", escapeMarkdownV2(result.TotalInflows.StringFixed(2)))
	fmt.Fprintf(&b, "Outflows: %s\n", escapeMarkdownV2(result.TotalOutflows.StringFixed(2)))
	if result.HasLowBalanceWarning {
		fmt.Fprintf(&b, "\n⚠️ %d low\\-balance week\\(s\\)\n", result.LowBalancePeriods)
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
