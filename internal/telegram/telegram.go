// Package telegram pushes crawl outcomes to a Telegram chat. It is the
// human-facing side of run reporting; machine consumers use the AMQP
// notifier instead.
package telegram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"kvartometr/server/internal/models"
)

type Service struct {
	logger   *logrus.Logger
	client   *http.Client
	botToken string
	chatID   string
	baseURL  string
}

func NewService(botToken, chatID string, logger *logrus.Logger) *Service {
	return &Service{
		logger:   logger,
		botToken: botToken,
		chatID:   chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: "https://api.telegram.org",
	}
}

// PublishRunSummary formats and sends one crawl summary. It implements
// the pipeline's notifier contract.
func (s *Service) PublishRunSummary(summary *models.RunSummary) error {
	return s.SendMessage(formatSummary(summary))
}

// formatSummary renders a run summary as a compact HTML message.
func formatSummary(summary *models.RunSummary) string {
	var buf bytes.Buffer

	icon := "✅"
	if summary.State == models.RunFailed {
		icon = "❌"
	}
	fmt.Fprintf(&buf, "%s <b>Crawl %s</b>: %s\n", icon, summary.City, summary.State)
	if summary.FatalError != "" {
		fmt.Fprintf(&buf, "Fatal: %s\n", summary.FatalError)
	}

	ids := make([]string, 0, len(summary.Sources))
	for id := range summary.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := summary.Sources[id]
		if r.Failed {
			fmt.Fprintf(&buf, "• %s: failed (%s)\n", id, r.FailureReason)
			continue
		}
		fmt.Fprintf(&buf, "• %s: +%d new, %d updated, %d stale\n",
			id, r.Inserted, r.Updated, r.MarkedStale)
	}

	duration := summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second)
	fmt.Fprintf(&buf, "Took %s", duration)
	return buf.String()
}

// SendMessage sends a message to the configured Telegram chat.
func (s *Service) SendMessage(message string) error {
	if s.botToken == "" {
		return errors.New("Telegram bot token is not configured")
	}

	if s.chatID == "" {
		return errors.New("Telegram chat ID is not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	payload := map[string]interface{}{
		"chat_id":    s.chatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %v", err)
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		default:
			return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	s.logger.WithField("chat_id", s.chatID).Info("Sent Telegram notification")
	return nil
}
