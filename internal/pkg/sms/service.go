// internal/pkg/sms/service.go
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/config"
)

// Message is the payload posted to the SMS gateway
type Message struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// SMSService sends text messages through the configured gateway
type SMSService struct {
	config config.SMSConfig
	client *http.Client
	logger logrus.FieldLogger
}

// NewSMSService creates a new SMS service
func NewSMSService(cfg config.SMSConfig, logger logrus.FieldLogger) *SMSService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SMSService{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.WithField("component", "sms"),
	}
}

// Send delivers text to phone using the configured provider
func (s *SMSService) Send(ctx context.Context, phone, text string) error {
	if phone == "" {
		return fmt.Errorf("sms recipient phone is empty")
	}

	switch s.config.Provider {
	case "http":
		return s.sendHTTP(ctx, Message{From: s.config.Sender, To: phone, Text: text})
	case "log", "":
		s.logger.WithFields(logrus.Fields{
			"to":     phone,
			"length": len(text),
		}).Info("sms not sent, log provider configured")
		return nil
	default:
		return fmt.Errorf("unsupported sms provider: %s", s.config.Provider)
	}
}

func (s *SMSService) sendHTTP(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	s.logger.WithField("to", msg.To).Debug("sms delivered to gateway")
	return nil
}
