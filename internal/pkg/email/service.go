// internal/pkg/email/service.go
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/config"
)

const (
	resendEndpoint   = "https://api.resend.com/emails"
	sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"
)

// EmailService handles all email operations
type EmailService struct {
	config    *config.Config
	templates map[EmailType]*template.Template
	client    *http.Client
	logger    logrus.FieldLogger
	endpoints map[string]string
}

// NewEmailService creates a new email service
func NewEmailService(cfg *config.Config, logger logrus.FieldLogger) *EmailService {
	return &EmailService{
		config: cfg,
		// Load email templates
		templates: map[EmailType]*template.Template{
			EmailTypeOrderConfirmation: template.Must(template.New("order_confirmation").Parse(orderConfirmationTemplate)),
		},
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.WithField("component", "email"),
		endpoints: map[string]string{
			"resend":   resendEndpoint,
			"sendgrid": sendGridEndpoint,
		},
	}
}

// SendEmail sends an email using the configured provider
func (s *EmailService) SendEmail(ctx context.Context, email *Email) error {
	switch s.config.External.Email.Provider {
	case "smtp":
		return s.sendSMTPEmail(email)
	case "resend":
		return s.sendResendEmail(ctx, email)
	case "sendgrid":
		return s.sendSendGridEmail(ctx, email)
	case "log":
		s.logger.WithFields(logrus.Fields{
			"to":      email.To,
			"subject": email.Subject,
			"type":    email.Type,
		}).Info("email not sent, log provider configured")
		return nil
	default:
		return fmt.Errorf("unsupported email provider: %s", s.config.External.Email.Provider)
	}
}

// SendOrderConfirmationEmail sends an order confirmation for a single or cart order
func (s *EmailService) SendOrderConfirmationEmail(ctx context.Context, data OrderConfirmationData) error {
	data.EmailTemplateData = GetBaseTemplateData(
		s.config.External.Email.FromName,
		s.config.External.Email.BaseURL,
		data.UserName,
		data.UserEmail,
	)

	htmlContent, err := s.renderTemplate(EmailTypeOrderConfirmation, data)
	if err != nil {
		return fmt.Errorf("failed to render order confirmation template: %w", err)
	}

	// Cart orders are tagged separately for delivery logs
	emailType := EmailTypeOrderConfirmation
	if data.FromCart {
		emailType = EmailTypeCartOrder
	}

	email := &Email{
		To:          []string{data.UserEmail},
		Subject:     fmt.Sprintf("Order Confirmation - %s", data.OrderNumber),
		HTMLContent: htmlContent,
		Type:        emailType,
		Data: map[string]interface{}{
			"order_number": data.OrderNumber,
			"total_price":  data.TotalPrice,
		},
	}

	return s.SendEmail(ctx, email)
}

// renderTemplate renders an email template with data
func (s *EmailService) renderTemplate(name EmailType, data interface{}) (string, error) {
	tmpl, exists := s.templates[name]
	if !exists {
		return "", fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	return buf.String(), nil
}

const orderConfirmationTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.SiteName}} - Order {{.OrderNumber}}</title>
</head>
<body style="font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f4f4f4;">
    <div style="max-width: 600px; margin: 0 auto; background-color: white; padding: 20px; border-radius: 8px;">
        <h1 style="color: #333;">{{.SiteName}}</h1>
        <p>Hello {{.UserName}},</p>
        <p>Thank you for your order <strong>{{.OrderNumber}}</strong> placed on {{.OrderDate}}.</p>
        <table style="width: 100%; border-collapse: collapse;">
            <tr><th align="left">Item</th><th align="right">Qty</th><th align="right">Price</th><th align="right">Total</th></tr>
            {{range .Items}}
            <tr><td>{{.Name}}</td><td align="right">{{.Quantity}}</td><td align="right">{{.Price}}</td><td align="right">{{.Total}}</td></tr>
            {{end}}
        </table>
        {{if .UsedPoint}}<p>Points used: {{.UsedPoint}}</p>{{end}}
        <p><strong>Order total: {{.TotalPrice}}</strong></p>
        <p><a href="{{.OrderURL}}">View your order</a></p>
        <hr>
        <p style="font-size: 12px; color: #666;">&copy; {{.Year}} {{.SiteName}}. All rights reserved.</p>
    </div>
</body>
</html>`
