// internal/pkg/notify/dispatcher.go
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/pkg/email"
)

// Channel is the member's preferred notification channel
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

// Recipient identifies who is notified and how
type Recipient struct {
	Name    string
	Email   string
	Phone   string
	Channel Channel
}

// OrderLine is one purchased line as shown to the customer
type OrderLine struct {
	ItemName string
	Count    int
	Price    int64
}

// OrderNotice describes a placed order
type OrderNotice struct {
	OrderID     uint
	OrderNumber string
	OrderDate   time.Time
	Lines       []OrderLine
	TotalPrice  int64
	UsedPoint   int
}

// Mailer sends order confirmation emails
type Mailer interface {
	SendOrderConfirmationEmail(ctx context.Context, data email.OrderConfirmationData) error
}

// TextSender sends SMS text messages
type TextSender interface {
	Send(ctx context.Context, phone, text string) error
}

// Dispatcher routes order notifications to email or SMS
type Dispatcher struct {
	mailer  Mailer
	texter  TextSender
	baseURL string
	logger  logrus.FieldLogger
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(mailer Mailer, texter TextSender, baseURL string, logger logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		mailer:  mailer,
		texter:  texter,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.WithField("component", "notify"),
	}
}

// SendOrderNotification notifies a recipient about a single-item order
func (d *Dispatcher) SendOrderNotification(ctx context.Context, to Recipient, notice OrderNotice) error {
	return d.dispatch(ctx, to, notice, false)
}

// SendCartOrderNotification notifies a recipient about an order placed from the cart
func (d *Dispatcher) SendCartOrderNotification(ctx context.Context, to Recipient, notice OrderNotice) error {
	return d.dispatch(ctx, to, notice, true)
}

func (d *Dispatcher) dispatch(ctx context.Context, to Recipient, notice OrderNotice, fromCart bool) error {
	log := d.logger.WithFields(logrus.Fields{
		"order_id": notice.OrderID,
		"channel":  to.Channel,
	})

	switch to.Channel {
	case ChannelEmail:
		if err := d.mailer.SendOrderConfirmationEmail(ctx, d.emailData(to, notice, fromCart)); err != nil {
			return fmt.Errorf("failed to send order email: %w", err)
		}
	case ChannelSMS:
		if to.Phone == "" {
			log.Warn("member has no phone number, sms notification skipped")
			return nil
		}
		if err := d.texter.Send(ctx, to.Phone, smsText(notice, fromCart)); err != nil {
			return fmt.Errorf("failed to send order sms: %w", err)
		}
	default:
		log.Debug("no notification channel configured")
		return nil
	}

	log.Info("order notification sent")
	return nil
}

func (d *Dispatcher) emailData(to Recipient, notice OrderNotice, fromCart bool) email.OrderConfirmationData {
	items := make([]email.OrderItem, 0, len(notice.Lines))
	for _, line := range notice.Lines {
		items = append(items, email.OrderItem{
			Name:     line.ItemName,
			Quantity: line.Count,
			Price:    line.Price,
			Total:    line.Price * int64(line.Count),
		})
	}

	return email.OrderConfirmationData{
		EmailTemplateData: email.EmailTemplateData{
			UserName:  to.Name,
			UserEmail: to.Email,
		},
		OrderNumber: notice.OrderNumber,
		OrderDate:   notice.OrderDate.Format("2006-01-02 15:04"),
		Items:       items,
		TotalPrice:  notice.TotalPrice,
		UsedPoint:   notice.UsedPoint,
		OrderURL:    fmt.Sprintf("%s/orders/%d", d.baseURL, notice.OrderID),
		FromCart:    fromCart,
	}
}

func smsText(notice OrderNotice, fromCart bool) string {
	if len(notice.Lines) == 0 {
		return fmt.Sprintf("[%s] order placed, total %d", notice.OrderNumber, notice.TotalPrice)
	}

	first := notice.Lines[0].ItemName
	if fromCart && len(notice.Lines) > 1 {
		first = fmt.Sprintf("%s and %d more", first, len(notice.Lines)-1)
	}
	return fmt.Sprintf("[%s] %s ordered, total %d", notice.OrderNumber, first, notice.TotalPrice)
}
