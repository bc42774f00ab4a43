// Command mailcheck sends a sample order confirmation through the configured
// email provider.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/your-org/shop-backend/internal/config"
	"github.com/your-org/shop-backend/internal/pkg/email"
	"github.com/your-org/shop-backend/internal/pkg/logger"
)

func main() {
	to := flag.String("to", "", "recipient address")
	flag.Parse()
	if *to == "" {
		log.Fatal("Usage: go run ./cmd/mailcheck -to someone@example.com")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	appLogger := logger.New(cfg.Logging)

	data := email.OrderConfirmationData{
		EmailTemplateData: email.GetBaseTemplateData(cfg.App.CompanyName, cfg.External.Email.BaseURL, "Test Customer", *to),
		OrderNumber:       "ORD-TEST-00000000",
		OrderDate:         time.Now().Format("January 2, 2006"),
		Items: []email.OrderItem{
			{Name: "Sample Item", Quantity: 1, Price: 1000, Total: 1000},
		},
		TotalPrice: 1000,
		OrderURL:   cfg.External.Email.BaseURL + "/orders",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := email.NewEmailService(cfg, appLogger).SendOrderConfirmationEmail(ctx, data); err != nil {
		appLogger.WithError(err).Fatal("send failed")
	}

	appLogger.WithField("provider", cfg.External.Email.Provider).Info("test email sent")
}
