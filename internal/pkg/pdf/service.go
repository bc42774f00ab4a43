// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/your-org/shop-backend/internal/config"
	"github.com/your-org/shop-backend/internal/domain/order"
)

var receiptTmpl = template.Must(template.New("receipt").Parse(receiptTemplate))

// Service handles PDF generation
type Service struct {
	config *config.Config
	now    func() time.Time
}

// NewService creates a new PDF service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		now:    time.Now,
	}
}

// ReceiptData represents the data passed to the receipt template
type ReceiptData struct {
	ReceiptNumber string        `json:"receipt_number"`
	IssuedAt      string        `json:"issued_at"`
	OrderDate     string        `json:"order_date"`
	Order         *order.Order  `json:"order"`
	CustomerName  string        `json:"customer_name"`
	Lines         []ReceiptLine `json:"lines"`
	PaidAmount    int64         `json:"paid_amount"`
	Company       CompanyInfo   `json:"company"`
}

// ReceiptLine is one printed order line
type ReceiptLine struct {
	Name      string `json:"name"`
	Count     int    `json:"count"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
}

// CompanyInfo represents company information
type CompanyInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// GenerateReceipt generates a PDF receipt for an order loaded with its items and member
func (s *Service) GenerateReceipt(o *order.Order) (*bytes.Buffer, error) {
	// Generate HTML from template
	htmlContent, err := s.RenderReceiptHTML(o)
	if err != nil {
		return nil, fmt.Errorf("failed to generate HTML: %w", err)
	}

	// Convert HTML to PDF
	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}

	// Set PDF options
	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	pdfg.PageSize.Set(wkhtmltopdf.PageSizeA5)

	// Add page from HTML content
	page := wkhtmltopdf.NewPageReader(bytes.NewReader([]byte(htmlContent)))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)

	pdfg.AddPage(page)

	// Create PDF
	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}

	return bytes.NewBuffer(pdfg.Bytes()), nil
}

// RenderReceiptHTML renders the receipt page that GenerateReceipt converts to PDF
func (s *Service) RenderReceiptHTML(o *order.Order) (string, error) {
	// Prepare template data
	data := ReceiptData{
		ReceiptNumber: fmt.Sprintf("RCT-%s", o.OrderNumber),
		IssuedAt:      s.now().Format("January 2, 2006"),
		OrderDate:     o.OrderDate.Format("January 2, 2006 15:04"),
		Order:         o,
		CustomerName:  o.Member.Name,
		Lines:         make([]ReceiptLine, 0, len(o.Items)),
		// points count as a discount, not a payment
		PaidAmount:    o.TotalPrice - int64(o.UsedPoint),
		Company: CompanyInfo{
			Name:  s.config.App.CompanyName,
			Phone: s.config.App.CompanyPhone,
			Email: s.config.App.CompanyEmail,
		},
	}
	for i := range o.Items {
		oi := &o.Items[i]
		data.Lines = append(data.Lines, ReceiptLine{
			Name:      oi.Item.Name,
			Count:     oi.Count,
			UnitPrice: oi.OrderPrice,
			Total:     oi.TotalPrice(),
		})
	}

	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// Receipt HTML template
const receiptTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Receipt {{.ReceiptNumber}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; color: #333; }
        .header { border-bottom: 2px solid #333; margin-bottom: 20px; padding-bottom: 10px; }
        .company { font-size: 22px; font-weight: bold; }
        table { width: 100%; border-collapse: collapse; margin-top: 15px; }
        th, td { padding: 6px; border-bottom: 1px solid #ddd; }
        th { background: #f5f5f5; text-align: left; }
        .num { text-align: right; }
        .totals td { border: none; }
        .status { margin-top: 10px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <div class="company">{{.Company.Name}}</div>
        <div>{{.Company.Email}} {{if .Company.Phone}}| {{.Company.Phone}}{{end}}</div>
    </div>

    <h2>Receipt {{.ReceiptNumber}}</h2>
    <p>
        Order: {{.Order.OrderNumber}}<br>
        Ordered: {{.OrderDate}}<br>
        Issued: {{.IssuedAt}}<br>
        Customer: {{.CustomerName}}<br>
        Ship to: {{.Order.Address}} {{.Order.AddressDetail}}
    </p>

    <table>
        <tr><th>Item</th><th class="num">Qty</th><th class="num">Unit price</th><th class="num">Total</th></tr>
        {{range .Lines}}
        <tr><td>{{.Name}}</td><td class="num">{{.Count}}</td><td class="num">{{.UnitPrice}}</td><td class="num">{{.Total}}</td></tr>
        {{end}}
    </table>

    <table class="totals">
        <tr><td class="num">Order total</td><td class="num">{{.Order.TotalPrice}}</td></tr>
        <tr><td class="num">Points used</td><td class="num">-{{.Order.UsedPoint}}</td></tr>
        <tr><td class="num"><strong>Paid</strong></td><td class="num"><strong>{{.PaidAmount}}</strong></td></tr>
        <tr><td class="num">Points earned</td><td class="num">{{.Order.AccPoint}}</td></tr>
    </table>

    <div class="status">Status: {{.Order.Status}}{{if .Order.ReturnStatus}} (return {{.Order.ReturnStatus}}){{end}}</div>
</body>
</html>`
