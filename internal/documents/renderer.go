package documents

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"
	"time"

	"dds-registration/internal/config"
	"dds-registration/internal/models"

	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Renderer produces the PDF documents attached to payment mails.
type Renderer interface {
	Invoice(p *models.Payment) ([]byte, error)
	Receipt(p *models.Payment) ([]byte, error)
}

type PDFRenderer struct {
	site    config.SiteConfig
	billing config.BillingConfig
	qr      *QRGenerator
	now     func() time.Time
}

func NewPDFRenderer(site config.SiteConfig, billing config.BillingConfig, qr *QRGenerator) *PDFRenderer {
	return &PDFRenderer{site: site, billing: billing, qr: qr, now: time.Now}
}

const (
	marginX = 50.0
	pageW   = 595.28
	fontReg = "go"
	fontB   = "go-bold"
)

type line struct {
	Label string
	Value string
}

func (r *PDFRenderer) Invoice(p *models.Payment) ([]byte, error) {
	qr, err := InvoiceQR(p, r.billing)
	if err != nil {
		return nil, fmt.Errorf("invoice qr: %w", err)
	}
	return r.render(p, "Invoice", qr, func(pdf *gopdf.GoPdf) error {
		if err := section(pdf, "Payment details"); err != nil {
			return err
		}
		rows := []line{
			{"Account holder", r.billing.AccountHolder},
			{"IBAN", r.billing.IBAN},
			{"BIC", r.billing.BIC},
			{"Bank", r.billing.BankName},
			{"Reference", p.InvoiceNo()},
		}
		if err := table(pdf, rows); err != nil {
			return err
		}
		pdf.Br(10)
		return text(pdf, "Your purchase is complete once the bank transfer is received.")
	})
}

func (r *PDFRenderer) Receipt(p *models.Payment) ([]byte, error) {
	if p.Status != models.PaymentPaid && p.Status != models.PaymentRefunded {
		return nil, &models.TransitionError{Entity: "receipt", From: string(p.Status), To: string(models.PaymentPaid)}
	}
	qr, err := r.qr.ReceiptQR(p)
	if err != nil {
		return nil, fmt.Errorf("receipt qr: %w", err)
	}
	return r.render(p, "Receipt", qr, func(pdf *gopdf.GoPdf) error {
		if err := section(pdf, "PAID"); err != nil {
			return err
		}
		return text(pdf, fmt.Sprintf("Paid by %s. Thank you!", methodLabel(p.Data.Method)))
	})
}

func (r *PDFRenderer) render(p *models.Payment, kind string, qr []byte, body func(*gopdf.GoPdf) error) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetInfo(gopdf.PdfInfo{
		Title:        fmt.Sprintf("%s %s %s", r.site.Name, kind, p.InvoiceNo()),
		Author:       r.site.Name,
		CreationDate: r.now(),
	})
	pdf.AddPage()

	if err := pdf.AddTTFFontData(fontReg, goregular.TTF); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.AddTTFFontData(fontB, gobold.TTF); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	// Header
	if err := pdf.SetFont(fontB, "", 20); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}
	pdf.SetXY(marginX, 50)
	if err := pdf.Cell(nil, fmt.Sprintf("%s %s", r.site.Name, kind)); err != nil {
		return nil, err
	}
	if err := pdf.SetFont(fontReg, "", 11); err != nil {
		return nil, err
	}
	pdf.SetXY(pageW-marginX-150, 55)
	if err := pdf.CellWithOption(&gopdf.Rect{W: 150, H: 14}, p.InvoiceNo(), gopdf.CellOption{Align: gopdf.Right}); err != nil {
		return nil, err
	}

	pdf.SetXY(marginX, 90)
	if err := table(pdf, []line{
		{"Number", p.InvoiceNo()},
		{"Date", r.documentDate(p, kind).Format("2006-01-02")},
	}); err != nil {
		return nil, err
	}

	// Bill to
	pdf.Br(10)
	if err := section(pdf, "Billed to"); err != nil {
		return nil, err
	}
	for _, l := range append([]string{p.Data.User.Name}, addressLines(p.Data.User.Address)...) {
		if err := text(pdf, l); err != nil {
			return nil, err
		}
	}

	// Items
	pdf.Br(10)
	if err := section(pdf, "Items"); err != nil {
		return nil, err
	}
	if err := table(pdf, []line{
		{itemLabel(p.Data), money(p.Data.Currency, p.Data.Price)},
		{"Total", money(p.Data.Currency, p.Data.Price)},
	}); err != nil {
		return nil, err
	}
	if p.Data.ExtraInvoiceText != "" {
		pdf.Br(6)
		for _, l := range addressLines(p.Data.ExtraInvoiceText) {
			if err := text(pdf, l); err != nil {
				return nil, err
			}
		}
	}

	pdf.Br(10)
	if err := body(pdf); err != nil {
		return nil, err
	}

	if len(qr) > 0 {
		addQRCode(pdf, qr, pdf.GetY()+20)
	}

	// Footer
	pdf.SetXY(marginX, 800)
	if err := pdf.SetFont(fontReg, "", 9); err != nil {
		return nil, err
	}
	if err := pdf.Cell(nil, fmt.Sprintf("%s · %s", r.site.Name, r.site.SupportEmail)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) documentDate(p *models.Payment, kind string) time.Time {
	d := p.CreatedAt
	if kind == "Receipt" {
		d = p.UpdatedAt
	}
	if d.IsZero() {
		return r.now()
	}
	return d
}

func section(pdf *gopdf.GoPdf, title string) error {
	if err := pdf.SetFont(fontB, "", 12); err != nil {
		return err
	}
	pdf.SetX(marginX)
	if err := pdf.Cell(nil, title); err != nil {
		return err
	}
	pdf.Br(18)
	return pdf.SetFont(fontReg, "", 11)
}

func text(pdf *gopdf.GoPdf, s string) error {
	pdf.SetX(marginX)
	if err := pdf.Cell(nil, s); err != nil {
		return err
	}
	pdf.Br(15)
	return nil
}

func table(pdf *gopdf.GoPdf, rows []line) error {
	for _, row := range rows {
		pdf.SetX(marginX)
		if err := pdf.Cell(&gopdf.Rect{W: 330, H: 15}, row.Label); err != nil {
			return err
		}
		pdf.SetX(marginX + 330)
		if err := pdf.CellWithOption(&gopdf.Rect{W: pageW - 2*marginX - 330, H: 15}, row.Value, gopdf.CellOption{Align: gopdf.Right}); err != nil {
			return err
		}
		pdf.Br(17)
	}
	return nil
}

func addQRCode(pdf *gopdf.GoPdf, qrCode []byte, y float64) {
	img, err := png.Decode(bytes.NewReader(qrCode))
	if err != nil {
		pdf.SetX(marginX)
		pdf.Cell(nil, "Failed to load QR code")
		return
	}

	rect := &gopdf.Rect{W: 110, H: 110}
	if err := pdf.ImageFrom(img, marginX, y, rect); err != nil {
		pdf.SetX(marginX)
		pdf.Cell(nil, "Failed to draw QR code")
	}
}

func itemLabel(d models.PaymentData) string {
	switch {
	case d.Kind == models.KindEvent && d.Event != nil:
		if d.Event.Option != "" {
			return fmt.Sprintf("%s: %s", d.Event.Title, d.Event.Option)
		}
		return d.Event.Title
	case d.Membership != nil:
		label := string(d.Membership.Type)
		if plan, ok := models.LookupMembershipPlan(d.Membership.Type); ok {
			label = plan.Label
		}
		return fmt.Sprintf("%s %d", label, d.Membership.Year)
	}
	return d.Title()
}

func methodLabel(m models.PaymentMethod) string {
	if m == models.MethodStripe {
		return "credit card"
	}
	return "bank transfer"
}

func money(currency string, amount float64) string {
	return fmt.Sprintf("%s %.2f", currency, amount)
}

func addressLines(s string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
