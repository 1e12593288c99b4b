package notify

import (
	"fmt"
	"strings"

	"dds-registration/internal/models"
)

// Site is the organisation identity used in mail subjects and bodies.
type Site struct {
	Name         string
	SupportEmail string
}

func kindLabel(p *models.Payment) string {
	if p.Data.Kind == models.KindMembership {
		return "Membership"
	}
	return "Event"
}

// SuccessMail is sent when a registration is complete.
func SuccessMail(user *models.User, event *models.Event) Mail {
	return Mail{
		To:      []string{user.Email},
		Subject: fmt.Sprintf("Registration for %s", event.Title),
		Body:    event.SuccessEmail,
	}
}

func InvoiceMail(site Site, p *models.Payment, pdf []byte) Mail {
	kind := kindLabel(p)
	return Mail{
		To:      []string{p.Data.User.Email},
		Subject: fmt.Sprintf("%s %s Invoice %s", site.Name, kind, p.InvoiceNo()),
		Body: fmt.Sprintf("Please find attached the requested invoice for %s. "+
			"Please note that your purchase is not complete until the bank transfer is received.\n"+
			"If you have any questions, please contact %s.", strings.ToLower(kind), site.SupportEmail),
		Attachments: []Attachment{{
			Name:        fmt.Sprintf("%s invoice %s.pdf", site.Name, p.InvoiceNo()),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	}
}

func ReceiptMail(site Site, p *models.Payment, pdf []byte) Mail {
	kind := kindLabel(p)
	return Mail{
		To:      []string{p.Data.User.Email},
		Subject: fmt.Sprintf("%s %s Receipt %s", site.Name, kind, p.InvoiceNo()),
		Body: fmt.Sprintf("Thanks! A receipt for your %s payment is attached.\n"+
			"If you have any questions, please contact %s.", strings.ToLower(kind), site.SupportEmail),
		Attachments: []Attachment{{
			Name:        fmt.Sprintf("%s receipt %s.pdf", site.Name, p.InvoiceNo()),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	}
}

// EventMessageMail carries a staff announcement to one registrant.
func EventMessageMail(event *models.Event, msg *models.EventMessage, to string) Mail {
	return Mail{
		To:      []string{to},
		Subject: fmt.Sprintf("Message about %s", event.Title),
		Body:    msg.Message,
	}
}

// PaymentText is the operator notice for money received.
func PaymentText(p *models.Payment) string {
	return fmt.Sprintf("Payment by %s of %s%s for %s",
		p.Data.User.Name, models.CurrencySymbol(p.Data.Currency), formatAmount(p.Data.Price), p.Data.Title())
}

func RefundText(p *models.Payment, automatic bool) string {
	how := "please refund by bank transfer"
	if automatic {
		how = "refunded by card"
	}
	return fmt.Sprintf("Refund for %s of %s%s for %s (%s): %s",
		p.Data.User.Name, models.CurrencySymbol(p.Data.Currency), formatAmount(p.Data.Price),
		p.Data.Title(), p.InvoiceNo(), how)
}

func FailureText(what string, err error) string {
	return fmt.Sprintf("Failed to %s: %v", what, err)
}

func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
