package documents

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"dds-registration/internal/config"
	"dds-registration/internal/models"

	"github.com/skip2/go-qrcode"
)

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// receiptProof is what a receipt QR code carries, encrypted.
type receiptProof struct {
	InvoiceNo string  `json:"invoice_no"`
	PaymentID int64   `json:"payment_id"`
	UserID    int64   `json:"user_id"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
}

// ReceiptCode is the encrypted proof of payment printed as the receipt QR.
func (q *QRGenerator) ReceiptCode(p *models.Payment) (string, error) {
	data, err := json.Marshal(receiptProof{
		InvoiceNo: p.InvoiceNo(),
		PaymentID: p.ID,
		UserID:    p.Data.User.ID,
		Price:     p.Data.Price,
		Currency:  p.Data.Currency,
	})
	if err != nil {
		return "", err
	}
	return encryptAES(data, q.secret)
}

// ReceiptQR encodes the receipt code so staff can scan and verify it.
func (q *QRGenerator) ReceiptQR(p *models.Payment) ([]byte, error) {
	code, err := q.ReceiptCode(p)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(code, qrcode.Medium, 256)
}

// VerifyReceipt decrypts a receipt code, see POST /api/admin/receipts/verify.
func (q *QRGenerator) VerifyReceipt(payload string) (invoiceNo string, paymentID int64, err error) {
	plain, err := decryptAES(payload, q.secret)
	if err != nil {
		return "", 0, err
	}
	var proof receiptProof
	if err := json.Unmarshal(plain, &proof); err != nil {
		return "", 0, fmt.Errorf("receipt proof: %w", err)
	}
	return proof.InvoiceNo, proof.PaymentID, nil
}

// InvoiceQR encodes an EPC (SEPA credit transfer) payload so banking apps can
// prefill the transfer. Only EUR can be paid this way; other currencies get nil.
func InvoiceQR(p *models.Payment, billing config.BillingConfig) ([]byte, error) {
	payload, ok := EPCPayload(p, billing)
	if !ok {
		return nil, nil
	}
	return qrcode.Encode(payload, qrcode.Medium, 256)
}

func EPCPayload(p *models.Payment, billing config.BillingConfig) (string, bool) {
	if p.Data.Currency != "EUR" || billing.IBAN == "" {
		return "", false
	}
	lines := []string{
		"BCD",
		"002",
		"1",
		"SCT",
		billing.BIC,
		billing.AccountHolder,
		strings.ReplaceAll(billing.IBAN, " ", ""),
		fmt.Sprintf("EUR%.2f", p.Data.Price),
		"",
		"",
		p.InvoiceNo(),
	}
	return strings.Join(lines, "\n"), true
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func decryptAES(encoded string, key []byte) ([]byte, error) {
	sealed, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
