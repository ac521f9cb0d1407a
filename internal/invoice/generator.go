package invoice

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"time"

	"stocklink/backend/internal/domain"
)

// Generator builds sale invoices for accepted transfers. All pricing comes
// from the transfer's line-item snapshot; live stock prices are never read.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Number derives the invoice number from the transfer id alone, so repeated
// generation for the same transfer always yields the same number.
func Number(transferID string) string {
	sum := sha256.Sum256([]byte(transferID))
	return "INV-" + strings.ToUpper(hex.EncodeToString(sum[:5]))
}

// Generate prices an invoice from the snapshot. Subtotal is the sum of line
// totals, tax is computed per line from the line's GST percent and rounded per
// line, grand total is subtotal plus tax.
func (g *Generator) Generate(transfer domain.TransferRequest, from domain.StoreProfile, to domain.StoreProfile, at time.Time) domain.Invoice {
	subtotal := int64(0)
	tax := int64(0)
	lines := make([]domain.TransferLineItem, len(transfer.Lines))
	copy(lines, transfer.Lines)
	for _, line := range lines {
		subtotal += line.TotalCents
		tax += lineTaxCents(line)
	}

	return domain.Invoice{
		Number:        Number(transfer.ID),
		TransferID:    transfer.ID,
		FromStoreID:   from.ID,
		ToStoreID:     to.ID,
		FromStoreName: from.Name,
		ToStoreName:   to.Name,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    subtotal + tax,
		CreatedAt:     at,
		Lines:         lines,
	}
}

func lineTaxCents(line domain.TransferLineItem) int64 {
	return int64(math.Round(float64(line.TotalCents) * line.GSTPercent / 100))
}
