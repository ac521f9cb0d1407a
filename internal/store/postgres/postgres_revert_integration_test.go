package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"stocklink/backend/internal/domain"
)

func TestRevertTransferRestocksSides(t *testing.T) {
	databaseURL := os.Getenv("STOCKLINK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOCKLINK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	fromID := fmt.Sprintf("store-it-from-%d", stamp)
	toID := fmt.Sprintf("store-it-to-%d", stamp)
	itemID := fmt.Sprintf("item-it-%d", stamp)
	itemName := fmt.Sprintf("Revert IT Rice %d", stamp)
	transferID := fmt.Sprintf("tr-it-%d", stamp)
	invoiceID := fmt.Sprintf("inv-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoices WHERE transfer_id = $1`, transferID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transfer_lines WHERE transfer_id = $1`, transferID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transfers WHERE id = $1`, transferID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_items WHERE store_id IN ($1, $2)`, fromID, toID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM store_profiles WHERE id IN ($1, $2)`, fromID, toID)
	})

	for _, id := range []string{fromID, toID} {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO store_profiles (id, name, owner_name, address, gstin, phone, created_at)
			VALUES ($1, $1, 'IT Owner', 'IT Street', '', '', now())
		`, id); err != nil {
			t.Fatalf("insert profile %s: %v", id, err)
		}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_items (id, store_id, name, hsn, qty, unit, purchase_price_cents, selling_price_cents, gst_percent, created_at, updated_at)
		VALUES ($1, $2, $3, '1006', 10, 'bag', 42000, 52000, 5, now(), now())
	`, itemID, fromID, itemName); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	created, err := s.CreateTransfer(ctx, domain.TransferRequest{
		ID:          transferID,
		FromStoreID: fromID,
		ToStoreID:   toID,
		Status:      domain.TransferPending,
		CreatedAt:   time.Now().UTC(),
		Lines: []domain.TransferLineItem{
			{ItemID: itemID, Name: itemName, HSN: "1006", Quantity: 4, Unit: "bag", UnitPriceCents: 52000, GSTPercent: 5, TotalCents: 208000},
		},
	})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	at := time.Now().UTC()
	if _, err := s.AcceptTransfer(ctx, created.ID, domain.Invoice{
		ID: invoiceID, Number: "INV-IT", TransferID: created.ID,
		FromStoreID: fromID, ToStoreID: toID,
		SubtotalCents: 208000, TaxCents: 10400, TotalCents: 218400, CreatedAt: at,
	}, at); err != nil {
		t.Fatalf("accept transfer: %v", err)
	}

	reverted, err := s.RevertTransfer(ctx, created.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("revert transfer: %v", err)
	}
	if reverted.Status != domain.TransferReverted {
		t.Fatalf("expected reverted, got %s", reverted.Status)
	}

	var senderQty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT qty FROM stock_items WHERE id = $1
	`, itemID).Scan(&senderQty); err != nil {
		t.Fatalf("query sender stock: %v", err)
	}
	if senderQty != 6 {
		t.Fatalf("sender keeps its post-create quantity until the return settles, got %d", senderQty)
	}

	var receiverQty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT qty FROM stock_items WHERE store_id = $1 AND lower(btrim(name)) = lower(btrim($2))
	`, toID, itemName).Scan(&receiverQty); err != nil {
		t.Fatalf("query receiver stock: %v", err)
	}
	if receiverQty != 0 {
		t.Fatalf("expected receiver stock 0 after revert, got %d", receiverQty)
	}

	if _, err := s.AcceptReturn(ctx, created.ID, time.Now().UTC()); err != nil {
		t.Fatalf("accept return: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT qty FROM stock_items WHERE id = $1
	`, itemID).Scan(&senderQty); err != nil {
		t.Fatalf("query sender stock: %v", err)
	}
	if senderQty != 10 {
		t.Fatalf("expected sender restored to 10 after return, got %d", senderQty)
	}
}
