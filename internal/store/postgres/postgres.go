package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stocklink/backend/internal/domain"
	"stocklink/backend/internal/store"
	"stocklink/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetStoreProfile(ctx context.Context, id string) (*domain.StoreProfile, error) {
	var profile domain.StoreProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_name, address, gstin, phone, created_at
		FROM store_profiles
		WHERE id = $1
	`, id).Scan(&profile.ID, &profile.Name, &profile.OwnerName, &profile.Address, &profile.GSTIN, &profile.Phone, &profile.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (s *Store) SearchStores(ctx context.Context, query string, excludeStoreID string, limit int) ([]domain.StoreProfile, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, owner_name, address, gstin, phone, created_at
		FROM store_profiles
		WHERE id <> $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY name
		LIMIT $3
	`, excludeStoreID, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]domain.StoreProfile, 0, limit)
	for rows.Next() {
		var profile domain.StoreProfile
		if err := rows.Scan(&profile.ID, &profile.Name, &profile.OwnerName, &profile.Address, &profile.GSTIN, &profile.Phone, &profile.CreatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return profiles, nil
}

func (s *Store) ListItems(ctx context.Context, storeID string) ([]domain.StockItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, hsn, qty, unit, purchase_price_cents, selling_price_cents, gst_percent, created_at, updated_at
		FROM stock_items
		WHERE store_id = $1
		ORDER BY name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.StockItem, 0, 64)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) GetItem(ctx context.Context, storeID string, itemID string) (*domain.StockItem, error) {
	var item domain.StockItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, name, hsn, qty, unit, purchase_price_cents, selling_price_cents, gst_percent, created_at, updated_at
		FROM stock_items
		WHERE id = $1 AND store_id = $2
	`, itemID, storeID).Scan(
		&item.ID, &item.StoreID, &item.Name, &item.HSN, &item.Quantity, &item.Unit,
		&item.PurchasePriceCents, &item.SellingPriceCents, &item.GSTPercent, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.StockItem) (*domain.StockItem, error) {
	if item.StoreID == "" || strings.TrimSpace(item.Name) == "" || item.Quantity < 0 {
		return nil, store.ErrValidation
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_items (id, store_id, name, hsn, qty, unit, purchase_price_cents, selling_price_cents, gst_percent, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
	`, item.ID, item.StoreID, strings.TrimSpace(item.Name), item.HSN, item.Quantity, item.Unit,
		item.PurchasePriceCents, item.SellingPriceCents, item.GSTPercent, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.StockItem) (*domain.StockItem, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_items
		SET name = $3, hsn = $4, unit = $5, purchase_price_cents = $6, selling_price_cents = $7, gst_percent = $8, updated_at = now()
		WHERE id = $1 AND store_id = $2
	`, item.ID, item.StoreID, item.Name, item.HSN, item.Unit, item.PurchasePriceCents, item.SellingPriceCents, item.GSTPercent)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetItem(ctx, item.StoreID, item.ID)
}

func (s *Store) AdjustStock(ctx context.Context, storeID string, itemID string, delta int) (*domain.StockItem, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	item, err := adjustStockTx(ctx, tx, storeID, itemID, delta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Store) CreateOrMergeStock(ctx context.Context, storeID string, name string, quantity int, attrs domain.StockItemAttrs) (*domain.StockItem, error) {
	if storeID == "" || strings.TrimSpace(name) == "" || quantity < 1 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	item, err := createOrMergeTx(ctx, tx, storeID, name, quantity, attrs)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return item, nil
}

// adjustStockTx locks the item row, enforces that quantity never goes
// negative, and applies the delta. Insufficient stock aborts with no change.
func adjustStockTx(ctx context.Context, tx *sql.Tx, storeID string, itemID string, delta int) (*domain.StockItem, error) {
	var item domain.StockItem
	err := tx.QueryRowContext(ctx, `
		SELECT id, store_id, name, hsn, qty, unit, purchase_price_cents, selling_price_cents, gst_percent, created_at, updated_at
		FROM stock_items
		WHERE id = $1 AND store_id = $2
		FOR UPDATE
	`, itemID, storeID).Scan(
		&item.ID, &item.StoreID, &item.Name, &item.HSN, &item.Quantity, &item.Unit,
		&item.PurchasePriceCents, &item.SellingPriceCents, &item.GSTPercent, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if item.Quantity+delta < 0 {
		return nil, fmt.Errorf("%w for item %s", store.ErrInsufficientStock, item.Name)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stock_items
		SET qty = qty + $1, updated_at = now()
		WHERE id = $2
	`, delta, itemID)
	if err != nil {
		return nil, err
	}

	item.Quantity += delta
	return &item, nil
}

// createOrMergeTx merges by trimmed, case-insensitive name. An existing item
// keeps its own attrs; only its quantity grows. The name lookups here and in
// RevertTransfer require a unique index on (store_id, lower(btrim(name))); the
// same index backs CreateItem's unique-violation check.
func createOrMergeTx(ctx context.Context, tx *sql.Tx, storeID string, name string, quantity int, attrs domain.StockItemAttrs) (*domain.StockItem, error) {
	var existingID string
	err := tx.QueryRowContext(ctx, `
		SELECT id
		FROM stock_items
		WHERE store_id = $1 AND lower(btrim(name)) = lower(btrim($2))
		FOR UPDATE
	`, storeID, name).Scan(&existingID)
	if err == nil {
		return adjustStockTx(ctx, tx, storeID, existingID, quantity)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	item := domain.StockItem{
		ID:                 xid.New("item"),
		StoreID:            storeID,
		Name:               strings.TrimSpace(name),
		HSN:                attrs.HSN,
		Quantity:           quantity,
		Unit:               attrs.Unit,
		PurchasePriceCents: attrs.PurchasePriceCents,
		SellingPriceCents:  attrs.SellingPriceCents,
		GSTPercent:         attrs.GSTPercent,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_items (id, store_id, name, hsn, qty, unit, purchase_price_cents, selling_price_cents, gst_percent, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
	`, item.ID, item.StoreID, item.Name, item.HSN, item.Quantity, item.Unit,
		item.PurchasePriceCents, item.SellingPriceCents, item.GSTPercent, now)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateTransfer(ctx context.Context, transfer domain.TransferRequest) (*domain.TransferRequest, error) {
	if transfer.FromStoreID == "" || transfer.ToStoreID == "" || len(transfer.Lines) == 0 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, line := range transfer.Lines {
		if _, err := adjustStockTx(ctx, tx, transfer.FromStoreID, line.ItemID, -line.Quantity); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, line.ItemID)
			}
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfers (id, from_store_id, to_store_id, status, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, transfer.ID, transfer.FromStoreID, transfer.ToStoreID, transfer.Status, transfer.CreatedAt)
	if err != nil {
		return nil, err
	}
	for _, line := range transfer.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transfer_lines (transfer_id, item_id, name, hsn, qty, unit, unit_price_cents, discount_cents, gst_percent, total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, transfer.ID, line.ItemID, line.Name, line.HSN, line.Quantity, line.Unit,
			line.UnitPriceCents, line.DiscountCents, line.GSTPercent, line.TotalCents)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := transfer
	return &created, nil
}

func (s *Store) GetTransfer(ctx context.Context, id string) (*domain.TransferRequest, error) {
	transfer, err := s.scanTransferRow(s.db.QueryRowContext(ctx, `
		SELECT id, from_store_id, to_store_id, status, invoice_id, created_at, accepted_at, reverted_at, returned_at
		FROM transfers
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	lines, err := s.loadLines(ctx, id)
	if err != nil {
		return nil, err
	}
	transfer.Lines = lines
	return transfer, nil
}

func (s *Store) ListTransfersForStore(ctx context.Context, storeID string) ([]domain.TransferRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_store_id, to_store_id, status, invoice_id, created_at, accepted_at, reverted_at, returned_at
		FROM transfers
		WHERE from_store_id = $1 OR to_store_id = $1
		ORDER BY created_at DESC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.TransferRequest, 0, 32)
	for rows.Next() {
		var transfer domain.TransferRequest
		var invoiceID sql.NullString
		var acceptedAt, revertedAt, returnedAt sql.NullTime
		if err := rows.Scan(&transfer.ID, &transfer.FromStoreID, &transfer.ToStoreID, &transfer.Status,
			&invoiceID, &transfer.CreatedAt, &acceptedAt, &revertedAt, &returnedAt); err != nil {
			return nil, err
		}
		applyNullables(&transfer, invoiceID, acceptedAt, revertedAt, returnedAt)
		transfers = append(transfers, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range transfers {
		lines, err := s.loadLines(ctx, transfers[i].ID)
		if err != nil {
			return nil, err
		}
		transfers[i].Lines = lines
	}
	return transfers, nil
}

func (s *Store) RejectTransfer(ctx context.Context, id string, at time.Time) (*domain.TransferRequest, error) {
	return s.transition(ctx, id, domain.TransferPending, func(ctx context.Context, tx *sql.Tx, transfer *domain.TransferRequest) error {
		for _, line := range transfer.Lines {
			if err := restoreLineTx(ctx, tx, transfer.FromStoreID, line); err != nil {
				return err
			}
		}
		transfer.Status = domain.TransferRejected
		_, err := tx.ExecContext(ctx, `
			UPDATE transfers
			SET status = $2
			WHERE id = $1 AND status = $3
		`, id, domain.TransferRejected, domain.TransferPending)
		return err
	})
}

func (s *Store) AcceptTransfer(ctx context.Context, id string, invoice domain.Invoice, at time.Time) (*domain.TransferRequest, error) {
	return s.transition(ctx, id, domain.TransferPending, func(ctx context.Context, tx *sql.Tx, transfer *domain.TransferRequest) error {
		for _, line := range transfer.Lines {
			if _, err := createOrMergeTx(ctx, tx, transfer.ToStoreID, line.Name, line.Quantity, lineAttrs(line)); err != nil {
				return err
			}
		}

		if transfer.InvoiceID == "" {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO invoices (id, number, transfer_id, from_store_id, to_store_id, from_store_name, to_store_name, subtotal_cents, tax_cents, total_cents, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			`, invoice.ID, invoice.Number, invoice.TransferID, invoice.FromStoreID, invoice.ToStoreID,
				invoice.FromStoreName, invoice.ToStoreName, invoice.SubtotalCents, invoice.TaxCents, invoice.TotalCents, invoice.CreatedAt)
			if err != nil {
				return err
			}
			transfer.InvoiceID = invoice.ID
		}

		transfer.Status = domain.TransferAccepted
		transfer.AcceptedAt = &at
		_, err := tx.ExecContext(ctx, `
			UPDATE transfers
			SET status = $2, invoice_id = $3, accepted_at = $4
			WHERE id = $1 AND status = $5
		`, id, domain.TransferAccepted, transfer.InvoiceID, at, domain.TransferPending)
		return err
	})
}

func (s *Store) RevertTransfer(ctx context.Context, id string, at time.Time) (*domain.TransferRequest, error) {
	return s.transition(ctx, id, domain.TransferAccepted, func(ctx context.Context, tx *sql.Tx, transfer *domain.TransferRequest) error {
		// Lock and check every receiver item before decrementing: one short
		// line aborts the whole revert.
		receiverItems := make([]string, 0, len(transfer.Lines))
		for _, line := range transfer.Lines {
			var itemID string
			var qty int
			err := tx.QueryRowContext(ctx, `
				SELECT id, qty
				FROM stock_items
				WHERE store_id = $1 AND lower(btrim(name)) = lower(btrim($2))
				FOR UPDATE
			`, transfer.ToStoreID, line.Name).Scan(&itemID, &qty)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%w for item %s", store.ErrInsufficientStock, line.Name)
				}
				return err
			}
			if qty < line.Quantity {
				return fmt.Errorf("%w for item %s", store.ErrInsufficientStock, line.Name)
			}
			receiverItems = append(receiverItems, itemID)
		}
		for i, line := range transfer.Lines {
			if _, err := adjustStockTx(ctx, tx, transfer.ToStoreID, receiverItems[i], -line.Quantity); err != nil {
				return err
			}
		}

		transfer.Status = domain.TransferReverted
		transfer.RevertedAt = &at
		_, err := tx.ExecContext(ctx, `
			UPDATE transfers
			SET status = $2, reverted_at = $3
			WHERE id = $1 AND status = $4
		`, id, domain.TransferReverted, at, domain.TransferAccepted)
		return err
	})
}

func (s *Store) AcceptReturn(ctx context.Context, id string, at time.Time) (*domain.TransferRequest, error) {
	return s.transition(ctx, id, domain.TransferReverted, func(ctx context.Context, tx *sql.Tx, transfer *domain.TransferRequest) error {
		for _, line := range transfer.Lines {
			if err := restoreLineTx(ctx, tx, transfer.FromStoreID, line); err != nil {
				return err
			}
		}
		transfer.Status = domain.TransferReturned
		transfer.ReturnedAt = &at
		_, err := tx.ExecContext(ctx, `
			UPDATE transfers
			SET status = $2, returned_at = $3
			WHERE id = $1 AND status = $4
		`, id, domain.TransferReturned, at, domain.TransferReverted)
		return err
	})
}

func (s *Store) RejectReturn(ctx context.Context, id string, at time.Time) (*domain.TransferRequest, error) {
	return s.transition(ctx, id, domain.TransferReverted, func(ctx context.Context, tx *sql.Tx, transfer *domain.TransferRequest) error {
		for _, line := range transfer.Lines {
			if _, err := createOrMergeTx(ctx, tx, transfer.ToStoreID, line.Name, line.Quantity, lineAttrs(line)); err != nil {
				return err
			}
		}
		// accepted_at keeps its original value: bouncing a return does not
		// restart the revert window.
		transfer.Status = domain.TransferAccepted
		_, err := tx.ExecContext(ctx, `
			UPDATE transfers
			SET status = $2
			WHERE id = $1 AND status = $3
		`, id, domain.TransferAccepted, domain.TransferReverted)
		return err
	})
}

// transition runs one saga step as a single serializable transaction: lock the
// transfer header, verify the expected source status, apply the step's stock
// and invoice side effects, and flip the status. A header whose status already
// moved on returns ErrConflict with nothing applied.
func (s *Store) transition(ctx context.Context, id string, expected domain.TransferStatus, apply func(context.Context, *sql.Tx, *domain.TransferRequest) error) (*domain.TransferRequest, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	transfer, err := s.scanTransferRow(tx.QueryRowContext(ctx, `
		SELECT id, from_store_id, to_store_id, status, invoice_id, created_at, accepted_at, reverted_at, returned_at
		FROM transfers
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}
	if transfer.Status != expected {
		return nil, store.ErrConflict
	}

	lines, err := s.loadLinesTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	transfer.Lines = lines

	if err := apply(ctx, tx, transfer); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return transfer, nil
}

// restoreLineTx puts a line's quantity back into the sender's ledger,
// recreating the item from the snapshot if it no longer exists.
func restoreLineTx(ctx context.Context, tx *sql.Tx, storeID string, line domain.TransferLineItem) error {
	_, err := adjustStockTx(ctx, tx, storeID, line.ItemID, line.Quantity)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	_, err = createOrMergeTx(ctx, tx, storeID, line.Name, line.Quantity, lineAttrs(line))
	return err
}

func lineAttrs(line domain.TransferLineItem) domain.StockItemAttrs {
	return domain.StockItemAttrs{
		HSN:                line.HSN,
		Unit:               line.Unit,
		PurchasePriceCents: line.UnitPriceCents - line.DiscountCents,
		SellingPriceCents:  line.UnitPriceCents,
		GSTPercent:         line.GSTPercent,
	}
}

func (s *Store) GetInvoiceByTransfer(ctx context.Context, transferID string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, transfer_id, from_store_id, to_store_id, from_store_name, to_store_name, subtotal_cents, tax_cents, total_cents, created_at
		FROM invoices
		WHERE transfer_id = $1
	`, transferID).Scan(
		&invoice.ID, &invoice.Number, &invoice.TransferID, &invoice.FromStoreID, &invoice.ToStoreID,
		&invoice.FromStoreName, &invoice.ToStoreName, &invoice.SubtotalCents, &invoice.TaxCents, &invoice.TotalCents, &invoice.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	lines, err := s.loadLines(ctx, transferID)
	if err != nil {
		return nil, err
	}
	invoice.Lines = lines
	return &invoice, nil
}

func (s *Store) ListInvoicesForStore(ctx context.Context, storeID string) ([]domain.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, transfer_id, from_store_id, to_store_id, from_store_name, to_store_name, subtotal_cents, tax_cents, total_cents, created_at
		FROM invoices
		WHERE from_store_id = $1
		ORDER BY created_at DESC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 16)
	for rows.Next() {
		var invoice domain.Invoice
		if err := rows.Scan(&invoice.ID, &invoice.Number, &invoice.TransferID, &invoice.FromStoreID, &invoice.ToStoreID,
			&invoice.FromStoreName, &invoice.ToStoreName, &invoice.SubtotalCents, &invoice.TaxCents, &invoice.TotalCents, &invoice.CreatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range invoices {
		lines, err := s.loadLines(ctx, invoices[i].TransferID)
		if err != nil {
			return nil, err
		}
		invoices[i].Lines = lines
	}
	return invoices, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func (s *Store) CreateAccount(ctx context.Context, account domain.StoreAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_accounts (username, password, store_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, account.Username, account.Password, account.StoreID, account.Active, account.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrValidation
	}
	return err
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.StoreAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, store_id, active, created_at
		FROM store_accounts
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.StoreAccount, 0, 8)
	for rows.Next() {
		var account domain.StoreAccount
		if err := rows.Scan(&account.Username, &account.Password, &account.StoreID, &account.Active, &account.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

func (s *Store) UpdateAccountPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE store_accounts
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) scanTransferRow(row *sql.Row) (*domain.TransferRequest, error) {
	var transfer domain.TransferRequest
	var invoiceID sql.NullString
	var acceptedAt, revertedAt, returnedAt sql.NullTime
	err := row.Scan(&transfer.ID, &transfer.FromStoreID, &transfer.ToStoreID, &transfer.Status,
		&invoiceID, &transfer.CreatedAt, &acceptedAt, &revertedAt, &returnedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	applyNullables(&transfer, invoiceID, acceptedAt, revertedAt, returnedAt)
	return &transfer, nil
}

func applyNullables(transfer *domain.TransferRequest, invoiceID sql.NullString, acceptedAt, revertedAt, returnedAt sql.NullTime) {
	if invoiceID.Valid {
		transfer.InvoiceID = invoiceID.String
	}
	if acceptedAt.Valid {
		at := acceptedAt.Time.UTC()
		transfer.AcceptedAt = &at
	}
	if revertedAt.Valid {
		at := revertedAt.Time.UTC()
		transfer.RevertedAt = &at
	}
	if returnedAt.Valid {
		at := returnedAt.Time.UTC()
		transfer.ReturnedAt = &at
	}
}

func (s *Store) loadLines(ctx context.Context, transferID string) ([]domain.TransferLineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, name, hsn, qty, unit, unit_price_cents, discount_cents, gst_percent, total_cents
		FROM transfer_lines
		WHERE transfer_id = $1
		ORDER BY name
	`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLines(rows)
}

func (s *Store) loadLinesTx(ctx context.Context, tx *sql.Tx, transferID string) ([]domain.TransferLineItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT item_id, name, hsn, qty, unit, unit_price_cents, discount_cents, gst_percent, total_cents
		FROM transfer_lines
		WHERE transfer_id = $1
		ORDER BY name
	`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLines(rows)
}

func collectLines(rows *sql.Rows) ([]domain.TransferLineItem, error) {
	lines := make([]domain.TransferLineItem, 0, 8)
	for rows.Next() {
		var line domain.TransferLineItem
		if err := rows.Scan(&line.ItemID, &line.Name, &line.HSN, &line.Quantity, &line.Unit,
			&line.UnitPriceCents, &line.DiscountCents, &line.GSTPercent, &line.TotalCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

type itemScanner interface {
	Scan(dest ...any) error
}

func scanItem(row itemScanner) (domain.StockItem, error) {
	var item domain.StockItem
	err := row.Scan(
		&item.ID, &item.StoreID, &item.Name, &item.HSN, &item.Quantity, &item.Unit,
		&item.PurchasePriceCents, &item.SellingPriceCents, &item.GSTPercent, &item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
