package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stocklink/backend/internal/domain"
	"stocklink/backend/internal/store"
	"stocklink/backend/internal/xid"
)

type Store struct {
	mu                sync.RWMutex
	profilesByID      map[string]domain.StoreProfile
	itemsByID         map[string]domain.StockItem
	transfersByID     map[string]domain.TransferRequest
	invoicesByTransfer map[string]domain.Invoice
	auditLogs         []domain.AuditLog
	accountsByUsername map[string]domain.StoreAccount
}

func New() *Store {
	return &Store{
		profilesByID:       map[string]domain.StoreProfile{},
		itemsByID:          map[string]domain.StockItem{},
		transfersByID:      map[string]domain.TransferRequest{},
		invoicesByTransfer: map[string]domain.Invoice{},
		accountsByUsername: map[string]domain.StoreAccount{},
	}
}

// seedAccounts builds the initial store accounts for dev/demo mode.
// Credentials come from SEED_RAJAN_PASSWORD and SEED_MEERA_PASSWORD; hardcoded
// dev defaults are used with a warning when unset. These accounts are never
// used in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedAccounts() map[string]domain.StoreAccount {
	rajanPwd := envOr("SEED_RAJAN_PASSWORD", "rajan123")
	meeraPwd := envOr("SEED_MEERA_PASSWORD", "meera123")
	if os.Getenv("SEED_RAJAN_PASSWORD") == "" || os.Getenv("SEED_MEERA_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_RAJAN_PASSWORD and SEED_MEERA_PASSWORD to override.")
	}

	now := time.Now().UTC()
	accounts := map[string]domain.StoreAccount{}
	for _, a := range []struct {
		username string
		password string
		storeID  string
	}{
		{"rajan", rajanPwd, "store-rajan"},
		{"meera", meeraPwd, "store-meera"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", a.username, err)
		}
		accounts[a.username] = domain.StoreAccount{
			Username:  a.username,
			Password:  string(hash),
			StoreID:   a.storeID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return accounts
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	s.profilesByID["store-rajan"] = domain.StoreProfile{
		ID: "store-rajan", Name: "Rajan Kirana Store", OwnerName: "Rajan Pillai",
		Address: "14 MG Road, Kochi", GSTIN: "32AAAPR1234F1Z5", Phone: "+91-9846000001", CreatedAt: now,
	}
	s.profilesByID["store-meera"] = domain.StoreProfile{
		ID: "store-meera", Name: "Meera General Stores", OwnerName: "Meera Nair",
		Address: "2 Beach Road, Alappuzha", GSTIN: "32AABPM5678K1Z2", Phone: "+91-9846000002", CreatedAt: now,
	}

	items := []domain.StockItem{
		{ID: "item-rice-5kg", StoreID: "store-rajan", Name: "Basmati Rice 5kg", HSN: "1006", Quantity: 40, Unit: "bag", PurchasePriceCents: 42000, SellingPriceCents: 52000, GSTPercent: 5},
		{ID: "item-toor-dal", StoreID: "store-rajan", Name: "Toor Dal 1kg", HSN: "0713", Quantity: 60, Unit: "pkt", PurchasePriceCents: 11000, SellingPriceCents: 14500, GSTPercent: 5},
		{ID: "item-sun-oil", StoreID: "store-rajan", Name: "Sunflower Oil 1L", HSN: "1512", Quantity: 25, Unit: "btl", PurchasePriceCents: 12500, SellingPriceCents: 16000, GSTPercent: 5},
		{ID: "item-tea-250g", StoreID: "store-meera", Name: "Assam Tea 250g", HSN: "0902", Quantity: 30, Unit: "pkt", PurchasePriceCents: 9000, SellingPriceCents: 12000, GSTPercent: 5},
		{ID: "item-soap-bar", StoreID: "store-meera", Name: "Bath Soap Bar", HSN: "3401", Quantity: 80, Unit: "pc", PurchasePriceCents: 2500, SellingPriceCents: 4000, GSTPercent: 18},
	}
	for _, item := range items {
		item.CreatedAt = now
		item.UpdatedAt = now
		s.itemsByID[item.ID] = item
	}

	s.accountsByUsername = seedAccounts()
	return s
}

func (s *Store) GetStoreProfile(_ context.Context, id string) (*domain.StoreProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profilesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &profile, nil
}

func (s *Store) SearchStores(_ context.Context, query string, excludeStoreID string, limit int) ([]domain.StoreProfile, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if limit < 1 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.StoreProfile, 0, 8)
	for _, profile := range s.profilesByID {
		if profile.ID == excludeStoreID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(profile.Name), needle) {
			continue
		}
		results = append(results, profile)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) ListItems(_ context.Context, storeID string) ([]domain.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.StockItem, 0, 16)
	for _, item := range s.itemsByID {
		if item.StoreID == storeID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *Store) GetItem(_ context.Context, storeID string, itemID string) (*domain.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.itemsByID[itemID]
	if !ok || item.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.StockItem) (*domain.StockItem, error) {
	if item.StoreID == "" || strings.TrimSpace(item.Name) == "" || item.Quantity < 0 {
		return nil, store.ErrValidation
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findItemByNameLocked(item.StoreID, item.Name) != nil {
		return nil, store.ErrValidation
	}
	s.itemsByID[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.StockItem) (*domain.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.itemsByID[item.ID]
	if !ok || existing.StoreID != item.StoreID {
		return nil, store.ErrNotFound
	}

	// Quantity is only mutated through the ledger methods.
	existing.Name = item.Name
	existing.HSN = item.HSN
	existing.Unit = item.Unit
	existing.PurchasePriceCents = item.PurchasePriceCents
	existing.SellingPriceCents = item.SellingPriceCents
	existing.GSTPercent = item.GSTPercent
	existing.UpdatedAt = time.Now().UTC()
	s.itemsByID[item.ID] = existing

	updated := existing
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, storeID string, itemID string, delta int) (*domain.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adjustStockLocked(storeID, itemID, delta)
}

func (s *Store) adjustStockLocked(storeID string, itemID string, delta int) (*domain.StockItem, error) {
	item, ok := s.itemsByID[itemID]
	if !ok || item.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	if item.Quantity+delta < 0 {
		return nil, fmt.Errorf("%w for item %s", store.ErrInsufficientStock, item.Name)
	}
	item.Quantity += delta
	item.UpdatedAt = time.Now().UTC()
	s.itemsByID[itemID] = item

	adjusted := item
	return &adjusted, nil
}

func (s *Store) CreateOrMergeStock(_ context.Context, storeID string, name string, quantity int, attrs domain.StockItemAttrs) (*domain.StockItem, error) {
	if storeID == "" || strings.TrimSpace(name) == "" || quantity < 1 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createOrMergeLocked(storeID, name, quantity, attrs)
}

// createOrMergeLocked merges by trimmed, case-insensitive name. An existing
// item keeps its own attrs; only its quantity grows.
func (s *Store) createOrMergeLocked(storeID string, name string, quantity int, attrs domain.StockItemAttrs) (*domain.StockItem, error) {
	if existing := s.findItemByNameLocked(storeID, name); existing != nil {
		return s.adjustStockLocked(storeID, existing.ID, quantity)
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
	s.itemsByID[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) findItemByNameLocked(storeID string, name string) *domain.StockItem {
	needle := strings.ToLower(strings.TrimSpace(name))
	for id, item := range s.itemsByID {
		if item.StoreID == storeID && strings.ToLower(strings.TrimSpace(item.Name)) == needle {
			found := s.itemsByID[id]
			return &found
		}
	}
	return nil
}

func (s *Store) CreateTransfer(_ context.Context, transfer domain.TransferRequest) (*domain.TransferRequest, error) {
	if transfer.FromStoreID == "" || transfer.ToStoreID == "" || len(transfer.Lines) == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every line before mutating anything: creation is all-or-nothing.
	// Quantities are summed per item so lines naming the same item cannot pass
	// individually while jointly overdrawing it.
	needed := make(map[string]int, len(transfer.Lines))
	for _, line := range transfer.Lines {
		item, ok := s.itemsByID[line.ItemID]
		if !ok || item.StoreID != transfer.FromStoreID {
			return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, line.ItemID)
		}
		needed[line.ItemID] += line.Quantity
		if item.Quantity < needed[line.ItemID] {
			return nil, fmt.Errorf("%w for item %s", store.ErrInsufficientStock, item.Name)
		}
	}
	for _, line := range transfer.Lines {
		if _, err := s.adjustStockLocked(transfer.FromStoreID, line.ItemID, -line.Quantity); err != nil {
			return nil, err
		}
	}

	s.transfersByID[transfer.ID] = cloneTransfer(transfer)
	created := cloneTransfer(transfer)
	return &created, nil
}

func (s *Store) GetTransfer(_ context.Context, id string) (*domain.TransferRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfer, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneTransfer(transfer)
	return &found, nil
}

func (s *Store) ListTransfersForStore(_ context.Context, storeID string) ([]domain.TransferRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfers := make([]domain.TransferRequest, 0, 16)
	for _, transfer := range s.transfersByID {
		if transfer.FromStoreID == storeID || transfer.ToStoreID == storeID {
			transfers = append(transfers, cloneTransfer(transfer))
		}
	}
	sort.Slice(transfers, func(i, j int) bool { return transfers[i].CreatedAt.After(transfers[j].CreatedAt) })
	return transfers, nil
}

func (s *Store) RejectTransfer(_ context.Context, id string, at time.Time) (*domain.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if transfer.Status != domain.TransferPending {
		return nil, store.ErrConflict
	}

	for _, line := range transfer.Lines {
		if err := s.restoreLineLocked(transfer.FromStoreID, line); err != nil {
			return nil, err
		}
	}

	transfer.Status = domain.TransferRejected
	s.transfersByID[id] = transfer

	updated := cloneTransfer(transfer)
	return &updated, nil
}

func (s *Store) AcceptTransfer(_ context.Context, id string, invoice domain.Invoice, at time.Time) (*domain.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if transfer.Status != domain.TransferPending {
		return nil, store.ErrConflict
	}

	for _, line := range transfer.Lines {
		if _, err := s.createOrMergeLocked(transfer.ToStoreID, line.Name, line.Quantity, lineAttrs(line)); err != nil {
			return nil, err
		}
	}

	if transfer.InvoiceID == "" {
		s.invoicesByTransfer[id] = invoice
		transfer.InvoiceID = invoice.ID
	}
	transfer.Status = domain.TransferAccepted
	transfer.AcceptedAt = &at
	s.transfersByID[id] = transfer

	updated := cloneTransfer(transfer)
	return &updated, nil
}

func (s *Store) RevertTransfer(_ context.Context, id string, at time.Time) (*domain.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if transfer.Status != domain.TransferAccepted {
		return nil, store.ErrConflict
	}

	// The receiver must still hold every transferred quantity; a single short
	// line aborts the whole revert before any decrement happens. Quantities are
	// summed per item in case several lines resolve to the same receiver item.
	receiverItems := make([]string, 0, len(transfer.Lines))
	needed := make(map[string]int, len(transfer.Lines))
	for _, line := range transfer.Lines {
		item := s.findItemByNameLocked(transfer.ToStoreID, line.Name)
		if item == nil {
			return nil, fmt.Errorf("%w for item %s", store.ErrInsufficientStock, line.Name)
		}
		needed[item.ID] += line.Quantity
		if item.Quantity < needed[item.ID] {
			return nil, fmt.Errorf("%w for item %s", store.ErrInsufficientStock, line.Name)
		}
		receiverItems = append(receiverItems, item.ID)
	}
	for i, line := range transfer.Lines {
		if _, err := s.adjustStockLocked(transfer.ToStoreID, receiverItems[i], -line.Quantity); err != nil {
			return nil, err
		}
	}

	transfer.Status = domain.TransferReverted
	transfer.RevertedAt = &at
	s.transfersByID[id] = transfer

	updated := cloneTransfer(transfer)
	return &updated, nil
}

func (s *Store) AcceptReturn(_ context.Context, id string, at time.Time) (*domain.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if transfer.Status != domain.TransferReverted {
		return nil, store.ErrConflict
	}

	for _, line := range transfer.Lines {
		if err := s.restoreLineLocked(transfer.FromStoreID, line); err != nil {
			return nil, err
		}
	}

	transfer.Status = domain.TransferReturned
	transfer.ReturnedAt = &at
	s.transfersByID[id] = transfer

	updated := cloneTransfer(transfer)
	return &updated, nil
}

func (s *Store) RejectReturn(_ context.Context, id string, at time.Time) (*domain.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if transfer.Status != domain.TransferReverted {
		return nil, store.ErrConflict
	}

	for _, line := range transfer.Lines {
		if _, err := s.createOrMergeLocked(transfer.ToStoreID, line.Name, line.Quantity, lineAttrs(line)); err != nil {
			return nil, err
		}
	}

	// AcceptedAt keeps its original value: bouncing a return does not restart
	// the revert window.
	transfer.Status = domain.TransferAccepted
	s.transfersByID[id] = transfer

	updated := cloneTransfer(transfer)
	return &updated, nil
}

// restoreLineLocked puts a line's quantity back into the sender's ledger,
// recreating the item from the snapshot if it no longer exists.
func (s *Store) restoreLineLocked(storeID string, line domain.TransferLineItem) error {
	if item, ok := s.itemsByID[line.ItemID]; ok && item.StoreID == storeID {
		_, err := s.adjustStockLocked(storeID, line.ItemID, line.Quantity)
		return err
	}
	_, err := s.createOrMergeLocked(storeID, line.Name, line.Quantity, lineAttrs(line))
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

func (s *Store) GetInvoiceByTransfer(_ context.Context, transferID string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoicesByTransfer[transferID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := invoice
	found.Lines = append([]domain.TransferLineItem(nil), invoice.Lines...)
	return &found, nil
}

func (s *Store) ListInvoicesForStore(_ context.Context, storeID string) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, 8)
	for _, invoice := range s.invoicesByTransfer {
		if invoice.FromStoreID == storeID {
			inv := invoice
			inv.Lines = append([]domain.TransferLineItem(nil), invoice.Lines...)
			invoices = append(invoices, inv)
		}
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].CreatedAt.After(invoices[j].CreatedAt) })
	return invoices, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		if s.auditLogs[i].StoreID == storeID {
			logs = append(logs, s.auditLogs[i])
		}
	}
	return logs, nil
}

func (s *Store) CreateAccount(_ context.Context, account domain.StoreAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accountsByUsername[account.Username]; exists {
		return store.ErrValidation
	}
	s.accountsByUsername[account.Username] = account
	return nil
}

func (s *Store) ListAccounts(_ context.Context) ([]domain.StoreAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.StoreAccount, 0, len(s.accountsByUsername))
	for _, account := range s.accountsByUsername {
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (s *Store) UpdateAccountPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accountsByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	account.Password = password
	s.accountsByUsername[username] = account
	return nil
}

func cloneTransfer(transfer domain.TransferRequest) domain.TransferRequest {
	cloned := transfer
	cloned.Lines = append([]domain.TransferLineItem(nil), transfer.Lines...)
	return cloned
}
