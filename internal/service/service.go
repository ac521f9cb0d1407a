package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"stocklink/backend/internal/cache"
	"stocklink/backend/internal/domain"
	"stocklink/backend/internal/invoice"
	"stocklink/backend/internal/store"
	"stocklink/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service drives the transfer workflow. It is the only component with
// transition knowledge: it validates guards against the current persisted
// state and sequences the ledger, repository and invoice calls for each step.
type Service struct {
	repo       store.Repository
	invoices   *invoice.Generator
	profiles   cache.StoreProfileCache
	profileTTL time.Duration
	now        func() time.Time
}

func New(repo store.Repository, invoices *invoice.Generator, profiles cache.StoreProfileCache, profileTTL time.Duration) *Service {
	if profiles == nil {
		profiles = cache.NoopStoreProfileCache{}
	}
	if profileTTL <= 0 {
		profileTTL = time.Minute
	}

	return &Service{
		repo:       repo,
		invoices:   invoices,
		profiles:   profiles,
		profileTTL: profileTTL,
		now:        time.Now,
	}
}

type actorSide int

const (
	bySender actorSide = iota
	byReceiver
)

// transitionRules is the whole state machine in one place: which persisted
// status each event requires, which party may fire it, and where it lands.
// Rejected and Returned have no entries pointing out of them, so they are
// terminal by construction.
var transitionRules = map[domain.TransferEvent]struct {
	from domain.TransferStatus
	side actorSide
	to   domain.TransferStatus
}{
	domain.EventAccept:       {from: domain.TransferPending, side: byReceiver, to: domain.TransferAccepted},
	domain.EventReject:       {from: domain.TransferPending, side: byReceiver, to: domain.TransferRejected},
	domain.EventRevert:       {from: domain.TransferAccepted, side: byReceiver, to: domain.TransferReverted},
	domain.EventReturnAccept: {from: domain.TransferReverted, side: bySender, to: domain.TransferReturned},
	domain.EventReturnReject: {from: domain.TransferReverted, side: bySender, to: domain.TransferAccepted},
}

func (s *Service) actor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.StoreID == "" {
		return domain.Actor{}, fmt.Errorf("%w: missing store identity", store.ErrForbidden)
	}
	return actor, nil
}

func (s *Service) GetStoreProfile(ctx context.Context, id string) (domain.StoreProfile, error) {
	key := "store-profile:" + id
	if cached, ok, err := s.profiles.Get(ctx, key); err == nil && ok {
		return *cached, nil
	}

	profile, err := s.repo.GetStoreProfile(ctx, id)
	if err != nil {
		return domain.StoreProfile{}, err
	}
	if err := s.profiles.Set(ctx, key, profile, s.profileTTL); err != nil {
		log.Printf("[service] WARN: failed to cache store profile %s: %v", id, err)
	}
	return *profile, nil
}

func (s *Service) SearchStores(ctx context.Context, query string) ([]domain.StoreProfile, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.SearchStores(ctx, query, actor.StoreID, 20)
}

func (s *Service) ListItems(ctx context.Context) ([]domain.StockItem, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, actor.StoreID)
}

func (s *Service) CreateItem(ctx context.Context, req domain.StockItemCreateRequest) (domain.StockItem, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.StockItem{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Quantity < 0 {
		return domain.StockItem{}, store.ErrValidation
	}
	if req.SellingPriceCents < 0 || req.PurchasePriceCents < 0 || req.GSTPercent < 0 || req.GSTPercent > 100 {
		return domain.StockItem{}, store.ErrValidation
	}
	if req.Unit == "" {
		req.Unit = "pc"
	}

	created, err := s.repo.CreateItem(ctx, domain.StockItem{
		StoreID:            actor.StoreID,
		Name:               req.Name,
		HSN:                strings.TrimSpace(req.HSN),
		Quantity:           req.Quantity,
		Unit:               req.Unit,
		PurchasePriceCents: req.PurchasePriceCents,
		SellingPriceCents:  req.SellingPriceCents,
		GSTPercent:         req.GSTPercent,
	})
	if err != nil {
		return domain.StockItem{}, err
	}

	s.logAudit(ctx, actor.StoreID, "item_create", "item", created.ID, fmt.Sprintf("name=%s,qty=%d", created.Name, created.Quantity))
	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, itemID string, req domain.StockItemUpdateRequest) (domain.StockItem, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.StockItem{}, err
	}

	existing, err := s.repo.GetItem(ctx, actor.StoreID, itemID)
	if err != nil {
		return domain.StockItem{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.StockItem{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.HSN != nil {
		updated.HSN = strings.TrimSpace(*req.HSN)
	}
	if req.Unit != nil {
		if *req.Unit == "" {
			return domain.StockItem{}, store.ErrValidation
		}
		updated.Unit = *req.Unit
	}
	if req.PurchasePriceCents != nil {
		if *req.PurchasePriceCents < 0 {
			return domain.StockItem{}, store.ErrValidation
		}
		updated.PurchasePriceCents = *req.PurchasePriceCents
	}
	if req.SellingPriceCents != nil {
		if *req.SellingPriceCents < 0 {
			return domain.StockItem{}, store.ErrValidation
		}
		updated.SellingPriceCents = *req.SellingPriceCents
	}
	if req.GSTPercent != nil {
		if *req.GSTPercent < 0 || *req.GSTPercent > 100 {
			return domain.StockItem{}, store.ErrValidation
		}
		updated.GSTPercent = *req.GSTPercent
	}

	saved, err := s.repo.UpdateItem(ctx, updated)
	if err != nil {
		return domain.StockItem{}, err
	}

	s.logAudit(ctx, actor.StoreID, "item_update", "item", saved.ID, fmt.Sprintf("name=%s,selling=%d,gst=%.2f", saved.Name, saved.SellingPriceCents, saved.GSTPercent))
	return *saved, nil
}

func (s *Service) AdjustStock(ctx context.Context, itemID string, delta int) (domain.StockItem, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.StockItem{}, err
	}
	if delta == 0 {
		return domain.StockItem{}, store.ErrValidation
	}

	adjusted, err := s.repo.AdjustStock(ctx, actor.StoreID, itemID, delta)
	if err != nil {
		return domain.StockItem{}, err
	}

	s.logAudit(ctx, actor.StoreID, "stock_adjust", "item", adjusted.ID, fmt.Sprintf("delta=%d,qty=%d", delta, adjusted.Quantity))
	return *adjusted, nil
}

// CreateTransfer validates the whole request, snapshots every line from the
// sender's catalog at current prices, and persists the transfer while
// decrementing sender stock in one atomic unit. Validation failures name the
// first failing line item and leave no side effects.
func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferCreateRequest) (domain.TransferResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.TransferResponse{}, err
	}

	req.ToStoreID = strings.TrimSpace(req.ToStoreID)
	if req.ToStoreID == "" || len(req.Lines) == 0 {
		return domain.TransferResponse{}, store.ErrValidation
	}
	if req.ToStoreID == actor.StoreID {
		return domain.TransferResponse{}, fmt.Errorf("%w: cannot transfer to own store", store.ErrValidation)
	}
	if _, err := s.GetStoreProfile(ctx, req.ToStoreID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TransferResponse{}, fmt.Errorf("%w: recipient store %s does not exist", store.ErrValidation, req.ToStoreID)
		}
		return domain.TransferResponse{}, err
	}

	lines := make([]domain.TransferLineItem, 0, len(req.Lines))
	seen := make(map[string]bool, len(req.Lines))
	for _, line := range req.Lines {
		if line.Quantity < 1 || line.DiscountCents < 0 {
			return domain.TransferResponse{}, fmt.Errorf("%w: bad quantity or discount for item %s", store.ErrValidation, line.ItemID)
		}
		if seen[line.ItemID] {
			return domain.TransferResponse{}, fmt.Errorf("%w: duplicate line for item %s", store.ErrValidation, line.ItemID)
		}
		seen[line.ItemID] = true

		item, err := s.repo.GetItem(ctx, actor.StoreID, line.ItemID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.TransferResponse{}, fmt.Errorf("%w: item %s is not in your store", store.ErrValidation, line.ItemID)
			}
			return domain.TransferResponse{}, err
		}
		if item.Quantity < line.Quantity {
			return domain.TransferResponse{}, fmt.Errorf("%w for item %s", store.ErrInsufficientStock, item.Name)
		}
		if line.DiscountCents > item.SellingPriceCents {
			return domain.TransferResponse{}, fmt.Errorf("%w: discount exceeds price for item %s", store.ErrValidation, item.Name)
		}

		lines = append(lines, domain.TransferLineItem{
			ItemID:         item.ID,
			Name:           item.Name,
			HSN:            item.HSN,
			Quantity:       line.Quantity,
			Unit:           item.Unit,
			UnitPriceCents: item.SellingPriceCents,
			DiscountCents:  line.DiscountCents,
			GSTPercent:     item.GSTPercent,
			TotalCents:     (item.SellingPriceCents - line.DiscountCents) * int64(line.Quantity),
		})
	}

	transfer := domain.TransferRequest{
		ID:          xid.New("tr"),
		FromStoreID: actor.StoreID,
		ToStoreID:   req.ToStoreID,
		Status:      domain.TransferPending,
		CreatedAt:   s.now().UTC(),
		Lines:       lines,
	}

	created, err := s.repo.CreateTransfer(ctx, transfer)
	if err != nil {
		return domain.TransferResponse{}, err
	}

	s.logAudit(ctx, actor.StoreID, "transfer_create", "transfer", created.ID, fmt.Sprintf("to=%s,lines=%d", created.ToStoreID, len(created.Lines)))
	return domain.TransferResponse{Transfer: *created}, nil
}

func (s *Service) ListTransfers(ctx context.Context) (domain.TransferListResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.TransferListResponse{}, err
	}

	transfers, err := s.repo.ListTransfersForStore(ctx, actor.StoreID)
	if err != nil {
		return domain.TransferListResponse{}, err
	}

	resp := domain.TransferListResponse{
		Outbound: make([]domain.TransferRequest, 0, len(transfers)),
		Inbound:  make([]domain.TransferRequest, 0, len(transfers)),
	}
	for _, transfer := range transfers {
		if transfer.FromStoreID == actor.StoreID {
			resp.Outbound = append(resp.Outbound, transfer)
		} else {
			resp.Inbound = append(resp.Inbound, transfer)
		}
	}
	return resp, nil
}

func (s *Service) GetTransfer(ctx context.Context, id string) (domain.TransferResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.TransferResponse{}, err
	}

	transfer, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	if transfer.FromStoreID != actor.StoreID && transfer.ToStoreID != actor.StoreID {
		return domain.TransferResponse{}, store.ErrForbidden
	}
	return domain.TransferResponse{Transfer: *transfer}, nil
}

// ApplyTransition fires one saga event. Guards run against the freshly read
// persisted status; the repository re-verifies that status inside the commit,
// so a concurrent transition makes the loser fail with a conflict instead of
// applying twice.
func (s *Service) ApplyTransition(ctx context.Context, transferID string, event domain.TransferEvent) (domain.TransferResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.TransferResponse{}, err
	}

	rule, ok := transitionRules[event]
	if !ok {
		return domain.TransferResponse{}, fmt.Errorf("%w: unknown event %s", store.ErrValidation, event)
	}

	transfer, err := s.repo.GetTransfer(ctx, transferID)
	if err != nil {
		return domain.TransferResponse{}, err
	}

	expectedActor := transfer.FromStoreID
	if rule.side == byReceiver {
		expectedActor = transfer.ToStoreID
	}
	if actor.StoreID != expectedActor {
		return domain.TransferResponse{}, fmt.Errorf("%w: %s may only be applied by store %s", store.ErrForbidden, event, expectedActor)
	}
	if transfer.Status != rule.from {
		return domain.TransferResponse{}, fmt.Errorf("%w: %s not allowed from status %s", store.ErrInvalidTransition, event, transfer.Status)
	}

	at := s.now().UTC()
	var updated *domain.TransferRequest
	switch event {
	case domain.EventAccept:
		inv, err := s.buildInvoice(ctx, *transfer, at)
		if err != nil {
			return domain.TransferResponse{}, err
		}
		updated, err = s.repo.AcceptTransfer(ctx, transferID, inv, at)
		if err != nil {
			return domain.TransferResponse{}, err
		}
	case domain.EventReject:
		updated, err = s.repo.RejectTransfer(ctx, transferID, at)
	case domain.EventRevert:
		if transfer.AcceptedAt == nil || at.Sub(*transfer.AcceptedAt) > domain.RevertWindow {
			return domain.TransferResponse{}, fmt.Errorf("%w: revert window expired", store.ErrInvalidTransition)
		}
		updated, err = s.repo.RevertTransfer(ctx, transferID, at)
	case domain.EventReturnAccept:
		updated, err = s.repo.AcceptReturn(ctx, transferID, at)
	case domain.EventReturnReject:
		updated, err = s.repo.RejectReturn(ctx, transferID, at)
	}
	if err != nil {
		return domain.TransferResponse{}, err
	}

	s.logAudit(ctx, actor.StoreID, "transfer_"+string(event), "transfer", transferID, fmt.Sprintf("status=%s", updated.Status))
	return domain.TransferResponse{Transfer: *updated}, nil
}

// buildInvoice prices the invoice from the snapshot. The invoiceId guard makes
// accept idempotent: a transfer that already carries an invoice reuses it and
// no second invoice is ever written.
func (s *Service) buildInvoice(ctx context.Context, transfer domain.TransferRequest, at time.Time) (domain.Invoice, error) {
	if transfer.InvoiceID != "" {
		existing, err := s.repo.GetInvoiceByTransfer(ctx, transfer.ID)
		if err != nil {
			return domain.Invoice{}, err
		}
		return *existing, nil
	}

	from, err := s.GetStoreProfile(ctx, transfer.FromStoreID)
	if err != nil {
		return domain.Invoice{}, err
	}
	to, err := s.GetStoreProfile(ctx, transfer.ToStoreID)
	if err != nil {
		return domain.Invoice{}, err
	}

	inv := s.invoices.Generate(transfer, from, to, at)
	inv.ID = xid.New("inv")
	return inv, nil
}

func (s *Service) GetTransferInvoice(ctx context.Context, transferID string) (domain.InvoiceResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}

	transfer, err := s.repo.GetTransfer(ctx, transferID)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}
	if transfer.FromStoreID != actor.StoreID && transfer.ToStoreID != actor.StoreID {
		return domain.InvoiceResponse{}, store.ErrForbidden
	}

	inv, err := s.repo.GetInvoiceByTransfer(ctx, transferID)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}
	return domain.InvoiceResponse{Invoice: *inv}, nil
}

func (s *Service) ListInvoices(ctx context.Context) (domain.InvoiceListResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.InvoiceListResponse{}, err
	}

	invoices, err := s.repo.ListInvoicesForStore(ctx, actor.StoreID)
	if err != nil {
		return domain.InvoiceListResponse{}, err
	}
	return domain.InvoiceListResponse{Invoices: invoices}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, actor.StoreID, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	username := ""
	if actor, ok := ActorFromContext(ctx); ok {
		username = actor.Username
	}

	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: username,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
