package store

import (
	"context"
	"errors"
	"time"

	"stocklink/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid request")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("conflict")
)

// Repository is the durable storage contract. The transfer transition methods
// each execute as one atomic unit: they re-check the persisted status, apply
// every stock side effect, and flip the status together, so a transition can
// never partially apply. A transition whose expected source status no longer
// matches returns ErrConflict.
type Repository interface {
	GetStoreProfile(ctx context.Context, id string) (*domain.StoreProfile, error)
	SearchStores(ctx context.Context, query string, excludeStoreID string, limit int) ([]domain.StoreProfile, error)

	ListItems(ctx context.Context, storeID string) ([]domain.StockItem, error)
	GetItem(ctx context.Context, storeID string, itemID string) (*domain.StockItem, error)
	CreateItem(ctx context.Context, item domain.StockItem) (*domain.StockItem, error)
	UpdateItem(ctx context.Context, item domain.StockItem) (*domain.StockItem, error)
	AdjustStock(ctx context.Context, storeID string, itemID string, delta int) (*domain.StockItem, error)
	CreateOrMergeStock(ctx context.Context, storeID string, name string, quantity int, attrs domain.StockItemAttrs) (*domain.StockItem, error)

	CreateTransfer(ctx context.Context, transfer domain.TransferRequest) (*domain.TransferRequest, error)
	GetTransfer(ctx context.Context, id string) (*domain.TransferRequest, error)
	ListTransfersForStore(ctx context.Context, storeID string) ([]domain.TransferRequest, error)
	RejectTransfer(ctx context.Context, id string, at time.Time) (*domain.TransferRequest, error)
	AcceptTransfer(ctx context.Context, id string, invoice domain.Invoice, at time.Time) (*domain.TransferRequest, error)
	RevertTransfer(ctx context.Context, id string, at time.Time) (*domain.TransferRequest, error)
	AcceptReturn(ctx context.Context, id string, at time.Time) (*domain.TransferRequest, error)
	RejectReturn(ctx context.Context, id string, at time.Time) (*domain.TransferRequest, error)

	GetInvoiceByTransfer(ctx context.Context, transferID string) (*domain.Invoice, error)
	ListInvoicesForStore(ctx context.Context, storeID string) ([]domain.Invoice, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, limit int) ([]domain.AuditLog, error)

	CreateAccount(ctx context.Context, account domain.StoreAccount) error
	ListAccounts(ctx context.Context) ([]domain.StoreAccount, error)
	UpdateAccountPassword(ctx context.Context, username string, password string) error
}
