package domain

import "time"

// TransferStatus is the closed set of transfer lifecycle states. Rejected and
// Returned are terminal; every other state has at least one outgoing transition.
type TransferStatus string

const (
	TransferPending  TransferStatus = "pending"
	TransferAccepted TransferStatus = "accepted"
	TransferRejected TransferStatus = "rejected"
	TransferReverted TransferStatus = "reverted"
	TransferReturned TransferStatus = "returned"
)

// TransferEvent names a transition the receiver or sender can apply to a transfer.
type TransferEvent string

const (
	EventAccept       TransferEvent = "accept"
	EventReject       TransferEvent = "reject"
	EventRevert       TransferEvent = "revert"
	EventReturnAccept TransferEvent = "return_accept"
	EventReturnReject TransferEvent = "return_reject"
)

// RevertWindow is how long after acceptance the receiver may unilaterally
// revert a transfer. Measured from AcceptedAt, checked at call time.
const RevertWindow = 24 * time.Hour

type StoreProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerName string    `json:"owner_name"`
	Address   string    `json:"address"`
	GSTIN     string    `json:"gstin,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type StockItem struct {
	ID                 string    `json:"id"`
	StoreID            string    `json:"store_id"`
	Name               string    `json:"name"`
	HSN                string    `json:"hsn,omitempty"`
	Quantity           int       `json:"quantity"`
	Unit               string    `json:"unit"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	SellingPriceCents  int64     `json:"selling_price_cents"`
	GSTPercent         float64   `json:"gst_percent"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// StockItemAttrs are the defaults applied when createOrMerge has to create a
// brand new item. An existing same-name item keeps its own attrs.
type StockItemAttrs struct {
	HSN                string
	Unit               string
	PurchasePriceCents int64
	SellingPriceCents  int64
	GSTPercent         float64
}

type StockItemCreateRequest struct {
	Name               string  `json:"name"`
	HSN                string  `json:"hsn"`
	Quantity           int     `json:"quantity"`
	Unit               string  `json:"unit"`
	PurchasePriceCents int64   `json:"purchase_price_cents"`
	SellingPriceCents  int64   `json:"selling_price_cents"`
	GSTPercent         float64 `json:"gst_percent"`
}

type StockItemUpdateRequest struct {
	Name               *string  `json:"name,omitempty"`
	HSN                *string  `json:"hsn,omitempty"`
	Unit               *string  `json:"unit,omitempty"`
	PurchasePriceCents *int64   `json:"purchase_price_cents,omitempty"`
	SellingPriceCents  *int64   `json:"selling_price_cents,omitempty"`
	GSTPercent         *float64 `json:"gst_percent,omitempty"`
}

type StockAdjustRequest struct {
	Delta int `json:"delta"`
}

// TransferLineItem is the immutable snapshot of one transferred item, taken at
// transfer creation. Later edits or deletion of the source stock item never
// change it; invoicing and reconciliation price from this snapshot only.
type TransferLineItem struct {
	ItemID         string  `json:"item_id"`
	Name           string  `json:"name"`
	HSN            string  `json:"hsn,omitempty"`
	Quantity       int     `json:"quantity"`
	Unit           string  `json:"unit"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	DiscountCents  int64   `json:"discount_cents"`
	GSTPercent     float64 `json:"gst_percent"`
	TotalCents     int64   `json:"total_cents"`
}

type TransferRequest struct {
	ID          string             `json:"id"`
	FromStoreID string             `json:"from_store_id"`
	ToStoreID   string             `json:"to_store_id"`
	Status      TransferStatus     `json:"status"`
	InvoiceID   string             `json:"invoice_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	AcceptedAt  *time.Time         `json:"accepted_at,omitempty"`
	RevertedAt  *time.Time         `json:"reverted_at,omitempty"`
	ReturnedAt  *time.Time         `json:"returned_at,omitempty"`
	Lines       []TransferLineItem `json:"lines"`
}

type TransferLineRequest struct {
	ItemID        string `json:"item_id"`
	Quantity      int    `json:"quantity"`
	DiscountCents int64  `json:"discount_cents"`
}

type TransferCreateRequest struct {
	ToStoreID string                `json:"to_store_id"`
	Lines     []TransferLineRequest `json:"lines"`
}

type TransferResponse struct {
	Transfer TransferRequest `json:"transfer"`
}

// TransferListResponse partitions a store's transfers by direction so callers
// do not have to compare store ids themselves.
type TransferListResponse struct {
	Outbound []TransferRequest `json:"outbound"`
	Inbound  []TransferRequest `json:"inbound"`
}

// Invoice is generated once when a transfer is accepted and never recomputed.
// Lines are copied from the transfer's line snapshot.
type Invoice struct {
	ID            string             `json:"id"`
	Number        string             `json:"number"`
	TransferID    string             `json:"transfer_id"`
	FromStoreID   string             `json:"from_store_id"`
	ToStoreID     string             `json:"to_store_id"`
	FromStoreName string             `json:"from_store_name"`
	ToStoreName   string             `json:"to_store_name"`
	SubtotalCents int64              `json:"subtotal_cents"`
	TaxCents      int64              `json:"tax_cents"`
	TotalCents    int64              `json:"total_cents"`
	CreatedAt     time.Time          `json:"created_at"`
	Lines         []TransferLineItem `json:"lines"`
}

type InvoiceResponse struct {
	Invoice Invoice `json:"invoice"`
}

type InvoiceListResponse struct {
	Invoices []Invoice `json:"invoices"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	StoreID     string `json:"store_id"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated store identity resolved from the bearer token.
// Every saga call takes its acting store id from here, never from request bodies.
type Actor struct {
	Username string
	StoreID  string
}

// StoreAccount is an internal persistence model for auth credentials.
type StoreAccount struct {
	Username  string
	Password  string
	StoreID   string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
