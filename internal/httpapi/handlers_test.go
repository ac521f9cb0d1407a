package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stocklink/backend/internal/cache"
	"stocklink/backend/internal/domain"
	"stocklink/backend/internal/invoice"
	"stocklink/backend/internal/service"
	"stocklink/backend/internal/store/memory"
)

const testSecret = "test-secret-0123456789abcdef0123456789"

func newTestAPI(t *testing.T) *API {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, invoice.NewGenerator(), cache.NoopStoreProfileCache{}, time.Minute)
	auth := NewAuthManager(testSecret, time.Hour, repo)
	return New(svc, auth, "http://127.0.0.1:3000")
}

func doRequest(t *testing.T, api *API, method string, path string, token string, csrf string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rec.Body.String())
	}
}

func login(t *testing.T, api *API, username string, password string) string {
	t.Helper()
	rec := doRequest(t, api, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	decodeBody(t, rec, &resp)
	if resp.AccessToken == "" {
		t.Fatalf("login %s: empty token", username)
	}
	return resp.AccessToken
}

func csrfToken(t *testing.T, api *API) string {
	t.Helper()
	rec := doRequest(t, api, http.MethodGet, "/api/v1/auth/csrf-token", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token: status %d", rec.Code)
	}
	var resp struct {
		Token string `json:"csrf_token"`
	}
	decodeBody(t, rec, &resp)
	return resp.Token
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)

	rec := doRequest(t, api, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	decodeBody(t, rec, &resp)
	if !resp.OK {
		t.Fatalf("expected ok=true, body %s", rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	if rec := doRequest(t, api, http.MethodGet, "/api/v1/items", "", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token must give 401, got %d", rec.Code)
	}
	if rec := doRequest(t, api, http.MethodGet, "/api/v1/items", "not-a-token", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token must give 401, got %d", rec.Code)
	}

	rec := doRequest(t, api, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: "rajan", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password must give 401, got %d", rec.Code)
	}
}

func TestListItemsForAuthenticatedStore(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "rajan", "rajan123")

	rec := doRequest(t, api, http.MethodGet, "/api/v1/items", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Items []domain.StockItem `json:"items"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Items) != 3 {
		t.Fatalf("expected rajan's 3 seeded items, got %d", len(resp.Items))
	}
	for _, item := range resp.Items {
		if item.StoreID != "store-rajan" {
			t.Fatalf("foreign item leaked into listing: %+v", item)
		}
	}
}

func TestTransferLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	rajan := login(t, api, "rajan", "rajan123")
	meera := login(t, api, "meera", "meera123")
	csrf := csrfToken(t, api)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/transfers", rajan, csrf, domain.TransferCreateRequest{
		ToStoreID: "store-meera",
		Lines:     []domain.TransferLineRequest{{ItemID: "item-rice-5kg", Quantity: 4}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transfer: status %d body %s", rec.Code, rec.Body.String())
	}
	var created domain.TransferResponse
	decodeBody(t, rec, &created)
	transferID := created.Transfer.ID

	// Only the receiver may accept.
	if rec := doRequest(t, api, http.MethodPost, "/api/v1/transfers/"+transferID+"/accept", rajan, csrf, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("sender accept must give 403, got %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/v1/transfers/"+transferID+"/accept", meera, csrf, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", rec.Code, rec.Body.String())
	}
	var accepted domain.TransferResponse
	decodeBody(t, rec, &accepted)
	if accepted.Transfer.Status != domain.TransferAccepted || accepted.Transfer.InvoiceID == "" {
		t.Fatalf("unexpected accepted transfer: %+v", accepted.Transfer)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/transfers/"+transferID+"/invoice", rajan, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("invoice: status %d body %s", rec.Code, rec.Body.String())
	}
	var inv domain.InvoiceResponse
	decodeBody(t, rec, &inv)
	if inv.Invoice.SubtotalCents != 52000*4 {
		t.Fatalf("invoice subtotal mismatch: %d", inv.Invoice.SubtotalCents)
	}

	// Accepting again races against the committed state and conflicts.
	if rec := doRequest(t, api, http.MethodPost, "/api/v1/transfers/"+transferID+"/accept", meera, csrf, nil); rec.Code != http.StatusConflict {
		t.Fatalf("double accept must give 409, got %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/v1/transfers/"+transferID+"/revert", meera, csrf, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revert: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodPost, "/api/v1/transfers/"+transferID+"/return-accept", rajan, csrf, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("return-accept: status %d body %s", rec.Code, rec.Body.String())
	}
	var returned domain.TransferResponse
	decodeBody(t, rec, &returned)
	if returned.Transfer.Status != domain.TransferReturned {
		t.Fatalf("expected returned, got %s", returned.Transfer.Status)
	}

	// The sender ends up where it started.
	rec = doRequest(t, api, http.MethodGet, "/api/v1/items", rajan, "", nil)
	var items struct {
		Items []domain.StockItem `json:"items"`
	}
	decodeBody(t, rec, &items)
	for _, item := range items.Items {
		if item.ID == "item-rice-5kg" && item.Quantity != 40 {
			t.Fatalf("sender stock not restored, got %d", item.Quantity)
		}
	}
}

func TestErrorStatusMapping(t *testing.T) {
	api := newTestAPI(t)
	rajan := login(t, api, "rajan", "rajan123")
	csrf := csrfToken(t, api)

	// Over-asking maps to 422.
	rec := doRequest(t, api, http.MethodPost, "/api/v1/transfers", rajan, csrf, domain.TransferCreateRequest{
		ToStoreID: "store-meera",
		Lines:     []domain.TransferLineRequest{{ItemID: "item-rice-5kg", Quantity: 1000}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("insufficient stock must give 422, got %d", rec.Code)
	}

	// Self-transfer maps to 400.
	rec = doRequest(t, api, http.MethodPost, "/api/v1/transfers", rajan, csrf, domain.TransferCreateRequest{
		ToStoreID: "store-rajan",
		Lines:     []domain.TransferLineRequest{{ItemID: "item-rice-5kg", Quantity: 1}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self transfer must give 400, got %d", rec.Code)
	}

	// Unknown transfer maps to 404.
	if rec := doRequest(t, api, http.MethodGet, "/api/v1/transfers/tr-missing", rajan, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown transfer must give 404, got %d", rec.Code)
	}

	// Unknown transition verb maps to 404.
	if rec := doRequest(t, api, http.MethodPost, "/api/v1/transfers/tr-missing/teleport", rajan, csrf, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown verb must give 404, got %d", rec.Code)
	}
}

func TestStoreSearchExcludesSelf(t *testing.T) {
	api := newTestAPI(t)
	rajan := login(t, api, "rajan", "rajan123")

	rec := doRequest(t, api, http.MethodGet, "/api/v1/stores?q=store", rajan, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status %d", rec.Code)
	}
	var resp struct {
		Stores []domain.StoreProfile `json:"stores"`
	}
	decodeBody(t, rec, &resp)
	for _, profile := range resp.Stores {
		if profile.ID == "store-rajan" {
			t.Fatalf("search must exclude the caller's own store")
		}
	}
}

func TestAdjustStockEndpoint(t *testing.T) {
	api := newTestAPI(t)
	rajan := login(t, api, "rajan", "rajan123")
	csrf := csrfToken(t, api)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/items/item-rice-5kg/adjust", rajan, csrf, domain.StockAdjustRequest{Delta: -5})
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Item domain.StockItem `json:"item"`
	}
	decodeBody(t, rec, &resp)
	if resp.Item.Quantity != 35 {
		t.Fatalf("expected 35 after adjust, got %d", resp.Item.Quantity)
	}

	// Draining below zero is refused.
	if rec := doRequest(t, api, http.MethodPost, "/api/v1/items/item-rice-5kg/adjust", rajan, csrf, domain.StockAdjustRequest{Delta: -100}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("underflow must give 422, got %d", rec.Code)
	}
}
