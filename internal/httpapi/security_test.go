package httpapi

import (
	"net/http"
	"testing"

	"stocklink/backend/internal/domain"
)

func TestCSRFRequiredForMutations(t *testing.T) {
	api := newTestAPI(t)
	rajan := login(t, api, "rajan", "rajan123")

	body := domain.TransferCreateRequest{
		ToStoreID: "store-meera",
		Lines:     []domain.TransferLineRequest{{ItemID: "item-rice-5kg", Quantity: 1}},
	}

	if rec := doRequest(t, api, http.MethodPost, "/api/v1/transfers", rajan, "", body); rec.Code != http.StatusForbidden {
		t.Fatalf("missing CSRF token must give 403, got %d", rec.Code)
	}
	if rec := doRequest(t, api, http.MethodPost, "/api/v1/transfers", rajan, "bogus-token", body); rec.Code != http.StatusForbidden {
		t.Fatalf("bogus CSRF token must give 403, got %d", rec.Code)
	}

	csrf := csrfToken(t, api)
	if rec := doRequest(t, api, http.MethodPost, "/api/v1/transfers", rajan, csrf, body); rec.Code != http.StatusCreated {
		t.Fatalf("valid CSRF token must pass, got %d body %s", rec.Code, rec.Body.String())
	}

	// Reads never need a token.
	if rec := doRequest(t, api, http.MethodGet, "/api/v1/transfers", rajan, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("GET must not require CSRF, got %d", rec.Code)
	}
}

func TestCSRFTokenValidation(t *testing.T) {
	api := newTestAPI(t)

	token := api.generateCSRFToken()
	if !api.validateCSRFToken(token) {
		t.Fatalf("freshly generated token must validate")
	}
	if api.validateCSRFToken("") {
		t.Fatalf("empty token must not validate")
	}
	if api.validateCSRFToken("deadbeef") {
		t.Fatalf("forged token must not validate")
	}

	// Tokens are bound to the instance secret.
	other := newTestAPI(t)
	if other.validateCSRFToken(token) {
		t.Fatalf("token from another instance must not validate")
	}
}

func TestLoginRateLimit(t *testing.T) {
	api := newTestAPI(t)

	bad := domain.LoginRequest{Username: "rajan", Password: "wrong"}
	for i := 0; i < 5; i++ {
		if rec := doRequest(t, api, http.MethodPost, "/api/v1/auth/login", "", "", bad); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}
	if rec := doRequest(t, api, http.MethodPost, "/api/v1/auth/login", "", "", bad); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt must give 429, got %d", rec.Code)
	}
}

func TestAttemptLimiterWindow(t *testing.T) {
	limiter := newAttemptLimiter(2, 0)

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatalf("first two attempts must pass")
	}
	if limiter.Allow("a") {
		t.Fatalf("third attempt within window must be blocked")
	}
	// Other clients are tracked independently.
	if !limiter.Allow("b") {
		t.Fatalf("different key must not share the budget")
	}
}
