package httpapi

import (
	"context"
	"testing"
	"time"

	"stocklink/backend/internal/domain"
	"stocklink/backend/internal/store/memory"
)

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager(testSecret, time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "rajan", Password: "rajan123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.StoreID != "store-rajan" {
		t.Fatalf("unexpected store id %s", resp.StoreID)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "rajan" || actor.StoreID != "store-rajan" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginUsernameIsCaseInsensitive(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, memory.NewSeeded())

	if _, err := auth.Login(domain.LoginRequest{Username: "  RaJaN ", Password: "rajan123"}); err != nil {
		t.Fatalf("login with odd casing: %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager(testSecret, time.Hour, repo)
	other := NewAuthManager("another-secret-0123456789abcdef01234", time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "meera", Password: "meera123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with a different secret must be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, memory.NewSeeded())

	token, err := auth.sign("rajan", "store-rajan", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expired token must be rejected")
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	if err := repo.CreateAccount(ctx, domain.StoreAccount{
		Username: "legacy",
		Password: "legacy-pass",
		StoreID:  "store-legacy",
		Active:   true,
	}); err != nil {
		t.Fatalf("create account: %v", err)
	}

	auth := NewAuthManager(testSecret, time.Hour, repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "legacy-pass"}); err != nil {
		t.Fatalf("login with legacy password: %v", err)
	}

	accounts, err := repo.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected one account, got %d", len(accounts))
	}
	if !isPasswordHash(accounts[0].Password) {
		t.Fatalf("plaintext password must be upgraded to a hash, got %q", accounts[0].Password)
	}
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateAccount(context.Background(), domain.StoreAccount{
		Username: "closed",
		Password: "closed-pass",
		StoreID:  "store-closed",
		Active:   false,
	}); err != nil {
		t.Fatalf("create account: %v", err)
	}

	auth := NewAuthManager(testSecret, time.Hour, repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "closed", Password: "closed-pass"}); err == nil {
		t.Fatalf("inactive account must not log in")
	}
}
