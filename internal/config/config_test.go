package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGIN", "")
	t.Setenv("STORE_PROFILE_TTL_SECONDS", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("default port: %s", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("address: %s", cfg.Address())
	}
	if cfg.StoreProfileTTLSeconds != 60 {
		t.Fatalf("default profile ttl: %d", cfg.StoreProfileTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("default token ttl: %d", cfg.AccessTokenTTLMinutes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_PROFILE_TTL_SECONDS", "300")
	t.Setenv("AUTH_SECRET", "  padded-secret  ")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("port override: %s", cfg.Port)
	}
	if cfg.StoreProfileTTLSeconds != 300 {
		t.Fatalf("profile ttl override: %d", cfg.StoreProfileTTLSeconds)
	}
	if cfg.AuthSecret != "padded-secret" {
		t.Fatalf("auth secret must be trimmed, got %q", cfg.AuthSecret)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("STORE_PROFILE_TTL_SECONDS", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.StoreProfileTTLSeconds != 60 {
		t.Fatalf("bad ttl must fall back to 60, got %d", cfg.StoreProfileTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("negative token ttl must fall back to 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}
