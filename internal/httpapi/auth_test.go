package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kopkasir/backend/internal/domain"
	"kopkasir/backend/internal/store/memory"
)

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	repo := memory.NewSeeded()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "legacy",
		Password:  "plaintext-secret",
		Role:      "kasir",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create legacy user: %v", err)
	}

	auth := NewAuthManager("test-secret", time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plaintext-secret"})
	if err != nil {
		t.Fatalf("login with legacy password failed: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token")
	}

	stored, err := repo.GetUserByUsername(context.Background(), "legacy")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected stored password to be upgraded to bcrypt, got %q", stored.Password)
	}
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret", time.Hour, repo)

	cashier, err := auth.CreateCashier(domain.CashierCreateRequest{
		Username: "kasir3",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Role != "kasir" || !cashier.Active {
		t.Fatalf("unexpected cashier: %+v", cashier)
	}

	stored, err := repo.GetUserByUsername(context.Background(), "kasir3")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if stored.Password == "secret123" {
		t.Fatalf("password stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("secret123")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestTokenCarriesRoleAndMemberID(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret", time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "budi", Password: "anggota123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "budi" || actor.Role != domain.RoleAnggota || actor.MemberID != "mbr-budi" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("secret-a", time.Hour, repo)
	other := NewAuthManager("secret-b", time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestCreateMemberAccountRequiresMemberID(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, memory.NewSeeded())

	if err := auth.CreateMemberAccount("citra", "rahasia1", ""); err == nil {
		t.Fatalf("expected error for empty member id")
	}
}
