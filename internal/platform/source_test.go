package platform

import (
	"context"
	"errors"
	"testing"

	"mailpassd/internal/config"
	"mailpassd/internal/models"
)

func TestStaticSourceLookup(t *testing.T) {
	src := NewStaticSource(models.MailAccount{
		Email:    "bob@example.com",
		Password: "pw",
		Server:   &models.MailServer{IncomingServer: "mail.example.com"},
	})

	acct, err := src.GetAccountByEmail(context.Background(), "Bob@Example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if acct.Password != "pw" || acct.Server == nil || acct.Server.IncomingServer != "mail.example.com" {
		t.Fatalf("unexpected account %+v", acct)
	}

	if _, err := src.GetAccountByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestNewSourceRejectsBadIdentifiers(t *testing.T) {
	cfg := config.Config{
		PlatformDBDriver: "mysql",
		PlatformDBDSN:    "user:pass@tcp(localhost)/mail",
		PlatformTable:    "accounts; DROP TABLE accounts",
		PlatformEmailCol: "email",
	}
	if _, err := NewSource(cfg); err == nil {
		t.Fatalf("expected identifier validation error")
	}
}

func TestNewSourceWithoutDSNFallsBackToStatic(t *testing.T) {
	src, err := NewSource(config.Config{})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if _, ok := src.(*StaticSource); !ok {
		t.Fatalf("expected static fallback, got %T", src)
	}
}
