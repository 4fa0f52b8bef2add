package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mailpassd/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.ApplyMigrationFile(sqdb, filepath.Join("..", "..", "migrations", "001_init.sql")); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	return New(sqdb)
}

func TestSettingsUpsertAndGet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.GetSetting(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent setting, got ok=%v err=%v", ok, err)
	}
	if err := st.UpsertSetting(ctx, "k", "v1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.UpsertSetting(ctx, "k", "v2"); err != nil {
		t.Fatalf("upsert overwrite: %v", err)
	}
	v, ok, err := st.GetSetting(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("expected v2, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestEnsureAdminCreateAndUpdate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.EnsureAdmin(ctx, "Admin@Example.com", "hash1"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	u, err := st.GetUserByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.PasswordHash != "hash1" {
		t.Fatalf("unexpected hash %q", u.PasswordHash)
	}

	if err := st.EnsureAdmin(ctx, "admin@example.com", "hash2"); err != nil {
		t.Fatalf("ensure admin update: %v", err)
	}
	u, err = st.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get user by id: %v", err)
	}
	if u.PasswordHash != "hash2" {
		t.Fatalf("hash not updated: %q", u.PasswordHash)
	}
}

func TestSessionLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.EnsureAdmin(ctx, "admin@example.com", "hash"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	u, err := st.GetUserByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}

	now := time.Now().UTC()
	sess, err := st.CreateSession(ctx, u.ID, "tokhash", now.Add(time.Hour), now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := st.GetSessionByTokenHash(ctx, "tokhash")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ID != sess.ID || got.UserID != u.ID || got.RevokedAt != nil {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := st.RevokeSession(ctx, sess.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got, err = st.GetSessionByTokenHash(ctx, "tokhash")
	if err != nil {
		t.Fatalf("get revoked session: %v", err)
	}
	if got.RevokedAt == nil {
		t.Fatalf("expected revoked_at to be set")
	}

	if _, err := st.GetSessionByTokenHash(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
