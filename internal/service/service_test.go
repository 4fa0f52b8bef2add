package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mailpassd/internal/config"
	"mailpassd/internal/db"
	"mailpassd/internal/events"
	"mailpassd/internal/fastpanel"
	"mailpassd/internal/mail"
	"mailpassd/internal/models"
	"mailpassd/internal/notify"
	"mailpassd/internal/platform"
	"mailpassd/internal/settings"
	"mailpassd/internal/store"
	"mailpassd/internal/util"
)

func testConfig() config.Config {
	return config.Config{
		SettingsEncryptKey:  "service-test-settings-encrypt-key",
		SessionIdleMinutes:  30,
		SessionAbsoluteHour: 24,
		PasswordVerifyMode:  "stored",
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.ApplyMigrationFile(sqdb, filepath.Join("..", "..", "migrations", "001_init.sql")); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	return store.New(sqdb)
}

// fakePanel is a minimal Fastpanel API double that counts requests.
type fakePanel struct {
	ts       *httptest.Server
	requests atomic.Int64
	loginFn  func(w http.ResponseWriter)
	putBody  chan []byte
}

func newFakePanel(t *testing.T) *fakePanel {
	t.Helper()
	fp := &fakePanel{putBody: make(chan []byte, 1)}
	fp.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp.requests.Add(1)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/login":
			if fp.loginFn != nil {
				fp.loginFn(w)
				return
			}
			_, _ = w.Write([]byte(`{"data":{"token":"tok"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/email/domains":
			_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"example.com"}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/email/domains/1/boxs":
			_, _ = w.Write([]byte(`{"data":[{"id":5,"login":"bob","quota":100,"redirects":0,"aliases":2,"spam_to_junk":true}]}`))
		case r.Method == http.MethodPut && r.URL.Path == "/api/mail/box/5":
			body, _ := io.ReadAll(r.Body)
			select {
			case fp.putBody <- body:
			default:
			}
			_, _ = w.Write([]byte(`{"data":{"id":5}}`))
		default:
			t.Errorf("unexpected panel request %s %s", r.Method, r.URL.Path)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(fp.ts.Close)
	return fp
}

func newTestService(t *testing.T, st *store.Store, fp *fakePanel) *Service {
	t.Helper()
	dialer := func(baseURL string) *fastpanel.Client {
		return fastpanel.NewWithHTTPClient(baseURL, fp.ts.Client())
	}
	return New(testConfig(), st, platform.NewStaticSource(), dialer, mail.StoredVerifier{}, notify.LogSender{})
}

func bobAccount() models.MailAccount {
	return models.MailAccount{
		ID:       "1",
		Email:    "bob@example.com",
		Password: "oldpw",
		Server:   &models.MailServer{IncomingServer: "mail.example.com"},
	}
}

func saveSettings(t *testing.T, st *store.Store, set settings.Settings) {
	t.Helper()
	if err := settings.Save(context.Background(), st, set); err != nil {
		t.Fatalf("save settings: %v", err)
	}
}

func panelSettings(fp *fakePanel) settings.Settings {
	set := settings.Defaults()
	set.PanelURL = fp.ts.URL
	set.AdminUser = "fastuser"
	set.AdminPassword = "adminpw"
	return set
}

func TestCanChangePassword(t *testing.T) {
	linked := bobAccount()
	unlinked := models.MailAccount{Email: "bob@example.com"}

	cases := []struct {
		name    string
		servers []string
		acct    models.MailAccount
		want    bool
	}{
		{"wildcard covers linked", []string{"*"}, linked, true},
		{"wildcard covers unlinked", []string{"*"}, unlinked, true},
		{"exact host match", []string{"mail.example.com"}, linked, true},
		{"host not listed", []string{"mail.other.com"}, linked, false},
		{"no linked server", []string{"mail.example.com"}, unlinked, false},
	}
	for _, tc := range cases {
		set := settings.Settings{SupportedServers: tc.servers}
		if got := CanChangePassword(set, tc.acct); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestChangePasswordCurrentMismatchIsSilent(t *testing.T) {
	fp := newFakePanel(t)
	st := newTestStore(t)
	saveSettings(t, st, panelSettings(fp))
	svc := newTestService(t, st, fp)

	result := &models.ChangePasswordResult{}
	payload := &events.ChangePasswordPayload{
		Account:         bobAccount(),
		CurrentPassword: "wrong-claim",
		NewPassword:     "newpw",
		Result:          result,
	}
	stop, err := svc.HandleChangeAccountPassword(context.Background(), payload)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if stop {
		t.Fatalf("mismatch must not stop propagation")
	}
	if result.AccountPasswordChanged {
		t.Fatalf("result must stay unchanged")
	}
	if n := fp.requests.Load(); n != 0 {
		t.Fatalf("expected zero panel calls, got %d", n)
	}
}

func TestChangePasswordNoopWhenNewEqualsStored(t *testing.T) {
	fp := newFakePanel(t)
	st := newTestStore(t)
	saveSettings(t, st, panelSettings(fp))
	svc := newTestService(t, st, fp)

	result := &models.ChangePasswordResult{}
	payload := &events.ChangePasswordPayload{
		Account:         bobAccount(),
		CurrentPassword: "oldpw",
		NewPassword:     "oldpw",
		Result:          result,
	}
	stop, err := svc.HandleChangeAccountPassword(context.Background(), payload)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !stop {
		t.Fatalf("no-op success must still stop propagation")
	}
	if !result.AccountPasswordChanged {
		t.Fatalf("no-op must report changed")
	}
	if n := fp.requests.Load(); n != 0 {
		t.Fatalf("expected zero panel calls, got %d", n)
	}
}

func TestChangePasswordFullFlow(t *testing.T) {
	fp := newFakePanel(t)
	st := newTestStore(t)
	saveSettings(t, st, panelSettings(fp)) // admin password stored in plaintext
	svc := newTestService(t, st, fp)

	result := &models.ChangePasswordResult{}
	payload := &events.ChangePasswordPayload{
		Account:         bobAccount(),
		CurrentPassword: "oldpw",
		NewPassword:     "newpw",
		Result:          result,
	}
	stop, err := svc.HandleChangeAccountPassword(context.Background(), payload)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !stop || !result.AccountPasswordChanged {
		t.Fatalf("expected success with stop, got stop=%v result=%+v", stop, result)
	}
	if n := fp.requests.Load(); n != 4 {
		t.Fatalf("expected 4 panel calls, got %d", n)
	}

	select {
	case body := <-fp.putBody:
		for _, want := range []string{`"password":"newpw"`, `"quota":100`, `"redirects":0`, `"aliases":2`, `"spam_to_junk":true`} {
			if !strings.Contains(string(body), want) {
				t.Fatalf("update body missing %s: %s", want, body)
			}
		}
	default:
		t.Fatalf("no update body captured")
	}

	// The lazy migration must have re-persisted the admin password in
	// encrypted form, and it must decrypt back to the original.
	stored, err := settings.Load(context.Background(), st)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if !util.IsEncryptedValue(stored.AdminPassword) {
		t.Fatalf("admin password not migrated: %q", stored.AdminPassword)
	}
	plain, err := util.DecryptValue(util.Derive32ByteKey(testConfig().SettingsEncryptKey), stored.AdminPassword)
	if err != nil || plain != "adminpw" {
		t.Fatalf("migrated secret does not round trip: %q %v", plain, err)
	}
}

func TestChangePasswordAuthRejected(t *testing.T) {
	fp := newFakePanel(t)
	fp.loginFn = func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"code":401,"message":"bad creds"}`))
	}
	st := newTestStore(t)
	saveSettings(t, st, panelSettings(fp))
	svc := newTestService(t, st, fp)

	payload := &events.ChangePasswordPayload{
		Account:         bobAccount(),
		CurrentPassword: "oldpw",
		NewPassword:     "newpw",
		Result:          &models.ChangePasswordResult{},
	}
	_, err := svc.HandleChangeAccountPassword(context.Background(), payload)
	var authErr *fastpanel.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Code != 401 || authErr.Message != "bad creds" {
		t.Fatalf("unexpected attribution %+v", authErr)
	}
	if payload.Result.AccountPasswordChanged {
		t.Fatalf("failed change must not mark result changed")
	}
	if n := fp.requests.Load(); n != 1 {
		t.Fatalf("expected login call only, got %d", n)
	}
}

func TestResultNeverDowngraded(t *testing.T) {
	fp := newFakePanel(t)
	st := newTestStore(t)
	set := panelSettings(fp)
	set.SupportedServers = []string{"unrelated.example.com"}
	saveSettings(t, st, set)
	svc := newTestService(t, st, fp)

	result := &models.ChangePasswordResult{AccountPasswordChanged: true}
	payload := &events.ChangePasswordPayload{
		Account:         bobAccount(),
		CurrentPassword: "oldpw",
		NewPassword:     "newpw",
		Result:          result,
	}
	stop, err := svc.HandleChangeAccountPassword(context.Background(), payload)
	if err != nil || stop {
		t.Fatalf("ineligible account must be silent, got stop=%v err=%v", stop, err)
	}
	if !result.AccountPasswordChanged {
		t.Fatalf("prior true result was downgraded")
	}
}

func TestDisabledIntegrationIsSilent(t *testing.T) {
	fp := newFakePanel(t)
	st := newTestStore(t)
	set := panelSettings(fp)
	set.Disabled = true
	saveSettings(t, st, set)
	svc := newTestService(t, st, fp)

	payload := &events.ChangePasswordPayload{
		Account:         bobAccount(),
		CurrentPassword: "oldpw",
		NewPassword:     "newpw",
		Result:          &models.ChangePasswordResult{},
	}
	stop, err := svc.HandleChangeAccountPassword(context.Background(), payload)
	if err != nil || stop || payload.Result.AccountPasswordChanged {
		t.Fatalf("disabled integration must be silent, got stop=%v err=%v result=%+v", stop, err, payload.Result)
	}
	if n := fp.requests.Load(); n != 0 {
		t.Fatalf("expected zero panel calls, got %d", n)
	}
}

func TestHandleAccountToResponse(t *testing.T) {
	fp := newFakePanel(t)
	st := newTestStore(t)
	saveSettings(t, st, panelSettings(fp))
	svc := newTestService(t, st, fp)

	resp := &models.AccountResponse{Email: "bob@example.com"}
	stop, err := svc.HandleAccountToResponse(context.Background(), &events.AccountToResponsePayload{
		Account:  bobAccount(),
		Response: resp,
	})
	if err != nil || stop {
		t.Fatalf("serialize handler: stop=%v err=%v", stop, err)
	}
	if v, ok := resp.Extend[ExtendAllowChangePassword].(bool); !ok || !v {
		t.Fatalf("expected Extend flag set, got %+v", resp.Extend)
	}

	// Ineligible account: response left untouched.
	set := panelSettings(fp)
	set.SupportedServers = []string{"unrelated.example.com"}
	saveSettings(t, st, set)
	resp2 := &models.AccountResponse{Email: "bob@example.com"}
	if _, err := svc.HandleAccountToResponse(context.Background(), &events.AccountToResponsePayload{
		Account:  bobAccount(),
		Response: resp2,
	}); err != nil {
		t.Fatalf("serialize handler: %v", err)
	}
	if resp2.Extend != nil {
		t.Fatalf("expected no Extend for ineligible account, got %+v", resp2.Extend)
	}
}

func TestUpdateSettingsEncryptsNewPassword(t *testing.T) {
	fp := newFakePanel(t)
	st := newTestStore(t)
	svc := newTestService(t, st, fp)

	in := settings.Defaults()
	in.AdminPassword = "fresh-secret"
	saved, err := svc.UpdateSettings(context.Background(), in)
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if !util.IsEncryptedValue(saved.AdminPassword) {
		t.Fatalf("new password not encrypted: %q", saved.AdminPassword)
	}

	// Empty password on a later update keeps the stored secret.
	in2 := saved
	in2.AdminPassword = ""
	in2.AdminUser = "other"
	saved2, err := svc.UpdateSettings(context.Background(), in2)
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if saved2.AdminPassword != saved.AdminPassword {
		t.Fatalf("stored secret was not kept")
	}
	if saved2.AdminUser != "other" {
		t.Fatalf("admin user not updated")
	}
}
