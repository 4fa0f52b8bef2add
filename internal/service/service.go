package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"mailpassd/internal/auth"
	"mailpassd/internal/config"
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

var ErrInvalidCredentials = errors.New("invalid credentials")

// ExtendAllowChangePassword is the flag name set on serialized accounts the
// integration is responsible for.
const ExtendAllowChangePassword = "AllowChangePasswordOnMailServer"

// PanelDialer builds a panel client for the URL currently configured in
// settings. Injected so tests can point it at a fake panel.
type PanelDialer func(baseURL string) *fastpanel.Client

func NewPanelDialer(cfg config.Config) PanelDialer {
	return func(baseURL string) *fastpanel.Client {
		return fastpanel.New(baseURL, cfg.PanelHTTPTimeout(), cfg.PanelInsecureSkipVerify)
	}
}

type Service struct {
	cfg        config.Config
	st         *store.Store
	accounts   platform.AccountSource
	panel      PanelDialer
	verifier   mail.Verifier
	sender     notify.Sender
	encryptKey []byte
}

func New(cfg config.Config, st *store.Store, accounts platform.AccountSource, panel PanelDialer, verifier mail.Verifier, sender notify.Sender) *Service {
	if sender == nil {
		sender = notify.LogSender{}
	}
	return &Service{
		cfg:        cfg,
		st:         st,
		accounts:   accounts,
		panel:      panel,
		verifier:   verifier,
		sender:     sender,
		encryptKey: util.Derive32ByteKey(cfg.SettingsEncryptKey),
	}
}

// CanChangePassword reports whether this integration is responsible for the
// account's password changes. Pure function of settings and account.
func CanChangePassword(set settings.Settings, acct models.MailAccount) bool {
	if set.HasWildcard() {
		return true
	}
	return acct.Server != nil && set.SupportsServer(acct.Server.IncomingServer)
}

// HandleAccountToResponse annotates the serialized account when the
// integration manages it. Never stops propagation: other integrations may
// want to annotate too.
func (s *Service) HandleAccountToResponse(ctx context.Context, payload any) (bool, error) {
	p, ok := payload.(*events.AccountToResponsePayload)
	if !ok || p.Response == nil {
		return false, nil
	}
	set, err := settings.Load(ctx, s.st)
	if err != nil {
		return false, err
	}
	if set.Disabled || !CanChangePassword(set, p.Account) {
		return false, nil
	}
	if p.Response.Extend == nil {
		p.Response.Extend = map[string]any{}
	}
	p.Response.Extend[ExtendAllowChangePassword] = true
	return false, nil
}

// HandleChangeAccountPassword is the ChangeAccountPassword event handler.
// Ineligible accounts and wrong current-password claims are silent
// "not applicable" outcomes: the aggregate result is left untouched and
// later integrations may still act. Once this integration attempts the
// change it stops propagation so no other integration races the same
// mailbox.
func (s *Service) HandleChangeAccountPassword(ctx context.Context, payload any) (bool, error) {
	p, ok := payload.(*events.ChangePasswordPayload)
	if !ok {
		return false, nil
	}
	set, err := settings.Load(ctx, s.st)
	if err != nil {
		return false, err
	}
	if set.Disabled || !CanChangePassword(set, p.Account) {
		return false, nil
	}
	verified, err := s.verifier.VerifyPassword(ctx, p.Account, p.CurrentPassword)
	if err != nil {
		log.Printf("password verification unavailable account=%s err=%v", p.Account.Email, err)
		return false, nil
	}
	if !verified {
		return false, nil
	}

	changed, err := s.changePassword(ctx, set, p.Account, p.NewPassword)
	if err != nil {
		return false, err
	}
	if p.Result != nil {
		p.Result.AccountPasswordChanged = p.Result.AccountPasswordChanged || changed
	}
	return true, nil
}

// changePassword runs the four-step panel protocol. Everything before the
// final update is read-only on the panel side, so any failure leaves no
// partial remote state.
func (s *Service) changePassword(ctx context.Context, set settings.Settings, acct models.MailAccount, newPassword string) (bool, error) {
	login, domain, ok := acct.SplitEmail()
	if !ok {
		return false, fmt.Errorf("malformed account email %q", acct.Email)
	}
	if acct.Password == "" || acct.Password == newPassword {
		// Nothing to do remotely; still counts as success.
		return true, nil
	}

	adminPass, updated, err := set.EnsureEncrypted(s.encryptKey)
	if err != nil {
		return false, err
	}
	if updated != nil {
		// Lazy migration of a plaintext-stored admin password. Racing
		// callers may both encrypt; last write wins, neither corrupts.
		if err := settings.Save(ctx, s.st, *updated); err != nil {
			return false, err
		}
		log.Printf("panel admin password migrated to encrypted storage")
	}

	panel := s.panel(set.PanelURL)
	token, err := panel.Login(ctx, fastpanel.Credentials{Username: set.AdminUser, Password: adminPass})
	if err != nil {
		return false, err
	}
	dom, err := panel.ResolveDomain(ctx, token, domain)
	if err != nil {
		return false, err
	}
	box, err := panel.ResolveMailbox(ctx, token, dom, login)
	if err != nil {
		return false, err
	}
	if err := panel.UpdatePassword(ctx, token, box, newPassword); err != nil {
		return false, err
	}
	log.Printf("panel password updated account=%s domain_id=%d mailbox_id=%d", acct.Email, dom.ID, box.ID)

	if err := s.sender.SendPasswordChanged(ctx, acct.Email); err != nil {
		log.Printf("password changed notice failed account=%s err=%v", acct.Email, err)
	}
	return true, nil
}

func (s *Service) Account(ctx context.Context, email string) (models.MailAccount, error) {
	return s.accounts.GetAccountByEmail(ctx, email)
}

func (s *Service) Settings(ctx context.Context) (settings.Settings, error) {
	return settings.Load(ctx, s.st)
}

// UpdateSettings persists the record. An empty admin password keeps the
// currently stored one; a new plaintext password is encrypted before it is
// written.
func (s *Service) UpdateSettings(ctx context.Context, in settings.Settings) (settings.Settings, error) {
	current, err := settings.Load(ctx, s.st)
	if err != nil {
		return settings.Settings{}, err
	}
	if in.AdminPassword == "" {
		in.AdminPassword = current.AdminPassword
	} else if !util.IsEncryptedValue(in.AdminPassword) {
		enc, err := util.EncryptValue(s.encryptKey, in.AdminPassword)
		if err != nil {
			return settings.Settings{}, err
		}
		in.AdminPassword = enc
	}
	if err := settings.Save(ctx, s.st, in); err != nil {
		return settings.Settings{}, err
	}
	return in, nil
}

// ProbePanel reports whether the configured panel answers at all.
func (s *Service) ProbePanel(ctx context.Context) error {
	set, err := settings.Load(ctx, s.st)
	if err != nil {
		return err
	}
	return s.panel(set.PanelURL).Probe(ctx)
}

func (s *Service) Login(ctx context.Context, email, password string) (string, models.AdminUser, error) {
	u, err := s.st.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", models.AdminUser{}, ErrInvalidCredentials
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return "", models.AdminUser{}, ErrInvalidCredentials
	}
	raw, hash, err := auth.NewOpaqueToken()
	if err != nil {
		return "", models.AdminUser{}, err
	}
	now := time.Now().UTC()
	if _, err := s.st.CreateSession(ctx, u.ID, hash, now.Add(s.cfg.SessionAbsoluteDuration()), now.Add(s.cfg.SessionIdleDuration())); err != nil {
		return "", models.AdminUser{}, err
	}
	_ = s.st.UpdateLastLogin(ctx, u.ID)
	return raw, u, nil
}

func (s *Service) ValidateSession(ctx context.Context, rawToken string) (models.AdminUser, models.Session, error) {
	sess, err := s.st.GetSessionByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		return models.AdminUser{}, models.Session{}, ErrInvalidCredentials
	}
	now := time.Now().UTC()
	if sess.RevokedAt != nil || now.After(sess.ExpiresAt) || now.After(sess.IdleExpiresAt) {
		return models.AdminUser{}, models.Session{}, ErrInvalidCredentials
	}
	_ = s.st.TouchSession(ctx, sess.ID, now.Add(s.cfg.SessionIdleDuration()))

	u, err := s.st.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return models.AdminUser{}, models.Session{}, ErrInvalidCredentials
	}
	return u, sess, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	sess, err := s.st.GetSessionByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		return nil
	}
	return s.st.RevokeSession(ctx, sess.ID)
}
