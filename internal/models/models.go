package models

import (
	"strings"
	"time"
)

// MailServer describes the mail server an account is hosted on, as the
// platform records it. IncomingServer is the host the account's IMAP client
// connects to and is the value matched against the supported-servers list.
type MailServer struct {
	ID             string
	Name           string
	IncomingServer string
	IncomingPort   int
	IncomingUseSSL bool
}

// MailAccount is the platform's view of a mailbox login. The platform keeps
// the mailbox password in plaintext; Fastpanel expects the same plaintext in
// its update API, so no hashing happens at this layer.
type MailAccount struct {
	ID       string
	Email    string
	Password string
	Server   *MailServer
}

// SplitEmail breaks the address into mailbox login and domain parts.
func (a MailAccount) SplitEmail() (login, domain string, ok bool) {
	at := strings.Index(a.Email, "@")
	if at <= 0 || at == len(a.Email)-1 {
		return "", "", false
	}
	return a.Email[:at], a.Email[at+1:], true
}

// AccountResponse is the serialized account representation handed to
// AccountToResponse handlers. Integrations annotate it through Extend.
type AccountResponse struct {
	ID     string         `json:"id"`
	Email  string         `json:"email"`
	Server string         `json:"server,omitempty"`
	Extend map[string]any `json:"Extend,omitempty"`
}

// ChangePasswordResult is the mutable aggregate a ChangeAccountPassword
// event carries across integrations. AccountPasswordChanged only ever moves
// from false to true.
type ChangePasswordResult struct {
	AccountPasswordChanged bool `json:"account_password_changed"`
}

type AdminUser struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

type Session struct {
	ID            string
	UserID        string
	TokenHash     string
	ExpiresAt     time.Time
	IdleExpiresAt time.Time
	CreatedAt     time.Time
	LastSeenAt    time.Time
	RevokedAt     *time.Time
}
