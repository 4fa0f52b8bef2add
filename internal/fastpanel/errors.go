package fastpanel

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable wraps transport-level failures: no response from the
	// panel at all, including client timeouts.
	ErrUnreachable = errors.New("fastpanel unreachable")

	// ErrAuthMalformed covers login responses that are neither a token nor
	// a recognizable code/message error body.
	ErrAuthMalformed = errors.New("fastpanel admin auth failed")

	// ErrDomainListUnavailable covers failed or malformed domain listings.
	ErrDomainListUnavailable = errors.New("fastpanel: could not get list of domains")

	// ErrMailboxListUnavailable covers failed or malformed mailbox listings.
	ErrMailboxListUnavailable = errors.New("fastpanel: could not get list of mailboxes")

	// ErrChangeFailed is the generic fallback when the update response is
	// malformed in an unrecognized way. Surfaced to callers as a stable
	// cannot-change-password code, not a raw detail.
	ErrChangeFailed = errors.New("fastpanel: password change failed")
)

// AuthError is a login rejection the panel reported with a code/message
// body. Useful to an administrator, not the end user.
type AuthError struct {
	Code    int64
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("fastpanel admin auth error %d: %s", e.Code, e.Message)
}

type DomainNotFoundError struct {
	Domain string
}

func (e *DomainNotFoundError) Error() string {
	return fmt.Sprintf("fastpanel: could not locate email domain %s", e.Domain)
}

type MailboxNotFoundError struct {
	Login  string
	Domain string
}

func (e *MailboxNotFoundError) Error() string {
	return fmt.Sprintf("fastpanel: could not locate email user %s in domain %s", e.Login, e.Domain)
}

// PasswordRejectedError is a panel-side policy rejection of the new
// password. Its reason is safe to show to the end user.
type PasswordRejectedError struct {
	Reason string
}

func (e *PasswordRejectedError) Error() string {
	return fmt.Sprintf("fastpanel rejected password: %s", e.Reason)
}
