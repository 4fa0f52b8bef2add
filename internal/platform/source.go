package platform

import (
	"context"
	"errors"
	"strings"

	"mailpassd/internal/models"
)

var ErrAccountNotFound = errors.New("mail account not found")

// AccountSource is a read-only view of the webmail platform's mail
// accounts. This integration never writes through it; the panel owns the
// actual credentials.
type AccountSource interface {
	GetAccountByEmail(ctx context.Context, email string) (models.MailAccount, error)
}

// StaticSource serves a fixed account list. Used in tests and demo setups
// without a platform database.
type StaticSource struct {
	accounts map[string]models.MailAccount
}

func NewStaticSource(accounts ...models.MailAccount) *StaticSource {
	m := make(map[string]models.MailAccount, len(accounts))
	for _, a := range accounts {
		m[strings.ToLower(a.Email)] = a
	}
	return &StaticSource{accounts: m}
}

func (s *StaticSource) GetAccountByEmail(ctx context.Context, email string) (models.MailAccount, error) {
	a, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return models.MailAccount{}, ErrAccountNotFound
	}
	return a, nil
}
