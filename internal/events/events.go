package events

import (
	"context"

	"mailpassd/internal/models"
)

// Event names the platform emits toward integrations.
const (
	AccountToResponse     = "mail.account.to-response"
	ChangeAccountPassword = "mail.account.change-password"
)

// Handler processes one event. Returning stop=true prevents later handlers
// registered for the same event from running; an error aborts the chain.
type Handler func(ctx context.Context, payload any) (stop bool, err error)

// Dispatcher holds an explicit ordered handler list per event name. There
// is no global registry; callers inject the handlers they want, in order.
type Dispatcher struct {
	handlers map[string][]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[string][]Handler{}}
}

func (d *Dispatcher) Subscribe(name string, h Handler) {
	d.handlers[name] = append(d.handlers[name], h)
}

// Emit runs the handlers for name in registration order, stopping at the
// first handler that signals stop or fails.
func (d *Dispatcher) Emit(ctx context.Context, name string, payload any) error {
	for _, h := range d.handlers[name] {
		stop, err := h(ctx, payload)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// AccountToResponsePayload is mutated in place: handlers annotate Response.
type AccountToResponsePayload struct {
	Account  models.MailAccount
	Response *models.AccountResponse
}

// ChangePasswordPayload carries a password-change request through the
// handler chain. Result is shared: handlers OR-merge their outcome into it.
type ChangePasswordPayload struct {
	Account         models.MailAccount
	CurrentPassword string
	NewPassword     string
	Result          *models.ChangePasswordResult
}
