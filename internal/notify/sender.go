package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"

	"mailpassd/internal/config"
)

// Sender notifies a mailbox owner that their password was changed through
// the panel. Best-effort: callers log failures and move on.
type Sender interface {
	SendPasswordChanged(ctx context.Context, toEmail string) error
}

type LogSender struct{}

func (LogSender) SendPasswordChanged(ctx context.Context, toEmail string) error {
	_ = ctx
	log.Printf("password changed notice for %s (log sender, not delivered)", toEmail)
	return nil
}

type SMTPSender struct {
	host string
	port int
	from string
}

func NewSender(cfg config.Config) Sender {
	switch cfg.NotifySender {
	case "smtp":
		return SMTPSender{host: cfg.SMTPHost, port: cfg.SMTPPort, from: cfg.NotifyFrom}
	default:
		return LogSender{}
	}
}

func (s SMTPSender) SendPasswordChanged(ctx context.Context, toEmail string) error {
	_ = ctx
	raw, err := buildPasswordChangedMessage(s.from, toEmail, time.Now())
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{toEmail}, raw)
}

func buildPasswordChangedMessage(from, to string, now time.Time) ([]byte, error) {
	var b bytes.Buffer
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject("Your mailbox password was changed")

	w, err := mail.CreateSingleInlineWriter(&b, h)
	if err != nil {
		return nil, err
	}
	body := "The password for your mailbox " + to + " was just changed through the hosting control panel.\r\n" +
		"If you did not request this change, contact your administrator immediately.\r\n"
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
