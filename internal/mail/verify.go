package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	imapclient "github.com/emersion/go-imap/client"

	"mailpassd/internal/config"
	"mailpassd/internal/models"
)

// Verifier checks a caller-supplied current password before any panel call.
// A false result is a silent "not changed" outcome, not an error; errors are
// reserved for verification infrastructure being unavailable.
type Verifier interface {
	VerifyPassword(ctx context.Context, account models.MailAccount, password string) (bool, error)
}

// StoredVerifier compares against the platform's own stored copy. Plaintext
// equality: the panel API needs the same plaintext, so nothing is hashed at
// this layer.
type StoredVerifier struct{}

func (StoredVerifier) VerifyPassword(ctx context.Context, account models.MailAccount, password string) (bool, error) {
	return account.Password != "" && account.Password == password, nil
}

// IMAPVerifier asks the account's own incoming server instead, via IMAP
// LOGIN. For deployments where the mail server, not the platform's stored
// copy, should be the judge.
type IMAPVerifier struct {
	dialTimeout        time.Duration
	insecureSkipVerify bool
}

func NewVerifier(cfg config.Config) Verifier {
	if cfg.PasswordVerifyMode == "imap" {
		return &IMAPVerifier{
			dialTimeout:        cfg.IMAPDialTimeout(),
			insecureSkipVerify: cfg.IMAPInsecureSkipVerify,
		}
	}
	return StoredVerifier{}
}

func (v *IMAPVerifier) VerifyPassword(ctx context.Context, account models.MailAccount, password string) (bool, error) {
	if account.Server == nil {
		return false, fmt.Errorf("account %s has no linked server", account.Email)
	}
	if password == "" {
		return false, nil
	}
	host := account.Server.IncomingServer
	port := account.Server.IncomingPort
	if port <= 0 {
		port = 143
		if account.Server.IncomingUseSSL {
			port = 993
		}
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: v.dialTimeout}
	tlsCfg := &tls.Config{ServerName: host, InsecureSkipVerify: v.insecureSkipVerify}

	var cli *imapclient.Client
	var err error
	if account.Server.IncomingUseSSL {
		cli, err = imapclient.DialWithDialerTLS(dialer, addr, tlsCfg)
	} else {
		cli, err = imapclient.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer cli.Logout()

	if err := cli.Login(account.Email, password); err != nil {
		// Authentication refused means the claim is wrong, not that the
		// verifier is broken.
		return false, nil
	}
	return true, nil
}
