package fastpanel

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Client talks the Fastpanel admin HTTP API. It holds no session state:
// tokens are obtained per operation and passed back in by the caller.
type Client struct {
	baseURL string
	http    *http.Client
}

type Credentials struct {
	Username string
	Password string
}

func New(baseURL string, timeout time.Duration, insecureSkipVerify bool) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecureSkipVerify}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout, Transport: transport},
	}
}

// NewWithHTTPClient is for tests that need to reuse an httptest client.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Login authenticates the panel admin and returns a bearer token. The panel
// reports rejections with a 200-status code/message body, so the response is
// classified by shape, not status.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	var out loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/login", "", loginRequest{Username: creds.Username, Password: creds.Password}, &out); err != nil {
		if isTransportError(err) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrAuthMalformed, err)
	}
	if out.Code != nil && out.Message != nil {
		return "", &AuthError{Code: *out.Code, Message: *out.Message}
	}
	if out.Data == nil || out.Data.Token == "" {
		return "", ErrAuthMalformed
	}
	return out.Data.Token, nil
}

func (c *Client) ListDomains(ctx context.Context, token string) ([]Domain, error) {
	var out domainListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/email/domains", token, nil, &out); err != nil {
		if isTransportError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDomainListUnavailable, err)
	}
	if out.Data == nil {
		return nil, ErrDomainListUnavailable
	}
	return *out.Data, nil
}

// ResolveDomain finds the panel domain whose name equals domain, first match
// in the order the panel returned the list.
func (c *Client) ResolveDomain(ctx context.Context, token, domain string) (Domain, error) {
	list, err := c.ListDomains(ctx, token)
	if err != nil {
		return Domain{}, err
	}
	for _, d := range list {
		if d.Name == domain {
			return d, nil
		}
	}
	return Domain{}, &DomainNotFoundError{Domain: domain}
}

func (c *Client) ListMailboxes(ctx context.Context, token string, domainID int64) ([]Mailbox, error) {
	path := fmt.Sprintf("/api/email/domains/%d/boxs", domainID)
	var out mailboxListResponse
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		if isTransportError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMailboxListUnavailable, err)
	}
	if out.Data == nil {
		return nil, ErrMailboxListUnavailable
	}
	return *out.Data, nil
}

// ResolveMailbox finds the mailbox whose login equals login within the
// domain, first match in input order. The full record is returned because
// the update call must echo its fields back.
func (c *Client) ResolveMailbox(ctx context.Context, token string, dom Domain, login string) (Mailbox, error) {
	list, err := c.ListMailboxes(ctx, token, dom.ID)
	if err != nil {
		return Mailbox{}, err
	}
	for _, box := range list {
		if box.Login == login {
			return box, nil
		}
	}
	return Mailbox{}, &MailboxNotFoundError{Login: login, Domain: dom.Name}
}

// UpdatePassword submits the new password for box, echoing the mailbox's
// current quota, redirects, aliases and spam_to_junk unchanged.
func (c *Client) UpdatePassword(ctx context.Context, token string, box Mailbox, newPassword string) error {
	path := fmt.Sprintf("/api/mail/box/%d", box.ID)
	body := updateRequest{
		Password:   newPassword,
		Quota:      box.Quota,
		Redirects:  box.Redirects,
		Aliases:    box.Aliases,
		SpamToJunk: box.SpamToJunk,
	}
	var out updateResponse
	if err := c.doJSON(ctx, http.MethodPut, path, token, body, &out); err != nil {
		if isTransportError(err) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrChangeFailed, err)
	}
	if out.Errors != nil && out.Errors.Password != "" {
		return &PasswordRejectedError{Reason: out.Errors.Password}
	}
	if out.Data == nil || out.Data.ID == nil {
		return ErrChangeFailed
	}
	return nil
}

// Probe checks the panel is reachable at all. Any HTTP response counts as
// reachable; only transport failures are reported.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/login", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %v", err)
	}
	return nil
}

func isTransportError(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
