package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mailpassd/internal/util"
)

// storeKey is the settings-table row the whole record is persisted under.
const storeKey = "fastpanel_settings"

// WildcardServer in SupportedServers enables the integration for every
// mail server.
const WildcardServer = "*"

// Settings is the integration's configuration record. AdminPassword is kept
// encrypted at rest; EnsureEncrypted migrates legacy plaintext values.
type Settings struct {
	Disabled         bool     `json:"disabled"`
	SupportedServers []string `json:"supported_servers"`
	PanelURL         string   `json:"panel_url"`
	AdminUser        string   `json:"admin_user"`
	AdminPassword    string   `json:"admin_password"`
}

func Defaults() Settings {
	return Settings{
		Disabled:         false,
		SupportedServers: []string{WildcardServer},
		PanelURL:         "http://localhost:8888",
		AdminUser:        "fastuser",
		AdminPassword:    "",
	}
}

// Store is the key/value persistence the settings record lives in.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	UpsertSetting(ctx context.Context, key, value string) error
}

func Load(ctx context.Context, st Store) (Settings, error) {
	raw, ok, err := st.GetSetting(ctx, storeKey)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Defaults(), nil
	}
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// Save persists the whole record with a single upsert so a concurrent
// writer can lose the race but never observe a half-written value.
func Save(ctx context.Context, st Store, s Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := st.UpsertSetting(ctx, storeKey, string(raw)); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// EnsureEncrypted returns the plaintext admin password to use for the
// current operation. When the stored value was still plaintext it also
// returns an updated copy of the settings with the password encrypted; the
// caller decides when to persist it. Pure: the receiver is not modified.
func (s Settings) EnsureEncrypted(key []byte) (plaintext string, updated *Settings, err error) {
	if s.AdminPassword == "" {
		return "", nil, nil
	}
	if util.IsEncryptedValue(s.AdminPassword) {
		plain, err := util.DecryptValue(key, s.AdminPassword)
		if err != nil {
			return "", nil, fmt.Errorf("decrypt panel admin password: %w", err)
		}
		return plain, nil, nil
	}
	enc, err := util.EncryptValue(key, s.AdminPassword)
	if err != nil {
		return "", nil, fmt.Errorf("encrypt panel admin password: %w", err)
	}
	next := s
	next.AdminPassword = enc
	return s.AdminPassword, &next, nil
}

// SupportsServer reports whether host is covered by the supported-servers
// list. The wildcard entry covers every server.
func (s Settings) SupportsServer(host string) bool {
	for _, v := range s.SupportedServers {
		if v == WildcardServer || v == host {
			return true
		}
	}
	return false
}

// HasWildcard reports whether the supported-servers list contains the
// wildcard entry.
func (s Settings) HasWildcard() bool {
	for _, v := range s.SupportedServers {
		if v == WildcardServer {
			return true
		}
	}
	return false
}

// Property describes one settings field for admin UI generation. Metadata
// lives here, separate from the stored values.
type Property struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Secret      bool   `json:"secret,omitempty"`
}

func Schema() []Property {
	return []Property{
		{Name: "disabled", Type: "bool", Description: "Setting to true disables the integration"},
		{Name: "supported_servers", Type: "array", Description: "If the incoming server of the mailserver is in this list, password change is enabled for it. * enables it for all the servers."},
		{Name: "panel_url", Type: "string", Description: "Main URL of the Fastpanel installation"},
		{Name: "admin_user", Type: "string", Description: "Admin username of the Fastpanel installation"},
		{Name: "admin_password", Type: "string", Description: "Admin password of the Fastpanel installation", Secret: true},
	}
}
