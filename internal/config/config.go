package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string

	DBPath            string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	SettingsEncryptKey  string
	SessionCookieName   string
	SessionIdleMinutes  int
	SessionAbsoluteHour int
	CookieSecure        bool
	TrustProxy          bool
	CORSAllowedOrigins  []string

	PanelHTTPTimeoutSec     int
	PanelInsecureSkipVerify bool

	// External DB the webmail platform keeps its mail accounts in.
	PlatformDBDriver    string
	PlatformDBDSN       string
	PlatformTable       string
	PlatformEmailCol    string
	PlatformPasswordCol string
	PlatformServerCol   string
	PlatformPortCol     string
	PlatformSSLCol      string

	// How the caller-supplied current password is checked before any panel
	// call: against the platform's stored copy, or by IMAP login.
	PasswordVerifyMode     string
	IMAPDialTimeoutSec     int
	IMAPInsecureSkipVerify bool

	NotifySender string
	NotifyFrom   string
	SMTPHost     string
	SMTPPort     int

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":8080"),
		DBPath:                   env("APP_DB_PATH", "./data/app.db"),
		DBMaxOpenConns:           envInt("APP_DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("APP_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("APP_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		SettingsEncryptKey:       env("SETTINGS_ENCRYPT_KEY", "CHANGE_ME_PRODUCTION_SETTINGS_KEY"),
		SessionCookieName:        env("SESSION_COOKIE_NAME", "mailpassd_session"),
		SessionIdleMinutes:       envInt("SESSION_IDLE_MINUTES", 30),
		SessionAbsoluteHour:      envInt("SESSION_ABSOLUTE_HOURS", 24),
		CookieSecure:             envBool("COOKIE_SECURE", false),
		TrustProxy:               envBool("TRUST_PROXY", false),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		PanelHTTPTimeoutSec:      envInt("PANEL_HTTP_TIMEOUT_SEC", 15),
		PanelInsecureSkipVerify:  envBool("PANEL_INSECURE_SKIP_VERIFY", false),
		PlatformDBDriver:         env("PLATFORM_DB_DRIVER", ""),
		PlatformDBDSN:            env("PLATFORM_DB_DSN", ""),
		PlatformTable:            env("PLATFORM_ACCOUNTS_TABLE", "mail_accounts"),
		PlatformEmailCol:         env("PLATFORM_EMAIL_COL", "email"),
		PlatformPasswordCol:      env("PLATFORM_PASSWORD_COL", "password"),
		PlatformServerCol:        env("PLATFORM_SERVER_COL", "incoming_server"),
		PlatformPortCol:          env("PLATFORM_PORT_COL", ""),
		PlatformSSLCol:           env("PLATFORM_SSL_COL", ""),
		PasswordVerifyMode:       strings.ToLower(env("PASSWORD_VERIFY_MODE", "stored")),
		IMAPDialTimeoutSec:       envInt("IMAP_DIAL_TIMEOUT_SEC", 10),
		IMAPInsecureSkipVerify:   envBool("IMAP_INSECURE_SKIP_VERIFY", false),
		NotifySender:             strings.ToLower(env("NOTIFY_SENDER", "log")),
		NotifyFrom:               env("NOTIFY_FROM", "postmaster@localhost"),
		SMTPHost:                 env("SMTP_HOST", "127.0.0.1"),
		SMTPPort:                 envInt("SMTP_PORT", 587),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 10),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 30),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
		BootstrapAdminEmail:      env("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword:   env("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}

	if cfg.SessionIdleMinutes <= 0 || cfg.SessionAbsoluteHour <= 0 {
		return Config{}, fmt.Errorf("session timeouts must be positive")
	}
	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	if cfg.PanelHTTPTimeoutSec <= 0 {
		return Config{}, fmt.Errorf("PANEL_HTTP_TIMEOUT_SEC must be positive")
	}
	if strings.TrimSpace(cfg.SettingsEncryptKey) == "" ||
		cfg.SettingsEncryptKey == "CHANGE_ME_PRODUCTION_SETTINGS_KEY" ||
		len(cfg.SettingsEncryptKey) < 24 {
		return Config{}, fmt.Errorf("SETTINGS_ENCRYPT_KEY must be set to a strong non-default value (>=24 chars)")
	}
	switch cfg.PasswordVerifyMode {
	case "stored", "imap":
	default:
		return Config{}, fmt.Errorf("PASSWORD_VERIFY_MODE must be one of: stored, imap")
	}
	switch cfg.PlatformDBDriver {
	case "", "sqlite", "mysql", "pgx":
	default:
		return Config{}, fmt.Errorf("PLATFORM_DB_DRIVER must be one of: sqlite, mysql, pgx")
	}
	switch cfg.NotifySender {
	case "log", "smtp":
	default:
		return Config{}, fmt.Errorf("NOTIFY_SENDER must be one of: log, smtp")
	}
	if cfg.SMTPPort <= 0 {
		return Config{}, fmt.Errorf("invalid SMTP port")
	}
	return cfg, nil
}

func (c Config) SessionIdleDuration() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func (c Config) SessionAbsoluteDuration() time.Duration {
	return time.Duration(c.SessionAbsoluteHour) * time.Hour
}

func (c Config) PanelHTTPTimeout() time.Duration {
	return time.Duration(c.PanelHTTPTimeoutSec) * time.Second
}

func (c Config) IMAPDialTimeout() time.Duration {
	return time.Duration(c.IMAPDialTimeoutSec) * time.Second
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
