package platform

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mailpassd/internal/config"
	"mailpassd/internal/models"
)

var identRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSource reads mail accounts straight from the platform's own database.
// Table and column names are configurable because platforms differ; they
// are validated as bare identifiers before ever reaching a query.
type SQLSource struct {
	db        *sql.DB
	driver    string
	table     string
	emailCol  string
	passCol   string
	serverCol string
	portCol   string
	sslCol    string
}

func NewSource(cfg config.Config) (AccountSource, error) {
	if strings.TrimSpace(cfg.PlatformDBDriver) == "" || strings.TrimSpace(cfg.PlatformDBDSN) == "" {
		return NewStaticSource(), nil
	}
	for _, ident := range []string{cfg.PlatformTable, cfg.PlatformEmailCol, cfg.PlatformPasswordCol, cfg.PlatformServerCol, cfg.PlatformPortCol, cfg.PlatformSSLCol} {
		if ident != "" && !identRx.MatchString(ident) {
			return nil, fmt.Errorf("invalid SQL identifier %q", ident)
		}
	}
	db, err := sql.Open(cfg.PlatformDBDriver, cfg.PlatformDBDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &SQLSource{
		db:        db,
		driver:    cfg.PlatformDBDriver,
		table:     cfg.PlatformTable,
		emailCol:  cfg.PlatformEmailCol,
		passCol:   cfg.PlatformPasswordCol,
		serverCol: cfg.PlatformServerCol,
		portCol:   cfg.PlatformPortCol,
		sslCol:    cfg.PlatformSSLCol,
	}, nil
}

func (s *SQLSource) GetAccountByEmail(ctx context.Context, email string) (models.MailAccount, error) {
	cols := []string{s.emailCol, s.passCol, s.serverCol}
	if s.portCol != "" {
		cols = append(cols, s.portCol)
	}
	if s.sslCol != "" {
		cols = append(cols, s.sslCol)
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s=%s", strings.Join(cols, ","), s.table, s.emailCol, s.ph(1))
	row := s.db.QueryRowContext(ctx, q, email)

	var acct models.MailAccount
	var server sql.NullString
	var port sql.NullInt64
	var ssl sql.NullBool
	dest := []any{&acct.Email, &acct.Password, &server}
	if s.portCol != "" {
		dest = append(dest, &port)
	}
	if s.sslCol != "" {
		dest = append(dest, &ssl)
	}
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return models.MailAccount{}, ErrAccountNotFound
		}
		return models.MailAccount{}, err
	}
	acct.ID = acct.Email
	if server.Valid && strings.TrimSpace(server.String) != "" {
		srv := &models.MailServer{IncomingServer: strings.TrimSpace(server.String), IncomingPort: 143}
		if port.Valid && port.Int64 > 0 {
			srv.IncomingPort = int(port.Int64)
		}
		if ssl.Valid {
			srv.IncomingUseSSL = ssl.Bool
		}
		acct.Server = srv
	}
	return acct, nil
}

func (s *SQLSource) ph(i int) string {
	if strings.Contains(strings.ToLower(s.driver), "pgx") || strings.Contains(strings.ToLower(s.driver), "postgres") {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}
