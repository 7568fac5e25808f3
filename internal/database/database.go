// Package database opens and configures the MySQL connection pool and
// holds the SQL helpers shared by the schema, trigger and generator
// packages.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DriverName is the database/sql driver used for every connection
const DriverName = "mysql"

// Config holds connection pool configuration
type Config struct {
	// URL is a go-sql-driver DSN (user:pass@tcp(host:3306)/db) or a
	// mysql:// URL
	URL string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultConfig returns pool settings suited to a small admin service
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Open connects to MySQL and verifies the connection
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn, err := NormalizeDSN(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL database: %w", err)
	}

	return db, nil
}

// NormalizeDSN converts a mysql:// URL to a driver DSN and forces the
// options the rest of the service relies on: parsed DATETIME values and a
// single statement per Exec.
func NormalizeDSN(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("database URL is empty")
	}

	dsn := raw
	if strings.HasPrefix(raw, "mysql://") {
		converted, err := urlToDSN(raw)
		if err != nil {
			return "", err
		}
		dsn = converted
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid database URL: %w", err)
	}
	if cfg.DBName == "" {
		return "", fmt.Errorf("invalid database URL: no database name")
	}
	cfg.ParseTime = true
	cfg.MultiStatements = false
	return cfg.FormatDSN(), nil
}

// DatabaseName returns the schema name in a URL or DSN
func DatabaseName(raw string) (string, error) {
	dsn, err := NormalizeDSN(raw)
	if err != nil {
		return "", err
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	return cfg.DBName, nil
}

func urlToDSN(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid database URL: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Hostname() + ":3306"
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")

	q := u.Query()
	if loc := q.Get("loc"); loc != "" {
		l, err := time.LoadLocation(loc)
		if err != nil {
			return "", fmt.Errorf("invalid database URL: %w", err)
		}
		cfg.Loc = l
		q.Del("loc")
	}
	if tls := q.Get("tls"); tls != "" {
		cfg.TLSConfig = tls
		q.Del("tls")
	}
	if len(q) > 0 {
		cfg.Params = make(map[string]string, len(q))
		for k := range q {
			cfg.Params[k] = q.Get(k)
		}
	}
	return cfg.FormatDSN(), nil
}

// QuoteIdentifier quotes a table or column name for MySQL
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
