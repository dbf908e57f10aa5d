package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL backend a DB talks to.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// Options describes how to reach the backing store.
type Options struct {
	Driver string
	// URL is a postgres URL, a mysql:// URL or DSN, or a sqlite file path / file: URI.
	URL string

	// MySQL connection parts, used when Driver is mysql and URL is empty.
	Host     string
	Port     string
	User     string
	Password string
	Name     string

	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	// Location is the wall clock that visit timestamps are written in.
	Location *time.Location
}

// DB wraps sql.DB together with the dialect it speaks.
type DB struct {
	Client  *sql.DB
	Dialect Dialect
}

// NewDB opens a pooled connection for the configured driver and pings it.
func NewDB(ctx context.Context, opts Options) (*DB, error) {
	dialect, driverName, dsn, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	client, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == SQLite {
		// single writer; also keeps shared-cache memory databases alive
		client.SetMaxOpenConns(1)
		client.SetMaxIdleConns(1)
		client.SetConnMaxLifetime(0)
	} else {
		maxOpen := opts.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 10
		}
		client.SetMaxOpenConns(maxOpen)
		client.SetMaxIdleConns(maxOpen / 2)
		client.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.PingContext(pingCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	return &DB{Client: client, Dialect: dialect}, nil
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Ping reports whether the store answers within ctx.
func (d *DB) Ping(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func resolve(opts Options) (Dialect, string, string, error) {
	switch strings.ToLower(opts.Driver) {
	case "", "postgres", "postgresql", "pgx":
		if opts.URL == "" {
			return "", "", "", fmt.Errorf("postgres requires DATABASE_URL")
		}
		return Postgres, "pgx", opts.URL, nil
	case "mysql":
		dsn, err := mysqlDSN(opts)
		if err != nil {
			return "", "", "", err
		}
		return MySQL, "mysql", dsn, nil
	case "sqlite", "sqlite3":
		dsn, err := sqliteDSN(opts.URL)
		if err != nil {
			return "", "", "", err
		}
		return SQLite, "sqlite", dsn, nil
	default:
		return "", "", "", fmt.Errorf("unsupported DB_DRIVER %q", opts.Driver)
	}
}

func mysqlDSN(opts Options) (string, error) {
	var cfg *mysql.Config
	raw := strings.TrimSpace(opts.URL)
	switch {
	case strings.HasPrefix(raw, "mysql://"):
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse mysql url: %w", err)
		}
		cfg = mysql.NewConfig()
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
		cfg.Net = "tcp"
		host, port := u.Hostname(), u.Port()
		if port == "" {
			port = "3306"
		}
		cfg.Addr = host + ":" + port
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		if cfg.DBName == "" {
			return "", fmt.Errorf("mysql url missing database name")
		}
	case raw != "":
		parsed, err := mysql.ParseDSN(raw)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg = parsed
	default:
		cfg = mysql.NewConfig()
		cfg.User = opts.User
		cfg.Passwd = opts.Password
		cfg.Net = "tcp"
		cfg.Addr = opts.Host + ":" + opts.Port
		cfg.DBName = opts.Name
	}
	if raw == "" || strings.HasPrefix(raw, "mysql://") {
		cfg.Params = map[string]string{"charset": "utf8mb4"}
	}

	cfg.ParseTime = true
	if opts.Location != nil {
		cfg.Loc = opts.Location
	}
	cfg.Timeout = 10 * time.Second
	return cfg.FormatDSN(), nil
}

func sqliteDSN(raw string) (string, error) {
	if strings.HasPrefix(raw, "file:") {
		return raw, nil
	}
	path := raw
	if path == "" {
		path = "./data/checkin.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir db dir: %w", err)
	}
	return fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	), nil
}
