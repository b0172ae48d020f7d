package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

// Config controls the warehouse connection pool.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the MySQL warehouse. parseTime is always enabled so DATE and
// DATETIME columns scan as time.Time.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse warehouse dsn: %w", err)
	}
	mc.ParseTime = true
	if mc.Loc == nil {
		mc.Loc = time.Local
	}

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("create warehouse connector: %w", err)
	}
	db := sql.OpenDB(connector)

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	return db, nil
}

// Queryer is the subset of *sql.DB the query service needs.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Service executes parameterized queries against the warehouse and shapes the
// results into id-keyed lookups.
type Service struct {
	db      Queryer
	timeout time.Duration
	logger  zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithQueryTimeout bounds every query. Zero means no bound beyond the caller's context.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithLogger sets the logger used for query tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l.With().Str("component", "warehouse").Logger() }
}

func NewService(db Queryer, opts ...Option) *Service {
	s := &Service{db: db, logger: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}
