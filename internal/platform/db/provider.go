package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Connection strategies accepted by Open.
const (
	ModePooled = "pooled"
	ModeDirect = "direct"
)

// Provider hands out sessions. Whether a session is backed by a pooled or a
// freshly dialled connection is invisible to callers.
type Provider interface {
	Acquire(ctx context.Context) (Session, error)
	Ping(ctx context.Context) error
	// Stats returns nil when the provider has no pool.
	Stats() *PoolStats
	Close()
}

// Options selects and sizes a Provider.
type Options struct {
	URL      string
	Mode     string
	MaxConns int32
	MinConns int32
}

// Open builds the provider named by opts.Mode and verifies the store is
// reachable.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (Provider, error) {
	switch opts.Mode {
	case ModePooled, "":
		pool, err := NewPool(ctx, opts.URL, opts.MaxConns, opts.MinConns)
		if err != nil {
			return nil, err
		}
		return NewPooledProvider(pool, logger), nil
	case ModeDirect:
		p, err := NewDirectProvider(opts.URL, logger)
		if err != nil {
			return nil, err
		}
		if err := p.Ping(ctx); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, &ConnectionError{Op: "open provider", Err: fmt.Errorf("unknown mode %q", opts.Mode)}
	}
}

// PooledProvider serves sessions from a pgxpool.Pool.
type PooledProvider struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPooledProvider(pool *pgxpool.Pool, logger zerolog.Logger) *PooledProvider {
	return &PooledProvider{pool: pool, logger: logger}
}

func (p *PooledProvider) Acquire(ctx context.Context) (Session, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, &ConnectionError{Op: "acquire connection", Err: err}
	}
	release := func(context.Context) error {
		conn.Release()
		return nil
	}
	return NewSession(conn, release, p.logger), nil
}

func (p *PooledProvider) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return &ConnectionError{Op: "ping database", Err: err}
	}
	return nil
}

func (p *PooledProvider) Stats() *PoolStats { return GetPoolStats(p.pool) }

func (p *PooledProvider) Close() { p.pool.Close() }

// DirectProvider opens a dedicated connection per session and closes it when
// the session ends.
type DirectProvider struct {
	cfg    *pgx.ConnConfig
	logger zerolog.Logger
}

func NewDirectProvider(databaseURL string, logger zerolog.Logger) (*DirectProvider, error) {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, &ConnectionError{Op: "parse database url", Err: err}
	}
	return &DirectProvider{cfg: cfg, logger: logger}, nil
}

func (p *DirectProvider) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, p.cfg.Copy())
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	return conn, nil
}

func (p *DirectProvider) Acquire(ctx context.Context) (Session, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, conn.Close, p.logger), nil
}

func (p *DirectProvider) Ping(ctx context.Context) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	if err := conn.Ping(ctx); err != nil {
		return &ConnectionError{Op: "ping database", Err: err}
	}
	return nil
}

func (p *DirectProvider) Stats() *PoolStats { return nil }

func (p *DirectProvider) Close() {}
