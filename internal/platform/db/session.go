package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// ErrSessionClosed is returned by every Session method once Close has run.
var ErrSessionClosed = errors.New("session is closed")

// Querier is the statement surface repositories need.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Conn is a live connection a Session can drive. *pgx.Conn and *pgxpool.Conn
// both satisfy it.
type Conn interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ReleaseFunc hands a connection back to whoever produced it.
type ReleaseFunc func(ctx context.Context) error

// Session is one logical unit of work against the store. A new session is in
// auto-commit mode: every statement commits on its own. SetAutoCommit(false)
// switches to explicit-transaction mode, where statements accumulate until
// Commit or Rollback.
type Session interface {
	Querier
	ID() string
	AutoCommit() bool
	SetAutoCommit(ctx context.Context, on bool) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

type connSession struct {
	id         string
	conn       Conn
	release    ReleaseFunc
	logger     zerolog.Logger
	autoCommit bool
	tx         pgx.Tx
	closed     bool
}

// NewSession wraps conn. release may be nil when the caller owns the
// connection lifecycle.
func NewSession(conn Conn, release ReleaseFunc, logger zerolog.Logger) Session {
	id := uuid.New().String()
	return &connSession{
		id:         id,
		conn:       conn,
		release:    release,
		logger:     logger.With().Str("session_id", id).Logger(),
		autoCommit: true,
	}
}

func (s *connSession) ID() string { return s.id }

func (s *connSession) AutoCommit() bool { return s.autoCommit }

func (s *connSession) SetAutoCommit(ctx context.Context, on bool) error {
	if s.closed {
		return ErrSessionClosed
	}
	if on == s.autoCommit {
		return nil
	}
	if on && s.tx != nil {
		// Leaving explicit mode commits whatever is pending.
		if err := s.Commit(ctx); err != nil {
			return fmt.Errorf("commit on auto-commit restore: %w", err)
		}
	}
	s.autoCommit = on
	s.logger.Debug().Bool("auto_commit", on).Msg("auto-commit changed")
	return nil
}

func (s *connSession) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.autoCommit {
		return errors.New("commit called while auto-commit is enabled")
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.logger.Debug().Msg("transaction committed")
	return nil
}

func (s *connSession) Rollback(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.autoCommit {
		return errors.New("rollback called while auto-commit is enabled")
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	s.logger.Debug().Msg("transaction rolled back")
	return nil
}

// Close discards any open transaction and releases the connection. Calling it
// more than once is harmless.
func (s *connSession) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.tx != nil {
		if err := s.tx.Rollback(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rollback on close: %w", err))
		}
		s.tx = nil
	}
	if s.release != nil {
		if err := s.release(ctx); err != nil {
			errs = append(errs, fmt.Errorf("release connection: %w", err))
		}
	}
	s.logger.Debug().Msg("session released")
	return errors.Join(errs...)
}

// querier returns the transaction in explicit mode, beginning it on first use,
// and the bare connection otherwise.
func (s *connSession) querier(ctx context.Context) (Querier, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.autoCommit {
		return s.conn, nil
	}
	if s.tx == nil {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
		s.tx = tx
		s.logger.Debug().Msg("transaction begun")
	}
	return s.tx, nil
}

func (s *connSession) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	q, err := s.querier(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return q.Exec(ctx, sql, args...)
}

func (s *connSession) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	q, err := s.querier(ctx)
	if err != nil {
		return nil, err
	}
	return q.Query(ctx, sql, args...)
}

func (s *connSession) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	q, err := s.querier(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return q.QueryRow(ctx, sql, args...)
}

type errRow struct{ err error }

func (r errRow) Scan(...interface{}) error { return r.err }
