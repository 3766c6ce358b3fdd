package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/lendhook/internal/errors"
	"github.com/ggonzalez94/lendhook/internal/events"
	"github.com/ggonzalez94/lendhook/internal/vault"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Store persists the vault registry and the hook event log in sqlite.
// Writers across processes are serialized by a file lock.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	s := &Store{db: db, lock: flock.New(lockPath), now: time.Now}

	// Schema bootstrap runs under the write lock so concurrent first opens
	// do not race on the WAL switch.
	unlock, err := s.acquire(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	defer unlock()

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS vaults (
			protocol TEXT NOT NULL,
			token TEXT NOT NULL,
			vault TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (protocol, token)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			protocol TEXT NOT NULL,
			sender TEXT NOT NULL,
			token TEXT NOT NULL,
			vault TEXT NOT NULL,
			recipient TEXT NOT NULL,
			amount TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_events_kind_id ON events(kind, id DESC);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init store schema: %w", err)
		}
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Vault(ctx context.Context, protocol vault.Protocol, token common.Address) (common.Address, error) {
	if !protocol.Valid() {
		return common.Address{}, unsupported(protocol)
	}
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT vault FROM vaults WHERE protocol = ? AND token = ?", string(protocol), token.Hex()).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.Address{}, nil
		}
		return common.Address{}, fmt.Errorf("read vault: %w", err)
	}
	return common.HexToAddress(raw), nil
}

func (s *Store) SetVault(ctx context.Context, protocol vault.Protocol, token, vaultAddr common.Address) error {
	if !protocol.Valid() {
		return unsupported(protocol)
	}
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vaults (protocol, token, vault, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(protocol, token) DO UPDATE SET
			vault=excluded.vault,
			updated_at=excluded.updated_at
	`, string(protocol), token.Hex(), vaultAddr.Hex(), s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	return nil
}

func (s *Store) Vaults(ctx context.Context, protocol vault.Protocol) ([]vault.Entry, error) {
	if !protocol.Valid() {
		return nil, unsupported(protocol)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT token, vault FROM vaults WHERE protocol = ? ORDER BY token", string(protocol))
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	defer rows.Close()

	out := make([]vault.Entry, 0)
	for rows.Next() {
		var token, vaultAddr string
		if err := rows.Scan(&token, &vaultAddr); err != nil {
			return nil, fmt.Errorf("scan vault row: %w", err)
		}
		out = append(out, vault.Entry{Protocol: protocol, Token: common.HexToAddress(token), Vault: common.HexToAddress(vaultAddr)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault rows: %w", err)
	}
	return out, nil
}

// Emit appends an event to the log. Store satisfies events.Sink.
func (s *Store) Emit(ctx context.Context, ev events.Event) error {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	at := ev.At
	if at.IsZero() {
		at = s.now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (kind, protocol, sender, token, vault, recipient, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(ev.Kind), ev.Protocol, ev.Sender.Hex(), ev.Token.Hex(), ev.Vault.Hex(), ev.Recipient.Hex(), ev.Amount, at.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Events returns the most recent events first. An empty kind matches all.
func (s *Store) Events(ctx context.Context, kind events.Kind, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	const columns = "SELECT kind, protocol, sender, token, vault, recipient, amount, created_at FROM events"
	if kind == "" {
		rows, err = s.db.QueryContext(ctx, columns+" ORDER BY id DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.QueryContext(ctx, columns+" WHERE kind = ? ORDER BY id DESC LIMIT ?", string(kind), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]events.Event, 0)
	for rows.Next() {
		var (
			k, protocol, sender, token, vaultAddr, recipient, amount string
			createdMS                                                int64
		)
		if err := rows.Scan(&k, &protocol, &sender, &token, &vaultAddr, &recipient, &amount, &createdMS); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, events.Event{
			Kind:      events.Kind(k),
			Protocol:  protocol,
			Sender:    common.HexToAddress(sender),
			Token:     common.HexToAddress(token),
			Vault:     common.HexToAddress(vaultAddr),
			Recipient: common.HexToAddress(recipient),
			Amount:    amount,
			At:        time.UnixMilli(createdMS).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}

func unsupported(protocol vault.Protocol) error {
	return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported protocol: %s", protocol))
}

func (s *Store) acquire(ctx context.Context) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 10*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock store: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock store: timeout acquiring lock")
	}
	return func() { _ = s.lock.Unlock() }, nil
}
