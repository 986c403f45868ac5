// Package memory is a process-local implementation of the repository ports.
// Transactions are serialized on a single store lock and undone on
// rollback, which gives the same outcomes as row locks for a single
// process. It backs the "memory" storage driver and the service tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errNotSupported = errors.New("memory store: raw SQL is not supported")

// Store holds every table of the in-memory backend.
type Store struct {
	txMu sync.Mutex   // held by the open transaction
	mu   sync.RWMutex // guards the maps below

	seq int64

	wallets      map[uuid.UUID]domain.Wallet
	entries      map[uuid.UUID]domain.Transaction
	walletLedger map[uuid.UUID][]uuid.UUID
	orders       map[uuid.UUID]domain.Order
	orderEvents  map[uuid.UUID][]domain.OrderEvent
	drivers      map[uuid.UUID]domain.Driver
	businesses   map[uuid.UUID]domain.Business
	settlements  map[uuid.UUID]domain.Settlement
	payouts      map[uuid.UUID]domain.Payout
	processed    map[string]domain.ProcessedEvent
	outbox       map[uuid.UUID]domain.OutboxMessage
	outboxOrder  []uuid.UUID
	audit        []domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		wallets:      make(map[uuid.UUID]domain.Wallet),
		entries:      make(map[uuid.UUID]domain.Transaction),
		walletLedger: make(map[uuid.UUID][]uuid.UUID),
		orders:       make(map[uuid.UUID]domain.Order),
		orderEvents:  make(map[uuid.UUID][]domain.OrderEvent),
		drivers:      make(map[uuid.UUID]domain.Driver),
		businesses:   make(map[uuid.UUID]domain.Business),
		settlements:  make(map[uuid.UUID]domain.Settlement),
		payouts:      make(map[uuid.UUID]domain.Payout),
		processed:    make(map[string]domain.ProcessedEvent),
		outbox:       make(map[uuid.UUID]domain.OutboxMessage),
	}
}

// Begin implements ports.DBTransactor. It blocks until the previous
// transaction has committed or rolled back.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.txMu.Lock()
	return &memTx{store: s}, nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "memory"
}

// write runs fn under the data lock and, when tx is a memory transaction,
// registers undo to run on rollback.
func (s *Store) write(tx pgx.Tx, fn func(), undo func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	if t, ok := tx.(*memTx); ok && undo != nil {
		t.undo = append(t.undo, undo)
	}
}

func (s *Store) read(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

// memTx is the pgx.Tx handed out by Store.Begin. Only Commit and Rollback
// carry meaning; the SQL methods exist to satisfy the interface.
type memTx struct {
	store *Store
	undo  []func()
	done  bool
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.undo = nil
	t.store.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.store.mu.Unlock()
	t.undo = nil
	t.store.txMu.Unlock()
	return nil
}

func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errNotSupported
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errNotSupported
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errNotSupported
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errNotSupported
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return errRow{}
}
func (t *memTx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(dest ...any) error { return errNotSupported }

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}

func sortBy[T any](items []T, key func(T) string) {
	sort.SliceStable(items, func(i, j int) bool { return key(items[i]) < key(items[j]) })
}
