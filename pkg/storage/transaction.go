// Transaction gateway for the quad store.
//
// A transaction is an explicit handle. BeginTransaction returns it together
// with a derived context.Context that carries it; code that needs the unit of
// work passes that context (or the handle) along instead of relying on
// goroutine-local state. A context carries at most one active transaction
// per store.
//
// Quads added under a transaction become visible immediately; nothing is
// buffered. Commit finishes the unit of work. Rollback and removal are only
// partly defined (see Rollback and Remove).
//
// State machine:
//
//	Running --BeginNestedTransaction--> Nested --child closes--> Running
//	Running --Commit--> Committing --hooks ok--> Committed
//	Running --Rollback--> RollingBack --hooks ok--> RolledBack
//	Committing/RollingBack --hook fails--> Running

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// TxState is the lifecycle state of a transaction.
type TxState int

const (
	TxRunning TxState = iota
	TxNested
	TxCommitting
	TxRollingBack
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxRunning:
		return "running"
	case TxNested:
		return "nested"
	case TxCommitting:
		return "committing"
	case TxRollingBack:
		return "rolling_back"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Active reports whether s blocks a new transaction from starting.
func (s TxState) Active() bool {
	switch s {
	case TxRunning, TxNested, TxCommitting, TxRollingBack:
		return true
	}
	return false
}

// IsolationLevel of a transaction. Recorded only; the in-memory store
// applies every write immediately.
type IsolationLevel int

const (
	IsolationRead IsolationLevel = iota
	IsolationWrite
)

func (l IsolationLevel) String() string {
	if l == IsolationRead {
		return "read"
	}
	return "write"
}

// TxOption configures BeginTransaction.
type TxOption func(*txConfig)

type txConfig struct {
	name         string
	distributed  bool
	longRunning  bool
	isolation    IsolationLevel
	createdAt    time.Time
	invalidateAt time.Time
}

// TxName sets a human-readable name, used in logs.
func TxName(name string) TxOption { return func(c *txConfig) { c.name = name } }

// TxDistributed marks the transaction as distributed.
func TxDistributed() TxOption { return func(c *txConfig) { c.distributed = true } }

// TxLongRunning marks the transaction as long running.
func TxLongRunning() TxOption { return func(c *txConfig) { c.longRunning = true } }

// TxIsolation sets the isolation level. Default IsolationWrite.
func TxIsolation(l IsolationLevel) TxOption { return func(c *txConfig) { c.isolation = l } }

// TxCreationTime overrides the creation time. Default time.Now().
func TxCreationTime(t time.Time) TxOption { return func(c *txConfig) { c.createdAt = t } }

// TxInvalidationTime sets when the transaction stops accepting writes.
// Default: never.
func TxInvalidationTime(t time.Time) TxOption { return func(c *txConfig) { c.invalidateAt = t } }

// Transaction is a unit of work against one store.
type Transaction[ID Value] struct {
	mu sync.Mutex

	ID            ID
	SystemID      ID
	Name          string
	Distributed   bool
	LongRunning   bool
	Isolation     IsolationLevel
	CreatedAt     time.Time
	InvalidatesAt time.Time // zero means never

	state      TxState
	added      []ID
	parent     *Transaction[ID]
	onCommit   []func() error
	onRollback []func() error

	owner any // the *Store that began it
	log   *zap.Logger
	now   func() time.Time
}

type txContextKey[ID Value] struct {
	system ID
}

// BeginTransaction starts a unit of work and returns it with a context
// carrying it.
//
// Returns ErrTransactionAlreadyActive when ctx already carries a transaction
// of this store that is running, nested, committing or rolling back.
//
// Example:
//
//	tx, ctx, err := store.BeginTransaction(ctx, storage.TxName("import"))
//	if err != nil {
//		return err
//	}
//	store.AddWith("a", "b", "c", storage.AddOptions[uint64, string]{Tx: tx})
//	return tx.Commit()
func (s *Store[ID, V]) BeginTransaction(ctx context.Context, opts ...TxOption) (*Transaction[ID], context.Context, error) {
	if current, ok := s.TransactionFromContext(ctx); ok && current.State().Active() {
		return nil, ctx, errors.Wrapf(ErrTransactionAlreadyActive,
			"transaction %v is %s", current.ID, current.State())
	}

	tx := s.newTransaction(opts)
	tx.log.Info("transaction started", zap.Stringer("isolation", tx.Isolation))

	return tx, s.withTransaction(ctx, tx), nil
}

// BeginNestedTransaction starts a transaction inside the running transaction
// carried by ctx. The parent moves to TxNested and cannot commit or roll back
// until the child closes; it still accepts writes. When the child commits,
// its quad IDs are appended to the parent's.
//
// Returns ErrInvalidArgument if ctx carries no transaction of this store,
// ErrTransactionAlreadyActive if the parent already has an open child, and
// ErrTransactionClosed if the parent no longer accepts writes.
func (s *Store[ID, V]) BeginNestedTransaction(ctx context.Context, opts ...TxOption) (*Transaction[ID], context.Context, error) {
	parent, ok := s.TransactionFromContext(ctx)
	if !ok {
		return nil, ctx, errors.Wrap(ErrInvalidArgument, "no transaction to nest in")
	}
	if err := parent.nest(); err != nil {
		return nil, ctx, err
	}

	tx := s.newTransaction(opts)
	tx.parent = parent
	tx.log.Info("nested transaction started", zap.Any("parent", parent.ID))

	return tx, s.withTransaction(ctx, tx), nil
}

func (s *Store[ID, V]) newTransaction(opts []TxOption) *Transaction[ID] {
	cfg := txConfig{isolation: IsolationWrite}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.createdAt.IsZero() {
		cfg.createdAt = time.Now()
	}

	tx := &Transaction[ID]{
		ID:            s.txIDs.NextID(),
		SystemID:      s.systemID,
		Name:          cfg.name,
		Distributed:   cfg.distributed,
		LongRunning:   cfg.longRunning,
		Isolation:     cfg.isolation,
		CreatedAt:     cfg.createdAt,
		InvalidatesAt: cfg.invalidateAt,
		state:         TxRunning,
		owner:         s,
		now:           time.Now,
	}
	tx.log = s.log.With(zap.Any("tx", tx.ID), zap.String("tx_name", tx.Name))
	return tx
}

func (s *Store[ID, V]) withTransaction(ctx context.Context, tx *Transaction[ID]) context.Context {
	return context.WithValue(ctx, txContextKey[ID]{system: s.systemID}, tx)
}

// TransactionFromContext returns the transaction of this store carried by
// ctx, whatever its state.
func (s *Store[ID, V]) TransactionFromContext(ctx context.Context) (*Transaction[ID], bool) {
	tx, ok := ctx.Value(txContextKey[ID]{system: s.systemID}).(*Transaction[ID])
	return tx, ok && tx != nil
}

// State returns the current lifecycle state.
func (tx *Transaction[ID]) State() TxState {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Parent returns the enclosing transaction of a nested one, or nil.
func (tx *Transaction[ID]) Parent() *Transaction[ID] {
	return tx.parent
}

// QuadIDs returns the IDs of the quads added under this transaction and its
// committed children, in order.
func (tx *Transaction[ID]) QuadIDs() []ID {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return append([]ID(nil), tx.added...)
}

// OnCommit registers fn to run while the transaction is TxCommitting. Hooks
// run in registration order without the transaction lock held; the first
// error aborts the commit and returns the transaction to TxRunning.
func (tx *Transaction[ID]) OnCommit(fn func() error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.onCommit = append(tx.onCommit, fn)
}

// OnRollback registers fn to run while the transaction is TxRollingBack,
// with the same rules as OnCommit.
func (tx *Transaction[ID]) OnRollback(fn func() error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.onRollback = append(tx.onRollback, fn)
}

// write runs fn while holding the transaction lock, provided the transaction
// still accepts writes, and records the quad ID fn returns.
func (tx *Transaction[ID]) write(fn func(txID ID) (ID, error)) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkWritableLocked(); err != nil {
		return err
	}
	id, err := fn(tx.ID)
	if err != nil {
		return err
	}
	tx.added = append(tx.added, id)
	return nil
}

func (tx *Transaction[ID]) checkWritableLocked() error {
	if tx.state != TxRunning && tx.state != TxNested {
		return errors.Wrapf(ErrTransactionClosed, "transaction %v is %s", tx.ID, tx.state)
	}
	if !tx.InvalidatesAt.IsZero() && !tx.now().Before(tx.InvalidatesAt) {
		return errors.Wrapf(ErrTransactionClosed, "transaction %v expired at %s",
			tx.ID, tx.InvalidatesAt.Format(time.RFC3339))
	}
	return nil
}

func (tx *Transaction[ID]) nest() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state == TxNested {
		return errors.Wrapf(ErrTransactionAlreadyActive, "transaction %v already has a nested transaction", tx.ID)
	}
	if err := tx.checkWritableLocked(); err != nil {
		return err
	}
	tx.state = TxNested
	return nil
}

// childClosed returns a nested parent to TxRunning and adopts the quads of a
// committed child.
func (tx *Transaction[ID]) childClosed(added []ID) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	tx.added = append(tx.added, added...)
	if tx.state == TxNested {
		tx.state = TxRunning
	}
}

// enter moves a running transaction into a closing state and returns the
// hooks to run there.
func (tx *Transaction[ID]) enter(closing TxState, op string) ([]func() error, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	switch tx.state {
	case TxRunning:
	case TxNested:
		return nil, errors.Wrapf(ErrTransactionAlreadyActive,
			"%s: transaction %v has an open nested transaction", op, tx.ID)
	default:
		return nil, errors.Wrapf(ErrTransactionClosed, "%s: transaction %v is %s", op, tx.ID, tx.state)
	}

	hooks := tx.onCommit
	if closing == TxRollingBack {
		if len(tx.added) > 0 {
			return nil, errors.Wrapf(notImplemented("rollback"), "transaction %v added %d quads", tx.ID, len(tx.added))
		}
		hooks = tx.onRollback
	}
	tx.state = closing
	return append([]func() error(nil), hooks...), nil
}

// leave sets the final state and returns the quads added.
func (tx *Transaction[ID]) leave(state TxState) []ID {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.state = state
	return append([]ID(nil), tx.added...)
}

func runHooks(hooks []func() error) error {
	for _, hook := range hooks {
		if err := hook(); err != nil {
			return err
		}
	}
	return nil
}

// Commit finishes the transaction. The quads it added are already visible,
// so committing runs the OnCommit hooks and moves the state to committed.
//
// Returns ErrTransactionClosed if the transaction is not running,
// ErrTransactionAlreadyActive if a nested transaction is still open, or the
// error of a failing hook (the transaction is then running again).
func (tx *Transaction[ID]) Commit() error {
	hooks, err := tx.enter(TxCommitting, "commit")
	if err != nil {
		return err
	}
	if err := runHooks(hooks); err != nil {
		tx.leave(TxRunning)
		return errors.Wrapf(err, "commit: transaction %v", tx.ID)
	}

	added := tx.leave(TxCommitted)
	if tx.parent != nil {
		tx.parent.childClosed(added)
	}
	tx.log.Info("transaction committed", zap.Int("quads", len(added)))
	return nil
}

// Rollback abandons a transaction that has not added any quads. Undoing
// added quads would need removal, which the store does not support, so a
// transaction with quads returns ErrNotImplemented and stays running.
//
// Returns ErrTransactionClosed if the transaction is not running, and
// ErrTransactionAlreadyActive if a nested transaction is still open.
func (tx *Transaction[ID]) Rollback() error {
	hooks, err := tx.enter(TxRollingBack, "rollback")
	if err != nil {
		return err
	}
	if err := runHooks(hooks); err != nil {
		tx.leave(TxRunning)
		return errors.Wrapf(err, "rollback: transaction %v", tx.ID)
	}

	tx.leave(TxRolledBack)
	if tx.parent != nil {
		tx.parent.childClosed(nil)
	}
	tx.log.Info("transaction rolled back")
	return nil
}

// Remove is declared for API completeness. Always returns ErrNotImplemented.
func (tx *Transaction[ID]) Remove(id ID) error {
	return notImplemented("remove quad from transaction")
}
