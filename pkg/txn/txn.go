// Package txn implements the minimal transaction manager the local-txn
// wrapper (spec.md sec 4.8) scopes the B+-tree's tree-level Find, Insert,
// Overwrite and Erase under: begin, commit, abort, with no multi-writer
// isolation (non-goal). Cursor operations do not run under a transaction.
package txn

import (
	"errors"
	"sync"

	"bptreekv/pkg/pager"

	"github.com/google/uuid"
)

// ErrAlreadyClosed is returned by Commit/Abort on a txn that already
// finished.
var ErrAlreadyClosed = errors.New("transaction already committed or aborted")

// Txn is a single transaction handle. It tracks the set of page numbers it
// has touched so Commit/Abort can flush exactly that set through the pager.
type Txn struct {
	id     uuid.UUID
	mgr    *Manager
	mu     sync.Mutex
	touched map[int64]*pager.Page
	closed bool
}

// ID returns the transaction's UUID, used as its diagnostic-log identity.
func (t *Txn) ID() uuid.UUID {
	return t.id
}

// Touch records that the transaction modified page, so it is flushed on
// Commit.
func (t *Txn) Touch(page *pager.Page) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touched[page.GetPageNum()] = page
}

// Commit flushes every page the transaction touched.
func (t *Txn) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrAlreadyClosed
	}
	for _, page := range t.touched {
		t.mgr.pager.FlushPage(page)
	}
	t.closed = true
	t.mgr.log(t.id, "commit")
	return nil
}

// Abort discards the transaction's bookkeeping without flushing. Because
// there is no undo log (crash recovery is a non-goal), pages already
// mutated in place stay mutated; Abort only stops Commit from running again.
func (t *Txn) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrAlreadyClosed
	}
	t.closed = true
	t.mgr.log(t.id, "abort")
	return nil
}

// Logger is satisfied by *txlog.Log; kept as an interface here so pkg/txn
// does not need to import pkg/txlog back.
type Logger interface {
	Append(txnID uuid.UUID, op string) error
}

// Manager is the embedder-facing collaborator pkg/btree's local-txn
// wrapper begins a Txn from around each tree-level Find, Insert, Overwrite
// and Erase.
type Manager struct {
	pager *pager.Pager
	log   func(id uuid.UUID, op string)
}

// NewManager returns a Manager whose Txns flush through p.
func NewManager(p *pager.Pager) *Manager {
	m := &Manager{pager: p}
	m.log = func(uuid.UUID, string) {}
	return m
}

// SetLogger wires an append-only diagnostics logger; every Begin/Commit/
// Abort is appended to it.
func (m *Manager) SetLogger(l Logger) {
	m.log = func(id uuid.UUID, op string) {
		_ = l.Append(id, op)
	}
}

// Begin starts a new transaction.
func (m *Manager) Begin() *Txn {
	t := &Txn{
		id:      uuid.New(),
		mgr:     m,
		touched: make(map[int64]*pager.Page),
	}
	m.log(t.id, "begin")
	return t
}
