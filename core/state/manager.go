package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"

	"floorvault/core/events"
	"floorvault/storage"
)

var (
	errCheckpointGap  = errors.New("state: checkpoint index beyond count")
	errNegativeAmount = errors.New("state: negative amount")
)

const (
	defaultCacheSize  = 4096
	defaultTreeDegree = 32
)

type dirtyEntry struct {
	value   []byte
	deleted bool
}

// Manager is the journaled state shared by the market engines. Writes are
// buffered in memory, can be rolled back to any snapshot and reach the
// database only on Commit. Events emitted through the manager are held back
// with the writes and released to the sink on Commit.
//
// Manager is not safe for concurrent use.
type Manager struct {
	db      storage.Database
	cache   *lru.Cache
	dirty   map[string]dirtyEntry
	journal []func()
	index   map[common.Address]*btree.BTreeG[uint256.Int]
	pending []events.Event
	sink    events.Emitter
}

// Option customises a Manager.
type Option func(*Manager) error

// WithCacheSize sets the number of committed records kept in memory.
func WithCacheSize(size int) Option {
	return func(m *Manager) error {
		cache, err := lru.New(size)
		if err != nil {
			return err
		}
		m.cache = cache
		return nil
	}
}

// WithSink sets the emitter that receives events on Commit.
func WithSink(sink events.Emitter) Option {
	return func(m *Manager) error {
		m.SetSink(sink)
		return nil
	}
}

// NewManager opens a state manager over db and rebuilds the listing index
// from the stored listings.
func NewManager(db storage.Database, opts ...Option) (*Manager, error) {
	if db == nil {
		return nil, errors.New("state: database required")
	}
	m := &Manager{
		db:    db,
		dirty: make(map[string]dirtyEntry),
		index: make(map[common.Address]*btree.BTreeG[uint256.Int]),
		sink:  events.NoopEmitter{},
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.cache == nil {
		cache, err := lru.New(defaultCacheSize)
		if err != nil {
			return nil, err
		}
		m.cache = cache
	}
	err := db.Iterate(listingPrefix, func(key, _ []byte) bool {
		collection, id, ok := splitListingKey(key)
		if ok {
			m.tree(collection).ReplaceOrInsert(id)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("state: rebuild listing index: %w", err)
	}
	return m, nil
}

// SetSink configures the emitter receiving committed events.
func (m *Manager) SetSink(sink events.Emitter) {
	if sink == nil {
		m.sink = events.NoopEmitter{}
		return
	}
	m.sink = sink
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int { return len(m.journal) }

// RevertToSnapshot undoes every change recorded after the snapshot id.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for len(m.journal) > id {
		last := len(m.journal) - 1
		m.journal[last]()
		m.journal = m.journal[:last]
	}
}

// Emit buffers an event until the next Commit. Buffered events are dropped
// when the change that emitted them is reverted.
func (m *Manager) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	n := len(m.pending)
	m.pending = append(m.pending, evt)
	m.journal = append(m.journal, func() { m.pending = m.pending[:n] })
}

// Pending returns the number of buffered events.
func (m *Manager) Pending() int { return len(m.pending) }

// Dirty reports whether uncommitted writes exist.
func (m *Manager) Dirty() bool { return len(m.dirty) > 0 }

// Commit writes every buffered change to the database in one batch and then
// releases buffered events to the sink.
func (m *Manager) Commit() error {
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := new(storage.Batch)
	for _, k := range keys {
		entry := m.dirty[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	for _, k := range keys {
		entry := m.dirty[k]
		if entry.deleted {
			m.cache.Remove(k)
			continue
		}
		m.cache.Add(k, entry.value)
	}
	released := m.pending
	m.dirty = make(map[string]dirtyEntry)
	m.journal = nil
	m.pending = nil
	for _, evt := range released {
		m.sink.Emit(evt)
	}
	return nil
}

// Discard drops every uncommitted change and buffered event.
func (m *Manager) Discard() {
	m.RevertToSnapshot(0)
	m.dirty = make(map[string]dirtyEntry)
	m.pending = nil
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	k := string(key)
	if entry, ok := m.dirty[k]; ok {
		if entry.deleted {
			return nil, false, nil
		}
		return entry.value, true, nil
	}
	if cached, ok := m.cache.Get(k); ok {
		return cached.([]byte), true, nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	m.cache.Add(k, value)
	return value, true, nil
}

func (m *Manager) write(key []byte, entry dirtyEntry) {
	k := string(key)
	prev, had := m.dirty[k]
	m.dirty[k] = entry
	m.journal = append(m.journal, func() {
		if had {
			m.dirty[k] = prev
			return
		}
		delete(m.dirty, k)
	})
}

func (m *Manager) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	if current, ok, err := m.get(key); err == nil && ok && bytes.Equal(current, encoded) {
		return nil
	}
	m.write(key, dirtyEntry{value: encoded})
	return nil
}

func (m *Manager) delete(key []byte) error {
	if _, ok, err := m.get(key); err != nil || !ok {
		return err
	}
	m.write(key, dirtyEntry{deleted: true})
	return nil
}

// load decodes the record at key into out and reports whether it existed.
func (m *Manager) load(key []byte, out interface{}) (bool, error) {
	data, ok, err := m.get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %x: %w", key, err)
	}
	return true, nil
}

func (m *Manager) tree(collection common.Address) *btree.BTreeG[uint256.Int] {
	tr, ok := m.index[collection]
	if !ok {
		tr = btree.NewG(defaultTreeDegree, func(a, b uint256.Int) bool { return a.Lt(&b) })
		m.index[collection] = tr
	}
	return tr
}

func (m *Manager) indexInsert(collection common.Address, id uint256.Int) {
	tr := m.tree(collection)
	if _, existed := tr.ReplaceOrInsert(id); existed {
		return
	}
	m.journal = append(m.journal, func() { tr.Delete(id) })
}

func (m *Manager) indexDelete(collection common.Address, id uint256.Int) {
	tr := m.tree(collection)
	if _, existed := tr.Delete(id); !existed {
		return
	}
	m.journal = append(m.journal, func() { tr.ReplaceOrInsert(id) })
}
