package checkpoint

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"floorvault/core/events"
	"floorvault/native/taxcalc"
)

var (
	errNilState   = errors.New("checkpoint ledger: state not configured")
	errNilSource  = errors.New("checkpoint ledger: utilization source not configured")
	ErrNotFound   = errors.New("checkpoint ledger: checkpoint not found")
	ErrClockDrift = errors.New("checkpoint ledger: clock behind latest checkpoint")
)

// Checkpoint is a snapshot of a collection's compounded interest factor.
type Checkpoint = taxcalc.Checkpoint

// State persists the append-only checkpoint history of every collection.
// PutCheckpoint with index equal to CheckpointCount appends an entry; smaller
// indexes overwrite in place.
type State interface {
	CheckpointCount(collection common.Address) (uint64, error)
	GetCheckpoint(collection common.Address, index uint64) (*Checkpoint, error)
	PutCheckpoint(collection common.Address, index uint64, cp *Checkpoint) error
}

// UtilizationSource reports how much of a collection's supply is currently
// locked, as a WAD ratio.
type UtilizationSource interface {
	UtilizationRate(collection common.Address) (count uint64, rate *big.Int, err error)
}

// Ledger maintains per collection interest checkpoints.
type Ledger struct {
	state   State
	source  UtilizationSource
	emitter events.Emitter
	nowFn   func() int64
}

// NewLedger constructs a ledger that prices elapsed time with the utilization
// reported by source.
func NewLedger(source UtilizationSource) *Ledger {
	return &Ledger{
		source:  source,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (l *Ledger) SetState(state State) { l.state = state }

// SetEmitter configures the event emitter. Passing nil discards events.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the time source used by the ledger.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() uint64 {
	ts := l.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// CreateCheckpoint records the collection's compounded factor at the current
// time and returns the index of the entry holding it. When the latest entry
// already carries the current timestamp it is refreshed in place and its index
// returned.
func (l *Ledger) CreateCheckpoint(collection common.Address) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	count, err := l.state.CheckpointCount(collection)
	if err != nil {
		return 0, err
	}
	current, err := l.current(collection, count)
	if err != nil {
		return 0, err
	}
	index := count
	refreshed := false
	if count > 0 {
		last, err := l.load(collection, count-1)
		if err != nil {
			return 0, err
		}
		if last.Timestamp == current.Timestamp {
			index = count - 1
			refreshed = true
		}
	}
	if err := l.state.PutCheckpoint(collection, index, current); err != nil {
		return 0, err
	}
	l.emitter.Emit(events.CheckpointCreated{
		Collection:       collection,
		Index:            index,
		CompoundedFactor: new(big.Int).Set(current.CompoundedFactor),
		Timestamp:        current.Timestamp,
		Refreshed:        refreshed,
	})
	return index, nil
}

// Current returns the checkpoint the collection would record right now
// without persisting it.
func (l *Ledger) Current(collection common.Address) (Checkpoint, error) {
	if l == nil || l.state == nil {
		return Checkpoint{}, errNilState
	}
	count, err := l.state.CheckpointCount(collection)
	if err != nil {
		return Checkpoint{}, err
	}
	cp, err := l.current(collection, count)
	if err != nil {
		return Checkpoint{}, err
	}
	return *cp, nil
}

// Checkpoint returns the stored entry at index.
func (l *Ledger) Checkpoint(collection common.Address, index uint64) (Checkpoint, error) {
	if l == nil || l.state == nil {
		return Checkpoint{}, errNilState
	}
	cp, err := l.load(collection, index)
	if err != nil {
		return Checkpoint{}, err
	}
	return *cp, nil
}

// Count returns the number of stored checkpoints for the collection.
func (l *Ledger) Count(collection common.Address) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	return l.state.CheckpointCount(collection)
}

func (l *Ledger) load(collection common.Address, index uint64) (*Checkpoint, error) {
	cp, err := l.state.GetCheckpoint(collection, index)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: %s #%d", ErrNotFound, collection.Hex(), index)
	}
	return cp, nil
}

func (l *Ledger) current(collection common.Address, count uint64) (*Checkpoint, error) {
	now := l.now()
	if count == 0 {
		return &Checkpoint{CompoundedFactor: new(big.Int).Set(taxcalc.WAD), Timestamp: now}, nil
	}
	if l.source == nil {
		return nil, errNilSource
	}
	last, err := l.load(collection, count-1)
	if err != nil {
		return nil, err
	}
	if now < last.Timestamp {
		return nil, ErrClockDrift
	}
	_, utilization, err := l.source.UtilizationRate(collection)
	if err != nil {
		return nil, err
	}
	factor := taxcalc.CalculateCompoundedFactor(last.CompoundedFactor, utilization, now-last.Timestamp)
	return &Checkpoint{CompoundedFactor: factor, Timestamp: now}, nil
}
