package market

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"floorvault/core/state"
	nativecommon "floorvault/native/common"
	"floorvault/native/custody"
	"floorvault/native/fees"
	"floorvault/native/listings"
	"floorvault/native/protected"
	"floorvault/storage"
)

// Params names the module accounts and runtime hooks the engines are wired
// with.
type Params struct {
	Vault     common.Address
	Listings  common.Address
	Protected common.Address
	FeeSink   common.Address
	Pauses    nativecommon.PauseView
	// Now overrides the engine clock. Nil uses wall time.
	Now func() int64
}

func (p Params) validate() error {
	zero := common.Address{}
	if p.Vault == zero || p.Listings == zero || p.Protected == zero || p.FeeSink == zero {
		return errors.New("market: module addresses must be non-zero")
	}
	seen := map[common.Address]struct{}{}
	for _, addr := range []common.Address{p.Vault, p.Listings, p.Protected, p.FeeSink} {
		if _, dup := seen[addr]; dup {
			return errors.New("market: module addresses must be distinct")
		}
		seen[addr] = struct{}{}
	}
	return nil
}

// Market wires the custody, listing, protected listing and fee modules over
// a single journaled state. Engine calls made through Apply are committed
// together; failed calls leave no trace.
type Market struct {
	mu sync.Mutex

	State     *state.Manager
	Custody   *custody.Engine
	Listings  *listings.Engine
	Protected *protected.Engine
	Fees      *fees.Sink
}

// New opens the market over db.
func New(db storage.Database, params Params, opts ...state.Option) (*Market, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	manager, err := state.NewManager(db, opts...)
	if err != nil {
		return nil, err
	}

	vault := custody.NewEngine(params.Vault)
	sink := fees.NewSink(params.FeeSink)
	loans := protected.NewEngine(params.Protected)
	book := listings.NewEngine(params.Listings)

	vault.SetState(manager)
	vault.SetEmitter(manager)
	vault.SetPauses(params.Pauses)
	vault.SetOperators(params.Listings, params.Protected)
	vault.SetListingViews(book, loans)

	sink.SetState(manager)
	sink.SetTokens(vault)
	sink.SetEmitter(manager)

	loans.SetState(manager)
	loans.SetEmitter(manager)
	loans.SetNowFunc(params.Now)
	loans.SetPauses(params.Pauses)
	loans.SetCustody(vault)
	loans.SetFeeSink(sink)
	loans.SetListings(book)

	book.SetState(manager)
	book.SetEmitter(manager)
	book.SetNowFunc(params.Now)
	book.SetPauses(params.Pauses)
	book.SetCustody(vault)
	book.SetLoans(loans)
	book.SetFeeSink(sink)

	return &Market{
		State:     manager,
		Custody:   vault,
		Listings:  book,
		Protected: loans,
		Fees:      sink,
	}, nil
}

// Apply runs fn under the market lock. Its writes and events are committed
// when fn succeeds and discarded otherwise.
func (m *Market) Apply(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := fn(); err != nil {
		m.State.Discard()
		return err
	}
	if err := m.State.Commit(); err != nil {
		m.State.Discard()
		return err
	}
	return nil
}

// View runs a read-only fn under the market lock. Any writes it makes are
// discarded.
func (m *Market) View(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.State.Discard()
	return fn()
}
