// Package markettest builds a fully wired in-memory market for engine tests.
package markettest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/core/events"
	"floorvault/core/market"
	"floorvault/core/state"
	"floorvault/native/taxcalc"
	"floorvault/storage"
)

// Genesis is the clock value every harness starts at.
const Genesis int64 = 1_700_000_000

const Day int64 = 24 * 60 * 60

var (
	Collection = common.HexToAddress("0xc011ec7100000000000000000000000000000001")
	Vault      = common.HexToAddress("0x000000000000000000000000000000000000f001")
	Listings   = common.HexToAddress("0x000000000000000000000000000000000000f002")
	Protected  = common.HexToAddress("0x000000000000000000000000000000000000f003")
	FeeSink    = common.HexToAddress("0x000000000000000000000000000000000000f004")

	Alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	Bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	Carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

// PauseSet pauses the modules it names.
type PauseSet map[string]bool

func (p PauseSet) IsPaused(module string) bool { return p[module] }

// Recorder collects committed events.
type Recorder struct {
	Events []events.Event
}

func (r *Recorder) Emit(evt events.Event) { r.Events = append(r.Events, evt) }

// Types returns the event types in emission order.
func (r *Recorder) Types() []string {
	out := make([]string, len(r.Events))
	for i, evt := range r.Events {
		out[i] = evt.EventType()
	}
	return out
}

// Harness is a market with a controllable clock and a registered collection
// of denomination zero.
type Harness struct {
	T      testing.TB
	Market *market.Market
	Events *Recorder
	Pauses PauseSet

	now    int64
	nextID uint64
}

// New builds a harness. Its collection is registered with denomination 0.
func New(t testing.TB) *Harness {
	t.Helper()
	h := &Harness{T: t, Events: &Recorder{}, Pauses: PauseSet{}, now: Genesis, nextID: 10_000}
	params := market.Params{
		Vault:     Vault,
		Listings:  Listings,
		Protected: Protected,
		FeeSink:   FeeSink,
		Pauses:    h.Pauses,
		Now:       func() int64 { return h.now },
	}
	m, err := market.New(storage.NewMemDB(), params, state.WithSink(h.Events))
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	h.Market = m
	if err := m.Custody.RegisterCollection(Collection, 0); err != nil {
		t.Fatalf("register collection: %v", err)
	}
	return h
}

// Now returns the harness clock.
func (h *Harness) Now() int64 { return h.now }

// Advance moves the clock forward by seconds.
func (h *Harness) Advance(seconds int64) { h.now += seconds }

// IDs converts plain integers to token ids.
func IDs(ns ...uint64) []uint256.Int {
	out := make([]uint256.Int, len(ns))
	for i, n := range ns {
		out[i] = *uint256.NewInt(n)
	}
	return out
}

// ID converts one integer to a token id.
func ID(n uint64) uint256.Int { return *uint256.NewInt(n) }

// Issue mints assets with the given ids to owner outside the vault.
func (h *Harness) Issue(owner common.Address, ns ...uint64) []uint256.Int {
	h.T.Helper()
	ids := IDs(ns...)
	for _, id := range ids {
		if err := h.Market.Custody.IssueAsset(Collection, id, owner); err != nil {
			h.T.Fatalf("issue %s: %v", id.Dec(), err)
		}
	}
	return ids
}

// Fund vaults count fresh assets for account so it holds count more floor
// units.
func (h *Harness) Fund(account common.Address, count int) {
	h.T.Helper()
	ns := make([]uint64, count)
	for i := range ns {
		ns[i] = h.nextID
		h.nextID++
	}
	ids := h.Issue(account, ns...)
	if err := h.Market.Custody.Deposit(account, Collection, ids, account); err != nil {
		h.T.Fatalf("fund %s: %v", account.Hex(), err)
	}
}

// Balance returns account's collection token balance.
func (h *Harness) Balance(account common.Address) *big.Int {
	h.T.Helper()
	bal, err := h.Market.Custody.BalanceOf(Collection, account)
	if err != nil {
		h.T.Fatalf("balance %s: %v", account.Hex(), err)
	}
	return bal
}

// Escrow returns account's escrowed credit.
func (h *Harness) Escrow(account common.Address) *big.Int {
	h.T.Helper()
	bal, err := h.Market.Listings.EscrowBalance(account, Collection)
	if err != nil {
		h.T.Fatalf("escrow %s: %v", account.Hex(), err)
	}
	return bal
}

// Owner returns the holder of an asset.
func (h *Harness) Owner(n uint64) common.Address {
	h.T.Helper()
	owner, err := h.Market.Custody.OwnerOf(Collection, ID(n))
	if err != nil {
		h.T.Fatalf("owner %d: %v", n, err)
	}
	return owner
}

// Commit flushes state and releases buffered events to the recorder.
func (h *Harness) Commit() {
	h.T.Helper()
	if err := h.Market.State.Commit(); err != nil {
		h.T.Fatalf("commit: %v", err)
	}
}

// CheckSupply verifies that the token supply equals one floor unit per
// vaulted asset not awaiting withdrawal.
func (h *Harness) CheckSupply(pending uint64) {
	h.T.Helper()
	supply, err := h.Market.Custody.TotalSupply(Collection)
	if err != nil {
		h.T.Fatalf("supply: %v", err)
	}
	vaulted, err := h.Market.Custody.Vaulted(Collection)
	if err != nil {
		h.T.Fatalf("vaulted: %v", err)
	}
	want := taxcalc.FloorUnits(vaulted-pending, 0)
	if supply.Cmp(want) != 0 {
		h.T.Fatalf("supply %s does not back %d vaulted assets (%d pending): want %s", supply, vaulted, pending, want)
	}
}

// Wad parses a decimal integer string, failing the test on error.
func Wad(t testing.TB, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("invalid integer %q", s)
	}
	return v
}

// Floor returns n/d floor units at denomination zero.
func Floor(n, d int64) *big.Int {
	v := new(big.Int).Mul(taxcalc.WAD, big.NewInt(n))
	return v.Quo(v, big.NewInt(d))
}
