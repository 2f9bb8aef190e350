package state

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"floorvault/core/events"
	"floorvault/native/listings"
	"floorvault/native/protected"
	"floorvault/native/taxcalc"
	"floorvault/storage"
)

var (
	testCollection = common.HexToAddress("0xc011ec7100000000000000000000000000000001")
	testAlice      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

type recordingSink struct {
	events []events.Event
}

func (r *recordingSink) Emit(evt events.Event) { r.events = append(r.events, evt) }

func newTestManager(t *testing.T, opts ...Option) (*Manager, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	m, err := NewManager(db, opts...)
	require.NoError(t, err)
	return m, db
}

func TestManagerSnapshotRevert(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.SetTokenBalance(testCollection, testAlice, big.NewInt(10)))
	snap := m.Snapshot()
	require.NoError(t, m.SetTokenBalance(testCollection, testAlice, big.NewInt(25)))
	require.NoError(t, m.SetListingCount(testCollection, 3))

	bal, err := m.TokenBalance(testCollection, testAlice)
	require.NoError(t, err)
	require.Equal(t, int64(25), bal.Int64())

	m.RevertToSnapshot(snap)

	bal, err = m.TokenBalance(testCollection, testAlice)
	require.NoError(t, err)
	require.Equal(t, int64(10), bal.Int64())
	count, err := m.ListingCount(testCollection)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestManagerCommitPersists(t *testing.T) {
	m, db := newTestManager(t)

	loan := &protected.Loan{Owner: testAlice, TokenTaken: big.NewInt(600), Checkpoint: 2}
	id := *uint256.NewInt(9)
	require.NoError(t, m.PutLoan(testCollection, id, loan))
	require.True(t, m.Dirty())

	_, err := db.Get(LoanKey(testCollection, id))
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, m.Commit())
	require.False(t, m.Dirty())

	reopened, err := NewManager(db)
	require.NoError(t, err)
	got, err := reopened.Loan(testCollection, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, testAlice, got.Owner)
	require.Equal(t, int64(600), got.TokenTaken.Int64())
	require.Equal(t, uint64(2), got.Checkpoint)
}

func TestManagerDiscardDropsWritesAndEvents(t *testing.T) {
	sink := &recordingSink{}
	m, _ := newTestManager(t, WithSink(sink))

	require.NoError(t, m.SetEscrowBalance(testAlice, testCollection, big.NewInt(7)))
	m.Emit(events.EscrowDeposit{Collection: testCollection, Account: testAlice, Amount: big.NewInt(7), Balance: big.NewInt(7)})
	require.Equal(t, 1, m.Pending())

	m.Discard()
	require.False(t, m.Dirty())
	require.Zero(t, m.Pending())

	bal, err := m.EscrowBalance(testAlice, testCollection)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	require.NoError(t, m.Commit())
	require.Empty(t, sink.events)
}

func TestManagerEventsReleasedOnCommit(t *testing.T) {
	sink := &recordingSink{}
	m, _ := newTestManager(t, WithSink(sink))

	m.Emit(events.TokenSupply{Collection: testCollection, Total: big.NewInt(1), Delta: big.NewInt(1), Reason: events.SupplyReasonMint})
	snap := m.Snapshot()
	m.Emit(events.TokenSupply{Collection: testCollection, Total: big.NewInt(2), Delta: big.NewInt(1), Reason: events.SupplyReasonMint})
	m.RevertToSnapshot(snap)
	require.Empty(t, sink.events)

	require.NoError(t, m.Commit())
	require.Len(t, sink.events, 1)
	require.Equal(t, events.TypeTokenSupply, sink.events[0].EventType())
}

func TestManagerListingIndex(t *testing.T) {
	m, db := newTestManager(t)
	for _, n := range []uint64{30, 4, 17} {
		listing := &listings.Listing{Owner: testAlice, Created: 1, Duration: 7 * 86400, FloorMultiple: 150}
		require.NoError(t, m.PutListing(testCollection, *uint256.NewInt(n), listing))
	}
	snap := m.Snapshot()
	require.NoError(t, m.DeleteListing(testCollection, *uint256.NewInt(17)))
	m.RevertToSnapshot(snap)
	require.NoError(t, m.Commit())

	reopened, err := NewManager(db)
	require.NoError(t, err)
	var ids []uint64
	err = reopened.IterateListings(testCollection, func(id uint256.Int, listing *listings.Listing) bool {
		require.Equal(t, testAlice, listing.Owner)
		ids = append(ids, id.Uint64())
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 17, 30}, ids)
}

func TestManagerCheckpointsAppend(t *testing.T) {
	m, _ := newTestManager(t)

	first := &taxcalc.Checkpoint{CompoundedFactor: new(big.Int).Set(taxcalc.WAD), Timestamp: 100}
	require.NoError(t, m.PutCheckpoint(testCollection, 0, first))
	require.Error(t, m.PutCheckpoint(testCollection, 2, first))

	second := &taxcalc.Checkpoint{CompoundedFactor: big.NewInt(2), Timestamp: 200}
	require.NoError(t, m.PutCheckpoint(testCollection, 1, second))
	count, err := m.CheckpointCount(testCollection)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	second.Timestamp = 250
	require.NoError(t, m.PutCheckpoint(testCollection, 1, second))
	count, err = m.CheckpointCount(testCollection)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	got, err := m.GetCheckpoint(testCollection, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(250), got.Timestamp)

	missing, err := m.GetCheckpoint(testCollection, 5)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestManagerLevelDBCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)

	m, err := NewManager(db, WithCacheSize(16))
	require.NoError(t, err)
	require.NoError(t, m.SetTokenBalance(testCollection, testAlice, big.NewInt(42)))
	require.NoError(t, m.Commit())
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	reopened, err := NewManager(db)
	require.NoError(t, err)
	bal, err := reopened.TokenBalance(testCollection, testAlice)
	require.NoError(t, err)
	require.Equal(t, int64(42), bal.Int64())
}

func TestManagerZeroValuesDelete(t *testing.T) {
	m, db := newTestManager(t)
	id := *uint256.NewInt(3)

	require.NoError(t, m.SetAssetOwner(testCollection, id, testAlice))
	require.NoError(t, m.SetTokenBalance(testCollection, testAlice, big.NewInt(5)))
	require.NoError(t, m.Commit())

	require.NoError(t, m.SetAssetOwner(testCollection, id, common.Address{}))
	require.NoError(t, m.SetTokenBalance(testCollection, testAlice, big.NewInt(0)))
	require.Error(t, m.SetTokenBalance(testCollection, testAlice, big.NewInt(-1)))
	require.NoError(t, m.Commit())

	_, err := db.Get(AssetKey(testCollection, id))
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = db.Get(BalanceKey(testCollection, testAlice))
	require.ErrorIs(t, err, storage.ErrNotFound)
}
