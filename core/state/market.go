package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/native/custody"
	"floorvault/native/fees"
	"floorvault/native/listings"
	"floorvault/native/protected"
	"floorvault/native/taxcalc"
)

// Collection returns the custody record of a collection, or nil.
func (m *Manager) Collection(collection common.Address) (*custody.Collection, error) {
	record := new(custody.Collection)
	ok, err := m.load(CollectionKey(collection), record)
	if err != nil || !ok {
		return nil, err
	}
	return record, nil
}

func (m *Manager) PutCollection(collection common.Address, record *custody.Collection) error {
	return m.put(CollectionKey(collection), record.Clone())
}

// TokenBalance returns the wallet balance of account, zero when unset.
func (m *Manager) TokenBalance(collection, account common.Address) (*big.Int, error) {
	return m.loadBig(BalanceKey(collection, account))
}

func (m *Manager) SetTokenBalance(collection, account common.Address, amount *big.Int) error {
	return m.putBig(BalanceKey(collection, account), amount)
}

// AssetOwner returns the holder of an asset or the zero address.
func (m *Manager) AssetOwner(collection common.Address, id uint256.Int) (common.Address, error) {
	var owner common.Address
	if _, err := m.load(AssetKey(collection, id), &owner); err != nil {
		return common.Address{}, err
	}
	return owner, nil
}

// SetAssetOwner records the holder of an asset. The zero address removes it.
func (m *Manager) SetAssetOwner(collection common.Address, id uint256.Int, owner common.Address) error {
	if owner == (common.Address{}) {
		return m.delete(AssetKey(collection, id))
	}
	return m.put(AssetKey(collection, id), owner)
}

func (m *Manager) Listing(collection common.Address, id uint256.Int) (*listings.Listing, error) {
	listing := new(listings.Listing)
	ok, err := m.load(ListingKey(collection, id), listing)
	if err != nil || !ok {
		return nil, err
	}
	return listing, nil
}

func (m *Manager) PutListing(collection common.Address, id uint256.Int, listing *listings.Listing) error {
	if listing == nil || listing.Owner == (common.Address{}) {
		return m.DeleteListing(collection, id)
	}
	if err := m.put(ListingKey(collection, id), listing); err != nil {
		return err
	}
	m.indexInsert(collection, id)
	return nil
}

func (m *Manager) DeleteListing(collection common.Address, id uint256.Int) error {
	if err := m.delete(ListingKey(collection, id)); err != nil {
		return err
	}
	m.indexDelete(collection, id)
	return nil
}

func (m *Manager) ListingCount(collection common.Address) (uint64, error) {
	return m.loadUint(ListingCountKey(collection))
}

func (m *Manager) SetListingCount(collection common.Address, count uint64) error {
	return m.putUint(ListingCountKey(collection), count)
}

// IterateListings visits the collection's listings in ascending token id
// order until fn returns false.
func (m *Manager) IterateListings(collection common.Address, fn func(id uint256.Int, listing *listings.Listing) bool) error {
	tr, ok := m.index[collection]
	if !ok {
		return nil
	}
	var ids []uint256.Int
	tr.Ascend(func(id uint256.Int) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		listing, err := m.Listing(collection, id)
		if err != nil {
			return err
		}
		if listing == nil {
			continue
		}
		if !fn(id, listing) {
			return nil
		}
	}
	return nil
}

func (m *Manager) EscrowBalance(account, collection common.Address) (*big.Int, error) {
	return m.loadBig(EscrowKey(account, collection))
}

func (m *Manager) SetEscrowBalance(account, collection common.Address, amount *big.Int) error {
	return m.putBig(EscrowKey(account, collection), amount)
}

func (m *Manager) Loan(collection common.Address, id uint256.Int) (*protected.Loan, error) {
	loan := new(protected.Loan)
	ok, err := m.load(LoanKey(collection, id), loan)
	if err != nil || !ok {
		return nil, err
	}
	return loan, nil
}

func (m *Manager) PutLoan(collection common.Address, id uint256.Int, loan *protected.Loan) error {
	return m.put(LoanKey(collection, id), loan.Clone())
}

func (m *Manager) DeleteLoan(collection common.Address, id uint256.Int) error {
	return m.delete(LoanKey(collection, id))
}

func (m *Manager) LoanCount(collection common.Address) (uint64, error) {
	return m.loadUint(LoanCountKey(collection))
}

func (m *Manager) SetLoanCount(collection common.Address, count uint64) error {
	return m.putUint(LoanCountKey(collection), count)
}

func (m *Manager) PendingWithdrawal(collection common.Address, id uint256.Int) (common.Address, error) {
	var owner common.Address
	if _, err := m.load(PendingWithdrawalKey(collection, id), &owner); err != nil {
		return common.Address{}, err
	}
	return owner, nil
}

func (m *Manager) SetPendingWithdrawal(collection common.Address, id uint256.Int, owner common.Address) error {
	if owner == (common.Address{}) {
		return m.delete(PendingWithdrawalKey(collection, id))
	}
	return m.put(PendingWithdrawalKey(collection, id), owner)
}

func (m *Manager) CheckpointCount(collection common.Address) (uint64, error) {
	return m.loadUint(CheckpointCountKey(collection))
}

func (m *Manager) GetCheckpoint(collection common.Address, index uint64) (*taxcalc.Checkpoint, error) {
	cp := new(taxcalc.Checkpoint)
	ok, err := m.load(CheckpointKey(collection, index), cp)
	if err != nil || !ok {
		return nil, err
	}
	return cp, nil
}

// PutCheckpoint overwrites the entry at index, or appends when index equals
// the current count.
func (m *Manager) PutCheckpoint(collection common.Address, index uint64, cp *taxcalc.Checkpoint) error {
	count, err := m.CheckpointCount(collection)
	if err != nil {
		return err
	}
	if index > count {
		return errCheckpointGap
	}
	if err := m.put(CheckpointKey(collection, index), cp.Clone()); err != nil {
		return err
	}
	if index == count {
		return m.putUint(CheckpointCountKey(collection), count+1)
	}
	return nil
}

func (m *Manager) FeeAccrual(collection common.Address) (*fees.Accrual, error) {
	accrual := new(fees.Accrual)
	ok, err := m.load(FeeAccrualKey(collection), accrual)
	if err != nil || !ok {
		return nil, err
	}
	return accrual, nil
}

func (m *Manager) PutFeeAccrual(collection common.Address, accrual *fees.Accrual) error {
	return m.put(FeeAccrualKey(collection), accrual.Clone())
}

func (m *Manager) loadBig(key []byte) (*big.Int, error) {
	v := new(big.Int)
	ok, err := m.load(key, v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return v, nil
}

func (m *Manager) putBig(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.delete(key)
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	return m.put(key, amount)
}

func (m *Manager) loadUint(key []byte) (uint64, error) {
	var v uint64
	if _, err := m.load(key, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (m *Manager) putUint(key []byte, v uint64) error {
	if v == 0 {
		return m.delete(key)
	}
	return m.put(key, v)
}
