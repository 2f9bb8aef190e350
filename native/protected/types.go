package protected

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/native/checkpoint"
	nativecommon "floorvault/native/common"
)

const moduleName = "protected"

var (
	// KeeperReward is the WAD share of a floor unit paid to whoever
	// liquidates an undercollateralised loan.
	KeeperReward = big.NewInt(50_000_000_000_000_000)
	// MaxProtectedTokenAmount caps the principal drawn against one asset.
	MaxProtectedTokenAmount = big.NewInt(950_000_000_000_000_000)
)

// Loan is a protected listing: principal drawn against a vaulted asset.
type Loan struct {
	Owner common.Address
	// TokenTaken is the WAD principal, before the collection denomination.
	TokenTaken *big.Int
	// Checkpoint indexes the collection checkpoint current when the loan
	// was opened.
	Checkpoint uint64
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	if l.TokenTaken != nil {
		clone.TokenTaken = new(big.Int).Set(l.TokenTaken)
	} else {
		clone.TokenTaken = big.NewInt(0)
	}
	return &clone
}

// CreateListing opens one loan per token id with identical terms.
type CreateListing struct {
	Collection common.Address
	TokenIDs   []uint256.Int
	Owner      common.Address
	TokenTaken *big.Int
}

type engineState interface {
	nativecommon.Journal
	checkpoint.State
	Loan(collection common.Address, id uint256.Int) (*Loan, error)
	PutLoan(collection common.Address, id uint256.Int, loan *Loan) error
	DeleteLoan(collection common.Address, id uint256.Int) error
	LoanCount(collection common.Address) (uint64, error)
	SetLoanCount(collection common.Address, count uint64) error
	PendingWithdrawal(collection common.Address, id uint256.Int) (common.Address, error)
	SetPendingWithdrawal(collection common.Address, id uint256.Int, owner common.Address) error
}

// Custody is the vault and collection token surface the engine relies on.
type Custody interface {
	IsCollectionInitialized(collection common.Address) (bool, error)
	Denomination(collection common.Address) (uint8, error)
	TotalSupply(collection common.Address) (*big.Int, error)
	Deposit(from, collection common.Address, ids []uint256.Int, recipient common.Address) error
	WithdrawAsset(caller, collection common.Address, id uint256.Int, recipient common.Address) error
	Transfer(collection, from, to common.Address, amount *big.Int) error
	Burn(collection, from common.Address, amount *big.Int) error
}

// FeeSink receives protocol revenue.
type FeeSink interface {
	DepositFees(from, collection common.Address, nativeAmount, tokenAmount *big.Int) error
}

// Listings creates the dutch listing that replaces a liquidated loan.
type Listings interface {
	CreateLiquidationListing(caller, collection common.Address, id uint256.Int, owner common.Address) error
}
