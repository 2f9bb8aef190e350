package custody

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/core/events"
	nativecommon "floorvault/native/common"
	"floorvault/native/taxcalc"
)

var (
	errNilState = errors.New("custody engine: state not configured")

	ErrCollectionNotInitialized = errors.New("custody engine: collection not initialized")
	ErrCollectionExists         = errors.New("custody engine: collection already registered")
	ErrInvalidDenomination      = errors.New("custody engine: denomination out of range")
	ErrInvalidAmount            = errors.New("custody engine: amount must be positive")
	ErrInsufficientBalance      = errors.New("custody engine: insufficient balance")
	ErrBalanceOverflow          = errors.New("custody engine: balance overflow")
	ErrNoTokenIDs               = errors.New("custody engine: no token ids supplied")
	ErrAssetExists              = errors.New("custody engine: asset already issued")
	ErrAssetNotFound            = errors.New("custody engine: asset not found")
	ErrAssetNotOwned            = errors.New("custody engine: asset not owned by sender")
	ErrAssetNotVaulted          = errors.New("custody engine: asset not held by vault")
	ErrAssetListed              = errors.New("custody engine: asset is listed")
	ErrNotOperator              = errors.New("custody engine: caller is not an operator")
	ErrZeroRecipient            = errors.New("custody engine: recipient is zero")
)

// Engine holds deposited assets in a vault and manages each collection's
// fungible token. Every vaulted asset is backed by exactly one floor unit of
// supply.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	vault     common.Address
	operators map[common.Address]struct{}
	views     []ListingView
	pauses    nativecommon.PauseView
}

// NewEngine constructs a custody engine whose vault holds assets at vault.
func NewEngine(vault common.Address) *Engine {
	return &Engine{
		vault:     vault,
		emitter:   events.NoopEmitter{},
		operators: make(map[common.Address]struct{}),
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetOperators replaces the set of modules allowed to withdraw vaulted
// assets without burning supply.
func (e *Engine) SetOperators(operators ...common.Address) {
	e.operators = make(map[common.Address]struct{}, len(operators))
	for _, op := range operators {
		e.operators[op] = struct{}{}
	}
}

// SetListingViews configures the modules consulted before an asset may be
// redeemed.
func (e *Engine) SetListingViews(views ...ListingView) {
	e.views = append([]ListingView(nil), views...)
}

// VaultAddress returns the account that holds deposited assets.
func (e *Engine) VaultAddress() common.Address { return e.vault }

// RegisterCollection initialises a collection token.
func (e *Engine) RegisterCollection(collection common.Address, denomination uint8) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if denomination > MaxDenomination {
		return fmt.Errorf("%w: %d", ErrInvalidDenomination, denomination)
	}
	existing, err := e.state.Collection(collection)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrCollectionExists
	}
	return e.state.PutCollection(collection, &Collection{Denomination: denomination, TotalSupply: big.NewInt(0)})
}

// IsCollectionInitialized reports whether the collection has been registered.
func (e *Engine) IsCollectionInitialized(collection common.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	record, err := e.state.Collection(collection)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// Denomination returns the collection token's extra decimal shift.
func (e *Engine) Denomination(collection common.Address) (uint8, error) {
	record, err := e.collection(collection)
	if err != nil {
		return 0, err
	}
	return record.Denomination, nil
}

// TotalSupply returns the collection token's supply.
func (e *Engine) TotalSupply(collection common.Address) (*big.Int, error) {
	record, err := e.collection(collection)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(record.TotalSupply), nil
}

// Vaulted returns the number of the collection's assets held by the vault.
func (e *Engine) Vaulted(collection common.Address) (uint64, error) {
	record, err := e.collection(collection)
	if err != nil {
		return 0, err
	}
	return record.Vaulted, nil
}

// BalanceOf returns account's collection token balance.
func (e *Engine) BalanceOf(collection, account common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	bal, err := e.state.TokenBalance(collection, account)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// IssueAsset records a newly minted asset owned by owner. It stands in for the
// external asset contract.
func (e *Engine) IssueAsset(collection common.Address, id uint256.Int, owner common.Address) error {
	if _, err := e.collection(collection); err != nil {
		return err
	}
	if owner == (common.Address{}) {
		return ErrZeroRecipient
	}
	current, err := e.state.AssetOwner(collection, id)
	if err != nil {
		return err
	}
	if current != (common.Address{}) {
		return fmt.Errorf("%w: %s", ErrAssetExists, id.Dec())
	}
	return e.state.SetAssetOwner(collection, id, owner)
}

// OwnerOf returns the holder of an asset.
func (e *Engine) OwnerOf(collection common.Address, id uint256.Int) (common.Address, error) {
	if e == nil || e.state == nil {
		return common.Address{}, errNilState
	}
	owner, err := e.state.AssetOwner(collection, id)
	if err != nil {
		return common.Address{}, err
	}
	if owner == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrAssetNotFound, id.Dec())
	}
	return owner, nil
}

// TransferAsset moves an asset between two holders outside the vault.
func (e *Engine) TransferAsset(collection common.Address, id uint256.Int, from, to common.Address) error {
	owner, err := e.OwnerOf(collection, id)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("%w: %s", ErrAssetNotOwned, id.Dec())
	}
	if to == (common.Address{}) {
		return ErrZeroRecipient
	}
	return e.state.SetAssetOwner(collection, id, to)
}

// Deposit moves the assets from sender into the vault and mints one floor
// unit per asset to recipient.
func (e *Engine) Deposit(from, collection common.Address, ids []uint256.Int, recipient common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrNoTokenIDs
	}
	if recipient == (common.Address{}) {
		return ErrZeroRecipient
	}
	return nativecommon.Atomic(e.state, func() error {
		record, err := e.collection(collection)
		if err != nil {
			return err
		}
		for _, id := range ids {
			owner, err := e.state.AssetOwner(collection, id)
			if err != nil {
				return err
			}
			if owner != from || owner == (common.Address{}) {
				return fmt.Errorf("%w: %s", ErrAssetNotOwned, id.Dec())
			}
			if err := e.state.SetAssetOwner(collection, id, e.vault); err != nil {
				return err
			}
		}
		record.Vaulted += uint64(len(ids))
		if err := e.state.PutCollection(collection, record); err != nil {
			return err
		}
		e.emitter.Emit(events.AssetCustody{Collection: collection, TokenIDs: append([]uint256.Int(nil), ids...), Account: from, Direction: events.CustodyDirectionIn})
		return e.mint(collection, recipient, taxcalc.FloorUnits(uint64(len(ids)), record.Denomination))
	})
}

// Redeem burns one floor unit per asset from caller and releases unlisted
// assets from the vault to recipient.
func (e *Engine) Redeem(caller, collection common.Address, ids []uint256.Int, recipient common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrNoTokenIDs
	}
	if recipient == (common.Address{}) {
		return ErrZeroRecipient
	}
	return nativecommon.Atomic(e.state, func() error {
		denomination, err := e.Denomination(collection)
		if err != nil {
			return err
		}
		if err := e.Burn(collection, caller, taxcalc.FloorUnits(uint64(len(ids)), denomination)); err != nil {
			return err
		}
		for _, id := range ids {
			for _, view := range e.views {
				listed, err := view.IsListed(collection, id)
				if err != nil {
					return err
				}
				if listed {
					return fmt.Errorf("%w: %s", ErrAssetListed, id.Dec())
				}
			}
			if err := e.release(collection, id, recipient); err != nil {
				return err
			}
		}
		return nil
	})
}

// WithdrawAsset releases a vaulted asset to recipient on behalf of an
// operator module. The operator is responsible for the matching burn.
func (e *Engine) WithdrawAsset(caller, collection common.Address, id uint256.Int, recipient common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok := e.operators[caller]; !ok {
		return nativecommon.NewUnauthorized(ErrNotOperator, e.vault, caller)
	}
	if recipient == (common.Address{}) {
		return ErrZeroRecipient
	}
	return e.release(collection, id, recipient)
}

// Transfer moves amount of the collection token between wallets.
func (e *Engine) Transfer(collection, from, to common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	if to == (common.Address{}) {
		return ErrZeroRecipient
	}
	if _, err := e.collection(collection); err != nil {
		return err
	}
	if err := e.debit(collection, from, amount); err != nil {
		return err
	}
	if err := e.credit(collection, to, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.TokenTransfer{Collection: collection, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Burn destroys amount of the collection token held by from.
func (e *Engine) Burn(collection, from common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	record, err := e.collection(collection)
	if err != nil {
		return err
	}
	if err := e.debit(collection, from, amount); err != nil {
		return err
	}
	record.TotalSupply.Sub(record.TotalSupply, amount)
	if err := e.state.PutCollection(collection, record); err != nil {
		return err
	}
	e.emitter.Emit(events.TokenSupply{
		Collection: collection,
		Total:      new(big.Int).Set(record.TotalSupply),
		Delta:      new(big.Int).Neg(amount),
		Reason:     events.SupplyReasonBurn,
	})
	return nil
}

func (e *Engine) mint(collection, to common.Address, amount *big.Int) error {
	record, err := e.collection(collection)
	if err != nil {
		return err
	}
	if err := e.credit(collection, to, amount); err != nil {
		return err
	}
	record.TotalSupply.Add(record.TotalSupply, amount)
	if err := e.state.PutCollection(collection, record); err != nil {
		return err
	}
	e.emitter.Emit(events.TokenSupply{
		Collection: collection,
		Total:      new(big.Int).Set(record.TotalSupply),
		Delta:      new(big.Int).Set(amount),
		Reason:     events.SupplyReasonMint,
	})
	return nil
}

func (e *Engine) release(collection common.Address, id uint256.Int, recipient common.Address) error {
	record, err := e.collection(collection)
	if err != nil {
		return err
	}
	owner, err := e.state.AssetOwner(collection, id)
	if err != nil {
		return err
	}
	if owner != e.vault {
		return fmt.Errorf("%w: %s", ErrAssetNotVaulted, id.Dec())
	}
	if err := e.state.SetAssetOwner(collection, id, recipient); err != nil {
		return err
	}
	record.Vaulted--
	if err := e.state.PutCollection(collection, record); err != nil {
		return err
	}
	e.emitter.Emit(events.AssetCustody{Collection: collection, TokenIDs: []uint256.Int{id}, Account: recipient, Direction: events.CustodyDirectionOut})
	return nil
}

func (e *Engine) collection(collection common.Address) (*Collection, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, err := e.state.Collection(collection)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotInitialized, collection.Hex())
	}
	if record.TotalSupply == nil {
		record.TotalSupply = big.NewInt(0)
	}
	return record, nil
}

func (e *Engine) credit(collection, account common.Address, amount *big.Int) error {
	bal, err := e.balance(collection, account)
	if err != nil {
		return err
	}
	delta, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrBalanceOverflow
	}
	if _, overflow := bal.AddOverflow(bal, delta); overflow {
		return ErrBalanceOverflow
	}
	return e.state.SetTokenBalance(collection, account, bal.ToBig())
}

func (e *Engine) debit(collection, account common.Address, amount *big.Int) error {
	bal, err := e.balance(collection, account)
	if err != nil {
		return err
	}
	delta, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrBalanceOverflow
	}
	if bal.Lt(delta) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, account.Hex(), bal.Dec(), delta.Dec())
	}
	bal.Sub(bal, delta)
	return e.state.SetTokenBalance(collection, account, bal.ToBig())
}

func (e *Engine) balance(collection, account common.Address) (*uint256.Int, error) {
	raw, err := e.state.TokenBalance(collection, account)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return new(uint256.Int), nil
	}
	bal, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return bal, nil
}
