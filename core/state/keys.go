package state

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	collectionPrefix      = []byte("custody/collection/")
	balancePrefix         = []byte("custody/balance/")
	assetPrefix           = []byte("custody/asset/")
	listingPrefix         = []byte("listings/listing/")
	listingCountPrefix    = []byte("listings/count/")
	escrowPrefix          = []byte("listings/escrow/")
	loanPrefix            = []byte("protected/loan/")
	loanCountPrefix       = []byte("protected/count/")
	pendingPrefix         = []byte("protected/pending/")
	checkpointPrefix      = []byte("checkpoint/entry/")
	checkpointCountPrefix = []byte("checkpoint/count/")
	feeAccrualPrefix      = []byte("fees/accrual/")
)

func join(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func idBytes(id uint256.Int) []byte {
	b := id.Bytes32()
	return b[:]
}

func CollectionKey(collection common.Address) []byte {
	return join(collectionPrefix, collection.Bytes())
}

func BalanceKey(collection, account common.Address) []byte {
	return join(balancePrefix, collection.Bytes(), account.Bytes())
}

func AssetKey(collection common.Address, id uint256.Int) []byte {
	return join(assetPrefix, collection.Bytes(), idBytes(id))
}

func ListingKey(collection common.Address, id uint256.Int) []byte {
	return join(listingPrefix, collection.Bytes(), idBytes(id))
}

func ListingCountKey(collection common.Address) []byte {
	return join(listingCountPrefix, collection.Bytes())
}

func EscrowKey(account, collection common.Address) []byte {
	return join(escrowPrefix, account.Bytes(), collection.Bytes())
}

func LoanKey(collection common.Address, id uint256.Int) []byte {
	return join(loanPrefix, collection.Bytes(), idBytes(id))
}

func LoanCountKey(collection common.Address) []byte {
	return join(loanCountPrefix, collection.Bytes())
}

func PendingWithdrawalKey(collection common.Address, id uint256.Int) []byte {
	return join(pendingPrefix, collection.Bytes(), idBytes(id))
}

func CheckpointKey(collection common.Address, index uint64) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	return join(checkpointPrefix, collection.Bytes(), idx[:])
}

func CheckpointCountKey(collection common.Address) []byte {
	return join(checkpointCountPrefix, collection.Bytes())
}

func FeeAccrualKey(collection common.Address) []byte {
	return join(feeAccrualPrefix, collection.Bytes())
}

// splitListingKey recovers the collection and token id from a listing key.
func splitListingKey(key []byte) (common.Address, uint256.Int, bool) {
	rest := key[len(listingPrefix):]
	if len(rest) != common.AddressLength+32 {
		return common.Address{}, uint256.Int{}, false
	}
	var id uint256.Int
	id.SetBytes32(rest[common.AddressLength:])
	return common.BytesToAddress(rest[:common.AddressLength]), id, true
}
