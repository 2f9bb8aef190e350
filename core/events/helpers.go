package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatTokenID(id uint256.Int) string {
	return id.Dec()
}

func formatTokenIDs(ids []uint256.Int) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i := range ids {
		parts[i] = ids[i].Dec()
	}
	return strings.Join(parts, ",")
}
