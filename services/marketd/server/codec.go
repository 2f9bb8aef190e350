package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"floorvault/native/taxcalc"
)

const (
	maxBodyBytes = 1 << 20
	wadDecimals  = 18
)

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return badRequest("decode body: %v", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badRequest("body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, badRequest("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

// parseOptionalAddress returns fallback for an empty value.
func parseOptionalAddress(field, raw string, fallback common.Address) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return parseAddress(field, raw)
}

func parseTokenID(raw string) (uint256.Int, error) {
	id, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		return uint256.Int{}, badRequest("token id %q: %v", raw, err)
	}
	return *id, nil
}

func parseTokenIDs(raw []string) ([]uint256.Int, error) {
	out := make([]uint256.Int, 0, len(raw))
	for _, value := range raw {
		id, err := parseTokenID(value)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// parseUnits converts a decimal string into an integer scaled by
// 10^decimals. Values with more precision than the scale are rejected.
func parseUnits(field, raw string, decimals int32, allowNegative bool) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	if d.IsNegative() && !allowNegative {
		return nil, badRequest("%s: must not be negative", field)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, badRequest("%s: more than %d decimal places", field, decimals)
	}
	return scaled.BigInt(), nil
}

// parseWad parses a WAD fraction such as "0.75".
func parseWad(field, raw string, allowNegative bool) (*big.Int, error) {
	return parseUnits(field, raw, wadDecimals, allowNegative)
}

// parseTokenAmount parses an amount of floor units for a collection of the
// given denomination.
func parseTokenAmount(field, raw string, denomination uint8) (*big.Int, error) {
	return parseUnits(field, raw, wadDecimals+int32(denomination), false)
}

// Amount carries a raw integer amount and its decimal rendering.
type Amount struct {
	Raw     string `json:"raw"`
	Decimal string `json:"decimal"`
}

func formatUnits(v *big.Int, decimals int32) Amount {
	if v == nil {
		v = new(big.Int)
	}
	return Amount{Raw: v.String(), Decimal: decimal.NewFromBigInt(v, -decimals).String()}
}

func formatWad(v *big.Int) Amount { return formatUnits(v, wadDecimals) }

// formatTokens renders a raw collection token amount in floor units.
func formatTokens(v *big.Int, denomination uint8) Amount {
	return formatUnits(v, wadDecimals+int32(denomination))
}

func formatTokenIDs(ids []uint256.Int) []string {
	out := make([]string, len(ids))
	for i := range ids {
		out[i] = ids[i].Dec()
	}
	return out
}

// floorUnit is exported through responses so clients can convert raw values.
func floorUnit(denomination uint8) Amount {
	return formatTokens(taxcalc.FloorUnit(denomination), denomination)
}
