package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Modules names the accounts owned by each market module, as hex addresses.
type Modules struct {
	Vault     string `toml:"Vault"`
	Listings  string `toml:"Listings"`
	Protected string `toml:"Protected"`
	FeeSink   string `toml:"FeeSink"`
}

func (m *Modules) normalize() {
	m.Vault = strings.TrimSpace(m.Vault)
	m.Listings = strings.TrimSpace(m.Listings)
	m.Protected = strings.TrimSpace(m.Protected)
	m.FeeSink = strings.TrimSpace(m.FeeSink)
}

// ModuleAddresses is the parsed form of Modules.
type ModuleAddresses struct {
	Vault     common.Address
	Listings  common.Address
	Protected common.Address
	FeeSink   common.Address
}

// Addresses parses the configured module accounts.
func (m Modules) Addresses() (ModuleAddresses, error) {
	var out ModuleAddresses
	fields := []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"Vault", m.Vault, &out.Vault},
		{"Listings", m.Listings, &out.Listings},
		{"Protected", m.Protected, &out.Protected},
		{"FeeSink", m.FeeSink, &out.FeeSink},
	}
	for _, f := range fields {
		addr, err := parseAddress(f.value)
		if err != nil {
			return ModuleAddresses{}, fmt.Errorf("modules.%s: %w", f.name, err)
		}
		*f.dst = addr
	}
	return out, nil
}

// Pauses lists the modules whose entry points are disabled.
type Pauses struct {
	Custody   bool `toml:"Custody"`
	Listings  bool `toml:"Listings"`
	Protected bool `toml:"Protected"`
}

// IsPaused reports whether the named module is paused.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "custody":
		return p.Custody
	case "listings":
		return p.Listings
	case "protected":
		return p.Protected
	default:
		return false
	}
}

// Collection registers a collection token at startup.
type Collection struct {
	Address      string `toml:"Address"`
	Denomination uint8  `toml:"Denomination"`
}

// ParsedAddress returns the collection address.
func (c Collection) ParsedAddress() (common.Address, error) {
	return parseAddress(c.Address)
}

func parseAddress(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid address %q", value)
	}
	addr := common.HexToAddress(value)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address")
	}
	return addr, nil
}
