package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MaxDenomination mirrors the custody module's bound on collection
// denominations.
const MaxDenomination = 9

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	addrs, err := cfg.Modules.Addresses()
	if err != nil {
		return err
	}
	seen := map[common.Address]string{}
	for name, addr := range map[string]common.Address{
		"Vault":     addrs.Vault,
		"Listings":  addrs.Listings,
		"Protected": addrs.Protected,
		"FeeSink":   addrs.FeeSink,
	} {
		if other, dup := seen[addr]; dup {
			return fmt.Errorf("modules: %s and %s share address %s", name, other, addr.Hex())
		}
		seen[addr] = name
	}
	collections := map[common.Address]struct{}{}
	for i, c := range cfg.Collections {
		addr, err := c.ParsedAddress()
		if err != nil {
			return fmt.Errorf("collections[%d]: %w", i, err)
		}
		if c.Denomination > MaxDenomination {
			return fmt.Errorf("collections[%d]: denomination %d exceeds %d", i, c.Denomination, MaxDenomination)
		}
		if _, dup := collections[addr]; dup {
			return fmt.Errorf("collections[%d]: duplicate collection %s", i, addr.Hex())
		}
		if _, clash := seen[addr]; clash {
			return fmt.Errorf("collections[%d]: %s is a module account", i, addr.Hex())
		}
		collections[addr] = struct{}{}
	}
	return nil
}
