package router

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// RegistryEntry records one deployed pool under its group salt.
type RegistryEntry struct {
	Type    string           `json:"type"`
	SubSalt common.Hash      `json:"subSalt"`
	Address common.Address   `json:"address"`
	Tokens  []common.Address `json:"tokens"`
}

func (e RegistryEntry) clone() RegistryEntry {
	e.Tokens = slices.Clone(e.Tokens)
	return e
}

// group holds the entries of one token group in creation order.
type group struct {
	entries       []RegistryEntry
	stableCounter uint64
}

func (g *group) find(subSalt common.Hash) (RegistryEntry, bool) {
	for _, e := range g.entries {
		if e.SubSalt == subSalt {
			return e, true
		}
	}
	return RegistryEntry{}, false
}

func (g *group) count(kind string) int {
	n := 0
	for _, e := range g.entries {
		if e.Type == kind {
			n++
		}
	}
	return n
}
