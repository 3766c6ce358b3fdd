package vault

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/lendhook/internal/errors"
)

// Entry is one token → vault mapping.
type Entry struct {
	Protocol Protocol       `json:"protocol"`
	Token    common.Address `json:"token"`
	Vault    common.Address `json:"vault"`
}

// Memory keeps one independent token → vault table per protocol.
// Lookups of absent tokens return the zero address.
type Memory struct {
	mu     sync.RWMutex
	tables map[Protocol]map[common.Address]common.Address
}

func NewMemory() *Memory {
	tables := make(map[Protocol]map[common.Address]common.Address, len(Protocols()))
	for _, p := range Protocols() {
		tables[p] = make(map[common.Address]common.Address)
	}
	return &Memory{tables: tables}
}

func (m *Memory) Vault(_ context.Context, protocol Protocol, token common.Address) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	table, ok := m.tables[protocol]
	if !ok {
		return common.Address{}, unknownProtocol(protocol)
	}
	return table[token], nil
}

func (m *Memory) SetVault(_ context.Context, protocol Protocol, token, vault common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	table, ok := m.tables[protocol]
	if !ok {
		return unknownProtocol(protocol)
	}
	table[token] = vault
	return nil
}

// Vaults lists the entries of one protocol ordered by token address.
func (m *Memory) Vaults(_ context.Context, protocol Protocol) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	table, ok := m.tables[protocol]
	if !ok {
		return nil, unknownProtocol(protocol)
	}
	out := make([]Entry, 0, len(table))
	for token, vault := range table {
		out = append(out, Entry{Protocol: protocol, Token: token, Vault: vault})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Token.Cmp(out[j].Token) < 0
	})
	return out, nil
}

func unknownProtocol(protocol Protocol) error {
	return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported protocol: %s", protocol))
}
