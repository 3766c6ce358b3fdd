package vault

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/lendhook/internal/errors"
)

var (
	tokenX = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenY = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	vaultA = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	vaultB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestMemoryAbsentTokenReturnsZeroAddress(t *testing.T) {
	reg := NewMemory()
	got, err := reg.Vault(context.Background(), Aave, tokenX)
	if err != nil {
		t.Fatalf("Vault failed: %v", err)
	}
	if got != (common.Address{}) {
		t.Fatalf("expected zero address, got %s", got.Hex())
	}
}

func TestMemoryProtocolsAreIndependent(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory()
	if err := reg.SetVault(ctx, Aave, tokenX, vaultA); err != nil {
		t.Fatalf("SetVault failed: %v", err)
	}
	if err := reg.SetVault(ctx, Compound, tokenX, vaultB); err != nil {
		t.Fatalf("SetVault failed: %v", err)
	}
	aave, _ := reg.Vault(ctx, Aave, tokenX)
	compound, _ := reg.Vault(ctx, Compound, tokenX)
	fluid, _ := reg.Vault(ctx, Fluid, tokenX)
	if aave != vaultA || compound != vaultB {
		t.Fatalf("unexpected vaults: aave=%s compound=%s", aave.Hex(), compound.Hex())
	}
	if fluid != (common.Address{}) {
		t.Fatalf("expected fluid to stay unregistered, got %s", fluid.Hex())
	}
}

func TestMemorySetOverwrites(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory()
	_ = reg.SetVault(ctx, Fluid, tokenX, vaultA)
	_ = reg.SetVault(ctx, Fluid, tokenX, vaultB)
	got, _ := reg.Vault(ctx, Fluid, tokenX)
	if got != vaultB {
		t.Fatalf("expected overwrite to %s, got %s", vaultB.Hex(), got.Hex())
	}
}

func TestMemoryVaultsSorted(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory()
	_ = reg.SetVault(ctx, Aave, tokenY, vaultB)
	_ = reg.SetVault(ctx, Aave, tokenX, vaultA)
	entries, err := reg.Vaults(ctx, Aave)
	if err != nil {
		t.Fatalf("Vaults failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Token != tokenX || entries[1].Token != tokenY {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestMemoryRejectsUnknownProtocol(t *testing.T) {
	reg := NewMemory()
	err := reg.SetVault(context.Background(), Protocol("morpho"), tokenX, vaultA)
	if !clierr.HasCode(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestParseProtocolAliases(t *testing.T) {
	cases := map[string]Protocol{
		"aave":        Aave,
		" AAVE-V3 ":   Aave,
		"comet":       Compound,
		"compound-v3": Compound,
		"fluidx":      Fluid,
	}
	for input, want := range cases {
		got, err := ParseProtocol(input)
		if err != nil || got != want {
			t.Fatalf("ParseProtocol(%q) = %s, %v", input, got, err)
		}
	}
	if _, err := ParseProtocol(""); !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for empty protocol, got %v", err)
	}
	if _, err := ParseProtocol("morpho"); !clierr.HasCode(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}
