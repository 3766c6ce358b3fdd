package id

import (
	"strings"
	"testing"

	clierr "github.com/ggonzalez94/lendhook/internal/errors"
)

func TestParseChainVariants(t *testing.T) {
	chain, err := ParseChain("base")
	if err != nil {
		t.Fatalf("ParseChain(base) failed: %v", err)
	}
	if chain.CAIP2 != "eip155:8453" {
		t.Fatalf("unexpected CAIP2: %s", chain.CAIP2)
	}

	chain, err = ParseChain("421614")
	if err != nil {
		t.Fatalf("ParseChain(421614) failed: %v", err)
	}
	if chain.Slug != "arbitrum-sepolia" {
		t.Fatalf("unexpected slug: %s", chain.Slug)
	}

	chain, err = ParseChain("eip155:999999")
	if err != nil {
		t.Fatalf("ParseChain(eip155:999999) failed: %v", err)
	}
	if chain.EVMChainID != 999999 {
		t.Fatalf("unexpected chain ID: %d", chain.EVMChainID)
	}

	if _, err := ParseChain("solana"); err == nil {
		t.Fatal("expected non-EVM chain to be rejected")
	}
}

func TestParseAddressAcceptsAnyCase(t *testing.T) {
	addr, err := ParseAddress("token", "0xb1d4538b4571d411f07960ef2838ce337fe1e80e")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if addr.Hex() != "0xb1D4538B4571d411F07960EF2838Ce337FE1E80E" {
		t.Fatalf("unexpected checksum form: %s", addr.Hex())
	}
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	_, err := ParseAddress("recipient", "0x1234")
	if err == nil {
		t.Fatal("expected invalid address error")
	}
	if !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "recipient") {
		t.Fatalf("expected field name in error, got %v", err)
	}
	if _, err := ParseAddress("recipient", " "); err == nil {
		t.Fatal("expected empty address error")
	}
}

func TestParseChecksummedAddress(t *testing.T) {
	addr, err := ParseChecksummedAddress("0x9C96CFe9A37605bdb2D1462022265754f76B5E4B")
	if err != nil {
		t.Fatalf("expected valid checksum, got %v", err)
	}
	if addr.Hex() != "0x9C96CFe9A37605bdb2D1462022265754f76B5E4B" {
		t.Fatalf("unexpected address: %s", addr.Hex())
	}

	if _, err := ParseChecksummedAddress("0x9c96cfe9a37605bdb2d1462022265754f76b5e4b"); err == nil {
		t.Fatal("expected lowercase address to fail checksum validation")
	}
	if _, err := ParseChecksummedAddress("0x9C96CFe9A37605bdb2D1462022265754f76B5E4b"); err == nil {
		t.Fatal("expected corrupted checksum to fail")
	}
	if _, err := ParseChecksummedAddress("9C96CFe9A37605bdb2D1462022265754f76B5E4B"); err == nil {
		t.Fatal("expected missing 0x prefix to fail")
	}
}
