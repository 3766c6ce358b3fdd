// Package protocol ABI-encodes the hook's collaborator calls: ERC20 token
// operations and the supply entry points of the three lending vault families.
// Calls are handed to a Backend that either reads, plans or applies them.
package protocol

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/lendhook/internal/registry"
	"github.com/ggonzalez94/lendhook/internal/vault"
)

type CallKind string

const (
	CallApprove  CallKind = "approval"
	CallLend     CallKind = "lend_call"
	CallTransfer CallKind = "transfer"
)

// Call is one state-changing external call issued by the hook's account.
type Call struct {
	Kind        CallKind
	To          common.Address
	Data        []byte
	Description string
}

// Backend executes calls on behalf of the hook's account.
type Backend interface {
	Read(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Send(ctx context.Context, call Call) error
}

var (
	erc20ABI = mustABI(registry.ERC20ABI)
	aaveABI  = mustABI(registry.AavePoolABI)
	cometABI = mustABI(registry.CometABI)
	fluidABI = mustABI(registry.FluidVaultABI)
)

// ERC20 reads balances and issues approvals and transfers from the hook's account.
type ERC20 struct {
	backend Backend
}

func NewERC20(backend Backend) *ERC20 {
	return &ERC20{backend: backend}
}

func (e *ERC20) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	raw, err := e.backend.Read(ctx, token, data)
	if err != nil {
		return nil, err
	}
	out, err := erc20ABI.Unpack("balanceOf", raw)
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("decode balanceOf: %w", errOrEmpty(err))
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode balanceOf: unexpected %T", out[0])
	}
	return balance, nil
}

func (e *ERC20) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}
	return e.backend.Send(ctx, Call{
		Kind:        CallApprove,
		To:          token,
		Data:        data,
		Description: fmt.Sprintf("Approve %s to pull %s", spender.Hex(), token.Hex()),
	})
}

func (e *ERC20) Transfer(ctx context.Context, token, recipient common.Address, amount *big.Int) error {
	data, err := erc20ABI.Pack("transfer", recipient, amount)
	if err != nil {
		return fmt.Errorf("pack transfer: %w", err)
	}
	return e.backend.Send(ctx, Call{
		Kind:        CallTransfer,
		To:          token,
		Data:        data,
		Description: fmt.Sprintf("Transfer %s %s to %s", amount.String(), token.Hex(), recipient.Hex()),
	})
}

// Aave supplies into an Aave V3 pool: supply(asset, amount, onBehalfOf, 0).
type Aave struct{ backend Backend }

func NewAave(backend Backend) *Aave { return &Aave{backend: backend} }

func (a *Aave) Protocol() vault.Protocol { return vault.Aave }

func (a *Aave) Supply(ctx context.Context, pool, asset common.Address, amount *big.Int, recipient common.Address) error {
	data, err := aaveABI.Pack("supply", asset, amount, recipient, uint16(0))
	if err != nil {
		return fmt.Errorf("pack aave supply: %w", err)
	}
	return a.backend.Send(ctx, lendCall(vault.Aave, pool, data))
}

// Compound supplies into a Comet market: supplyTo(dst, asset, amount).
type Compound struct{ backend Backend }

func NewCompound(backend Backend) *Compound { return &Compound{backend: backend} }

func (c *Compound) Protocol() vault.Protocol { return vault.Compound }

func (c *Compound) Supply(ctx context.Context, comet, asset common.Address, amount *big.Int, recipient common.Address) error {
	data, err := cometABI.Pack("supplyTo", recipient, asset, amount)
	if err != nil {
		return fmt.Errorf("pack compound supplyTo: %w", err)
	}
	return c.backend.Send(ctx, lendCall(vault.Compound, comet, data))
}

// Fluid deposits into an fToken vault: deposit(assets, receiver). The vault
// already knows its asset, so it is not encoded.
type Fluid struct{ backend Backend }

func NewFluid(backend Backend) *Fluid { return &Fluid{backend: backend} }

func (f *Fluid) Protocol() vault.Protocol { return vault.Fluid }

func (f *Fluid) Supply(ctx context.Context, fToken, _ common.Address, amount *big.Int, recipient common.Address) error {
	data, err := fluidABI.Pack("deposit", amount, recipient)
	if err != nil {
		return fmt.Errorf("pack fluid deposit: %w", err)
	}
	return f.backend.Send(ctx, lendCall(vault.Fluid, fToken, data))
}

func lendCall(p vault.Protocol, target common.Address, data []byte) Call {
	return Call{
		Kind:        CallLend,
		To:          target,
		Data:        data,
		Description: fmt.Sprintf("Supply to %s vault %s", p, target.Hex()),
	}
}

func errOrEmpty(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("empty output")
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
