package protocol

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ggonzalez94/lendhook/internal/vault"
)

var (
	tokenAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	vaultAddr     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	recipientAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

type recordingBackend struct {
	reads   []common.Address
	calls   []Call
	readOut []byte
	readErr error
	sendErr error
}

func (r *recordingBackend) Read(_ context.Context, to common.Address, _ []byte) ([]byte, error) {
	r.reads = append(r.reads, to)
	return r.readOut, r.readErr
}

func (r *recordingBackend) Send(_ context.Context, call Call) error {
	r.calls = append(r.calls, call)
	return r.sendErr
}

func unpackInputs(t *testing.T, parsed abi.ABI, method string, data []byte) []any {
	t.Helper()
	m := parsed.Methods[method]
	if len(data) < 4 || string(data[:4]) != string(m.ID) {
		t.Fatalf("expected %s selector, got %x", method, data[:4])
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack %s: %v", method, err)
	}
	return args
}

func TestERC20BalanceOfDecodes(t *testing.T) {
	encoded, err := erc20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(1234))
	if err != nil {
		t.Fatalf("pack output: %v", err)
	}
	backend := &recordingBackend{readOut: encoded}
	got, err := NewERC20(backend).BalanceOf(context.Background(), tokenAddr, vaultAddr)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if got.Int64() != 1234 {
		t.Fatalf("expected 1234, got %s", got)
	}
	if len(backend.reads) != 1 || backend.reads[0] != tokenAddr {
		t.Fatalf("expected read against token, got %v", backend.reads)
	}
}

func TestERC20BalanceOfPropagatesFailures(t *testing.T) {
	if _, err := NewERC20(&recordingBackend{readErr: errors.New("rpc down")}).BalanceOf(context.Background(), tokenAddr, vaultAddr); err == nil {
		t.Fatal("expected read error")
	}
	if _, err := NewERC20(&recordingBackend{readOut: []byte{}}).BalanceOf(context.Background(), tokenAddr, vaultAddr); err == nil {
		t.Fatal("expected decode error for empty output")
	}
}

func TestERC20ApproveAndTransferEncoding(t *testing.T) {
	backend := &recordingBackend{}
	erc := NewERC20(backend)
	if err := erc.Approve(context.Background(), tokenAddr, vaultAddr, math.MaxBig256); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if err := erc.Transfer(context.Background(), tokenAddr, recipientAddr, big.NewInt(9)); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if len(backend.calls) != 2 {
		t.Fatalf("expected two calls, got %d", len(backend.calls))
	}

	approve := backend.calls[0]
	if approve.Kind != CallApprove || approve.To != tokenAddr {
		t.Fatalf("unexpected approve call: %+v", approve)
	}
	args := unpackInputs(t, erc20ABI, "approve", approve.Data)
	if args[0].(common.Address) != vaultAddr || args[1].(*big.Int).Cmp(math.MaxBig256) != 0 {
		t.Fatalf("unexpected approve args: %v", args)
	}

	transfer := backend.calls[1]
	if transfer.Kind != CallTransfer || transfer.To != tokenAddr {
		t.Fatalf("unexpected transfer call: %+v", transfer)
	}
	args = unpackInputs(t, erc20ABI, "transfer", transfer.Data)
	if args[0].(common.Address) != recipientAddr || args[1].(*big.Int).Int64() != 9 {
		t.Fatalf("unexpected transfer args: %v", args)
	}
}

func TestAdaptersEncodeSupplyCalls(t *testing.T) {
	amount := big.NewInt(1_000_000)
	backend := &recordingBackend{}
	ctx := context.Background()

	if err := NewAave(backend).Supply(ctx, vaultAddr, tokenAddr, amount, recipientAddr); err != nil {
		t.Fatalf("aave supply: %v", err)
	}
	if err := NewCompound(backend).Supply(ctx, vaultAddr, tokenAddr, amount, recipientAddr); err != nil {
		t.Fatalf("compound supply: %v", err)
	}
	if err := NewFluid(backend).Supply(ctx, vaultAddr, tokenAddr, amount, recipientAddr); err != nil {
		t.Fatalf("fluid supply: %v", err)
	}
	for _, call := range backend.calls {
		if call.Kind != CallLend || call.To != vaultAddr {
			t.Fatalf("expected lend call to vault, got %+v", call)
		}
	}

	aave := unpackInputs(t, aaveABI, "supply", backend.calls[0].Data)
	if aave[0].(common.Address) != tokenAddr || aave[1].(*big.Int).Cmp(amount) != 0 || aave[2].(common.Address) != recipientAddr || aave[3].(uint16) != 0 {
		t.Fatalf("unexpected aave args: %v", aave)
	}
	comet := unpackInputs(t, cometABI, "supplyTo", backend.calls[1].Data)
	if comet[0].(common.Address) != recipientAddr || comet[1].(common.Address) != tokenAddr || comet[2].(*big.Int).Cmp(amount) != 0 {
		t.Fatalf("unexpected compound args: %v", comet)
	}
	fluid := unpackInputs(t, fluidABI, "deposit", backend.calls[2].Data)
	if fluid[0].(*big.Int).Cmp(amount) != 0 || fluid[1].(common.Address) != recipientAddr {
		t.Fatalf("unexpected fluid args: %v", fluid)
	}
}

func TestAdapterProtocolsAndSendErrors(t *testing.T) {
	backend := &recordingBackend{sendErr: errors.New("reverted")}
	adapters := map[vault.Protocol]interface {
		Protocol() vault.Protocol
		Supply(context.Context, common.Address, common.Address, *big.Int, common.Address) error
	}{
		vault.Aave:     NewAave(backend),
		vault.Compound: NewCompound(backend),
		vault.Fluid:    NewFluid(backend),
	}
	for want, adapter := range adapters {
		if adapter.Protocol() != want {
			t.Fatalf("expected %s, got %s", want, adapter.Protocol())
		}
		if err := adapter.Supply(context.Background(), vaultAddr, tokenAddr, big.NewInt(1), recipientAddr); err == nil {
			t.Fatalf("%s: expected backend error to propagate", want)
		}
	}
}
