package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ggonzalez94/lendhook/internal/protocol"
	"github.com/ggonzalez94/lendhook/internal/vault"
	"github.com/stretchr/testify/require"
)

var (
	hookAddr  = common.HexToAddress("0x0000000000000000000000000000000000001000")
	usdc      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	pool      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	comet     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	fToken    = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func newFunded(t *testing.T, amount int64) *Ledger {
	t.Helper()
	l := New(hookAddr)
	l.AddToken(usdc)
	require.NoError(t, l.AddVault(vault.Aave, pool, common.Address{}))
	require.NoError(t, l.AddVault(vault.Compound, comet, common.Address{}))
	require.NoError(t, l.AddVault(vault.Fluid, fToken, usdc))
	require.NoError(t, l.Mint(usdc, hookAddr, big.NewInt(amount)))
	return l
}

func TestReadBalanceThroughERC20Adapter(t *testing.T) {
	l := newFunded(t, 500)
	got, err := protocol.NewERC20(l).BalanceOf(context.Background(), usdc, hookAddr)
	require.NoError(t, err)
	require.Equal(t, int64(500), got.Int64())

	_, err = protocol.NewERC20(l).BalanceOf(context.Background(), pool, hookAddr)
	require.Error(t, err, "reads against a non-token must fail")
}

func TestSupplyRequiresAllowance(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, 500)
	err := protocol.NewAave(l).Supply(ctx, pool, usdc, big.NewInt(500), recipient)
	require.ErrorContains(t, err, "insufficient allowance")
	require.Equal(t, int64(500), l.BalanceOf(usdc, hookAddr).Int64())

	require.NoError(t, protocol.NewERC20(l).Approve(ctx, usdc, pool, math.MaxBig256))
	require.NoError(t, protocol.NewAave(l).Supply(ctx, pool, usdc, big.NewInt(500), recipient))
	require.Zero(t, l.BalanceOf(usdc, hookAddr).Sign())
	require.Equal(t, int64(500), l.BalanceOf(usdc, pool).Int64())
	require.Equal(t, int64(500), l.Supplied(pool, usdc, recipient).Int64())
	require.Equal(t, 0, l.Allowance(usdc, hookAddr, pool).Cmp(math.MaxBig256), "unlimited allowance must not be decremented")
}

func TestBoundedAllowanceIsConsumed(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, 300)
	require.NoError(t, protocol.NewERC20(l).Approve(ctx, usdc, comet, big.NewInt(250)))
	require.NoError(t, protocol.NewCompound(l).Supply(ctx, comet, usdc, big.NewInt(200), recipient))
	require.Equal(t, int64(50), l.Allowance(usdc, hookAddr, comet).Int64())
	require.Equal(t, int64(200), l.Supplied(comet, usdc, recipient).Int64())
}

func TestFluidUsesVaultAsset(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, 42)
	require.NoError(t, protocol.NewERC20(l).Approve(ctx, usdc, fToken, math.MaxBig256))
	require.NoError(t, protocol.NewFluid(l).Supply(ctx, fToken, common.Address{}, big.NewInt(42), recipient))
	require.Equal(t, int64(42), l.Supplied(fToken, usdc, recipient).Int64())
}

func TestTransferMovesFromSelf(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, 10)
	require.NoError(t, protocol.NewERC20(l).Transfer(ctx, usdc, recipient, big.NewInt(10)))
	require.Equal(t, int64(10), l.BalanceOf(usdc, recipient).Int64())
	require.Error(t, protocol.NewERC20(l).Transfer(ctx, usdc, recipient, big.NewInt(1)))
	require.Error(t, protocol.NewERC20(l).Transfer(ctx, usdc, common.Address{}, big.NewInt(0)))
}

func TestInjectedFailuresAreRecordedAndCleared(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, 10)
	boom := errors.New("approve reverted")
	l.FailSend(usdc, protocol.CallApprove, boom)
	l.FailRead(usdc, errors.New("rpc down"))

	require.ErrorIs(t, protocol.NewERC20(l).Approve(ctx, usdc, pool, big.NewInt(1)), boom)
	_, err := protocol.NewERC20(l).BalanceOf(ctx, usdc, hookAddr)
	require.Error(t, err)
	require.Len(t, l.Calls(), 1)
	require.Zero(t, l.Allowance(usdc, hookAddr, pool).Sign())

	l.ClearFailures()
	require.NoError(t, protocol.NewERC20(l).Approve(ctx, usdc, pool, big.NewInt(1)))
	require.Equal(t, int64(1), l.Allowance(usdc, hookAddr, pool).Int64())
}

func TestOnCallRunsWithoutLock(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, 10)
	var seen []protocol.CallKind
	l.OnCall(func(_ context.Context, call protocol.Call) {
		seen = append(seen, call.Kind)
		// Re-entering the ledger must not deadlock.
		_ = l.BalanceOf(usdc, hookAddr)
	})
	require.NoError(t, protocol.NewERC20(l).Transfer(ctx, usdc, recipient, big.NewInt(4)))
	require.Equal(t, []protocol.CallKind{protocol.CallTransfer}, seen)
}

func TestSendToUnknownContractFails(t *testing.T) {
	l := newFunded(t, 1)
	err := l.Send(context.Background(), protocol.Call{Kind: protocol.CallLend, To: common.Address{}, Data: []byte{1, 2, 3, 4}})
	require.ErrorContains(t, err, "no contract")
}

func TestMintRejectsNegativeAndUnknownToken(t *testing.T) {
	l := New(hookAddr)
	require.Error(t, l.Mint(usdc, hookAddr, big.NewInt(1)))
	l.AddToken(usdc)
	require.Error(t, l.Mint(usdc, hookAddr, big.NewInt(-1)))
	require.Error(t, l.AddVault(vault.Protocol("morpho"), pool, usdc))
}
