package hook

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/lendhook/internal/errors"
	"github.com/ggonzalez94/lendhook/internal/events"
	"github.com/ggonzalez94/lendhook/internal/vault"
	"go.uber.org/zap"
)

// Deposit sweeps the hook's entire balance of token into the vault registered
// for protocol, crediting recipient. The deposit event is emitted before the
// vault call, so an observed event does not imply the call succeeded.
func (h *Hook) Deposit(ctx context.Context, caller common.Address, protocol vault.Protocol, token, recipient common.Address) (Receipt, error) {
	adapter, ok := h.adapters[protocol]
	if !ok {
		return Receipt{}, unsupported(protocol)
	}
	ctx, exit, err := h.enter(ctx)
	if err != nil {
		return Receipt{}, err
	}
	defer exit()

	amount := h.balance(ctx, token)
	if amount.Sign() == 0 {
		return Receipt{}, clierr.New(clierr.CodeInsufficientBalance, "hook holds no balance of token")
	}
	target, err := h.registry.Vault(ctx, protocol, token)
	if err != nil {
		return Receipt{}, clierr.Wrap(clierr.CodeInternal, "read vault registry", err)
	}
	if target == (common.Address{}) {
		return Receipt{}, clierr.New(clierr.CodeVaultNotRegistered, "no "+string(protocol)+" vault registered for token")
	}

	h.emit(ctx, events.Event{
		Kind:      events.KindDeposit,
		Protocol:  string(protocol),
		Sender:    caller,
		Token:     token,
		Vault:     target,
		Recipient: recipient,
		Amount:    amount.String(),
	})
	if err := adapter.Supply(ctx, target, token, amount, recipient); err != nil {
		h.log.Warn("deposit call failed",
			zap.String("protocol", string(protocol)),
			zap.String("token", token.Hex()),
			zap.String("vault", target.Hex()),
			zap.Error(err),
		)
		return Receipt{}, clierr.New(clierr.CodeDepositFailed, "deposit call failed")
	}
	return Receipt{
		Operation: "deposit",
		Protocol:  protocol,
		Caller:    caller,
		Token:     token,
		Vault:     target,
		Recipient: recipient,
		Amount:    amount.String(),
	}, nil
}

func (h *Hook) DepositAave(ctx context.Context, caller, token, recipient common.Address) (Receipt, error) {
	return h.Deposit(ctx, caller, vault.Aave, token, recipient)
}

func (h *Hook) DepositCompound(ctx context.Context, caller, token, recipient common.Address) (Receipt, error) {
	return h.Deposit(ctx, caller, vault.Compound, token, recipient)
}

func (h *Hook) DepositFluid(ctx context.Context, caller, token, recipient common.Address) (Receipt, error) {
	return h.Deposit(ctx, caller, vault.Fluid, token, recipient)
}
