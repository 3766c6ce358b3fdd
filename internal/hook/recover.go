package hook

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/lendhook/internal/errors"
	"github.com/ggonzalez94/lendhook/internal/events"
	"go.uber.org/zap"
)

// RecoverToken transfers the hook's entire balance of token to recipient.
func (h *Hook) RecoverToken(ctx context.Context, caller, token, recipient common.Address) (Receipt, error) {
	ctx, exit, err := h.enter(ctx)
	if err != nil {
		return Receipt{}, err
	}
	defer exit()
	if err := h.requireOwner(caller); err != nil {
		return Receipt{}, err
	}

	amount := h.balance(ctx, token)
	if amount.Sign() == 0 {
		return Receipt{}, clierr.New(clierr.CodeInsufficientBalance, "hook holds no balance of token")
	}
	h.emit(ctx, events.Event{
		Kind:      events.KindTokenRecovered,
		Sender:    caller,
		Token:     token,
		Recipient: recipient,
		Amount:    amount.String(),
	})
	if err := h.token.Transfer(ctx, token, recipient, amount); err != nil {
		h.log.Warn("transfer call failed",
			zap.String("token", token.Hex()),
			zap.String("recipient", recipient.Hex()),
			zap.Error(err),
		)
		return Receipt{}, clierr.New(clierr.CodeTransferFailed, "token transfer failed")
	}
	return Receipt{
		Operation: "recover_token",
		Caller:    caller,
		Token:     token,
		Recipient: recipient,
		Amount:    amount.String(),
	}, nil
}
