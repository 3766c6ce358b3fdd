package hook

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	clierr "github.com/ggonzalez94/lendhook/internal/errors"
	"github.com/ggonzalez94/lendhook/internal/events"
	"github.com/ggonzalez94/lendhook/internal/vault"
	"go.uber.org/zap"
)

// AddVault registers vaultAddr for (protocol, token), overwriting any prior
// entry, and grants it an unlimited allowance over token.
//
// If the approval fails the registry write is kept: the entry is visible but
// deposits will fail until the owner re-runs AddVault.
func (h *Hook) AddVault(ctx context.Context, caller common.Address, protocol vault.Protocol, token, vaultAddr common.Address) (Receipt, error) {
	if !protocol.Valid() {
		return Receipt{}, unsupported(protocol)
	}
	ctx, exit, err := h.enter(ctx)
	if err != nil {
		return Receipt{}, err
	}
	defer exit()
	if err := h.requireOwner(caller); err != nil {
		return Receipt{}, err
	}

	if err := h.registry.SetVault(ctx, protocol, token, vaultAddr); err != nil {
		return Receipt{}, clierr.Wrap(clierr.CodeInternal, "write vault registry", err)
	}
	h.emit(ctx, events.Event{
		Kind:     events.KindVaultAdded,
		Protocol: string(protocol),
		Sender:   caller,
		Token:    token,
		Vault:    vaultAddr,
	})
	if err := h.token.Approve(ctx, token, vaultAddr, math.MaxBig256); err != nil {
		h.log.Warn("approve call failed",
			zap.String("protocol", string(protocol)),
			zap.String("token", token.Hex()),
			zap.String("vault", vaultAddr.Hex()),
			zap.Error(err),
		)
		return Receipt{}, clierr.New(clierr.CodeApproveFailed, "approve call failed")
	}
	return Receipt{
		Operation: "add_vault",
		Protocol:  protocol,
		Caller:    caller,
		Token:     token,
		Vault:     vaultAddr,
		Amount:    math.MaxBig256.String(),
	}, nil
}

func (h *Hook) AddAaveVault(ctx context.Context, caller, token, vaultAddr common.Address) (Receipt, error) {
	return h.AddVault(ctx, caller, vault.Aave, token, vaultAddr)
}

func (h *Hook) AddCompoundVault(ctx context.Context, caller, token, vaultAddr common.Address) (Receipt, error) {
	return h.AddVault(ctx, caller, vault.Compound, token, vaultAddr)
}

func (h *Hook) AddFluidVault(ctx context.Context, caller, token, vaultAddr common.Address) (Receipt, error) {
	return h.AddVault(ctx, caller, vault.Fluid, token, vaultAddr)
}
