// Package hook routes token balances held by the hook account into lending
// vaults. It keeps an owner-controlled token → vault registry per protocol,
// sweeps the full balance on deposit, and lets the owner recover stray tokens.
package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/lendhook/internal/calldata"
	clierr "github.com/ggonzalez94/lendhook/internal/errors"
	"github.com/ggonzalez94/lendhook/internal/events"
	"github.com/ggonzalez94/lendhook/internal/id"
	"github.com/ggonzalez94/lendhook/internal/vault"
	"go.uber.org/zap"
)

// Registry stores one token → vault table per protocol. Absent entries read
// as the zero address.
type Registry interface {
	Vault(ctx context.Context, protocol vault.Protocol, token common.Address) (common.Address, error)
	SetVault(ctx context.Context, protocol vault.Protocol, token, vault common.Address) error
}

// Token is the ERC20 surface the hook drives from its own account.
type Token interface {
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error
	Transfer(ctx context.Context, token, recipient common.Address, amount *big.Int) error
}

// Adapter forwards a supply into one protocol's vault on behalf of recipient.
type Adapter interface {
	Protocol() vault.Protocol
	Supply(ctx context.Context, vault, asset common.Address, amount *big.Int, recipient common.Address) error
}

type Config struct {
	// Self is the account whose balances are swept and which issues calls.
	Self common.Address
	// Owner must be an EIP-55 checksummed address.
	Owner    string
	Registry Registry
	Token    Token
	Adapters []Adapter
	Events   events.Sink
	Logger   *zap.Logger
}

// Receipt describes the effect of a successful hook operation.
type Receipt struct {
	Operation string         `json:"operation"`
	Protocol  vault.Protocol `json:"protocol,omitempty"`
	Caller    common.Address `json:"caller"`
	Token     common.Address `json:"token"`
	Vault     common.Address `json:"vault,omitempty"`
	Recipient common.Address `json:"recipient,omitempty"`
	Amount    string         `json:"amount"`
}

// MarshalJSON leaves out a zero vault or recipient: recovery has no vault and
// onboarding has no recipient.
func (r Receipt) MarshalJSON() ([]byte, error) {
	type plain Receipt
	return json.Marshal(struct {
		plain
		Vault     *common.Address `json:"vault,omitempty"`
		Recipient *common.Address `json:"recipient,omitempty"`
	}{
		plain:     plain(r),
		Vault:     nonZero(r.Vault),
		Recipient: nonZero(r.Recipient),
	})
}

func nonZero(addr common.Address) *common.Address {
	if addr == (common.Address{}) {
		return nil
	}
	return &addr
}

type Hook struct {
	self     common.Address
	owner    common.Address
	registry Registry
	token    Token
	adapters map[vault.Protocol]Adapter
	events   events.Sink
	log      *zap.Logger
	now      func() time.Time

	// sem holds one slot; an invocation owns the hook while holding it.
	sem chan struct{}
}

func New(cfg Config) (*Hook, error) {
	owner, err := id.ParseChecksummedAddress(cfg.Owner)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "invalid owner address", err)
	}
	if cfg.Self == (common.Address{}) {
		return nil, clierr.New(clierr.CodeUsage, "hook address is required")
	}
	if cfg.Registry == nil {
		return nil, clierr.New(clierr.CodeInternal, "hook registry is required")
	}
	if cfg.Token == nil {
		return nil, clierr.New(clierr.CodeInternal, "hook token collaborator is required")
	}
	adapters := make(map[vault.Protocol]Adapter, len(cfg.Adapters))
	for _, adapter := range cfg.Adapters {
		p := adapter.Protocol()
		if !p.Valid() {
			return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported adapter protocol: %s", p))
		}
		if _, dup := adapters[p]; dup {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("duplicate adapter for %s", p))
		}
		adapters[p] = adapter
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Hook{
		self:     cfg.Self,
		owner:    owner,
		registry: cfg.Registry,
		token:    cfg.Token,
		adapters: adapters,
		events:   cfg.Events,
		log:      log.Named("hook").With(zap.String("self", cfg.Self.Hex())),
		now:      time.Now,
		sem:      make(chan struct{}, 1),
	}, nil
}

func (h *Hook) Self() common.Address  { return h.self }
func (h *Hook) Owner() common.Address { return h.owner }

// GetVault returns the registered vault or the zero address. It is not gated.
func (h *Hook) GetVault(ctx context.Context, protocol vault.Protocol, token common.Address) (common.Address, error) {
	if !protocol.Valid() {
		return common.Address{}, unsupported(protocol)
	}
	return h.registry.Vault(ctx, protocol, token)
}

func (h *Hook) GetAaveVault(ctx context.Context, token common.Address) (common.Address, error) {
	return h.GetVault(ctx, vault.Aave, token)
}

func (h *Hook) GetCompoundVault(ctx context.Context, token common.Address) (common.Address, error) {
	return h.GetVault(ctx, vault.Compound, token)
}

func (h *Hook) GetFluidVault(ctx context.Context, token common.Address) (common.Address, error) {
	return h.GetVault(ctx, vault.Fluid, token)
}

// BuildCallData encodes signature with two address parameters.
func (h *Hook) BuildCallData(signature string, token, recipient common.Address) []byte {
	return calldata.Build(signature, token, recipient)
}

// emit is fire-and-forget: sink failures are logged and never fail the caller.
func (h *Hook) emit(ctx context.Context, ev events.Event) {
	if h.events == nil {
		return
	}
	ev.At = h.now().UTC()
	if err := h.events.Emit(ctx, ev); err != nil {
		h.log.Warn("event sink failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// balance reads self's balance of token. A failed read counts as zero.
func (h *Hook) balance(ctx context.Context, token common.Address) *big.Int {
	amount, err := h.token.BalanceOf(ctx, token, h.self)
	if err != nil {
		h.log.Debug("balance read failed", zap.String("token", token.Hex()), zap.Error(err))
		return new(big.Int)
	}
	if amount == nil {
		return new(big.Int)
	}
	return amount
}

func unsupported(protocol vault.Protocol) error {
	return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported protocol: %s", protocol))
}
