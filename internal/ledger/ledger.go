// Package ledger is an in-memory EVM host for the hook: ERC20 balances and
// allowances plus lending vaults that pull funds with transferFrom. It
// implements protocol.Backend so the hook can run without a chain.
package ledger

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/lendhook/internal/protocol"
	"github.com/ggonzalez94/lendhook/internal/registry"
	"github.com/ggonzalez94/lendhook/internal/vault"
	"github.com/holiman/uint256"
)

var (
	erc20ABI = mustABI(registry.ERC20ABI)
	aaveABI  = mustABI(registry.AavePoolABI)
	cometABI = mustABI(registry.CometABI)
	fluidABI = mustABI(registry.FluidVaultABI)

	maxAllowance = new(uint256.Int).SetAllOne()
)

type token struct {
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
}

type lendingVault struct {
	protocol vault.Protocol
	// asset is fixed for Fluid vaults; Aave and Compound take it per call.
	asset    common.Address
	supplied map[common.Address]map[common.Address]*uint256.Int
}

// CallHook observes a call before it is applied. The ledger lock is not held.
type CallHook func(ctx context.Context, call protocol.Call)

// Ledger holds every account's state. The zero value is not usable; call New.
type Ledger struct {
	self common.Address

	mu           sync.Mutex
	tokens       map[common.Address]*token
	vaults       map[common.Address]*lendingVault
	sendFailures map[common.Address]map[protocol.CallKind]error
	readFailures map[common.Address]error
	calls        []protocol.Call
	onCall       CallHook
}

// New returns a ledger whose writes are issued from self.
func New(self common.Address) *Ledger {
	return &Ledger{
		self:         self,
		tokens:       make(map[common.Address]*token),
		vaults:       make(map[common.Address]*lendingVault),
		sendFailures: make(map[common.Address]map[protocol.CallKind]error),
		readFailures: make(map[common.Address]error),
	}
}

func (l *Ledger) Self() common.Address { return l.self }

func (l *Ledger) AddToken(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tokens[addr]; ok {
		return
	}
	l.tokens[addr] = &token{
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

// AddVault deploys a lending vault. asset is only consulted for Fluid vaults.
func (l *Ledger) AddVault(p vault.Protocol, addr, asset common.Address) error {
	if !p.Valid() {
		return fmt.Errorf("unsupported protocol: %s", p)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vaults[addr] = &lendingVault{
		protocol: p,
		asset:    asset,
		supplied: make(map[common.Address]map[common.Address]*uint256.Int),
	}
	return nil
}

func (l *Ledger) Mint(tokenAddr, holder common.Address, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[tokenAddr]
	if !ok {
		return fmt.Errorf("unknown token %s", tokenAddr.Hex())
	}
	next, overflow := new(uint256.Int).AddOverflow(balanceOf(t, holder), value)
	if overflow {
		return fmt.Errorf("mint overflows balance")
	}
	t.balances[holder] = next
	return nil
}

func (l *Ledger) BalanceOf(tokenAddr, holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[tokenAddr]
	if !ok {
		return new(big.Int)
	}
	return balanceOf(t, holder).ToBig()
}

func (l *Ledger) Allowance(tokenAddr, owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[tokenAddr]
	if !ok {
		return new(big.Int)
	}
	return allowanceOf(t, owner, spender).ToBig()
}

// Supplied returns the amount of asset credited to account inside a vault.
func (l *Ledger) Supplied(vaultAddr, asset, account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.vaults[vaultAddr]
	if !ok {
		return new(big.Int)
	}
	if amount, ok := v.supplied[asset][account]; ok {
		return amount.ToBig()
	}
	return new(big.Int)
}

// FailSend makes every call of kind to target fail with err until cleared.
func (l *Ledger) FailSend(target common.Address, kind protocol.CallKind, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendFailures[target] == nil {
		l.sendFailures[target] = make(map[protocol.CallKind]error)
	}
	l.sendFailures[target][kind] = err
}

// FailRead makes every read against target fail with err until cleared.
func (l *Ledger) FailRead(target common.Address, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readFailures[target] = err
}

func (l *Ledger) ClearFailures() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendFailures = make(map[common.Address]map[protocol.CallKind]error)
	l.readFailures = make(map[common.Address]error)
}

func (l *Ledger) OnCall(hook CallHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCall = hook
}

// Calls returns every call sent so far, including failed ones.
func (l *Ledger) Calls() []protocol.Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.Call(nil), l.calls...)
}

func (l *Ledger) Read(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readFailures[to]; err != nil {
		return nil, err
	}
	t, ok := l.tokens[to]
	if !ok {
		return nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	method, args, err := decode(erc20ABI, data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "balanceOf":
		return method.Outputs.Pack(balanceOf(t, args[0].(common.Address)).ToBig())
	case "allowance":
		return method.Outputs.Pack(allowanceOf(t, args[0].(common.Address), args[1].(common.Address)).ToBig())
	default:
		return nil, fmt.Errorf("%s is not a view method", method.Name)
	}
}

// Send applies call as if issued by the ledger's self account. The call is
// recorded first, then any registered hook runs, then the state changes.
func (l *Ledger) Send(ctx context.Context, call protocol.Call) error {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	failure := l.sendFailures[call.To][call.Kind]
	hook := l.onCall
	l.mu.Unlock()

	if failure != nil {
		return failure
	}
	if hook != nil {
		hook(ctx, call)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.tokens[call.To]; ok {
		return l.applyToken(t, call.Data)
	}
	if v, ok := l.vaults[call.To]; ok {
		return l.applyVault(call.To, v, call.Data)
	}
	return fmt.Errorf("no contract at %s", call.To.Hex())
}

func (l *Ledger) applyToken(t *token, data []byte) error {
	method, args, err := decode(erc20ABI, data)
	if err != nil {
		return err
	}
	switch method.Name {
	case "approve":
		amount, err := toUint256(args[1].(*big.Int))
		if err != nil {
			return err
		}
		setAllowance(t, l.self, args[0].(common.Address), amount)
		return nil
	case "transfer":
		amount, err := toUint256(args[1].(*big.Int))
		if err != nil {
			return err
		}
		return move(t, l.self, args[0].(common.Address), amount)
	default:
		return fmt.Errorf("unsupported token method %s", method.Name)
	}
}

func (l *Ledger) applyVault(addr common.Address, v *lendingVault, data []byte) error {
	var (
		asset, recipient common.Address
		amount           *big.Int
	)
	switch v.protocol {
	case vault.Aave:
		_, args, err := decode(aaveABI, data)
		if err != nil {
			return err
		}
		asset, amount, recipient = args[0].(common.Address), args[1].(*big.Int), args[2].(common.Address)
	case vault.Compound:
		_, args, err := decode(cometABI, data)
		if err != nil {
			return err
		}
		recipient, asset, amount = args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)
	case vault.Fluid:
		_, args, err := decode(fluidABI, data)
		if err != nil {
			return err
		}
		asset, amount, recipient = v.asset, args[0].(*big.Int), args[1].(common.Address)
	}

	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	t, ok := l.tokens[asset]
	if !ok {
		return fmt.Errorf("vault %s: unknown asset %s", addr.Hex(), asset.Hex())
	}
	if err := pull(t, l.self, addr, value); err != nil {
		return fmt.Errorf("vault %s: %w", addr.Hex(), err)
	}
	if v.supplied[asset] == nil {
		v.supplied[asset] = make(map[common.Address]*uint256.Int)
	}
	current, ok := v.supplied[asset][recipient]
	if !ok {
		current = new(uint256.Int)
	}
	v.supplied[asset][recipient] = new(uint256.Int).Add(current, value)
	return nil
}

// pull moves amount from owner to spender using spender's allowance.
// An allowance of MaxUint256 is never decremented.
func pull(t *token, owner, spender common.Address, amount *uint256.Int) error {
	allowance := allowanceOf(t, owner, spender)
	if allowance.Lt(amount) {
		return fmt.Errorf("transferFrom: insufficient allowance %s < %s", allowance.Dec(), amount.Dec())
	}
	if err := move(t, owner, spender, amount); err != nil {
		return err
	}
	if !allowance.Eq(maxAllowance) {
		setAllowance(t, owner, spender, new(uint256.Int).Sub(allowance, amount))
	}
	return nil
}

func move(t *token, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("transfer to the zero address")
	}
	fromBalance := balanceOf(t, from)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("transfer amount %s exceeds balance %s", amount.Dec(), fromBalance.Dec())
	}
	t.balances[from] = new(uint256.Int).Sub(fromBalance, amount)
	t.balances[to] = new(uint256.Int).Add(balanceOf(t, to), amount)
	return nil
}

func balanceOf(t *token, holder common.Address) *uint256.Int {
	if b, ok := t.balances[holder]; ok {
		return b
	}
	return new(uint256.Int)
}

func allowanceOf(t *token, owner, spender common.Address) *uint256.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return a
	}
	return new(uint256.Int)
}

func setAllowance(t *token, owner, spender common.Address, amount *uint256.Int) {
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	t.allowances[owner][spender] = amount
}

func decode(parsed abi.ABI, data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("calldata too short")
	}
	for name, method := range parsed.Methods {
		if !bytes.Equal(method.ID, data[:4]) {
			continue
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", name, err)
		}
		m := method
		return &m, args, nil
	}
	return nil, nil, fmt.Errorf("unknown selector %x", data[:4])
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %s", v)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("amount %s overflows uint256", v)
	}
	return out, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
