// Package chain backs the hook with a live EVM chain. Reads go straight to
// eth_call; writes are optionally simulated and then recorded as steps of an
// execution.Action for later signing and broadcast.
package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/lendhook/internal/errors"
	"github.com/ggonzalez94/lendhook/internal/execution"
	"github.com/ggonzalez94/lendhook/internal/id"
	"github.com/ggonzalez94/lendhook/internal/protocol"
	"go.uber.org/zap"
)

type Options struct {
	Chain  id.Chain
	RPCURL string
	// From is the hook account used as msg.sender for reads and simulations.
	From     common.Address
	Simulate bool
	// Caller overrides the lazily dialed ethclient.
	Caller ethereum.ContractCaller
	Logger *zap.Logger
}

// Planner implements protocol.Backend on top of an RPC endpoint.
type Planner struct {
	opts   Options
	action *execution.Action
	log    *zap.Logger

	mu     sync.Mutex
	caller ethereum.ContractCaller
	client *ethclient.Client
}

func NewPlanner(opts Options, action *execution.Action) (*Planner, error) {
	if strings.TrimSpace(opts.RPCURL) == "" && opts.Caller == nil {
		return nil, clierr.New(clierr.CodeUsage, "rpc url is required")
	}
	if action == nil {
		return nil, clierr.New(clierr.CodeInternal, "planner requires an action")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{
		opts:   opts,
		action: action,
		log:    log.Named("chain").With(zap.String("chain", opts.Chain.CAIP2)),
		caller: opts.Caller,
	}, nil
}

func (p *Planner) Action() *execution.Action { return p.action }

func (p *Planner) Read(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	caller, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{From: p.opts.From, To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "eth_call", err)
	}
	return out, nil
}

// Send simulates call when enabled and appends it to the action as a pending step.
func (p *Planner) Send(ctx context.Context, call protocol.Call) error {
	if p.opts.Simulate {
		caller, err := p.dial(ctx)
		if err != nil {
			return err
		}
		msg := ethereum.CallMsg{From: p.opts.From, To: &call.To, Data: call.Data}
		if _, err := caller.CallContract(ctx, msg, nil); err != nil {
			p.log.Debug("simulation reverted", zap.String("kind", string(call.Kind)), zap.String("to", call.To.Hex()), zap.Error(err))
			return clierr.Wrap(clierr.CodeActionSim, "simulate "+string(call.Kind), err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.action.Steps = append(p.action.Steps, execution.ActionStep{
		StepID:      fmt.Sprintf("%s-%d", call.Kind, len(p.action.Steps)+1),
		Type:        execution.StepType(call.Kind),
		Status:      execution.StepStatusPending,
		ChainID:     p.opts.Chain.CAIP2,
		RPCURL:      p.opts.RPCURL,
		Description: call.Description,
		Target:      call.To.Hex(),
		Data:        hexutil.Encode(call.Data),
		Value:       "0",
	})
	p.action.Touch()
	return nil
}

func (p *Planner) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
}

func (p *Planner) dial(ctx context.Context) (ethereum.ContractCaller, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.caller != nil {
		return p.caller, nil
	}
	client, err := ethclient.DialContext(ctx, p.opts.RPCURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	p.client = client
	p.caller = client
	return client, nil
}
