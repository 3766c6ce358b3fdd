package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ggonzalez94/lendhook/internal/calldata"
	"github.com/ggonzalez94/lendhook/internal/chain"
	"github.com/ggonzalez94/lendhook/internal/config"
	clierr "github.com/ggonzalez94/lendhook/internal/errors"
	"github.com/ggonzalez94/lendhook/internal/events"
	"github.com/ggonzalez94/lendhook/internal/execution"
	"github.com/ggonzalez94/lendhook/internal/hook"
	"github.com/ggonzalez94/lendhook/internal/id"
	"github.com/ggonzalez94/lendhook/internal/model"
	"github.com/ggonzalez94/lendhook/internal/protocol"
	"github.com/ggonzalez94/lendhook/internal/registry"
	"github.com/ggonzalez94/lendhook/internal/vault"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type backendRequest struct {
	Settings config.Settings
	Chain    id.Chain
	Self     common.Address
	Action   *execution.Action
	Logger   *zap.Logger
}

// backendFactory returns the backend hook calls are issued against and a
// release func.
type backendFactory func(req backendRequest) (protocol.Backend, func(), error)

// chainBackend plans writes into req.Action against the configured RPC.
func chainBackend(req backendRequest) (protocol.Backend, func(), error) {
	rpcURL, err := registry.RPCURL(req.Chain, req.Settings.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	planner, err := chain.NewPlanner(chain.Options{
		Chain:    req.Chain,
		RPCURL:   rpcURL,
		From:     req.Self,
		Simulate: req.Settings.Simulate,
		Logger:   req.Logger,
	}, req.Action)
	if err != nil {
		return nil, nil, err
	}
	return planner, planner.Close, nil
}

type hookSession struct {
	hook    *hook.Hook
	action  *execution.Action
	caller  common.Address
	release func()
}

// openHook wires a hook over the sqlite registry and a fresh backend.
// Gated operations need an explicit caller; deposits default to the hook
// account itself.
func (s *runtimeState) openHook(intent string, settings config.Settings, gated bool) (*hookSession, error) {
	chainID, err := id.ParseChain(settings.Chain)
	if err != nil {
		return nil, err
	}
	s.lastChain = chainID.CAIP2
	self, err := id.ParseAddress("hook", settings.HookAddress)
	if err != nil {
		return nil, err
	}
	caller := self
	if gated || strings.TrimSpace(settings.Caller) != "" {
		caller, err = id.ParseAddress("caller", settings.Caller)
		if err != nil {
			return nil, err
		}
	}
	if err := s.ensureStore(); err != nil {
		return nil, err
	}

	action := execution.NewAction(execution.NewActionID(), intent, chainID.CAIP2, execution.Constraints{Simulate: settings.Simulate})
	action.FromAddress = self.Hex()
	backend, release, err := s.runner.newBackend(backendRequest{
		Settings: settings,
		Chain:    chainID,
		Self:     self,
		Action:   &action,
		Logger:   s.log,
	})
	if err != nil {
		return nil, err
	}
	h, err := hook.New(hook.Config{
		Self:     self,
		Owner:    settings.Owner,
		Registry: s.store,
		Token:    protocol.NewERC20(backend),
		Adapters: []hook.Adapter{
			protocol.NewAave(backend),
			protocol.NewCompound(backend),
			protocol.NewFluid(backend),
		},
		Events: events.Multi{s.store, events.NewLogger(s.log)},
		Logger: s.log,
	})
	if err != nil {
		release()
		return nil, err
	}
	return &hookSession{hook: h, action: &action, caller: caller, release: release}, nil
}

// finishOperation persists the planned action, if the backend produced one,
// and renders the receipt.
func (s *runtimeState) finishOperation(ctx context.Context, cmd *cobra.Command, sess *hookSession, receipt hook.Receipt) error {
	path := trimRootPath(cmd.CommandPath())
	if len(sess.action.Steps) == 0 {
		return s.emitSuccess(path, model.Operation{Result: receipt}, nil)
	}

	action := sess.action
	action.Protocol = string(receipt.Protocol)
	action.InputAmount = receipt.Amount
	setMeta(action, execution.MetaToken, receipt.Token)
	setMeta(action, execution.MetaVault, receipt.Vault)
	setMeta(action, execution.MetaRecipient, receipt.Recipient)
	setMeta(action, execution.MetaCaller, receipt.Caller)
	switch {
	case receipt.Vault != (common.Address{}):
		action.ToAddress = receipt.Vault.Hex()
	case receipt.Recipient != (common.Address{}):
		action.ToAddress = receipt.Recipient.Hex()
	}
	action.Touch()

	if err := s.ensureActionStore(); err != nil {
		return err
	}
	if err := s.actionStore.Save(ctx, *action); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "persist planned action", err)
	}
	warnings := []string{fmt.Sprintf("calls are planned, not broadcast; run `actions submit --action-id %s`", action.ActionID)}
	return s.emitSuccessWithAction(path, model.Operation{Result: receipt, Action: action}, warnings, action.ActionID)
}

func setMeta(action *execution.Action, key string, addr common.Address) {
	if addr == (common.Address{}) {
		return
	}
	if action.Metadata == nil {
		action.Metadata = map[string]string{}
	}
	action.Metadata[key] = addr.Hex()
}

// commandSettings applies a command-local --simulate override.
func (s *runtimeState) commandSettings(cmd *cobra.Command, simulate bool) config.Settings {
	settings := s.settings
	if cmd.Flags().Changed("simulate") {
		settings.Simulate = simulate
	}
	return settings
}

func (s *runtimeState) newDepositCommand() *cobra.Command {
	var protocolArg, tokenArg, recipientArg string
	var simulate bool
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Sweep the hook's token balance into the registered vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := vault.ParseProtocol(protocolArg)
			if err != nil {
				return err
			}
			token, err := id.ParseAddress("token", tokenArg)
			if err != nil {
				return err
			}
			recipient, err := id.ParseAddress("recipient", recipientArg)
			if err != nil {
				return err
			}
			sess, err := s.openHook(execution.IntentDeposit, s.commandSettings(cmd, simulate), false)
			if err != nil {
				return err
			}
			defer sess.release()

			ctx, cancel := s.commandContext()
			defer cancel()
			receipt, err := sess.hook.Deposit(ctx, sess.caller, p, token, recipient)
			if err != nil {
				return err
			}
			return s.finishOperation(ctx, cmd, sess, receipt)
		},
	}
	cmd.Flags().StringVar(&protocolArg, "protocol", "", "Lending protocol (aave|compound|fluid)")
	cmd.Flags().StringVar(&tokenArg, "token", "", "Token address")
	cmd.Flags().StringVar(&recipientArg, "recipient", "", "Account credited with the vault position")
	cmd.Flags().BoolVar(&simulate, "simulate", true, "Simulate planned calls against the chain")
	_ = cmd.MarkFlagRequired("protocol")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("recipient")
	return cmd
}

func (s *runtimeState) newVaultsCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "vaults",
		Aliases: []string{"vault"},
		Short:   "Manage the token to vault registry",
	}

	var addProtocol, addToken, addVault string
	var addSimulate bool
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a vault for a token and approve it (owner only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := vault.ParseProtocol(addProtocol)
			if err != nil {
				return err
			}
			token, err := id.ParseAddress("token", addToken)
			if err != nil {
				return err
			}
			vaultAddr, err := id.ParseAddress("vault", addVault)
			if err != nil {
				return err
			}
			sess, err := s.openHook(execution.IntentAddVault, s.commandSettings(cmd, addSimulate), true)
			if err != nil {
				return err
			}
			defer sess.release()

			ctx, cancel := s.commandContext()
			defer cancel()
			receipt, err := sess.hook.AddVault(ctx, sess.caller, p, token, vaultAddr)
			if err != nil {
				return err
			}
			return s.finishOperation(ctx, cmd, sess, receipt)
		},
	}
	addCmd.Flags().StringVar(&addProtocol, "protocol", "", "Lending protocol (aave|compound|fluid)")
	addCmd.Flags().StringVar(&addToken, "token", "", "Token address")
	addCmd.Flags().StringVar(&addVault, "vault", "", "Vault address (Aave pool, Comet market or Fluid fToken)")
	addCmd.Flags().BoolVar(&addSimulate, "simulate", true, "Simulate the approval against the chain")
	_ = addCmd.MarkFlagRequired("protocol")
	_ = addCmd.MarkFlagRequired("token")
	_ = addCmd.MarkFlagRequired("vault")

	var getProtocol, getToken string
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Look up the vault registered for a token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := vault.ParseProtocol(getProtocol)
			if err != nil {
				return err
			}
			token, err := id.ParseAddress("token", getToken)
			if err != nil {
				return err
			}
			if err := s.ensureStore(); err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			vaultAddr, err := s.store.Vault(ctx, p, token)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "read vault registry", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.VaultLookup{
				Protocol:   string(p),
				Token:      token.Hex(),
				Vault:      vaultAddr.Hex(),
				Registered: vaultAddr != (common.Address{}),
			}, nil)
		},
	}
	getCmd.Flags().StringVar(&getProtocol, "protocol", "", "Lending protocol (aave|compound|fluid)")
	getCmd.Flags().StringVar(&getToken, "token", "", "Token address")
	_ = getCmd.MarkFlagRequired("protocol")
	_ = getCmd.MarkFlagRequired("token")

	var listProtocol string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered vaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			protocols := vault.Protocols()
			if strings.TrimSpace(listProtocol) != "" {
				p, err := vault.ParseProtocol(listProtocol)
				if err != nil {
					return err
				}
				protocols = []vault.Protocol{p}
			}
			if err := s.ensureStore(); err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			items := make([]vault.Entry, 0)
			for _, p := range protocols {
				entries, err := s.store.Vaults(ctx, p)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "list vault registry", err)
				}
				items = append(items, entries...)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	listCmd.Flags().StringVar(&listProtocol, "protocol", "", "Only list one protocol")

	root.AddCommand(addCmd)
	root.AddCommand(getCmd)
	root.AddCommand(listCmd)
	return root
}

func (s *runtimeState) newRecoverCommand() *cobra.Command {
	var tokenArg, recipientArg string
	var simulate bool
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Transfer the hook's entire token balance to a recipient (owner only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := id.ParseAddress("token", tokenArg)
			if err != nil {
				return err
			}
			recipient, err := id.ParseAddress("recipient", recipientArg)
			if err != nil {
				return err
			}
			sess, err := s.openHook(execution.IntentRecover, s.commandSettings(cmd, simulate), true)
			if err != nil {
				return err
			}
			defer sess.release()

			ctx, cancel := s.commandContext()
			defer cancel()
			receipt, err := sess.hook.RecoverToken(ctx, sess.caller, token, recipient)
			if err != nil {
				return err
			}
			return s.finishOperation(ctx, cmd, sess, receipt)
		},
	}
	cmd.Flags().StringVar(&tokenArg, "token", "", "Token address")
	cmd.Flags().StringVar(&recipientArg, "recipient", "", "Recipient address")
	cmd.Flags().BoolVar(&simulate, "simulate", true, "Simulate the transfer against the chain")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("recipient")
	return cmd
}

func (s *runtimeState) newCallDataCommand() *cobra.Command {
	var signature, tokenArg, recipientArg string
	cmd := &cobra.Command{
		Use:   "calldata",
		Short: "Encode a call with two address parameters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := id.ParseAddress("token", tokenArg)
			if err != nil {
				return err
			}
			recipient, err := id.ParseAddress("recipient", recipientArg)
			if err != nil {
				return err
			}
			data := calldata.Build(signature, token, recipient)
			selector := calldata.Selector(signature)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.CallData{
				Signature: signature,
				Selector:  hexutil.Encode(selector[:]),
				Data:      hexutil.Encode(data),
				Length:    len(data),
			}, nil)
		},
	}
	cmd.Flags().StringVar(&signature, "signature", "", "Canonical function signature, e.g. transfer(address,address)")
	cmd.Flags().StringVar(&tokenArg, "token", "", "First address parameter")
	cmd.Flags().StringVar(&recipientArg, "recipient", "", "Second address parameter")
	_ = cmd.MarkFlagRequired("signature")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("recipient")
	return cmd
}

func (s *runtimeState) newEventsCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "events",
		Short: "Inspect the hook event log",
	}
	var kindArg string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded events, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := parseEventKind(kindArg)
			if err != nil {
				return err
			}
			if err := s.ensureStore(); err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			items, err := s.store.Events(ctx, kind, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list events", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	listCmd.Flags().StringVar(&kindArg, "kind", "", "Filter by kind (vault_added|deposit_executed|token_recovered)")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum events to return")
	root.AddCommand(listCmd)
	return root
}

func parseEventKind(input string) (events.Kind, error) {
	kind := events.Kind(strings.ToLower(strings.TrimSpace(input)))
	switch kind {
	case "", events.KindVaultAdded, events.KindDeposit, events.KindTokenRecovered:
		return kind, nil
	default:
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown event kind: %s", input))
	}
}
