package app

import (
	"strings"
	"time"

	clierr "github.com/ggonzalez94/lendhook/internal/errors"
	"github.com/ggonzalez94/lendhook/internal/execution"
	execsigner "github.com/ggonzalez94/lendhook/internal/execution/signer"
	"github.com/ggonzalez94/lendhook/internal/vault"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "actions",
		Short: "Inspect and submit planned hook actions",
	}

	var listStatus, listIntent, listProtocol string
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List planned actions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.ensureActionStore(); err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			filter := execution.ListFilter{
				Status: execution.ActionStatus(strings.ToLower(strings.TrimSpace(listStatus))),
				Intent: strings.ToLower(strings.TrimSpace(listIntent)),
				Limit:  listLimit,
			}
			if strings.TrimSpace(listProtocol) != "" {
				p, err := vault.ParseProtocol(listProtocol)
				if err != nil {
					return err
				}
				filter.Protocol = string(p)
			}
			items, err := s.actionStore.List(ctx, filter)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list actions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (planned|running|completed|failed)")
	listCmd.Flags().StringVar(&listIntent, "intent", "", "Filter by intent (deposit|add_vault|recover_token)")
	listCmd.Flags().StringVar(&listProtocol, "protocol", "", "Filter by protocol (aave|compound|fluid)")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum actions to return")

	var statusActionID string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Get one action",
		RunE: func(cmd *cobra.Command, _ []string) error {
			action, err := s.loadAction(statusActionID)
			if err != nil {
				return err
			}
			return s.emitSuccessWithAction(trimRootPath(cmd.CommandPath()), action, nil, action.ActionID)
		},
	}
	statusCmd.Flags().StringVar(&statusActionID, "action-id", "", "Action identifier")
	_ = statusCmd.MarkFlagRequired("action-id")

	var submit submitArgs
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Sign and broadcast the pending steps of an action",
		RunE: func(cmd *cobra.Command, _ []string) error {
			action, err := s.loadAction(submit.actionID)
			if err != nil {
				return err
			}
			path := trimRootPath(cmd.CommandPath())
			s.lastChain = action.ChainID
			if action.Status == execution.ActionStatusCompleted {
				return s.emitSuccessWithAction(path, action, []string{"action already completed"}, action.ActionID)
			}
			txSigner, err := execsigner.NewLocalSignerFromInputs(submit.keySource, submit.privateKey)
			if err != nil {
				return clierr.Wrap(clierr.CodeSigner, "load local signer", err)
			}
			opts, err := submit.options(action)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("simulate") {
				opts.Simulate = action.Constraints.Simulate
			}
			opts.Dial = s.runner.dial
			opts.Logger = s.log

			ctx, cancel := s.commandContext()
			defer cancel()
			if err := execution.ExecuteAction(ctx, s.actionStore, &action, txSigner, opts); err != nil {
				return err
			}
			return s.emitSuccessWithAction(path, action, nil, action.ActionID)
		},
	}
	submitCmd.Flags().StringVar(&submit.actionID, "action-id", "", "Action identifier")
	submitCmd.Flags().BoolVar(&submit.simulate, "simulate", true, "Run preflight simulation before submission (defaults to the planned setting)")
	submitCmd.Flags().StringVar(&submit.keySource, "key-source", execsigner.KeySourceAuto, "Key source (auto|env|file|keystore)")
	submitCmd.Flags().StringVar(&submit.privateKey, "private-key", "", "Private key hex override for local signer (less safe)")
	submitCmd.Flags().StringVar(&submit.pollInterval, "poll-interval", "2s", "Receipt polling interval")
	submitCmd.Flags().StringVar(&submit.stepTimeout, "step-timeout", "2m", "Per-step receipt timeout")
	submitCmd.Flags().Float64Var(&submit.gasMultiplier, "gas-multiplier", 1.2, "Gas estimate safety multiplier")
	submitCmd.Flags().StringVar(&submit.maxFeeGwei, "max-fee-gwei", "", "Optional EIP-1559 max fee (gwei)")
	submitCmd.Flags().StringVar(&submit.maxPriorityFeeGwei, "max-priority-fee-gwei", "", "Optional EIP-1559 max priority fee (gwei)")
	_ = submitCmd.MarkFlagRequired("action-id")

	root.AddCommand(listCmd)
	root.AddCommand(statusCmd)
	root.AddCommand(submitCmd)
	return root
}

type submitArgs struct {
	actionID           string
	simulate           bool
	keySource          string
	privateKey         string
	pollInterval       string
	stepTimeout        string
	gasMultiplier      float64
	maxFeeGwei         string
	maxPriorityFeeGwei string
}

func (a submitArgs) options(action execution.Action) (execution.ExecuteOptions, error) {
	opts := execution.DefaultExecuteOptions()
	opts.Simulate = a.simulate
	if strings.TrimSpace(a.pollInterval) != "" {
		d, err := time.ParseDuration(a.pollInterval)
		if err != nil || d <= 0 {
			return opts, clierr.New(clierr.CodeUsage, "invalid --poll-interval")
		}
		opts.PollInterval = d
	}
	if strings.TrimSpace(a.stepTimeout) != "" {
		d, err := time.ParseDuration(a.stepTimeout)
		if err != nil || d <= 0 {
			return opts, clierr.New(clierr.CodeUsage, "invalid --step-timeout")
		}
		opts.StepTimeout = d
	}
	if a.gasMultiplier <= 1 {
		return opts, clierr.New(clierr.CodeUsage, "--gas-multiplier must be > 1")
	}
	opts.GasMultiplier = a.gasMultiplier
	opts.MaxFeeGwei = strings.TrimSpace(a.maxFeeGwei)
	opts.MaxPriorityFeeGwei = strings.TrimSpace(a.maxPriorityFeeGwei)
	if len(action.Steps) == 0 {
		return opts, clierr.New(clierr.CodeUsage, "action has no executable steps")
	}
	return opts, nil
}

func (s *runtimeState) loadAction(actionID string) (execution.Action, error) {
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "--action-id is required")
	}
	if err := s.ensureActionStore(); err != nil {
		return execution.Action{}, err
	}
	ctx, cancel := s.commandContext()
	defer cancel()
	return s.actionStore.Get(ctx, actionID)
}
