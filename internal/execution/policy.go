package execution

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/lendhook/internal/errors"
	"github.com/ggonzalez94/lendhook/internal/registry"
)

// Metadata keys written by the planner. Token, vault and recipient are
// checked before submission; caller records the address the operation was
// authorized as.
const (
	MetaToken     = "token"
	MetaVault     = "vault"
	MetaRecipient = "recipient"
	MetaCaller    = "caller"
)

var (
	policyERC20ABI = mustPolicyABI(registry.ERC20ABI)

	policyApprove  = policyERC20ABI.Methods["approve"]
	policyTransfer = policyERC20ABI.Methods["transfer"]

	policyLendSelectors = [][]byte{
		mustPolicyABI(registry.AavePoolABI).Methods["supply"].ID,
		mustPolicyABI(registry.CometABI).Methods["supplyTo"].ID,
		mustPolicyABI(registry.FluidVaultABI).Methods["deposit"].ID,
	}
)

// ValidateStep checks that a planned step only does what the hook is allowed
// to do with the action's token and vault.
func ValidateStep(action *Action, step *ActionStep, data []byte) error {
	if step == nil {
		return clierr.New(clierr.CodeInternal, "missing action step")
	}
	if !common.IsHexAddress(step.Target) {
		return clierr.New(clierr.CodeUsage, "invalid step target address")
	}

	switch step.Type {
	case StepTypeApproval:
		return validateApproval(action, step, data)
	case StepTypeLend:
		return validateLend(action, step, data)
	case StepTypeTransfer:
		return validateTransfer(action, step, data)
	default:
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("unsupported step type %q", step.Type))
	}
}

func validateApproval(action *Action, step *ActionStep, data []byte) error {
	if err := requireTarget(action, step, MetaToken); err != nil {
		return err
	}
	args, err := unpackCall(policyApprove, data)
	if err != nil {
		return clierr.New(clierr.CodeActionPlan, "approval step must use ERC20 approve(spender,amount)")
	}
	spender, ok := toAddress(args[0])
	if !ok || spender == (common.Address{}) {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid spender")
	}
	if !sameAddress(spender.Hex(), metadata(action, MetaVault)) {
		return clierr.New(clierr.CodeActionPlan, "approval spender does not match the registered vault")
	}
	amount, ok := toBigInt(args[1])
	if !ok || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid approval amount")
	}
	return nil
}

func validateLend(action *Action, step *ActionStep, data []byte) error {
	if err := requireTarget(action, step, MetaVault); err != nil {
		return err
	}
	if len(data) < 4 {
		return clierr.New(clierr.CodeActionPlan, "lend step calldata is too short")
	}
	for _, selector := range policyLendSelectors {
		if bytes.Equal(data[:4], selector) {
			return nil
		}
	}
	return clierr.New(clierr.CodeActionPlan, "lend step must call supply, supplyTo or deposit")
}

func validateTransfer(action *Action, step *ActionStep, data []byte) error {
	if err := requireTarget(action, step, MetaToken); err != nil {
		return err
	}
	args, err := unpackCall(policyTransfer, data)
	if err != nil {
		return clierr.New(clierr.CodeActionPlan, "transfer step must use ERC20 transfer(recipient,amount)")
	}
	recipient, ok := toAddress(args[0])
	if !ok {
		return clierr.New(clierr.CodeActionPlan, "transfer step has invalid recipient")
	}
	if want := metadata(action, MetaRecipient); want != "" && !sameAddress(recipient.Hex(), want) {
		return clierr.New(clierr.CodeActionPlan, "transfer recipient does not match the action recipient")
	}
	return nil
}

func requireTarget(action *Action, step *ActionStep, key string) error {
	want := metadata(action, key)
	if want == "" {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("action is missing %s metadata", key))
	}
	if !sameAddress(step.Target, want) {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("%s step target does not match action %s", step.Type, key))
	}
	return nil
}

func unpackCall(method abi.Method, data []byte) ([]any, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, fmt.Errorf("selector mismatch")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	if len(args) != len(method.Inputs) {
		return nil, fmt.Errorf("unexpected argument count")
	}
	return args, nil
}

func metadata(action *Action, key string) string {
	if action == nil || action.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(action.Metadata[key])
}

func sameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

func toAddress(v any) (common.Address, bool) {
	switch value := v.(type) {
	case common.Address:
		return value, true
	case *common.Address:
		if value == nil {
			return common.Address{}, false
		}
		return *value, true
	default:
		return common.Address{}, false
	}
}

func toBigInt(v any) (*big.Int, bool) {
	switch value := v.(type) {
	case *big.Int:
		if value == nil {
			return nil, false
		}
		return value, true
	case big.Int:
		cpy := value
		return &cpy, true
	default:
		return nil, false
	}
}

func mustPolicyABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
