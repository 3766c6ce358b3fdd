package execution

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

type ActionStatus string

type StepStatus string

type StepType string

const (
	ActionStatusPlanned   ActionStatus = "planned"
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusSimulated StepStatus = "simulated"
	StepStatusSubmitted StepStatus = "submitted"
	StepStatusConfirmed StepStatus = "confirmed"
	StepStatusFailed    StepStatus = "failed"
)

const (
	StepTypeApproval StepType = "approval"
	StepTypeLend     StepType = "lend_call"
	StepTypeTransfer StepType = "transfer"
)

// Intent types recorded on actions planned by the hook.
const (
	IntentDeposit  = "deposit"
	IntentAddVault = "add_vault"
	IntentRecover  = "recover_token"
)

type Constraints struct {
	Simulate bool `json:"simulate"`
}

type ActionStep struct {
	StepID      string     `json:"step_id"`
	Type        StepType   `json:"type"`
	Status      StepStatus `json:"status"`
	ChainID     string     `json:"chain_id"`
	RPCURL      string     `json:"rpc_url,omitempty"`
	Description string     `json:"description,omitempty"`
	Target      string     `json:"target"`
	Data        string     `json:"data"`
	Value       string     `json:"value"`
	TxHash      string     `json:"tx_hash,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type Action struct {
	ActionID    string            `json:"action_id"`
	IntentType  string            `json:"intent_type"`
	Protocol    string            `json:"protocol,omitempty"`
	Status      ActionStatus      `json:"status"`
	ChainID     string            `json:"chain_id"`
	FromAddress string            `json:"from_address,omitempty"`
	ToAddress   string            `json:"to_address,omitempty"`
	InputAmount string            `json:"input_amount,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
	Constraints Constraints       `json:"constraints"`
	Steps       []ActionStep      `json:"steps"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func NewAction(actionID, intentType, chainID string, constraints Constraints) Action {
	now := time.Now().UTC().Format(time.RFC3339)
	return Action{
		ActionID:    actionID,
		IntentType:  intentType,
		Status:      ActionStatusPlanned,
		ChainID:     chainID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Constraints: constraints,
		Steps:       []ActionStep{},
		Metadata:    map[string]string{},
	}
}

func (a *Action) Touch() {
	a.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Pending reports whether any step still needs to be submitted.
func (a *Action) Pending() bool {
	for _, step := range a.Steps {
		if step.Status != StepStatusConfirmed {
			return true
		}
	}
	return false
}

// NewActionID returns a random identifier of the form act_<32 hex chars>.
func NewActionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "act_unknown"
	}
	return "act_" + hex.EncodeToString(b)
}
