package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ggonzalez94/lendhook/internal/execution"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func runPlanned(t *testing.T, args ...string) (int, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	base := []string{"--owner", ownerHex, "--hook-address", hookHex, "--chain", "arbitrum"}
	code := NewRunnerWithWriters(&stdout, &stderr).Run(append(base, args...))
	return code, &stdout, &stderr
}

func planVaultApproval(t *testing.T) execution.Action {
	t.Helper()
	code, stdout, stderr := runPlanned(t, "vaults", "add", "--protocol", "aave", "--token", tokenHex, "--vault", poolHex, "--caller", ownerHex, "--simulate=false")
	if code != 0 {
		t.Fatalf("vaults add exit %d stderr=%s", code, stderr.String())
	}
	env := decodeEnvelope(t, stdout)
	if len(env.Warnings) != 1 || !strings.Contains(env.Warnings[0], "actions submit") {
		t.Fatalf("expected a submit hint warning, got %v", env.Warnings)
	}
	if env.Meta.Chain != "eip155:42161" {
		t.Fatalf("unexpected chain meta: %q", env.Meta.Chain)
	}
	var data struct {
		Action execution.Action `json:"action"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode operation: %v", err)
	}
	if data.Action.ActionID == "" || data.Action.ActionID != env.Meta.ActionID {
		t.Fatalf("expected action id in data and meta, got %q / %q", data.Action.ActionID, env.Meta.ActionID)
	}
	return data.Action
}

func TestVaultsAddPlansApprovalOffline(t *testing.T) {
	setTestEnv(t)
	action := planVaultApproval(t)
	if action.IntentType != execution.IntentAddVault || action.Protocol != "aave" {
		t.Fatalf("unexpected action: %+v", action)
	}
	if len(action.Steps) != 1 || action.Steps[0].Type != execution.StepTypeApproval {
		t.Fatalf("expected one approval step, got %+v", action.Steps)
	}
	step := action.Steps[0]
	if !strings.EqualFold(step.Target, tokenHex) || !strings.HasPrefix(step.Data, "0x095ea7b3") {
		t.Fatalf("unexpected approval step: %+v", step)
	}
	if step.RPCURL == "" || step.Status != execution.StepStatusPending {
		t.Fatalf("unexpected step state: %+v", step)
	}
	if !strings.EqualFold(action.Metadata[execution.MetaVault], poolHex) || !strings.EqualFold(action.Metadata[execution.MetaToken], tokenHex) {
		t.Fatalf("unexpected metadata: %v", action.Metadata)
	}
	if !strings.EqualFold(action.Metadata[execution.MetaCaller], ownerHex) {
		t.Fatalf("expected the authorizing caller in metadata, got %v", action.Metadata)
	}
	if !strings.EqualFold(action.FromAddress, hookHex) {
		t.Fatalf("expected the hook account as planned sender, got %s", action.FromAddress)
	}
	if err := execution.ValidateStep(&action, &action.Steps[0], hexutil.MustDecode(step.Data)); err != nil {
		t.Fatalf("planned step must pass the submit policy: %v", err)
	}
}

func TestActionsListAndStatus(t *testing.T) {
	setTestEnv(t)
	action := planVaultApproval(t)

	code, stdout, stderr := runPlanned(t, "actions", "list", "--results-only")
	if code != 0 {
		t.Fatalf("actions list exit %d stderr=%s", code, stderr.String())
	}
	var items []execution.Action
	if err := json.Unmarshal(stdout.Bytes(), &items); err != nil {
		t.Fatalf("decode actions: %v", err)
	}
	if len(items) != 1 || items[0].ActionID != action.ActionID {
		t.Fatalf("unexpected actions: %s", stdout.String())
	}

	code, stdout, _ = runPlanned(t, "actions", "list", "--intent", "deposit", "--results-only")
	if code != 0 || strings.TrimSpace(stdout.String()) != "[]" {
		t.Fatalf("expected no deposit actions, got code=%d out=%s", code, stdout.String())
	}

	code, stdout, stderr = runPlanned(t, "actions", "status", "--action-id", action.ActionID, "--select", "status", "--results-only")
	if code != 0 {
		t.Fatalf("actions status exit %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"planned"`) {
		t.Fatalf("unexpected status: %s", stdout.String())
	}

	code, _, stderr = runPlanned(t, "actions", "status", "--action-id", "act_missing")
	if code != 2 {
		t.Fatalf("expected usage exit 2 for a missing action, got %d stderr=%s", code, stderr.String())
	}
}

func TestActionsSubmitRequiresMatchingSigner(t *testing.T) {
	setTestEnv(t)
	action := planVaultApproval(t)

	code, _, stderr := runPlanned(t, "actions", "submit", "--action-id", action.ActionID)
	if code != 17 {
		t.Fatalf("expected signer exit 17 without key material, got %d stderr=%s", code, stderr.String())
	}

	code, _, stderr = runPlanned(t, "actions", "submit", "--action-id", action.ActionID, "--private-key", testPrivateKey)
	if code != 17 {
		t.Fatalf("expected signer exit 17 for a foreign key, got %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "does not match planned sender") {
		t.Fatalf("unexpected error: %s", stderr.String())
	}
}

func TestActionsSubmitRejectsBadOptions(t *testing.T) {
	setTestEnv(t)
	action := planVaultApproval(t)
	code, _, stderr := runPlanned(t, "actions", "submit", "--action-id", action.ActionID, "--private-key", testPrivateKey, "--gas-multiplier", "0.5")
	if code != 2 {
		t.Fatalf("expected usage exit 2, got %d stderr=%s", code, stderr.String())
	}
}
