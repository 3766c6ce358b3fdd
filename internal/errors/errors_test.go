package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCodeFollowsWrappedTypedError(t *testing.T) {
	inner := New(CodeDepositFailed, "deposit call failed")
	wrapped := fmt.Errorf("route deposit: %w", inner)
	if got := ExitCode(wrapped); got != int(CodeDepositFailed) {
		t.Fatalf("expected exit code %d, got %d", CodeDepositFailed, got)
	}
	if !HasCode(wrapped, CodeDepositFailed) {
		t.Fatal("expected HasCode to see wrapped code")
	}
	if HasCode(wrapped, CodeNotOwner) {
		t.Fatal("did not expect not-owner code")
	}
}

func TestExitCodeDefaults(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Fatalf("expected 0 for nil error, got %d", got)
	}
	if got := ExitCode(errors.New("boom")); got != int(CodeInternal) {
		t.Fatalf("expected internal exit code for untyped error, got %d", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(CodeUnavailable, "connect rpc", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable through Unwrap")
	}
	if err.Error() != "connect rpc: dial tcp: refused" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestTypeNameCoversHookCodes(t *testing.T) {
	cases := map[Code]string{
		CodeNotOwner:            "not_owner",
		CodeInsufficientBalance: "insufficient_balance",
		CodeApproveFailed:       "approve_failed",
		CodeDepositFailed:       "deposit_failed",
		CodeTransferFailed:      "transfer_failed",
		CodeVaultNotRegistered:  "vault_not_registered",
		CodeReentrant:           "reentrant_call",
		Code(99):                "internal_error",
	}
	for code, want := range cases {
		if got := TypeName(code); got != want {
			t.Fatalf("TypeName(%d) = %s, want %s", code, got, want)
		}
	}
}
