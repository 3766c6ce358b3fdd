package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ggonzalez94/lendhook/internal/ledger"
	"github.com/ggonzalez94/lendhook/internal/model"
	"github.com/ggonzalez94/lendhook/internal/protocol"
)

const (
	ownerHex    = "0x9C96CFe9A37605bdb2D1462022265754f76B5E4B"
	strangerHex = "0x00000000000000000000000000000000000000ee"
	hookHex     = "0x0000000000000000000000000000000000001000"
	tokenHex    = "0x00000000000000000000000000000000000000a1"
	poolHex     = "0x00000000000000000000000000000000000000b1"
	cometHex    = "0x00000000000000000000000000000000000000b2"
	userHex     = "0x00000000000000000000000000000000000000c1"
)

type decodedEnvelope struct {
	Success  bool               `json:"success"`
	Data     json.RawMessage    `json:"data"`
	Error    *model.ErrorBody   `json:"error"`
	Warnings []string           `json:"warnings"`
	Meta     model.EnvelopeMeta `json:"meta"`
}

func decodeEnvelope(t *testing.T, buf *bytes.Buffer) decodedEnvelope {
	t.Helper()
	var env decodedEnvelope
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v output=%s", err, buf.String())
	}
	return env
}

// ledgerRunner runs commands against an in-memory ledger instead of an RPC
// endpoint. Hook flags come first so a test can override them.
type ledgerRunner struct {
	t      *testing.T
	ledger *ledger.Ledger
}

func (lr ledgerRunner) run(args ...string) (int, *bytes.Buffer, *bytes.Buffer) {
	lr.t.Helper()
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	r.newBackend = func(backendRequest) (protocol.Backend, func(), error) {
		return lr.ledger, func() {}, nil
	}
	base := []string{"--owner", ownerHex, "--hook-address", hookHex}
	code := r.Run(append(base, args...))
	return code, &stdout, &stderr
}
