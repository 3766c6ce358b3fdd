package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/lendhook/internal/config"
	"github.com/ggonzalez94/lendhook/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data: []model.VaultLookup{{
			Protocol:   "aave",
			Token:      "0x00000000000000000000000000000000000000a1",
			Vault:      "0x00000000000000000000000000000000000000b1",
			Registered: true,
		}},
		Meta: model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"vault"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["vault"] != "0x00000000000000000000000000000000000000b1" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["token"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderSelectDottedPath(t *testing.T) {
	env := model.Envelope{
		Success: true,
		Data:    model.Operation{Result: map[string]any{"amount": "100", "vault": "0xb1"}},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"result.amount", "result.missing"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if out["result.amount"] != "100" || len(out) != 1 {
		t.Fatalf("unexpected projection: %s", buf.String())
	}
}

func TestRenderPlain(t *testing.T) {
	env := model.Envelope{
		Success: true,
		Data:    []map[string]any{{"kind": "deposit_executed", "amount": "42"}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "amount=42 kind=deposit_executed" {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderPlainEmptyList(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, model.Envelope{Data: []string{}}, config.Settings{OutputMode: "plain", ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("unexpected plain output: %q", buf.String())
	}
}
