package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Chain     string    `json:"chain,omitempty"`
	ActionID  string    `json:"action_id,omitempty"`
}

// CallData is the output of the calldata command.
type CallData struct {
	Signature string `json:"signature"`
	Selector  string `json:"selector"`
	Data      string `json:"data"`
	Length    int    `json:"length"`
}

// VaultLookup is one registry read.
type VaultLookup struct {
	Protocol   string `json:"protocol"`
	Token      string `json:"token"`
	Vault      string `json:"vault"`
	Registered bool   `json:"registered"`
}

// Operation wraps the result of a hook operation with the action it planned.
// Action is nil when the operation ran against a backend that applies calls
// immediately.
type Operation struct {
	Result any `json:"result"`
	Action any `json:"action,omitempty"`
}
