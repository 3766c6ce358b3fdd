package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type Kind string

const (
	KindVaultAdded     Kind = "vault_added"
	KindDeposit        Kind = "deposit_executed"
	KindTokenRecovered Kind = "token_recovered"
)

// Event is an observability record. Emission is fire-and-forget and an
// observed deposit event does not imply the forwarded call succeeded.
type Event struct {
	Kind      Kind           `json:"kind"`
	Protocol  string         `json:"protocol,omitempty"`
	Sender    common.Address `json:"sender"`
	Token     common.Address `json:"token"`
	Vault     common.Address `json:"vault,omitempty"`
	Recipient common.Address `json:"recipient,omitempty"`
	Amount    string         `json:"amount,omitempty"`
	At        time.Time      `json:"at"`
}

type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Logger writes each event as a structured log line.
type Logger struct {
	log *zap.Logger
}

func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("events")}
}

func (l *Logger) Emit(_ context.Context, ev Event) error {
	fields := []zap.Field{
		zap.String("kind", string(ev.Kind)),
		zap.String("sender", ev.Sender.Hex()),
		zap.String("token", ev.Token.Hex()),
	}
	if ev.Protocol != "" {
		fields = append(fields, zap.String("protocol", ev.Protocol))
	}
	if ev.Vault != (common.Address{}) {
		fields = append(fields, zap.String("vault", ev.Vault.Hex()))
	}
	if ev.Recipient != (common.Address{}) {
		fields = append(fields, zap.String("recipient", ev.Recipient.Hex()))
	}
	if ev.Amount != "" {
		fields = append(fields, zap.String("amount", ev.Amount))
	}
	l.log.Info("hook event", fields...)
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
