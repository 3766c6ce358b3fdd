package hook

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/lendhook/internal/errors"
)

type invocationKey struct{}

// enter serializes invocations on h. The returned context marks the
// invocation so that a collaborator calling back into h with it is rejected
// instead of deadlocking.
func (h *Hook) enter(ctx context.Context) (context.Context, func(), error) {
	if active, _ := ctx.Value(invocationKey{}).(*Hook); active == h {
		return nil, nil, clierr.New(clierr.CodeReentrant, "reentrant call rejected")
	}
	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, clierr.Wrap(clierr.CodeUnavailable, "wait for hook", ctx.Err())
	}
	return context.WithValue(ctx, invocationKey{}, h), func() { <-h.sem }, nil
}

func (h *Hook) requireOwner(caller common.Address) error {
	if caller != h.owner {
		return clierr.New(clierr.CodeNotOwner, "caller is not the owner")
	}
	return nil
}
