package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/farmlink/farmlink/internal/shared"
)

// guard makes one transition idempotent under a client key. The stored key is
// scoped to the transition and its target business key, so one client key
// reused against another settlement runs that transition normally. It is
// claimed in the same transaction as the transition and stores its result.
type guard struct {
	tx      TxRepository
	key     string
	claimed bool
}

func newGuard(tx TxRepository, transition Transition, target, clientKey string) *guard {
	g := &guard{tx: tx}
	if clientKey != "" {
		g.key = idempotencyKey(transition, target, clientKey)
	}
	return g
}

func idempotencyKey(transition Transition, target, clientKey string) string {
	return string(transition) + ":" + target + ":" + clientKey
}

// claim reserves the key. When it was already used, the stored result is
// decoded into out and replayed is true.
func (g *guard) claim(ctx context.Context, out any) (replayed bool, err error) {
	if g.key == "" {
		return false, nil
	}
	stored, err := g.tx.ClaimIdempotency(ctx, g.key)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		if err := json.Unmarshal(stored, out); err != nil {
			return false, fmt.Errorf("settlement: decode replayed result: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	g.claimed = true
	return false, nil
}

// complete is the last pipeline step: it stores the result under the key.
func (g *guard) complete(result any) shared.Step {
	return shared.Step{
		Name: "store idempotency result",
		Run: func(ctx context.Context) error {
			if !g.claimed {
				return nil
			}
			payload, err := json.Marshal(result)
			if err != nil {
				return err
			}
			return g.tx.CompleteIdempotency(ctx, g.key, payload)
		},
	}
}

// abort releases the claim after a failure on a non-atomic store and passes err through.
func (g *guard) abort(ctx context.Context, err error) error {
	if err == nil || !g.claimed || g.tx.Atomic() {
		return err
	}
	if rerr := g.tx.ReleaseIdempotency(ctx, g.key); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}
