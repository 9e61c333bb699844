package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
)

var _ domain.TransitionValidator = (*Validator)(nil)

// events converts domain.BatchTransitions into looplab/fsm EventDesc form,
// consolidating transitions with the same event+destination into a single
// EventDesc with multiple source states.
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range domain.BatchTransitions {
		k := key{event: string(t.Event), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.event,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// looplab/fsm tracks current state internally, so a short-lived machine is
// built per Apply call from the batch's persisted status.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Apply checks whether event is allowed from current and returns the
// destination status. A disallowed transition yields a
// domain.TransitionError.
func (v *Validator) Apply(ctx context.Context, current domain.BatchStatus, event domain.BatchEvent) (domain.BatchStatus, error) {
	machine := loopfsm.NewFSM(string(current), events, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{
				Event:   event,
				Current: current,
			}
		}
		return "", err
	}

	return domain.BatchStatus(machine.Current()), nil
}
