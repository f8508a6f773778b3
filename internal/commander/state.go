package commander

import (
	"fmt"

	"github.com/relieflabs/firebreak/internal/model"
)

// allowedTransitions is the mission state machine. A mission moves only
// along these edges; terminal states have no outgoing edges.
var allowedTransitions = map[model.MissionState]map[model.MissionState]struct{}{
	model.StateInit: {
		model.StateTriaged: {},
	},
	model.StateTriaged: {
		model.StateEvaluating: {},
	},
	model.StateEvaluating: {
		model.StateAllowed:           {},
		model.StateRouted:            {},
		model.StateReflectionPending: {},
		model.StateHardBlocked:       {},
	},
	model.StateReflectionPending: {
		model.StateTriaged:     {},
		model.StateHardBlocked: {},
	},
	model.StateAllowed: {
		model.StateCompleted: {},
		model.StateFailed:    {},
	},
	model.StateRouted:      {},
	model.StateHardBlocked: {},
	model.StateCompleted:   {},
	model.StateFailed:      {},
}

// ValidateState checks that s is a known mission state.
func ValidateState(s model.MissionState) error {
	if _, ok := allowedTransitions[s]; !ok {
		return fmt.Errorf("invalid mission state: %q", s)
	}
	return nil
}

// ValidateTransition checks that moving between the two states is an
// edge of the state machine.
func ValidateTransition(from, to model.MissionState) error {
	if err := ValidateState(from); err != nil {
		return err
	}
	if err := ValidateState(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid mission transition: %s -> %s", from, to)
	}
	return nil
}

// mission tracks one run through the state machine.
type mission struct {
	state model.MissionState
}

func newMission() *mission {
	return &mission{state: model.StateInit}
}

// to advances the mission, enforcing the transition map.
func (m *mission) to(next model.MissionState) error {
	if err := ValidateTransition(m.state, next); err != nil {
		return err
	}
	m.state = next
	return nil
}
