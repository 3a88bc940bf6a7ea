package thermal

import "fmt"

// Action is the binary control input applied during one step.
type Action uint8

const (
	ActionOff Action = iota
	ActionOn
)

func (a Action) Valid() bool {
	return a == ActionOff || a == ActionOn
}

func (a Action) String() string {
	switch a {
	case ActionOff:
		return "off"
	case ActionOn:
		return "on"
	default:
		return "unknown"
	}
}

// Power is the fraction of full power the action requests.
func (a Action) Power() float64 {
	if a == ActionOn {
		return 1
	}
	return 0
}

func ParseAction(s string) (Action, error) {
	switch s {
	case "off", "0":
		return ActionOff, nil
	case "on", "1":
		return ActionOn, nil
	default:
		return ActionOff, fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

// ActionsFromInts converts a 0/1 vector (as sent by API clients) into actions.
func ActionsFromInts(v []int) ([]Action, error) {
	out := make([]Action, len(v))
	for i, x := range v {
		if x != int(ActionOff) && x != int(ActionOn) {
			return nil, fmt.Errorf("%w: %d at index %d", ErrInvalidAction, x, i)
		}
		out[i] = Action(x)
	}
	return out, nil
}
