package models

import "fmt"

// Action is a discrete trading decision.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Actions lists every action in priority order. The position of an action
// in this slice is also its index in a Q-value vector.
var Actions = [3]Action{ActionBuy, ActionSell, ActionHold}

// Index returns the Q-vector slot of the action, or -1 when unknown.
func (a Action) Index() int {
	switch a {
	case ActionBuy:
		return 0
	case ActionSell:
		return 1
	case ActionHold:
		return 2
	default:
		return -1
	}
}

// ParseAction converts raw input into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if a.Index() < 0 {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}
