package types

import "fmt"

// Action enumerates change notification actions.
type Action int

// Change notification actions.
const (
	ActionAdd Action = iota
	ActionUpdate
	ActionDelete
	ActionRebuild
)

var actionNames = [...]string{
	ActionAdd:     "add",
	ActionUpdate:  "update",
	ActionDelete:  "delete",
	ActionRebuild: "rebuild",
}

// String returns the lowercase action name.
func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// Inverse returns the action that undoes a. Update and Rebuild are their own
// inverse.
func (a Action) Inverse() Action {
	switch a {
	case ActionAdd:
		return ActionDelete
	case ActionDelete:
		return ActionAdd
	default:
		return a
	}
}

// Event is a change notification. Rebuild events carry no handles.
type Event struct {
	Kind    Kind
	Action  Action
	Handles []Handle
}

// Name renders the event as "<kind>-<action>", e.g. "textile-add".
func (e Event) Name() string {
	return e.Kind.String() + "-" + e.Action.String()
}
