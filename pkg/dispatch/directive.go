// Package dispatch routes directives that reached their final recipient to
// the control handler or the work subsystem, and turns every failure into an
// error response for the sender.
package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// ControlNamespace is reserved for actions the node answers itself.
const ControlNamespace = "receptor"

var (
	ErrInvalidDirective = errors.New("invalid directive")
	ErrUnknownAction    = errors.New("unknown control action")
)

type Kind int

const (
	KindWork Kind = iota
	KindControl
)

func (k Kind) String() string {
	if k == KindControl {
		return "control"
	}
	return "work"
}

// Directive is a parsed "namespace:action" string.
type Directive struct {
	Namespace string
	Action    string
}

// ParseDirective splits s on its first colon. Both halves must be non-empty.
func ParseDirective(s string) (Directive, error) {
	ns, action, ok := strings.Cut(s, ":")
	if !ok {
		return Directive{}, fmt.Errorf("%w: %q has no namespace separator", ErrInvalidDirective, s)
	}
	if ns == "" || action == "" {
		return Directive{}, fmt.Errorf("%w: %q", ErrInvalidDirective, s)
	}
	return Directive{Namespace: ns, Action: action}, nil
}

func (d Directive) Kind() Kind {
	if d.Namespace == ControlNamespace {
		return KindControl
	}
	return KindWork
}

func (d Directive) String() string { return d.Namespace + ":" + d.Action }

// ControlAction enumerates the actions of the control namespace.
type ControlAction int

const (
	ActionUnknown ControlAction = iota
	ActionPing
	ActionRoutes
	ActionStatus
	ActionAdvertise
)

var controlActions = map[string]ControlAction{
	"ping":      ActionPing,
	"routes":    ActionRoutes,
	"status":    ActionStatus,
	"advertise": ActionAdvertise,
}

func ParseControlAction(s string) (ControlAction, error) {
	if a, ok := controlActions[s]; ok {
		return a, nil
	}
	return ActionUnknown, fmt.Errorf("%w %q", ErrUnknownAction, s)
}

func (a ControlAction) String() string {
	for name, v := range controlActions {
		if v == a {
			return name
		}
	}
	return "unknown"
}
