package chat

import (
	"errors"
	"fmt"
)

// Mode governs which optional request fields are sent to the backend and how
// a response is interpreted.
type Mode string

const (
	ModeNormal     Mode = "normal"
	ModeStructured Mode = "structured"
	ModeToolBased  Mode = "tool_based"
)

func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeNormal, ModeStructured, ModeToolBased:
		return Mode(value), nil
	default:
		return "", fmt.Errorf("unknown chat mode %q", value)
	}
}

// UnsupportedModeError reports a mode transition outside the agent's declared
// supported set. The active mode is left unchanged.
type UnsupportedModeError struct {
	Mode Mode
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("chat mode %q is not supported by this agent", e.Mode)
}

// ErrMissingFormat reports a structured-mode chat call with no response
// format available from either the call or the agent defaults.
var ErrMissingFormat = errors.New("structured mode requires a response format")

// MaxTurnsExceededError reports a tool-call loop that did not converge within
// the configured turn budget.
type MaxTurnsExceededError struct {
	Limit int
}

func (e *MaxTurnsExceededError) Error() string {
	return fmt.Sprintf("tool-call resolution exceeded %d turns without a final answer", e.Limit)
}
