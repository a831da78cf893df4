package remote

// Endpoint paths on a target agent.
const (
	PathPing           = "ping"
	PathKeyPress       = "key-press"
	PathMouseClick     = "mouse-click"
	PathLeftMouseClick = "left-mouse-click"
	PathLaunch         = "launch-exe"
	PathKillByName     = "kill-exe-by-name"
	PathKillByPid      = "kill-exe-by-pid"
	PathTypeText       = "type-text"
	PathFocus          = "focus-exe"
)

// KeyPressRequest presses keys while holding HoldKeys.
type KeyPressRequest struct {
	Keys     []string `json:"keys"`
	HoldKeys []string `json:"holdKeys"`
	Duration *int     `json:"duration,omitempty"`
}

// MouseClickRequest moves to X,Y and clicks.
type MouseClickRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TypeTextRequest types Text, optionally pausing between keystrokes.
type TypeTextRequest struct {
	Text              string `json:"text"`
	KeyDelay          *int   `json:"keyDelay,omitempty"`
	KeyDelayDeviation *int   `json:"keyDelayDeviation,omitempty"`
}

// LaunchRequest starts an executable.
type LaunchRequest struct {
	Path           string   `json:"path"`
	Arguments      []string `json:"arguments"`
	WaitTillFinish bool     `json:"waitTillFinish"`
}

// LaunchResult is the part of the agent's process response relay uses.
type LaunchResult struct {
	PID    int
	HasPID bool
}

// KillByNameRequest kills every process with Name.
type KillByNameRequest struct {
	Name string `json:"name"`
}

// PIDRequest addresses one process. Used by kill-exe-by-pid and focus-exe.
type PIDRequest struct {
	PID int `json:"pid"`
}
