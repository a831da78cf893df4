package binding

// Kind identifies which remote action a Command performs.
type Kind string

// Command kinds.
const (
	KindKeyPress       Kind = "keyPress"
	KindTypeText       Kind = "typeText"
	KindMouseClick     Kind = "mouseClick"
	KindLeftMouseClick Kind = "leftMouseClick"
	KindLaunch         Kind = "launch"
	KindKillByName     Kind = "killByName"
	KindKillByPid      Kind = "killByPid"
	KindFocusWindow    Kind = "focusWindow"
)

// AllKinds returns every command kind in dispatch order.
func AllKinds() []Kind {
	return []Kind{
		KindKeyPress,
		KindFocusWindow,
		KindMouseClick,
		KindLeftMouseClick,
		KindLaunch,
		KindTypeText,
		KindKillByName,
		KindKillByPid,
	}
}

// Command is a single remote action addressed to a destination.
//
// Only the fields belonging to Kind are meaningful. Every field is a
// Template so that {{name}} tokens survive until substitution.
type Command struct {
	Kind        Kind
	Destination Template[string]
	DelayBefore Template[int]
	DelayAfter  Template[int]

	// KeyPress
	Keys     Template[Keys]
	HoldKeys Template[Keys]
	Duration Template[int]

	// TypeText
	Text              Template[string]
	KeyDelay          Template[int]
	KeyDelayDeviation Template[int]

	// MouseClick
	X Template[int]
	Y Template[int]

	// Launch
	Path           Template[string]
	Arguments      []string
	WaitTillFinish Template[bool]
	AssignID       string

	// KillByName
	ProcessName Template[string]

	// KillByPid and FocusWindow
	PID Template[int]
}

// WithDestination returns a copy of c addressed to dest.
func (c Command) WithDestination(dest string) Command {
	c.Destination = Literal(dest)
	return c
}

// MacroCall invokes a named macro with call-site variables.
type MacroCall struct {
	Name        string
	Variables   map[string]Value
	DelayBefore Template[int]
	DelayAfter  Template[int]
}

// Step is one entry of a command list: exactly one of Command or Macro is set.
type Step struct {
	Command *Command
	Macro   *MacroCall
}

// CommandStep wraps a command as a Step.
func CommandStep(c Command) Step {
	return Step{Command: &c}
}

// MacroStep wraps a macro call as a Step.
func MacroStep(m MacroCall) Step {
	return Step{Macro: &m}
}

// IsMacro reports whether the step is a macro call.
func (s Step) IsMacro() bool { return s.Macro != nil }

// VariableDecl declares a macro's formal variable.
type VariableDecl struct {
	Type     ValueType `yaml:"type" json:"type"`
	Optional bool      `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// Macro is a reusable command sequence with declared variables.
type Macro struct {
	Steps     []Step                  `yaml:"commands" json:"commands"`
	Variables map[string]VariableDecl `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// Alias maps a logical destination onto targets.
//
// A plain alias points at one name (a target or another alias). A group
// alias expands to all of Members, or to one of them per call when Circular.
type Alias struct {
	Target   string
	Members  []string
	Circular bool
}

// IsGroup reports whether the alias is a member group.
func (a Alias) IsGroup() bool {
	return a.Target == ""
}

// Shape is the top-level execution shape of a binding.
type Shape int

const (
	ShapeSequential Shape = iota
	ShapeThreads
	ShapeThreadsCircular
	ShapeCircular
	ShapeShuffle
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeSequential:
		return "sequential"
	case ShapeThreads:
		return "threads"
	case ShapeThreadsCircular:
		return "threadsCircular"
	case ShapeCircular:
		return "circular"
	case ShapeShuffle:
		return "shuffle"
	default:
		return "unknown"
	}
}

// Binding is the full definition attached to one trigger.
type Binding struct {
	Name            string   `yaml:"name" json:"name"`
	ShortCut        string   `yaml:"shortCut" json:"shortCut"`
	Commands        []Step   `yaml:"commands,omitempty" json:"commands,omitempty"`
	Threads         [][]Step `yaml:"threads,omitempty" json:"threads,omitempty"`
	ThreadsCircular [][]Step `yaml:"threadsCircular,omitempty" json:"threadsCircular,omitempty"`
	Circular        bool     `yaml:"circular,omitempty" json:"circular,omitempty"`
	Shuffle         bool     `yaml:"shuffle,omitempty" json:"shuffle,omitempty"`
	DelayBefore     *int     `yaml:"delayBefore,omitempty" json:"delayBefore,omitempty"`
	DelayAfter      *int     `yaml:"delayAfter,omitempty" json:"delayAfter,omitempty"`
	Delay           *int     `yaml:"delay,omitempty" json:"-"`
}

// Shape reports how the binding runs. Circular takes precedence over shuffle.
func (b *Binding) Shape() Shape {
	switch {
	case b.Threads != nil:
		return ShapeThreads
	case b.ThreadsCircular != nil:
		return ShapeThreadsCircular
	case b.Circular:
		return ShapeCircular
	case b.Shuffle:
		return ShapeShuffle
	default:
		return ShapeSequential
	}
}

// Table is a loaded, validated bindings file. Tables are never mutated
// after Parse returns, so they can be shared between goroutines.
type Table struct {
	Targets   map[string]string `yaml:"ips" json:"ips"`
	Aliases   map[string]Alias  `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Macros    map[string]Macro  `yaml:"macros,omitempty" json:"macros,omitempty"`
	Bindings  []Binding         `yaml:"combinations" json:"combinations"`
	Variables map[string]Value  `yaml:"variables,omitempty" json:"variables,omitempty"`

	// Delay is the upper bound of the random delay after a command when
	// neither the command nor its enclosing scope sets one (milliseconds).
	Delay int `yaml:"delay" json:"delay"`

	// DelayBefore is the same bound for the delay before a command.
	DelayBefore int `yaml:"delayBefore,omitempty" json:"delayBefore,omitempty"`
}

// IsTarget reports whether name is a concrete target.
func (t *Table) IsTarget(name string) bool {
	_, ok := t.Targets[name]
	return ok
}

// Binding returns the binding with the given name.
func (t *Table) Binding(name string) (*Binding, bool) {
	for i := range t.Bindings {
		if t.Bindings[i].Name == name {
			return &t.Bindings[i], true
		}
	}
	return nil, false
}

// BindingByShortCut returns the binding registered for a key combination.
// Matching ignores case.
func (t *Table) BindingByShortCut(shortCut string) (*Binding, bool) {
	want := normalizeShortCut(shortCut)
	for i := range t.Bindings {
		if normalizeShortCut(t.Bindings[i].ShortCut) == want {
			return &t.Bindings[i], true
		}
	}
	return nil, false
}
