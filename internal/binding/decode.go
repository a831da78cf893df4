package binding

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawStep mirrors a command or macro-call entry as written in a bindings file.
type rawStep struct {
	Destination Template[string] `yaml:"destination"`
	DelayBefore Template[int]    `yaml:"delayBefore"`
	DelayAfter  Template[int]    `yaml:"delayAfter"`
	Delay       Template[int]    `yaml:"delay"`

	KeySend  Template[Keys] `yaml:"keySend"`
	HoldKeys Template[Keys] `yaml:"holdKeys"`
	Duration Template[int]  `yaml:"duration"`

	TypeText          Template[string] `yaml:"typeText"`
	KeyDelay          Template[int]    `yaml:"keyDelay"`
	KeyDelayDeviation Template[int]    `yaml:"keyDelayDeviation"`

	MouseMoveX     Template[int] `yaml:"mouseMoveX"`
	MouseMoveY     Template[int] `yaml:"mouseMoveY"`
	LeftMouseClick *bool         `yaml:"leftMouseClick"`

	Launch         Template[string] `yaml:"launch"`
	Arguments      []string         `yaml:"arguments"`
	WaitTillFinish Template[bool]   `yaml:"waitTillFinish"`
	AssignID       string           `yaml:"assignId"`

	KillByName Template[string] `yaml:"killByName"`
	KillByPid  Template[int]    `yaml:"killByPid"`
	FocusPid   Template[int]    `yaml:"focusPid"`

	Macro     string           `yaml:"macro"`
	Variables map[string]Value `yaml:"variables"`
}

var stepKeys = map[string]struct{}{
	"destination": {}, "delayBefore": {}, "delayAfter": {}, "delay": {},
	"keySend": {}, "holdKeys": {}, "duration": {},
	"typeText": {}, "keyDelay": {}, "keyDelayDeviation": {},
	"mouseMoveX": {}, "mouseMoveY": {}, "leftMouseClick": {},
	"launch": {}, "arguments": {}, "waitTillFinish": {}, "assignId": {},
	"killByName": {}, "killByPid": {}, "focusPid": {},
	"macro": {}, "variables": {},
}

// checkKeys rejects mapping keys outside allowed.
func checkKeys(node *yaml.Node, allowed map[string]struct{}) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i < len(node.Content); i += 2 {
		k := node.Content[i]
		if _, ok := allowed[k.Value]; !ok {
			return fmt.Errorf("line %d: unknown field %q", k.Line, k.Value)
		}
	}
	return nil
}

// UnmarshalYAML decodes a command or a macro call.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if err := checkKeys(node, stepKeys); err != nil {
		return err
	}
	var raw rawStep
	if err := node.Decode(&raw); err != nil {
		return err
	}

	after := raw.DelayAfter
	if !after.IsSet() {
		after = raw.Delay
	}

	if raw.Macro != "" {
		if raw.Destination.IsSet() {
			return fmt.Errorf("line %d: %w: macro call %q cannot have a destination", node.Line, ErrInvalidCommand, raw.Macro)
		}
		*s = MacroStep(MacroCall{
			Name:        raw.Macro,
			Variables:   raw.Variables,
			DelayBefore: raw.DelayBefore,
			DelayAfter:  after,
		})
		return nil
	}
	if raw.Variables != nil {
		return fmt.Errorf("line %d: %w: variables are only valid on macro calls", node.Line, ErrInvalidCommand)
	}

	cmd := Command{
		Destination:       raw.Destination,
		DelayBefore:       raw.DelayBefore,
		DelayAfter:        after,
		Keys:              raw.KeySend,
		HoldKeys:          raw.HoldKeys,
		Duration:          raw.Duration,
		Text:              raw.TypeText,
		KeyDelay:          raw.KeyDelay,
		KeyDelayDeviation: raw.KeyDelayDeviation,
		X:                 raw.MouseMoveX,
		Y:                 raw.MouseMoveY,
		Path:              raw.Launch,
		Arguments:         raw.Arguments,
		WaitTillFinish:    raw.WaitTillFinish,
		AssignID:          raw.AssignID,
		ProcessName:       raw.KillByName,
	}

	var kinds []Kind
	if raw.KeySend.IsSet() {
		kinds = append(kinds, KindKeyPress)
	}
	if raw.FocusPid.IsSet() {
		kinds = append(kinds, KindFocusWindow)
		cmd.PID = raw.FocusPid
	}
	if raw.MouseMoveX.IsSet() || raw.MouseMoveY.IsSet() {
		kinds = append(kinds, KindMouseClick)
	}
	if raw.LeftMouseClick != nil && *raw.LeftMouseClick {
		kinds = append(kinds, KindLeftMouseClick)
	}
	if raw.Launch.IsSet() {
		kinds = append(kinds, KindLaunch)
	}
	if raw.TypeText.IsSet() {
		kinds = append(kinds, KindTypeText)
	}
	if raw.KillByName.IsSet() {
		kinds = append(kinds, KindKillByName)
	}
	if raw.KillByPid.IsSet() {
		kinds = append(kinds, KindKillByPid)
		cmd.PID = raw.KillByPid
	}

	switch len(kinds) {
	case 0:
		return fmt.Errorf("line %d: %w: no command field set", node.Line, ErrInvalidCommand)
	case 1:
		cmd.Kind = kinds[0]
	default:
		return fmt.Errorf("line %d: %w: fields of %v are mixed", node.Line, ErrInvalidCommand, kinds)
	}

	*s = CommandStep(cmd)
	return nil
}

// Fields returns the command as it would be written in a bindings file.
func (c Command) Fields() map[string]any {
	out := make(map[string]any)
	put := func(key string, v any, ok bool) {
		if ok {
			out[key] = v
		}
	}
	if v, ok := c.Destination.raw(); ok {
		out["destination"] = v
	}
	if v, ok := c.DelayBefore.raw(); ok {
		out["delayBefore"] = v
	}
	if v, ok := c.DelayAfter.raw(); ok {
		out["delayAfter"] = v
	}

	switch c.Kind {
	case KindKeyPress:
		v, ok := c.Keys.raw()
		put("keySend", v, ok)
		v, ok = c.HoldKeys.raw()
		put("holdKeys", v, ok)
		v, ok = c.Duration.raw()
		put("duration", v, ok)
	case KindTypeText:
		v, ok := c.Text.raw()
		put("typeText", v, ok)
		v, ok = c.KeyDelay.raw()
		put("keyDelay", v, ok)
		v, ok = c.KeyDelayDeviation.raw()
		put("keyDelayDeviation", v, ok)
	case KindMouseClick:
		v, ok := c.X.raw()
		put("mouseMoveX", v, ok)
		v, ok = c.Y.raw()
		put("mouseMoveY", v, ok)
	case KindLeftMouseClick:
		out["leftMouseClick"] = true
	case KindLaunch:
		v, ok := c.Path.raw()
		put("launch", v, ok)
		put("arguments", c.Arguments, len(c.Arguments) > 0)
		v, ok = c.WaitTillFinish.raw()
		put("waitTillFinish", v, ok)
		put("assignId", c.AssignID, c.AssignID != "")
	case KindKillByName:
		v, ok := c.ProcessName.raw()
		put("killByName", v, ok)
	case KindKillByPid:
		v, ok := c.PID.raw()
		put("killByPid", v, ok)
	case KindFocusWindow:
		v, ok := c.PID.raw()
		put("focusPid", v, ok)
	}
	return out
}

// MarshalJSON encodes the command in bindings-file form. Map keys are
// sorted, so equal commands always encode to equal bytes.
func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Fields())
}

// String renders the command for logs.
func (c Command) String() string {
	b, err := c.MarshalJSON()
	if err != nil {
		return string(c.Kind)
	}
	return string(b)
}

// Fields returns the macro call as it would be written in a bindings file.
func (m MacroCall) Fields() map[string]any {
	out := map[string]any{"macro": m.Name}
	if len(m.Variables) > 0 {
		out["variables"] = m.Variables
	}
	if v, ok := m.DelayBefore.raw(); ok {
		out["delayBefore"] = v
	}
	if v, ok := m.DelayAfter.raw(); ok {
		out["delayAfter"] = v
	}
	return out
}

// MarshalJSON encodes the macro call in bindings-file form.
func (m MacroCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Fields())
}

// MarshalJSON encodes whichever side of the step is set.
func (s Step) MarshalJSON() ([]byte, error) {
	if s.Macro != nil {
		return s.Macro.MarshalJSON()
	}
	if s.Command != nil {
		return s.Command.MarshalJSON()
	}
	return []byte("null"), nil
}

// String renders the step for logs.
func (s Step) String() string {
	b, _ := s.MarshalJSON()
	return string(b)
}

var groupKeys = map[string]struct{}{"ipNames": {}, "circular": {}}

// UnmarshalYAML accepts a name, a list of names, or {ipNames, circular}.
func (a *Alias) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*a = Alias{Target: node.Value}
		return nil
	case yaml.SequenceNode:
		var members []string
		if err := node.Decode(&members); err != nil {
			return err
		}
		*a = Alias{Members: members}
		return nil
	case yaml.MappingNode:
		if err := checkKeys(node, groupKeys); err != nil {
			return err
		}
		var g struct {
			IPNames  []string `yaml:"ipNames"`
			Circular bool     `yaml:"circular"`
		}
		if err := node.Decode(&g); err != nil {
			return err
		}
		*a = Alias{Members: g.IPNames, Circular: g.Circular}
		return nil
	default:
		return fmt.Errorf("line %d: alias must be a name, a list or a group", node.Line)
	}
}

// MarshalJSON encodes the alias in its shortest bindings-file form.
func (a Alias) MarshalJSON() ([]byte, error) {
	switch {
	case !a.IsGroup():
		return json.Marshal(a.Target)
	case a.Circular:
		return json.Marshal(map[string]any{"ipNames": a.Members, "circular": true})
	default:
		return json.Marshal(a.Members)
	}
}

// modifierKeys are accepted before the final key of a shortcut.
var modifierKeys = map[string]struct{}{
	"control": {}, "ctrl": {}, "alt": {}, "shift": {}, "meta": {}, "command": {},
	"win": {}, "cmd": {}, "super": {}, "left_alt": {}, "right_alt": {},
}

// normalizeShortCut lower-cases a shortcut for comparison.
func normalizeShortCut(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateShortCut checks the Modifier+Key format: one to three distinct
// modifiers followed by a main key.
func ValidateShortCut(s string) error {
	parts := strings.Split(normalizeShortCut(s), "+")
	if len(parts) < 2 || len(parts) > 4 {
		return fmt.Errorf("shortcut %q: expected Modifier+Key, e.g. Alt+1", s)
	}
	mods := parts[:len(parts)-1]
	seen := make(map[string]struct{}, len(mods))
	for _, m := range mods {
		if _, ok := modifierKeys[m]; !ok {
			return fmt.Errorf("shortcut %q: unknown modifier %q", s, m)
		}
		if _, dup := seen[m]; dup {
			return fmt.Errorf("shortcut %q: duplicate modifier %q", s, m)
		}
		seen[m] = struct{}{}
	}
	if parts[len(parts)-1] == "" {
		return fmt.Errorf("shortcut %q: missing key", s)
	}
	return nil
}

// sortedKeys returns the keys of m in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var bindingKeys = map[string]struct{}{
	"name": {}, "shortCut": {}, "commands": {}, "threads": {}, "threadsCircular": {},
	"circular": {}, "shuffle": {}, "delayBefore": {}, "delayAfter": {}, "delay": {},
}

// UnmarshalYAML decodes a binding and folds the legacy delay key into DelayAfter.
func (b *Binding) UnmarshalYAML(node *yaml.Node) error {
	if err := checkKeys(node, bindingKeys); err != nil {
		return err
	}
	type plain Binding
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*b = Binding(p)
	if b.DelayAfter == nil {
		b.DelayAfter = b.Delay
	}
	b.Delay = nil
	return nil
}
