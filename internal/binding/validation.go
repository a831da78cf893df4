package binding

import (
	"fmt"
	"strings"
)

// Validation limits.
const (
	maxNameLength = 100
	maxDelayMS    = 300000 // 5 minutes
)

// validator collects every problem in a table instead of stopping at the first.
type validator struct {
	t    *Table
	errs []string
}

func (v *validator) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Sprintf(format, args...))
}

// Validate checks a table for structural and referential errors.
//
// It enforces, among others: one shape per binding, unique names and
// shortcuts, known destinations, existing macros, declared and well-typed
// macro variables, and acyclic aliases and macros.
//
// Returns an error wrapping ErrInvalidTable that lists every problem found.
func Validate(t *Table) error {
	if t == nil {
		return fmt.Errorf("%w: empty table", ErrInvalidTable)
	}
	v := &validator{t: t}

	if len(t.Targets) == 0 {
		v.addf("ips: at least one target is required")
	}
	for _, name := range sortedKeys(t.Targets) {
		if strings.TrimSpace(t.Targets[name]) == "" {
			v.addf("ips.%s: address is required", name)
		}
	}
	if t.Delay < 0 || t.Delay > maxDelayMS {
		v.addf("delay: must be 0-%d", maxDelayMS)
	}
	if t.DelayBefore < 0 || t.DelayBefore > maxDelayMS {
		v.addf("delayBefore: must be 0-%d", maxDelayMS)
	}

	v.aliases()
	v.macros()
	v.bindings()

	if len(v.errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTable, strings.Join(v.errs, "; "))
	}
	return nil
}

func (v *validator) isDestination(name string) bool {
	if v.t.IsTarget(name) {
		return true
	}
	_, ok := v.t.Aliases[name]
	return ok
}

func (v *validator) aliases() {
	for _, name := range sortedKeys(v.t.Aliases) {
		a := v.t.Aliases[name]
		if v.t.IsTarget(name) {
			v.addf("aliases.%s: alias shadows a target of the same name", name)
		}
		refs := a.Members
		if !a.IsGroup() {
			refs = []string{a.Target}
		} else if len(a.Members) == 0 {
			v.addf("aliases.%s: group has no members", name)
		}
		for _, ref := range refs {
			if !v.isDestination(ref) {
				v.addf("aliases.%s: %q is not a known target or alias", name, ref)
			}
		}
	}

	// Cycle detection over alias references.
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(v.t.Aliases))
	var visit func(name string, path []string)
	visit = func(name string, path []string) {
		a, ok := v.t.Aliases[name]
		if !ok {
			return
		}
		switch state[name] {
		case visiting:
			v.addf("aliases: cycle %s", strings.Join(append(path, name), " -> "))
			return
		case done:
			return
		}
		state[name] = visiting
		refs := a.Members
		if !a.IsGroup() {
			refs = []string{a.Target}
		}
		for _, ref := range refs {
			visit(ref, append(path, name))
		}
		state[name] = done
	}
	for _, name := range sortedKeys(v.t.Aliases) {
		visit(name, nil)
	}
}

func (v *validator) macros() {
	for _, name := range sortedKeys(v.t.Macros) {
		m := v.t.Macros[name]
		where := "macros." + name
		if len(m.Steps) == 0 {
			v.addf("%s: no commands", where)
		}
		for vname, decl := range m.Variables {
			if decl.Type != TypeString && decl.Type != TypeNumber {
				v.addf("%s.variables.%s: type must be string or number", where, vname)
			}
		}
		for i, s := range m.Steps {
			v.step(fmt.Sprintf("%s.commands[%d]", where, i), s, m.Variables)
		}
	}

	// Macros may call macros, but not themselves through any chain.
	state := make(map[string]int, len(v.t.Macros))
	var visit func(name string, path []string)
	visit = func(name string, path []string) {
		m, ok := v.t.Macros[name]
		if !ok {
			return
		}
		switch state[name] {
		case 1:
			v.addf("macros: recursive call %s", strings.Join(append(path, name), " -> "))
			return
		case 2:
			return
		}
		state[name] = 1
		for _, s := range m.Steps {
			if s.Macro != nil {
				visit(s.Macro.Name, append(path, name))
			}
		}
		state[name] = 2
	}
	for _, name := range sortedKeys(v.t.Macros) {
		visit(name, nil)
	}
}

func (v *validator) bindings() {
	names := make(map[string]int, len(v.t.Bindings))
	shortCuts := make(map[string]int, len(v.t.Bindings))

	for i := range v.t.Bindings {
		b := &v.t.Bindings[i]
		where := fmt.Sprintf("combinations[%d]", i)

		switch {
		case b.Name == "":
			v.addf("%s: name is required", where)
		case len(b.Name) > maxNameLength:
			v.addf("%s: name exceeds %d characters", where, maxNameLength)
		default:
			if j, dup := names[b.Name]; dup {
				v.addf("%s: name %q already used at index %d", where, b.Name, j)
			}
			names[b.Name] = i
		}

		if err := ValidateShortCut(b.ShortCut); err != nil {
			v.addf("%s: %v", where, err)
		} else {
			key := normalizeShortCut(b.ShortCut)
			if j, dup := shortCuts[key]; dup {
				v.addf("%s: shortcut %s already exists at index %d", where, b.ShortCut, j)
			}
			shortCuts[key] = i
		}

		if b.DelayBefore != nil && (*b.DelayBefore < 0 || *b.DelayBefore > maxDelayMS) {
			v.addf("%s.delayBefore: must be 0-%d", where, maxDelayMS)
		}
		if b.DelayAfter != nil && (*b.DelayAfter < 0 || *b.DelayAfter > maxDelayMS) {
			v.addf("%s.delayAfter: must be 0-%d", where, maxDelayMS)
		}

		v.binding(where, b)
	}
}

func (v *validator) binding(where string, b *Binding) {
	shapes := 0
	if b.Commands != nil {
		shapes++
	}
	if b.Threads != nil {
		shapes++
	}
	if b.ThreadsCircular != nil {
		shapes++
	}
	if shapes != 1 {
		v.addf("%s: exactly one of commands, threads or threadsCircular must be present", where)
		return
	}
	if (b.Circular || b.Shuffle) && b.Commands == nil {
		v.addf("%s: circular and shuffle apply to commands only", where)
	}

	switch b.Shape() {
	case ShapeCircular, ShapeShuffle:
		if b.Circular && len(b.Commands) <= 1 {
			v.addf("%s: circular=true requires more than one command", where)
		}
		v.flat(where+".commands", b.Commands)
	case ShapeThreadsCircular:
		if len(b.ThreadsCircular) == 0 {
			v.addf("%s.threadsCircular: no threads", where)
		}
		for i, thread := range b.ThreadsCircular {
			v.flat(fmt.Sprintf("%s.threadsCircular[%d]", where, i), thread)
		}
	case ShapeThreads:
		if len(b.Threads) == 0 {
			v.addf("%s.threads: no threads", where)
		}
		for i, thread := range b.Threads {
			v.list(fmt.Sprintf("%s.threads[%d]", where, i), thread)
		}
	default:
		v.list(where+".commands", b.Commands)
	}
}

// flat validates a list that is alias-expanded up front and so cannot hold macro calls.
func (v *validator) flat(where string, steps []Step) {
	if len(steps) == 0 {
		v.addf("%s: no commands", where)
	}
	for i, s := range steps {
		at := fmt.Sprintf("%s[%d]", where, i)
		if s.IsMacro() {
			v.addf("%s: macro calls are not allowed here", at)
			continue
		}
		v.step(at, s, nil)
	}
}

func (v *validator) list(where string, steps []Step) {
	if len(steps) == 0 {
		v.addf("%s: no commands", where)
	}
	for i, s := range steps {
		v.step(fmt.Sprintf("%s[%d]", where, i), s, nil)
	}
}

// step validates one entry. scope is the enclosing macro's declarations, or
// nil at binding level where tokens are left for the variable store.
func (v *validator) step(where string, s Step, scope map[string]VariableDecl) {
	switch {
	case s.Macro != nil:
		v.macroCall(where, s.Macro, scope)
	case s.Command != nil:
		v.command(where, s.Command, scope)
	default:
		v.addf("%s: empty step", where)
	}
}

func (v *validator) macroCall(where string, call *MacroCall, scope map[string]VariableDecl) {
	m, ok := v.t.Macros[call.Name]
	if !ok {
		v.addf("%s: macro %s doesn't exist. Available macros are %s",
			where, call.Name, strings.Join(sortedKeys(v.t.Macros), ", "))
		return
	}
	if call.DelayBefore.IsToken() || call.DelayAfter.IsToken() {
		v.addf("%s: macro call delays must be numbers", where)
	}
	for _, name := range sortedKeys(call.Variables) {
		value := call.Variables[name]
		decl, declared := m.Variables[name]
		if !declared {
			v.addf("%s: passed variable %s=%s doesn't have a description on macro %s", where, name, value, call.Name)
			continue
		}
		if tok, isTok := value.TokenName(); isTok {
			if scope != nil {
				if _, ok := scope[tok]; !ok {
					v.addf("%s: variable %s is not declared by the enclosing macro", where, FormatToken(tok))
				}
			}
			continue
		}
		if value.Type != decl.Type {
			v.addf("%s: passed variable %s=%s type of %s, expected %s", where, name, value, value.Type, decl.Type)
		}
	}
	for _, name := range sortedKeys(m.Variables) {
		if _, passed := call.Variables[name]; !passed && !m.Variables[name].Optional {
			v.addf("%s: macro %s requires variable %s", where, call.Name, name)
		}
	}
}

func (v *validator) command(where string, c *Command, scope map[string]VariableDecl) {
	if !c.Destination.IsSet() {
		v.addf("%s: destination is required", where)
	} else if dest, ok := c.Destination.Value(); ok && !v.isDestination(dest) {
		v.addf("%s: %q is not a valid destination, possible options are %s",
			where, dest, strings.Join(v.destinations(), ", "))
	}

	switch c.Kind {
	case KindMouseClick:
		if !c.X.IsSet() || !c.Y.IsSet() {
			v.addf("%s: mouseMoveX and mouseMoveY are both required", where)
		}
	case KindLaunch:
		if c.AssignID != "" {
			if _, isTok := ParseToken(c.AssignID); isTok {
				v.addf("%s: assignId must be a plain variable name", where)
			}
		}
	}

	if scope == nil {
		return
	}
	for _, tok := range commandTokens(c) {
		if _, ok := scope[tok]; !ok {
			v.addf("%s: variable %s is not declared by the macro", where, FormatToken(tok))
		}
	}
}

func (v *validator) destinations() []string {
	out := sortedKeys(v.t.Aliases)
	return append(out, sortedKeys(v.t.Targets)...)
}

// commandTokens lists the token names used by a command's fields.
func commandTokens(c *Command) []string {
	var out []string
	add := func(name string) {
		if name != "" {
			out = append(out, name)
		}
	}
	add(c.Destination.TokenName())
	add(c.DelayBefore.TokenName())
	add(c.DelayAfter.TokenName())
	add(c.Keys.TokenName())
	add(c.HoldKeys.TokenName())
	add(c.Duration.TokenName())
	add(c.Text.TokenName())
	add(c.KeyDelay.TokenName())
	add(c.KeyDelayDeviation.TokenName())
	add(c.X.TokenName())
	add(c.Y.TokenName())
	add(c.Path.TokenName())
	add(c.WaitTillFinish.TokenName())
	add(c.ProcessName.TokenName())
	add(c.PID.TokenName())
	return out
}
