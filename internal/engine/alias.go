package engine

import (
	"fmt"

	"github.com/nerrad567/relay-core/internal/binding"
)

// maxAliasDepth bounds alias chain expansion. Tables are checked for cycles
// at load, so hitting it means the table was built without validation.
const maxAliasDepth = 32

// AliasResolver expands a command's destination into concrete targets.
type AliasResolver struct {
	table *binding.Table
	index Index
	vars  VariableSource
}

// NewAliasResolver creates a resolver over table. vars resolves a
// destination that is still a {{name}} token; it may be nil.
func NewAliasResolver(table *binding.Table, index Index, vars VariableSource) *AliasResolver {
	return &AliasResolver{table: table, index: index, vars: vars}
}

// Resolve returns one copy of cmd per concrete target, in expansion order.
//
//   - a target name resolves to itself
//   - a plain alias is followed to the name it points at
//   - a group expands every member in order; a circular group then keeps
//     only the member chosen by the rotation for this command
func (r *AliasResolver) Resolve(cmd binding.Command) ([]binding.Command, error) {
	dest, err := r.destination(cmd)
	if err != nil {
		return nil, err
	}
	cmd = cmd.WithDestination(dest)
	return r.resolve(cmd, StructuralKey(cmd), 0)
}

// resolve expands cmd. key identifies the command as it entered Resolve;
// every circular group reached from it rotates under that key.
func (r *AliasResolver) resolve(cmd binding.Command, key string, depth int) ([]binding.Command, error) {
	dest, _ := cmd.Destination.Value()
	if depth > maxAliasDepth {
		return nil, fmt.Errorf("%w: %s exceeds %d hops", ErrAliasCycle, dest, maxAliasDepth)
	}

	if r.table.IsTarget(dest) {
		return []binding.Command{cmd}, nil
	}

	alias, ok := r.table.Aliases[dest]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDestination, dest)
	}
	if !alias.IsGroup() {
		return r.resolve(cmd.WithDestination(alias.Target), key, depth+1)
	}

	var out []binding.Command
	for _, member := range alias.Members {
		expanded, err := r.resolve(cmd.WithDestination(member), key, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}

	if alias.Circular {
		groupKey := key
		if depth > 0 {
			// Nested circular groups keep separate cursors.
			groupKey += "|" + dest
		}
		i, err := r.index.Next(groupKey, len(out))
		if err != nil {
			return nil, err
		}
		out = out[i : i+1]
	}
	return out, nil
}

// destination returns the command's destination, resolving a token from
// the variable source.
func (r *AliasResolver) destination(cmd binding.Command) (string, error) {
	if !cmd.Destination.IsSet() {
		return "", fmt.Errorf("%w: command has no destination", ErrUnknownDestination)
	}
	if dest, ok := cmd.Destination.Value(); ok {
		return dest, nil
	}
	name := cmd.Destination.TokenName()
	if r.vars == nil {
		return "", fmt.Errorf("%w: destination %s", ErrUnresolvedToken, binding.FormatToken(name))
	}
	v, ok := r.vars.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: destination %s", ErrUnresolvedToken, binding.FormatToken(name))
	}
	return v.String(), nil
}
