// Package engine turns a triggered binding into remote calls.
//
// A Processor looks at the binding's shape and drives an Interpreter, which
// recurses through macro calls and alias expansion until it reaches concrete
// commands. Each concrete command is substituted against the variable store,
// delayed, and handed to the Dispatcher, which makes exactly one call to the
// target's agent.
//
// Two token layers share the {{name}} syntax. Inside a macro body, tokens
// naming declared macro variables are bound from the call site. Tokens
// left in a final command are bound from the variable store, falling back
// to the process environment. A token neither layer resolves is an error.
//
// Rotation state (circular bindings and circular alias groups) lives in an
// Index that outlives table reloads.
package engine
