// Package binding loads and validates the bindings table: targets, aliases,
// macros and the shortcut bindings that drive the dispatch engine.
//
// A bindings file looks like:
//
//	ips:
//	  desk: 192.168.1.10
//	  tv: 192.168.1.20
//	aliases:
//	  screens: {ipNames: [desk, tv], circular: true}
//	macros:
//	  wave:
//	    commands:
//	      - {keySend: "{{n}}", destination: desk}
//	    variables:
//	      n: {type: string}
//	combinations:
//	  - name: t
//	    shortCut: Alt+1
//	    commands:
//	      - {macro: wave, variables: {n: "3"}}
//	delay: 200
//
// Command fields are Template values: either a literal or a whole-field
// {{name}} token. Tokens are resolved later by the engine, from macro
// arguments inside macro bodies or from the variable store and process
// environment for final commands.
//
// The Registry keeps the current Table and swaps it on reload; the Watcher
// triggers reloads when the file changes.
package binding
