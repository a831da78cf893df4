// Package trigger turns requests to fire a binding into engine runs.
//
// A Service holds the engine built from the current bindings table and
// swaps it whenever the table reloads. Every activation gets an execution
// id that doubles as the log trace id, and is reported to:
//   - the audit log (asynchronously)
//   - websocket clients on the trigger.completed channel
//   - the message bus on <prefix>/event/trigger
//   - InfluxDB as a trigger point
//
// A Listener subscribes to <prefix>/trigger/+ and fires the named binding
// for every message.
//
// # Usage
//
//	svc, err := trigger.New(trigger.Deps{
//	    Engine: engine.Deps{Index: engine.NewMemoryIndex(), Client: remote},
//	    Store:  store,
//	    Audit:  auditWriter,
//	})
//	registry.OnReload(svc.Load)
//	id, err := svc.Trigger(ctx, "open-editor", trigger.SourceAPI)
package trigger
