// Package mqtt connects the controller to an MQTT broker.
//
// MQTT is an optional trigger surface. Home automation systems, stream decks
// and scripts publish to <prefix>/trigger/<binding> to fire a binding, and the
// controller reports what it did on <prefix>/event/<kind>. A retained
// <prefix>/system/status message, backed by a Last Will, tells subscribers
// whether the controller is online.
//
// This package manages:
//   - Connection with auto-reconnect and subscription restore
//   - Publishing with QoS and payload size checks
//   - Topic builders for the controller's namespace
//   - Panic recovery around message handlers
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllTriggers(), 1, handler)
//	err = client.PublishJSON(topics.Event("trigger"), event)
//
// # Security Considerations
//
//   - Anyone who can publish to the trigger topics can fire bindings; restrict
//     them with broker ACLs
//   - Enable TLS (broker.tls) when the broker is not on localhost
package mqtt
