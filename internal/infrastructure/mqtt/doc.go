// Package mqtt provides the broker connection manager for Mood Core.
//
// This package manages:
//   - One persistent connection to an MQTT broker (paho.mqtt.golang)
//   - Automatic reconnection on its own backoff schedule
//   - A subscription registry re-applied after every (re)connect
//   - Fan-out of connection and message events to registered listeners
//   - Retained online/offline presence with Last Will and Testament
//
// # Architecture
//
// The Manager is the only component that talks to the Transport. Everything
// else observes it through events:
//
//	Manager.Connect -> Transport handshake -> Registry.Apply -> EventConnected
//	Transport callbacks -> Dispatcher -> listeners (lamp controller, API hub)
//	connection lost -> EventDisconnected -> Scheduler retry loop
//
// The Transport interface is deliberately narrow so the Manager can be
// exercised against an in-memory fake.
//
// # Reconnection
//
// A random base B in [5s, 15s] is chosen once per process. Attempts 1-7 wait
// B, attempts 8-13 wait 6B, later attempts wait 30B. The loop never gives up;
// only an explicit Disconnect (or Stop) cancels it.
//
// # Error Handling
//
// Publishing is best effort. Transport errors are logged and reported as
// EventDisconnected; the public API returns errors for invalid input only.
//
// # Usage
//
//	endpoint, opts := mqtt.OptionsFromConfig(cfg.MQTT, topics.Status())
//	opts.Logger = log
//	m := mqtt.NewManager(mqtt.NewPahoTransport(log), endpoint, opts)
//
//	m.Register(func(ev mqtt.Event) error {
//	    log.Info("event", "type", ev.Type, "topic", ev.Topic)
//	    return nil
//	})
//	_ = m.SubscribeTo(topics.Outgoing)
//
//	m.Start(ctx)
//	defer m.Stop(time.Second)
//
//	_ = m.Publish(ctx, topics.Incoming.Name, []byte("ff00aa"), mqtt.QoS0, false)
package mqtt
