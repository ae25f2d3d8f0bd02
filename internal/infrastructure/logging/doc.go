// Package logging builds the structured logger shared by every Mood Core
// component.
//
// Output is JSON by default and logfmt-style text when logging.format is
// "text". Entries always carry service=moodcore and the build version;
// components add their own name with With:
//
//	log := logging.New(cfg.Logging, version)
//	mqttLog := log.With("component", "mqtt")
//	mqttLog.Info("connected", "broker", endpoint.URL())
//
// Values logged under a password, token or secret key are masked, so an
// accidental "password", cfg.MQTT.Auth.Password never reaches the output.
// Prefer logging mqtt.Endpoint.Redacted() over the raw endpoint regardless.
package logging
