// Package config loads Mood Core settings from YAML with MOOD_* environment
// overrides.
//
// Every key has a default, so Load("") returns a working configuration that
// talks to iot.eclipse.org:1883 and drives lamp huzzah/1. An empty
// mqtt.client_id is replaced with a random "mood-xxxxxxxx" id.
//
// Keep broker passwords and InfluxDB tokens in the environment
// (MOOD_MQTT_PASSWORD, MOOD_INFLUXDB_TOKEN) rather than the file.
package config
