// Package influxdb writes Mood Core telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, health monitoring and two measurements:
//   - lamp_state: the lamp colour and automatic flag on every change
//   - mqtt_connection: broker connection events per client id
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	defer client.Close()
//
//	client.WriteLampState("huzzah/1", "ff00aa", false)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval), and
// every point carries service=moodcore. Rejected batches are counted
// (WriteFailures) and passed to the SetOnError callback. Connect and
// HealthCheck return their errors directly.
package influxdb
