package influxdb

import "errors"

// Errors returned by Connect and HealthCheck. Writes never return errors;
// failures are counted and handed to the SetOnError callback.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	// ErrConnectionFailed wraps the ping failure from Connect.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrUnhealthy is returned when the server answers but reports not ready.
	ErrUnhealthy = errors.New("influxdb: server not healthy")

	// ErrClosed is returned by HealthCheck after Close.
	ErrClosed = errors.New("influxdb: client closed")
)
