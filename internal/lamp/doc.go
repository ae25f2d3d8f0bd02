// Package lamp controls a mood lamp over MQTT.
//
// The lamp listens on <topic>/<id> for commands and reports its colour on
// <topic>/<id>/msg:
//
//	"mood"     automatic colour cycling on
//	"ff00aa"   manual colour, automatic off
//	"000000"   off
//	"95,0,63"  report from the lamp while in automatic mode
//
// Reports top out around 190 per channel, so ParseReport doubles the HSB
// brightness before the colour is stored.
//
// Controller is a listener on an mqtt.Manager. It tracks State, records
// changes to a History (SQLite) and Telemetry (InfluxDB), and notifies an
// OnChange observer used by the API's WebSocket hub.
//
// Usage:
//
//	ctrl, err := lamp.NewController(manager, opts)
//	if err != nil {
//	    return err
//	}
//	if err := ctrl.Attach(); err != nil {
//	    return err
//	}
//	_ = ctrl.SetColour(ctx, lamp.Colour{R: 0xff, B: 0xaa})
package lamp
