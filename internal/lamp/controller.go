package lamp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/mood-core/internal/infrastructure/config"
	"github.com/nerrad567/mood-core/internal/infrastructure/mqtt"
)

// moodCommand switches the lamp to automatic mode.
const moodCommand = "mood"

// recordTimeout bounds history writes made from event delivery.
const recordTimeout = 2 * time.Second

// Broker is the part of mqtt.Manager the controller drives.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	SubscribeTo(topic mqtt.Topic) error
	UnsubscribeFrom(name string) error
	Register(handler mqtt.EventHandler) mqtt.ListenerID
	Remove(id mqtt.ListenerID)
	SetPresence(p *mqtt.Presence)
	ReInit(ctx context.Context)
	IsConnected() bool
	Endpoint() mqtt.Endpoint
}

// State is the controller's view of the lamp.
type State struct {
	LampID    string    `json:"lamp_id"`
	Connected bool      `json:"connected"`
	Colour    Colour    `json:"colour"`
	Automatic bool      `json:"automatic"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Options configures a Controller.
type Options struct {
	// Topic and DeviceID form the lamp's working topics.
	Topic    string
	DeviceID string
	QoS      byte

	// Presence re-targets the status topic when the device changes.
	Presence bool

	// ColourRate is colour commands per second, ColourBurst the bucket size.
	ColourRate  float64
	ColourBurst int

	// History and Telemetry are optional.
	History   History
	Telemetry Telemetry

	Logger mqtt.Logger
}

// OptionsFromConfig maps the lamp and MQTT sections onto controller options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Topic:       cfg.Lamp.Topic,
		DeviceID:    cfg.Lamp.ID,
		QoS:         byte(cfg.MQTT.QoS), //nolint:gosec // validated 0..2 by config
		Presence:    cfg.MQTT.Presence,
		ColourRate:  cfg.Lamp.ColourRate,
		ColourBurst: cfg.Lamp.ColourBurst,
	}
}

// Controller tracks and commands one mood lamp over a Broker.
//
// It is an event listener: Connected and Disconnected toggle
// State.Connected, messages on the outgoing topic report the lamp's
// current colour (automatic mode), and messages on the incoming topic are
// commands from any client. Commands are published to the incoming topic,
// not retained.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The broker is never called
//     with c.mu held, because it delivers events back into HandleEvent.
type Controller struct {
	broker    Broker
	qos       byte
	presence  bool
	limiter   *rate.Limiter
	history   History
	telemetry Telemetry
	logger    mqtt.Logger

	mu       sync.RWMutex
	topics   mqtt.DeviceTopics
	state    State
	onChange func(State)

	// deviceMu serialises SetDevice.
	deviceMu   sync.Mutex
	listenerID mqtt.ListenerID
	attached   bool
}

// NewController creates a controller. It does nothing until Attach.
func NewController(broker Broker, opts Options) (*Controller, error) {
	if err := validateDevice(opts.Topic, opts.DeviceID); err != nil {
		return nil, err
	}
	if opts.ColourRate <= 0 {
		opts.ColourRate = 10
	}
	if opts.ColourBurst <= 0 {
		opts.ColourBurst = 1
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}

	topics := mqtt.NewDeviceTopics(opts.Topic, opts.DeviceID, opts.QoS)
	return &Controller{
		broker:    broker,
		qos:       opts.QoS,
		presence:  opts.Presence,
		limiter:   rate.NewLimiter(rate.Limit(opts.ColourRate), opts.ColourBurst),
		history:   opts.History,
		telemetry: opts.Telemetry,
		logger:    opts.Logger,
		topics:    topics,
		state:     State{LampID: topics.Incoming.Name},
	}, nil
}

// Attach subscribes the lamp topics and registers the controller as a
// listener. Subscriptions are tracked even while disconnected.
func (c *Controller) Attach() error {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()

	if c.attached {
		return nil
	}
	for _, t := range c.Topics().All() {
		if err := c.broker.SubscribeTo(t); err != nil {
			return fmt.Errorf("subscribing %s: %w", t.Name, err)
		}
	}
	c.listenerID = c.broker.Register(c.HandleEvent)
	c.attached = true
	c.setConnected(c.broker.IsConnected())
	return nil
}

// Detach stops listening. Subscriptions are left in place.
func (c *Controller) Detach() {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()

	if !c.attached {
		return
	}
	c.broker.Remove(c.listenerID)
	c.attached = false
}

// State returns a snapshot of the lamp state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Topics returns the lamp's current working topics.
func (c *Controller) Topics() mqtt.DeviceTopics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics
}

// OnChange sets the observer called after every state change. It runs on
// the goroutine that caused the change and must not block.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// SetColour sends a manual colour and leaves automatic mode.
//
// Returns ErrRateLimited when colour updates exceed the configured rate.
func (c *Controller) SetColour(ctx context.Context, colour Colour) error {
	if !c.limiter.Allow() {
		return ErrRateLimited
	}
	if err := c.send(ctx, colour.Hex()); err != nil {
		return err
	}
	c.update(colour, false, true, SourceLocal)
	return nil
}

// Mood switches automatic mode on, or off by sending the current colour.
func (c *Controller) Mood(ctx context.Context, on bool) error {
	if on {
		if err := c.send(ctx, moodCommand); err != nil {
			return err
		}
		c.update(Colour{}, true, false, SourceLocal)
		return nil
	}

	current := c.State().Colour
	if err := c.send(ctx, current.Hex()); err != nil {
		return err
	}
	c.update(current, false, true, SourceLocal)
	return nil
}

// Off turns the lamp off.
func (c *Controller) Off(ctx context.Context) error {
	if err := c.send(ctx, Black.Hex()); err != nil {
		return err
	}
	c.update(Black, false, true, SourceLocal)
	return nil
}

// Command runs a textual command: "mood", "off" or six hex digits.
func (c *Controller) Command(ctx context.Context, cmd string) error {
	switch cmd = strings.ToLower(strings.TrimSpace(cmd)); cmd {
	case moodCommand:
		return c.Mood(ctx, true)
	case "off":
		return c.Off(ctx)
	default:
		colour, err := ParseHex(cmd)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
		}
		return c.SetColour(ctx, colour)
	}
}

// SetDevice re-targets the controller at <topic>/<id>.
//
// The old topic pair is unsubscribed and the new pair subscribed. With
// presence enabled the status topic moves too, which only takes effect on
// a new session, so a connected broker is re-initialised.
func (c *Controller) SetDevice(ctx context.Context, topic, id string) error {
	if err := validateDevice(topic, id); err != nil {
		return err
	}

	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()

	old := c.Topics()
	next := mqtt.NewDeviceTopics(topic, id, c.qos)
	if next.Incoming.Name == old.Incoming.Name {
		return nil
	}

	// Swap first so in-flight messages for the old pair are ignored.
	c.mu.Lock()
	c.topics = next
	c.state.LampID = next.Incoming.Name
	c.mu.Unlock()

	for _, t := range old.All() {
		if err := c.broker.UnsubscribeFrom(t.Name); err != nil {
			c.logger.Warn("unsubscribing old lamp topic failed", "topic", t.Name, "error", err)
		}
	}
	for _, t := range next.All() {
		if err := c.broker.SubscribeTo(t); err != nil {
			return fmt.Errorf("subscribing %s: %w", t.Name, err)
		}
	}

	if c.presence {
		c.broker.SetPresence(mqtt.NewPresence(next.Status(), c.broker.Endpoint().ClientID))
	}

	c.logger.Info("lamp device changed", "from", old.Incoming.Name, "to", next.Incoming.Name)

	if c.broker.IsConnected() {
		c.broker.ReInit(ctx)
	}
	return nil
}

// HandleEvent is the mqtt.EventHandler for the controller.
func (c *Controller) HandleEvent(ev mqtt.Event) error {
	switch ev.Type {
	case mqtt.EventConnected:
		c.setConnected(true)
		c.recordConnection(ev)
	case mqtt.EventDisconnected:
		c.setConnected(false)
		c.recordConnection(ev)
	case mqtt.EventMessage:
		return c.handleMessage(ev.Topic, string(ev.Payload))
	}
	return nil
}

func (c *Controller) handleMessage(topic, payload string) error {
	topics := c.Topics()

	switch topic {
	case topics.Outgoing.Name:
		c.update(ParseReport(payload), true, true, SourceLamp)
	case topics.Incoming.Name:
		if payload == moodCommand {
			c.update(Colour{}, true, false, SourceCommand)
			return nil
		}
		colour, err := ParseHex(payload)
		if err != nil {
			return err
		}
		c.update(colour, false, true, SourceCommand)
	}
	return nil
}

// send publishes a command to the incoming topic.
func (c *Controller) send(ctx context.Context, payload string) error {
	incoming := c.Topics().Incoming
	if err := c.broker.Publish(ctx, incoming.Name, []byte(payload), incoming.QoS, false); err != nil {
		return fmt.Errorf("publishing lamp command: %w", err)
	}
	return nil
}

// update applies a colour and mode change. setColour false keeps the
// current colour. Unchanged states are not recorded.
func (c *Controller) update(colour Colour, automatic, setColour bool, source string) {
	c.mu.Lock()
	next := c.state
	next.Automatic = automatic
	if setColour {
		next.Colour = colour
	}
	if next.Automatic == c.state.Automatic && next.Colour == c.state.Colour {
		c.mu.Unlock()
		return
	}
	next.UpdatedAt = time.Now().UTC()
	c.state = next
	onChange := c.onChange
	c.mu.Unlock()

	if c.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err := c.history.Record(ctx, HistoryEntry{
			LampID:    next.LampID,
			Colour:    next.Colour.Hex(),
			Automatic: next.Automatic,
			Source:    source,
			CreatedAt: next.UpdatedAt,
		})
		cancel()
		if err != nil {
			c.logger.Warn("recording lamp state failed", "lamp", next.LampID, "error", err)
		}
	}
	if c.telemetry != nil {
		c.telemetry.WriteLampState(next.LampID, next.Colour.Hex(), next.Automatic)
	}

	c.logger.Debug("lamp state changed",
		"lamp", next.LampID, "colour", next.Colour.Hex(), "automatic", next.Automatic, "source", source)

	if onChange != nil {
		onChange(next)
	}
}

func (c *Controller) setConnected(connected bool) {
	c.mu.Lock()
	if c.state.Connected == connected {
		c.mu.Unlock()
		return
	}
	c.state.Connected = connected
	c.state.UpdatedAt = time.Now().UTC()
	next := c.state
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
}

func (c *Controller) recordConnection(ev mqtt.Event) {
	endpoint := c.broker.Endpoint()
	event := ev.Type.String()

	if c.telemetry != nil {
		c.telemetry.WriteConnectionEvent(endpoint.ClientID, event)
	}
	if c.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	err := c.history.RecordConnection(ctx, ConnectionEntry{
		ClientID:  endpoint.ClientID,
		Event:     event,
		Broker:    endpoint.URL(),
		CreatedAt: ev.Time,
	})
	if err != nil {
		c.logger.Warn("recording connection event failed", "event", event, "error", err)
	}
}

func validateDevice(topic, id string) error {
	for _, part := range []string{topic, id} {
		if strings.TrimSpace(part) == "" || strings.ContainsAny(part, "#+") {
			return fmt.Errorf("%w: %q/%q", ErrInvalidDevice, topic, id)
		}
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
