// Package mixer implements the device control state machine: button
// press/hold/release handling, the mute tri-state per fader and for the
// dedicated mic-mute control, routing recomputation, fader reassignment,
// submix volume linking, and spike-free bulk volume loads.
//
// A Controller is owned by exactly one goroutine (the daemon's owner loop).
// HandleCommand, OnSnapshot and Tick must never be called concurrently.
package mixer

import (
	"fmt"
	"log/slog"
	"time"

	"mixerd/protocol"
	"mixerd/transport"
)

// DefaultHoldDuration is how long a mute button must stay down before the
// hold action (force mute-to-all) fires instead of the press action.
const DefaultHoldDuration = 500 * time.Millisecond

// Config carries the controller's collaborators and tuning.
type Config struct {
	Store  ProfileStore
	Sink   EventSink
	Logger *slog.Logger

	// VolumeOnMute marks hardware that applies volume when muting to all:
	// the channel volume is zeroed on mute and restored on unmute. The mini
	// unit handles this in its DSP and must not have volumes rewritten.
	VolumeOnMute bool

	HoldDuration time.Duration

	// Now is the clock used for press/hold timing; tests substitute a fake.
	Now func() time.Time
}

// Controller is the state machine sitting above the transport engine.
type Controller struct {
	client *DeviceClient
	store  ProfileStore
	sink   EventSink
	logger *slog.Logger

	volumeOnMute bool
	holdDuration time.Duration
	now          func() time.Time

	edges       map[protocol.Button]*buttonEdge
	lastPressed uint32

	latches    [protocol.FaderCount]faderLatch
	lastFaders [protocol.FaderCount]uint8
	encoders   [protocol.EncoderCount]int8

	// applied mirrors the last volume written to hardware per channel; bulk
	// loads compare against it to order monitor-channel writes.
	applied [protocol.ChannelCount]uint8

	// O(1) lookup of the fader currently carrying the microphone, if any.
	micFader   protocol.Fader
	micOnFader bool

	bleepHeld bool

	serial   string
	firmware string
}

// New builds a controller over an attached engine. Call Initialize before
// feeding it snapshots or commands.
func New(engine transport.Engine, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HoldDuration <= 0 {
		cfg.HoldDuration = DefaultHoldDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		client:       NewDeviceClient(engine),
		store:        cfg.Store,
		sink:         cfg.Sink,
		logger:       cfg.Logger,
		volumeOnMute: cfg.VolumeOnMute,
		holdDuration: cfg.HoldDuration,
		now:          cfg.Now,
		edges:        make(map[protocol.Button]*buttonEdge),
	}
}

// Serial returns the device serial read during Initialize.
func (c *Controller) Serial() string { return c.serial }

// Firmware returns the firmware version read during Initialize.
func (c *Controller) Firmware() string { return c.firmware }

// Initialize reads the hardware identity and pushes the full persisted state
// to the device: fader assignments, volumes, routing, and button LEDs.
func (c *Controller) Initialize(engine transport.Engine) error {
	serial, err := c.client.SerialNumber()
	if err != nil {
		return fmt.Errorf("read serial number: %w", err)
	}
	c.serial = serial
	engine.SetSerial(serial)

	firmware, err := c.client.FirmwareVersion()
	if err != nil {
		return fmt.Errorf("read firmware version: %w", err)
	}
	c.firmware = firmware

	c.logger.Info("device identified", "serial", serial, "firmware", firmware)

	return c.applyProfile()
}

// applyProfile pushes everything the store holds, in an order that avoids
// audible artefacts.
func (c *Controller) applyProfile() error {
	c.refreshMicFader()

	for f := protocol.Fader(0); f < protocol.FaderCount; f++ {
		cfg := c.store.Fader(f)
		if err := c.client.SetFaderChannel(f, cfg.Channel); err != nil {
			return fmt.Errorf("assign fader %s: %w", f, err)
		}
	}

	// DSP mutes go down before the volume load so a channel persisted as
	// muted-to-all is never audible mid-push; unmutes follow the volumes.
	for ch := protocol.Channel(0); ch < protocol.ChannelCount; ch++ {
		if !c.channelMutedToAll(ch) {
			continue
		}
		if err := c.client.SetChannelState(ch, true); err != nil {
			return fmt.Errorf("mute %s: %w", ch, err)
		}
	}

	if err := c.applyVolumesOrdered(); err != nil {
		return err
	}

	for ch := protocol.Channel(0); ch < protocol.ChannelCount; ch++ {
		if c.channelMutedToAll(ch) {
			continue
		}
		if err := c.client.SetChannelState(ch, false); err != nil {
			return fmt.Errorf("unmute %s: %w", ch, err)
		}
	}

	for in := protocol.InputDevice(0); in < protocol.InputCount; in++ {
		if err := c.applyRouting(in); err != nil {
			return err
		}
	}

	for ch := protocol.Channel(0); ch < protocol.ChannelCount; ch++ {
		link := c.store.Submix(ch)
		if !link.Linked {
			continue
		}
		if err := c.client.SetSubVolume(ch, link.Volume); err != nil {
			return fmt.Errorf("set submix volume for %s: %w", ch, err)
		}
	}

	return c.pushButtonLEDs()
}

// refreshMicFader rescans the assignments for the microphone channel.
func (c *Controller) refreshMicFader() {
	c.micOnFader = false
	for f := protocol.Fader(0); f < protocol.FaderCount; f++ {
		if c.store.Fader(f).Channel == protocol.ChannelMic {
			c.micFader = f
			c.micOnFader = true
			return
		}
	}
}

// HandleCommand executes one externally issued operation. Business-logic
// rejections come back as *CommandError with prior state unchanged; transport
// failures propagate as-is.
func (c *Controller) HandleCommand(cmd Command) error {
	switch m := cmd.(type) {
	case SetVolume:
		if m.Channel >= protocol.ChannelCount {
			return commandErrorf("unknown channel %d", m.Channel)
		}
		return c.setVolume(m.Channel, m.Volume)

	case SetSubVolume:
		if m.Channel >= protocol.ChannelCount {
			return commandErrorf("unknown channel %d", m.Channel)
		}
		return c.setSubVolume(m.Channel, m.Volume)

	case AssignFader:
		if m.Fader >= protocol.FaderCount {
			return commandErrorf("unknown fader %d", m.Fader)
		}
		if m.Channel >= protocol.ChannelCount {
			return commandErrorf("unknown channel %d", m.Channel)
		}
		return c.assignFader(m.Fader, m.Channel)

	case SetRouting:
		if m.Input >= protocol.InputCount || m.Output >= protocol.OutputCount {
			return commandErrorf("unknown routing crossing %d/%d", m.Input, m.Output)
		}
		c.store.SetRouting(m.Input, m.Output, m.Enabled)
		return c.applyRouting(m.Input)

	case SetMuteFunction:
		if m.Fader >= protocol.FaderCount {
			return commandErrorf("unknown fader %d", m.Fader)
		}
		if m.Function >= muteFunctionCount {
			return commandErrorf("unknown mute function %d", m.Function)
		}
		return c.setMuteFunction(m.Fader, m.Function)

	case SetCoughMuteFunction:
		if m.Function >= muteFunctionCount {
			return commandErrorf("unknown mute function %d", m.Function)
		}
		return c.setCoughMuteFunction(m.Function)

	case SetFaderMuteState:
		if m.Fader >= protocol.FaderCount {
			return commandErrorf("unknown fader %d", m.Fader)
		}
		return c.setFaderMuteState(m.Fader, m.State)

	case SetCoughMuteState:
		return c.setCoughMuteState(m.State)

	case SetSubmixLinked:
		if m.Channel >= protocol.ChannelCount {
			return commandErrorf("unknown channel %d", m.Channel)
		}
		return c.setSubmixLinked(m.Channel, m.Linked)

	case SetMonitoredOutput:
		if m.Output >= protocol.OutputCount {
			return commandErrorf("unknown output %d", m.Output)
		}
		return c.setMonitoredOutput(m.Output)

	case SetMicGain:
		return c.client.SetMicParams(
			MicParam{Key: MicParamType, Value: m.Type},
			MicParam{Key: m.Type, Value: m.Gain},
		)

	case ApplyProfile:
		return c.applyProfile()

	default:
		return commandErrorf("unknown command %T", cmd)
	}
}

// OnSnapshot folds one polled input snapshot into the state machine. The
// returned bool reports whether anything changed.
func (c *Controller) OnSnapshot(s protocol.Snapshot) (bool, error) {
	changed := false

	for b := protocol.Button(0); b < protocol.ButtonCount; b++ {
		isDown := s.IsPressed(b)
		wasDown := c.lastPressed&(1<<uint32(b)) != 0

		switch {
		case isDown && !wasDown:
			c.edges[b] = &buttonEdge{pressedAt: c.now()}
			if err := c.onButtonDown(b); err != nil {
				return changed, err
			}
			changed = true

		case !isDown && wasDown:
			edge := c.edges[b]
			delete(c.edges, b)
			if edge == nil {
				edge = &buttonEdge{}
			}
			if err := c.onButtonUp(b, edge); err != nil {
				return changed, err
			}
			changed = true
		}
	}
	c.lastPressed = s.Pressed

	faderChanged, err := c.observeFaders(s)
	if err != nil {
		return changed || faderChanged, err
	}
	changed = changed || faderChanged

	for e := protocol.Encoder(0); e < protocol.EncoderCount; e++ {
		if s.Encoders[e] != c.encoders[e] {
			c.logger.Debug("encoder moved", "encoder", e.String(), "value", s.Encoders[e])
			c.encoders[e] = s.Encoders[e]
			changed = true
		}
	}

	return changed, nil
}

// Tick evaluates hold timers. Each press fires its hold handler at most once.
func (c *Controller) Tick(now time.Time) error {
	for b, edge := range c.edges {
		if edge.holdHandled || now.Sub(edge.pressedAt) < c.holdDuration {
			continue
		}
		edge.holdHandled = true
		if err := c.onButtonHold(b); err != nil {
			return err
		}
	}
	return nil
}

// announce delivers a user-facing notification. Failures are logged, never
// propagated.
func (c *Controller) announce(message string) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Send(message); err != nil {
		c.logger.Warn("announcement failed", "message", message, "error", err)
	}
}
