package mixer

import (
	"fmt"

	"mixerd/protocol"
)

// assignFader moves a channel onto a fader. Three paths:
//
//   - The fader already carries the channel: nothing to do.
//   - The channel is on another fader: swap the two faders' assignments and
//     mute configurations atomically, so no mute state is lost or duplicated.
//   - The channel is unassigned: unmute the outgoing channel first (an
//     unassigned channel cannot retain a tracked mute state), then move.
//
// A vacated motorised fader can silently desync its reported volume from the
// software state, so the outgoing channel's volume is force-rewritten, as is
// the moved channel's when it is headphone or line-out.
func (c *Controller) assignFader(f protocol.Fader, newCh protocol.Channel) error {
	cur := c.store.Fader(f)
	if cur.Channel == newCh {
		return nil
	}

	if other, ok := c.faderCarrying(newCh); ok {
		if err := c.swapFaders(f, other); err != nil {
			return err
		}
	} else {
		if cur.State != Unmuted {
			if err := c.unmuteFader(f); err != nil {
				return err
			}
		}

		cfg := c.store.Fader(f)
		outgoing := cfg.Channel
		cfg.Channel = newCh
		c.store.SetFader(f, cfg)

		if err := c.client.SetFaderChannel(f, newCh); err != nil {
			return fmt.Errorf("assign fader %s: %w", f, err)
		}
		c.latchFader(f, c.store.Volume(newCh))

		if err := c.pushVolume(outgoing, c.store.Volume(outgoing)); err != nil {
			return err
		}
	}

	if newCh == protocol.ChannelHeadphones || newCh == protocol.ChannelLineOut {
		if err := c.pushVolume(newCh, c.store.Volume(newCh)); err != nil {
			return err
		}
	}

	c.refreshMicFader()
	return c.pushButtonLEDs()
}

// faderCarrying returns the fader currently assigned the channel, if any.
func (c *Controller) faderCarrying(ch protocol.Channel) (protocol.Fader, bool) {
	for f := protocol.Fader(0); f < protocol.FaderCount; f++ {
		if c.store.Fader(f).Channel == ch {
			return f, true
		}
	}
	return 0, false
}

// swapFaders exchanges two faders' full configurations, store first, then
// hardware.
func (c *Controller) swapFaders(a, b protocol.Fader) error {
	cfgA := c.store.Fader(a)
	cfgB := c.store.Fader(b)
	c.store.SetFader(a, cfgB)
	c.store.SetFader(b, cfgA)

	if err := c.client.SetFaderChannel(a, cfgB.Channel); err != nil {
		return fmt.Errorf("assign fader %s: %w", a, err)
	}
	if err := c.client.SetFaderChannel(b, cfgA.Channel); err != nil {
		return fmt.Errorf("assign fader %s: %w", b, err)
	}

	// Both motors travel to their new channel's level.
	c.latchFader(a, c.store.Volume(cfgB.Channel))
	c.latchFader(b, c.store.Volume(cfgA.Channel))
	return nil
}
