package mixer

import (
	"fmt"

	"mixerd/protocol"
)

// The mute machine runs once per fader and once for the dedicated mic-mute
// (cough) control. Transitions:
//
//	Unmuted --press--> MutedToTarget (or MutedToAll when configured "All")
//	MutedToTarget --press--> Unmuted
//	MutedToAll --press--> Unmuted
//	any --hold--> MutedToAll (no-op when already there)
//
// MutedToTarget only overrides routing. MutedToAll additionally mutes the
// channel in the DSP and, on hardware that applies volume on mute, zeroes the
// hardware volume; the persisted volume is left untouched so unmute can
// restore it.

func (c *Controller) pressFaderMute(f protocol.Fader) error {
	cfg := c.store.Fader(f)
	switch cfg.State {
	case Unmuted:
		if cfg.Function == MuteAll {
			return c.muteFaderToAll(f)
		}
		return c.muteFaderToTarget(f)
	default:
		return c.unmuteFader(f)
	}
}

func (c *Controller) holdFaderMute(f protocol.Fader) error {
	if c.store.Fader(f).State == MutedToAll {
		return nil
	}
	return c.muteFaderToAll(f)
}

func (c *Controller) muteFaderToTarget(f protocol.Fader) error {
	cfg := c.store.Fader(f)
	cfg.State = MutedToTarget
	c.store.SetFader(f, cfg)

	c.announce(fmt.Sprintf("%s muted to %s", cfg.Channel, cfg.Function.Target()))
	if err := c.applyChannelRouting(cfg.Channel); err != nil {
		return err
	}
	return c.pushButtonLEDs()
}

func (c *Controller) muteFaderToAll(f protocol.Fader) error {
	cfg := c.store.Fader(f)
	if cfg.State != MutedToAll {
		// The persisted volume is still live (a transient mute never touches
		// it), so this always captures the real pre-mute level.
		cfg.PreviousVolume = c.store.Volume(cfg.Channel)
	}
	cfg.State = MutedToAll
	c.store.SetFader(f, cfg)

	if err := c.client.SetChannelState(cfg.Channel, true); err != nil {
		return err
	}
	if c.volumeOnMute {
		if err := c.pushVolume(cfg.Channel, 0); err != nil {
			return err
		}
	}

	c.announce(fmt.Sprintf("%s muted", cfg.Channel))
	if err := c.applyChannelRouting(cfg.Channel); err != nil {
		return err
	}
	return c.pushButtonLEDs()
}

func (c *Controller) unmuteFader(f protocol.Fader) error {
	cfg := c.store.Fader(f)
	wasAll := cfg.State == MutedToAll
	cfg.State = Unmuted
	c.store.SetFader(f, cfg)

	if wasAll && !c.channelStillMutedElsewhere(cfg.Channel) {
		if err := c.client.SetChannelState(cfg.Channel, false); err != nil {
			return err
		}
		if c.volumeOnMute {
			if err := c.pushVolume(cfg.Channel, cfg.PreviousVolume); err != nil {
				return err
			}
		}
	}

	c.announce(fmt.Sprintf("%s unmuted", cfg.Channel))
	if err := c.applyChannelRouting(cfg.Channel); err != nil {
		return err
	}
	return c.pushButtonLEDs()
}

func (c *Controller) pressCough() error {
	cough := c.store.Cough()
	switch cough.State {
	case Unmuted:
		if cough.Function == MuteAll {
			return c.muteCoughToAll()
		}
		return c.muteCoughToTarget()
	default:
		return c.unmuteCough()
	}
}

func (c *Controller) holdCough() error {
	if c.store.Cough().State == MutedToAll {
		return nil
	}
	return c.muteCoughToAll()
}

func (c *Controller) muteCoughToTarget() error {
	cough := c.store.Cough()
	cough.State = MutedToTarget
	c.store.SetCough(cough)

	c.announce(fmt.Sprintf("Mic muted to %s", cough.Function.Target()))
	if err := c.applyRouting(protocol.InputMicrophone); err != nil {
		return err
	}
	return c.pushButtonLEDs()
}

func (c *Controller) muteCoughToAll() error {
	cough := c.store.Cough()
	if cough.State != MutedToAll {
		cough.PreviousVolume = c.store.Volume(protocol.ChannelMic)
	}
	cough.State = MutedToAll
	c.store.SetCough(cough)

	if err := c.client.SetChannelState(protocol.ChannelMic, true); err != nil {
		return err
	}
	if c.volumeOnMute {
		if err := c.pushVolume(protocol.ChannelMic, 0); err != nil {
			return err
		}
	}

	c.announce("Mic muted")
	if err := c.applyRouting(protocol.InputMicrophone); err != nil {
		return err
	}
	return c.pushButtonLEDs()
}

func (c *Controller) unmuteCough() error {
	cough := c.store.Cough()
	wasAll := cough.State == MutedToAll
	cough.State = Unmuted
	c.store.SetCough(cough)

	if wasAll && !c.micMutedByFader() {
		if err := c.client.SetChannelState(protocol.ChannelMic, false); err != nil {
			return err
		}
		if c.volumeOnMute {
			if err := c.pushVolume(protocol.ChannelMic, cough.PreviousVolume); err != nil {
				return err
			}
		}
	}

	c.announce("Mic unmuted")
	if err := c.applyRouting(protocol.InputMicrophone); err != nil {
		return err
	}
	return c.pushButtonLEDs()
}

// channelStillMutedElsewhere reports whether unmuting one source would be
// undone immediately by another still-active muted-to-all source. The mic
// channel can be covered by the cough control; any channel can be covered by
// a second fader carrying it after a swap race.
func (c *Controller) channelStillMutedElsewhere(ch protocol.Channel) bool {
	if ch == protocol.ChannelMic && c.store.Cough().State == MutedToAll {
		return true
	}
	return false
}

// channelMutedToAll reports whether any mute source currently holds the
// channel muted to all: a fader carrying it, or the cough control for the
// mic. Bulk profile pushes consult this so persisted mutes reach the DSP.
func (c *Controller) channelMutedToAll(ch protocol.Channel) bool {
	if ch == protocol.ChannelMic && c.store.Cough().State == MutedToAll {
		return true
	}
	for f := protocol.Fader(0); f < protocol.FaderCount; f++ {
		cfg := c.store.Fader(f)
		if cfg.Channel == ch && cfg.State == MutedToAll {
			return true
		}
	}
	return false
}

// micMutedByFader reports whether the fader carrying the mic (if any) holds
// it muted to all.
func (c *Controller) micMutedByFader() bool {
	return c.micOnFader && c.store.Fader(c.micFader).State == MutedToAll
}

// latchFader suppresses poll write-back until hardware reports value.
func (c *Controller) latchFader(f protocol.Fader, value uint8) {
	c.latches[f] = faderLatch{suppressed: true, until: value}
}

// setMuteFunction reconfigures a fader's mute button. A target-specific mute
// already in effect moves to the new target; configuring "All" while muted to
// a target collapses the state to MutedToAll, which is the only reachable
// muted state under that function.
func (c *Controller) setMuteFunction(f protocol.Fader, fn MuteFunction) error {
	cfg := c.store.Fader(f)
	if cfg.Function == fn {
		return nil
	}
	cfg.Function = fn
	c.store.SetFader(f, cfg)

	if cfg.State == MutedToTarget && fn == MuteAll {
		return c.muteFaderToAll(f)
	}
	if cfg.State == MutedToTarget {
		return c.applyChannelRouting(cfg.Channel)
	}
	return nil
}

func (c *Controller) setCoughMuteFunction(fn MuteFunction) error {
	cough := c.store.Cough()
	if cough.Function == fn {
		return nil
	}
	cough.Function = fn
	c.store.SetCough(cough)

	if cough.State == MutedToTarget && fn == MuteAll {
		return c.muteCoughToAll()
	}
	if cough.State == MutedToTarget {
		return c.applyRouting(protocol.InputMicrophone)
	}
	return nil
}

// setFaderMuteState drives the machine from the command surface. Moving from
// MutedToAll to MutedToTarget without an unmute in between is rejected.
func (c *Controller) setFaderMuteState(f protocol.Fader, desired MuteState) error {
	cfg := c.store.Fader(f)
	if cfg.State == desired {
		return nil
	}
	switch desired {
	case Unmuted:
		return c.unmuteFader(f)
	case MutedToTarget:
		if cfg.State == MutedToAll {
			return commandErrorf("fader %s is muted to all; unmute before muting to target", f)
		}
		if cfg.Function == MuteAll {
			return c.muteFaderToAll(f)
		}
		return c.muteFaderToTarget(f)
	case MutedToAll:
		return c.muteFaderToAll(f)
	}
	return commandErrorf("unknown mute state %d", desired)
}

func (c *Controller) setCoughMuteState(desired MuteState) error {
	cough := c.store.Cough()
	if cough.State == desired {
		return nil
	}
	switch desired {
	case Unmuted:
		return c.unmuteCough()
	case MutedToTarget:
		if cough.State == MutedToAll {
			return commandErrorf("mic is muted to all; unmute before muting to target")
		}
		if cough.Function == MuteAll {
			return c.muteCoughToAll()
		}
		return c.muteCoughToTarget()
	case MutedToAll:
		return c.muteCoughToAll()
	}
	return commandErrorf("unknown mute state %d", desired)
}
