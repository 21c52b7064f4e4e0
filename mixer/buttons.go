package mixer

import (
	"mixerd/protocol"
)

// faderForMuteButton returns the fader under a mute button, if b is one.
func faderForMuteButton(b protocol.Button) (protocol.Fader, bool) {
	switch b {
	case protocol.ButtonFader1Mute:
		return protocol.FaderA, true
	case protocol.ButtonFader2Mute:
		return protocol.FaderB, true
	case protocol.ButtonFader3Mute:
		return protocol.FaderC, true
	case protocol.ButtonFader4Mute:
		return protocol.FaderD, true
	}
	return 0, false
}

// onButtonDown dispatches a press edge. Mute buttons act on release so the
// press can still become a hold; only the bleep button acts immediately, for
// the duration of the press.
func (c *Controller) onButtonDown(b protocol.Button) error {
	switch b {
	case protocol.ButtonBleep:
		c.bleepHeld = true
		c.announce("Bleep on")
		if err := c.applyRouting(protocol.InputMicrophone); err != nil {
			return err
		}
		return c.pushButtonLEDs()

	default:
		c.logger.Debug("button down", "button", int(b))
		return nil
	}
}

// onButtonUp dispatches a release edge. The stored edge distinguishes a short
// press from the tail of a hold: once the hold handler has fired, the release
// performs no press action.
func (c *Controller) onButtonUp(b protocol.Button, edge *buttonEdge) error {
	if f, ok := faderForMuteButton(b); ok {
		if edge.holdHandled {
			return nil
		}
		return c.pressFaderMute(f)
	}

	switch b {
	case protocol.ButtonMicMute:
		if edge.holdHandled {
			return nil
		}
		return c.pressCough()

	case protocol.ButtonBleep:
		c.bleepHeld = false
		c.announce("Bleep off")
		if err := c.applyRouting(protocol.InputMicrophone); err != nil {
			return err
		}
		return c.pushButtonLEDs()

	default:
		c.logger.Debug("button up", "button", int(b))
		return nil
	}
}

// onButtonHold dispatches a hold (press longer than the configured
// threshold). Holding a mute button forces mute-to-all regardless of the
// configured function.
func (c *Controller) onButtonHold(b protocol.Button) error {
	if f, ok := faderForMuteButton(b); ok {
		return c.holdFaderMute(f)
	}
	if b == protocol.ButtonMicMute {
		return c.holdCough()
	}
	c.logger.Debug("button hold", "button", int(b))
	return nil
}

// observeFaders folds hardware fader positions back into the store. A recent
// software write latches the fader until hardware reports the written value,
// so the motor's stale position is never taken for user input.
func (c *Controller) observeFaders(s protocol.Snapshot) (bool, error) {
	changed := false
	for f := protocol.Fader(0); f < protocol.FaderCount; f++ {
		hw := s.Faders[f]
		if hw == c.lastFaders[f] {
			continue
		}
		c.lastFaders[f] = hw

		latch := &c.latches[f]
		if latch.suppressed {
			if hw == latch.until {
				latch.suppressed = false
			}
			continue
		}

		ch := c.store.Fader(f).Channel
		if c.store.Volume(ch) == hw {
			continue
		}

		// The user moved the fader; hardware already applied the level, so
		// only the store and a linked submix need updating.
		c.store.SetVolume(ch, hw)
		if err := c.propagateToSubmix(ch, hw); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// muteLED maps a mute state to its button lighting.
func muteLED(s MuteState) protocol.LEDState {
	switch s {
	case MutedToAll:
		return protocol.LEDOn
	case MutedToTarget:
		return protocol.LEDFlashing
	}
	return protocol.LEDDimmed
}

// pushButtonLEDs rewrites the full LED payload from current state.
func (c *Controller) pushButtonLEDs() error {
	states := make(map[protocol.Button]protocol.LEDState, 6)
	for f := protocol.Fader(0); f < protocol.FaderCount; f++ {
		states[protocol.FaderMuteButton(f)] = muteLED(c.store.Fader(f).State)
	}
	states[protocol.ButtonMicMute] = muteLED(c.store.Cough().State)
	if c.bleepHeld {
		states[protocol.ButtonBleep] = protocol.LEDOn
	}
	return c.client.SetButtonStates(states)
}
