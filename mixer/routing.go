package mixer

import (
	"fmt"

	"mixerd/protocol"
)

// applyChannelRouting re-pushes the routing row for the input backing a
// channel. Output-side channels carry no routable input; their mute state is
// expressed through volume and DSP state alone.
func (c *Controller) applyChannelRouting(ch protocol.Channel) error {
	in, ok := channelInput(ch)
	if !ok {
		return nil
	}
	return c.applyRouting(in)
}

// applyRouting recomputes and pushes one input's routing row. The persisted
// base row is never modified here; mute overrides, monitor-mix substitution
// and the mic-monitor preference apply only to the pushed copy.
func (c *Controller) applyRouting(in protocol.InputDevice) error {
	row := protocol.RoutingRow{Enabled: c.store.RoutingRow(in)}

	c.applyTransientMutes(in, &row)
	c.applyMonitorMix(&row)

	if in == protocol.InputMicrophone && c.store.MonitorMicWithFX() {
		// The processed mic is monitored regardless of mute state.
		row.Enabled[protocol.OutputHeadphones] = true
	}

	row.HardTune = c.hardTuneEnabled(in)

	left, right := row.Encode()
	leftID, rightID := in.WireIDs()
	if err := c.client.SetRouting(leftID, left); err != nil {
		return fmt.Errorf("push routing for %s (left): %w", in, err)
	}
	if err := c.client.SetRouting(rightID, right); err != nil {
		return fmt.Errorf("push routing for %s (right): %w", in, err)
	}
	return nil
}

// applyTransientMutes clears output bits according to every mute source
// currently covering the input: each fader carrying its channel, the cough
// control for the microphone, and the bleep button while held. Muted-to-all
// clears the whole row and short-circuits the per-target clearing.
func (c *Controller) applyTransientMutes(in protocol.InputDevice, row *protocol.RoutingRow) {
	clearAll := func() {
		row.Enabled = [protocol.OutputCount]bool{}
	}

	for f := protocol.Fader(0); f < protocol.FaderCount; f++ {
		cfg := c.store.Fader(f)
		chIn, ok := channelInput(cfg.Channel)
		if !ok || chIn != in {
			continue
		}
		switch cfg.State {
		case MutedToAll:
			clearAll()
			return
		case MutedToTarget:
			row.Enabled[cfg.Function.Target()] = false
		}
	}

	if in != protocol.InputMicrophone {
		return
	}

	cough := c.store.Cough()
	switch cough.State {
	case MutedToAll:
		clearAll()
		return
	case MutedToTarget:
		row.Enabled[cough.Function.Target()] = false
	}

	if c.bleepHeld {
		row.Enabled[protocol.OutputBroadcastMix] = false
	}
}

// applyMonitorMix substitutes the monitored mix onto the headphone output:
// when a non-default mix is monitored, the headphone bit mirrors that mix's
// bit so the single physical output always carries the chosen monitor.
func (c *Controller) applyMonitorMix(row *protocol.RoutingRow) {
	monitored := c.store.MonitoredOutput()
	if monitored == protocol.OutputHeadphones {
		return
	}
	row.Enabled[protocol.OutputHeadphones] = row.Enabled[monitored]
}

// hardTuneEnabled reports whether the input feeds the pitch-correction path:
// the music-like class by default, or exactly one explicitly chosen input.
func (c *Controller) hardTuneEnabled(in protocol.InputDevice) bool {
	source, explicit := c.store.HardTuneSource()
	if explicit {
		return in == source
	}
	switch in {
	case protocol.InputMusic, protocol.InputGame, protocol.InputLineIn:
		return true
	}
	return false
}

// setMonitoredOutput switches the monitor mix and re-pushes every row, since
// the substitution affects all inputs.
func (c *Controller) setMonitoredOutput(out protocol.OutputDevice) error {
	if c.store.MonitoredOutput() == out {
		return nil
	}
	c.store.SetMonitoredOutput(out)
	for in := protocol.InputDevice(0); in < protocol.InputCount; in++ {
		if err := c.applyRouting(in); err != nil {
			return err
		}
	}
	return nil
}
