package mixer

import (
	"fmt"

	"mixerd/protocol"
)

// pushVolume writes a channel volume to hardware and records it as applied.
// The carrying fader, if any, is latched so the motor's travel is not
// mistaken for user input by the next poll.
func (c *Controller) pushVolume(ch protocol.Channel, volume uint8) error {
	if f, ok := c.faderCarrying(ch); ok {
		c.latchFader(f, volume)
	}
	if err := c.client.SetVolume(ch, volume); err != nil {
		return fmt.Errorf("set %s volume: %w", ch, err)
	}
	c.applied[ch] = volume
	return nil
}

// monitorChannels are written out of order on bulk loads: first when their
// level is rising, last when falling. Writing a rising monitor level last
// would leave a window where a previously loud channel and the newly loud
// monitor both sit at high volume.
var monitorChannels = [2]protocol.Channel{
	protocol.ChannelHeadphones,
	protocol.ChannelLineOut,
}

// profileVolume is the level a bulk load writes for a channel: zero for a
// channel held muted-to-all on volume-on-mute hardware, the persisted level
// otherwise. The persisted level is never touched, so unmute can restore it.
func (c *Controller) profileVolume(ch protocol.Channel) uint8 {
	if c.volumeOnMute && c.channelMutedToAll(ch) {
		return 0
	}
	return c.store.Volume(ch)
}

// applyVolumesOrdered writes every persisted channel volume in a spike-free
// order.
func (c *Controller) applyVolumesOrdered() error {
	var first, last []protocol.Channel
	for _, ch := range monitorChannels {
		if c.profileVolume(ch) > c.applied[ch] {
			first = append(first, ch)
		} else {
			last = append(last, ch)
		}
	}

	write := func(ch protocol.Channel) error {
		return c.pushVolume(ch, c.profileVolume(ch))
	}

	for _, ch := range first {
		if err := write(ch); err != nil {
			return err
		}
	}
	for ch := protocol.Channel(0); ch < protocol.ChannelCount; ch++ {
		if ch == protocol.ChannelHeadphones || ch == protocol.ChannelLineOut {
			continue
		}
		if err := write(ch); err != nil {
			return err
		}
	}
	for _, ch := range last {
		if err := write(ch); err != nil {
			return err
		}
	}
	return nil
}
