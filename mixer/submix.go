package mixer

import "mixerd/protocol"

// Submix linking: linking captures ratio = submix/channel at that moment.
// While linked, a volume change on either side propagates to the other
// scaled by the ratio, rounded down. Unlinking stops propagation without
// touching current values.

func (c *Controller) setSubmixLinked(ch protocol.Channel, linked bool) error {
	link := c.store.Submix(ch)
	if link.Linked == linked {
		return nil
	}

	if linked {
		volume := c.store.Volume(ch)
		if volume == 0 {
			return commandErrorf("cannot link %s submix while channel volume is zero", ch)
		}
		link.Ratio = float64(link.Volume) / float64(volume)
	}
	link.Linked = linked
	c.store.SetSubmix(ch, link)
	return nil
}

// setVolume is the software volume write path: latch the carrying fader,
// push to hardware, persist, propagate to a linked submix.
func (c *Controller) setVolume(ch protocol.Channel, volume uint8) error {
	if err := c.pushVolume(ch, volume); err != nil {
		return err
	}
	c.store.SetVolume(ch, volume)
	return c.propagateToSubmix(ch, volume)
}

// propagateToSubmix mirrors a channel volume change onto its linked submix.
func (c *Controller) propagateToSubmix(ch protocol.Channel, volume uint8) error {
	link := c.store.Submix(ch)
	if !link.Linked {
		return nil
	}

	scaled := scaleVolume(float64(volume) * link.Ratio)
	if scaled == link.Volume {
		return nil
	}
	link.Volume = scaled
	c.store.SetSubmix(ch, link)
	return c.client.SetSubVolume(ch, scaled)
}

// setSubVolume changes the submix side directly, propagating back to the
// channel while linked.
func (c *Controller) setSubVolume(ch protocol.Channel, volume uint8) error {
	link := c.store.Submix(ch)
	link.Volume = volume
	c.store.SetSubmix(ch, link)
	if err := c.client.SetSubVolume(ch, volume); err != nil {
		return err
	}

	if !link.Linked || link.Ratio <= 0 {
		return nil
	}

	scaled := scaleVolume(float64(volume) / link.Ratio)
	if scaled == c.store.Volume(ch) {
		return nil
	}
	if err := c.pushVolume(ch, scaled); err != nil {
		return err
	}
	c.store.SetVolume(ch, scaled)
	return nil
}

// scaleVolume rounds down and clamps to the u8 volume range.
func scaleVolume(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
