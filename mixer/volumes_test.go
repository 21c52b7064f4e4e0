package mixer

import (
	"testing"

	"mixerd/protocol"
)

// channelOfVolumeCall maps a SetChannelVolume opcode back to its channel.
func channelOfVolumeCall(op protocol.Opcode) (protocol.Channel, bool) {
	for ch := protocol.Channel(0); ch < protocol.ChannelCount; ch++ {
		if op == protocol.OpSetChannelVolume(uint8(ch)) {
			return ch, true
		}
	}
	return 0, false
}

func TestBulkLoadOrdersMonitorChannels(t *testing.T) {
	fx := newFixture(t)

	// Currently applied: headphones loud, line-out quiet. Target: reversed.
	fx.ctrl.applied[protocol.ChannelHeadphones] = 100
	fx.ctrl.applied[protocol.ChannelLineOut] = 20
	fx.store.SetVolume(protocol.ChannelHeadphones, 20)
	fx.store.SetVolume(protocol.ChannelLineOut, 100)

	if err := fx.ctrl.applyVolumesOrdered(); err != nil {
		t.Fatalf("applyVolumesOrdered: %v", err)
	}

	var order []protocol.Channel
	for _, call := range fx.engine.calls {
		if ch, ok := channelOfVolumeCall(call.op); ok {
			order = append(order, ch)
		}
	}
	if len(order) != protocol.ChannelCount {
		t.Fatalf("wrote %d volumes, want %d", len(order), protocol.ChannelCount)
	}
	// Rising line-out goes first, falling headphones last.
	if order[0] != protocol.ChannelLineOut {
		t.Errorf("first write %s, want LineOut", order[0])
	}
	if order[len(order)-1] != protocol.ChannelHeadphones {
		t.Errorf("last write %s, want Headphones", order[len(order)-1])
	}

	// At no point are both monitor channels above their starting values.
	applied := map[protocol.Channel]uint8{
		protocol.ChannelHeadphones: 100,
		protocol.ChannelLineOut:    20,
	}
	for i, call := range fx.engine.calls {
		ch, ok := channelOfVolumeCall(call.op)
		if !ok {
			continue
		}
		applied[ch] = call.body[0]
		if applied[protocol.ChannelHeadphones] > 100 && applied[protocol.ChannelLineOut] > 20 {
			t.Fatalf("write %d: both monitor channels above their starting levels", i)
		}
	}
}

func TestBulkLoadRisingMonitorsWrittenFirst(t *testing.T) {
	fx := newFixture(t)

	// Both monitors rising: both are written before any other channel.
	fx.store.SetVolume(protocol.ChannelHeadphones, 200)
	fx.store.SetVolume(protocol.ChannelLineOut, 180)

	if err := fx.ctrl.applyVolumesOrdered(); err != nil {
		t.Fatalf("applyVolumesOrdered: %v", err)
	}

	var order []protocol.Channel
	for _, call := range fx.engine.calls {
		if ch, ok := channelOfVolumeCall(call.op); ok {
			order = append(order, ch)
		}
	}
	if order[0] != protocol.ChannelHeadphones || order[1] != protocol.ChannelLineOut {
		t.Errorf("rising monitors not written first: %v", order[:2])
	}
}

func TestPushVolumeLatchesCarryingFader(t *testing.T) {
	fx := newFixture(t)

	if err := fx.ctrl.pushVolume(protocol.ChannelChat, 42); err != nil {
		t.Fatalf("pushVolume: %v", err)
	}
	latch := fx.ctrl.latches[protocol.FaderC]
	if !latch.suppressed || latch.until != 42 {
		t.Errorf("fader C latch %+v, want suppressed until 42", latch)
	}

	// A channel off every fader latches nothing.
	if err := fx.ctrl.pushVolume(protocol.ChannelGame, 10); err != nil {
		t.Fatalf("pushVolume: %v", err)
	}
	for f := protocol.Fader(0); f < protocol.FaderCount; f++ {
		if fx.ctrl.latches[f].suppressed && fx.ctrl.latches[f].until == 10 {
			t.Errorf("fader %s latched for an unassigned channel", f)
		}
	}
}
