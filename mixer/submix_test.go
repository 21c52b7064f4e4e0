package mixer

import (
	"testing"

	"mixerd/protocol"
)

func TestSubmixLinkCapturesRatio(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetVolume(protocol.ChannelMusic, 128)
	fx.store.SetSubmix(protocol.ChannelMusic, SubmixLink{Volume: 64})

	if err := fx.ctrl.HandleCommand(SetSubmixLinked{Channel: protocol.ChannelMusic, Linked: true}); err != nil {
		t.Fatalf("SetSubmixLinked: %v", err)
	}
	link := fx.store.Submix(protocol.ChannelMusic)
	if !link.Linked || link.Ratio != 0.5 {
		t.Fatalf("link %+v, want linked with ratio 0.5", link)
	}
}

func TestSubmixRatioPreservedAcrossVolumeChanges(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetVolume(protocol.ChannelMusic, 128)
	fx.store.SetSubmix(protocol.ChannelMusic, SubmixLink{Volume: 64})
	if err := fx.ctrl.HandleCommand(SetSubmixLinked{Channel: protocol.ChannelMusic, Linked: true}); err != nil {
		t.Fatalf("SetSubmixLinked: %v", err)
	}

	for _, volume := range []uint8{200, 33, 255, 1} {
		if err := fx.ctrl.HandleCommand(SetVolume{Channel: protocol.ChannelMusic, Volume: volume}); err != nil {
			t.Fatalf("SetVolume(%d): %v", volume, err)
		}
		want := uint8(float64(volume) * 0.5)
		if got := fx.store.Submix(protocol.ChannelMusic).Volume; got != want {
			t.Errorf("after channel volume %d: submix %d, want %d", volume, got, want)
		}
	}
}

func TestSubmixChangePropagatesBackToChannel(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetVolume(protocol.ChannelMusic, 128)
	fx.store.SetSubmix(protocol.ChannelMusic, SubmixLink{Volume: 64})
	if err := fx.ctrl.HandleCommand(SetSubmixLinked{Channel: protocol.ChannelMusic, Linked: true}); err != nil {
		t.Fatalf("SetSubmixLinked: %v", err)
	}

	if err := fx.ctrl.HandleCommand(SetSubVolume{Channel: protocol.ChannelMusic, Volume: 100}); err != nil {
		t.Fatalf("SetSubVolume: %v", err)
	}
	// ratio 0.5: channel follows at 100 / 0.5 = 200.
	if got := fx.store.Volume(protocol.ChannelMusic); got != 200 {
		t.Errorf("channel volume %d, want 200", got)
	}

	// The propagated channel write went to hardware too.
	volOp := protocol.OpSetChannelVolume(uint8(protocol.ChannelMusic))
	calls := fx.engine.callsFor(volOp)
	if len(calls) == 0 || calls[len(calls)-1].body[0] != 200 {
		t.Error("channel hardware volume not updated from submix change")
	}
}

func TestUnlinkStopsPropagation(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetVolume(protocol.ChannelMusic, 128)
	fx.store.SetSubmix(protocol.ChannelMusic, SubmixLink{Volume: 64})
	if err := fx.ctrl.HandleCommand(SetSubmixLinked{Channel: protocol.ChannelMusic, Linked: true}); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := fx.ctrl.HandleCommand(SetSubmixLinked{Channel: protocol.ChannelMusic, Linked: false}); err != nil {
		t.Fatalf("unlink: %v", err)
	}

	if err := fx.ctrl.HandleCommand(SetVolume{Channel: protocol.ChannelMusic, Volume: 10}); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if got := fx.store.Submix(protocol.ChannelMusic).Volume; got != 64 {
		t.Errorf("unlinked submix moved to %d, want 64 untouched", got)
	}
}

func TestLinkRejectedAtZeroChannelVolume(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetVolume(protocol.ChannelMusic, 0)

	err := fx.ctrl.HandleCommand(SetSubmixLinked{Channel: protocol.ChannelMusic, Linked: true})
	if _, ok := err.(*CommandError); !ok {
		t.Fatalf("got %v, want *CommandError", err)
	}
	if fx.store.Submix(protocol.ChannelMusic).Linked {
		t.Error("rejected link left the channel linked")
	}
}
