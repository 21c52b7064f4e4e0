package mixer

import (
	"bytes"
	"testing"

	"mixerd/protocol"
)

func TestMuteRoundTripRestoresRouting(t *testing.T) {
	fx := newFixture(t)

	// Baseline row for Music as pushed when nothing is muted.
	if err := fx.ctrl.applyRouting(protocol.InputMusic); err != nil {
		t.Fatalf("applyRouting: %v", err)
	}
	baseline := fx.engine.lastRoutingLeft(protocol.InputMusic)

	// Fader B carries Music with function ToStream: mute clears exactly the
	// broadcast-mix slot.
	fx.press(t, protocol.ButtonFader2Mute)
	if got := fx.store.Fader(protocol.FaderB).State; got != MutedToTarget {
		t.Fatalf("state %v, want MutedToTarget", got)
	}
	muted := fx.engine.lastRoutingLeft(protocol.InputMusic)
	if bytes.Equal(muted, baseline) {
		t.Fatal("mute did not change the pushed routing row")
	}

	// Unmute restores the exact pre-mute row.
	fx.press(t, protocol.ButtonFader2Mute)
	if got := fx.store.Fader(protocol.FaderB).State; got != Unmuted {
		t.Fatalf("state %v, want Unmuted", got)
	}
	restored := fx.engine.lastRoutingLeft(protocol.InputMusic)
	if !bytes.Equal(restored, baseline) {
		t.Errorf("unmute row %v differs from baseline %v", restored, baseline)
	}

	// The base table was never touched.
	if !fx.store.RoutingRow(protocol.InputMusic)[protocol.OutputBroadcastMix] {
		t.Error("transient mute leaked into the persisted routing table")
	}
}

func TestMuteToAllZeroesAndRestoresVolume(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetVolume(protocol.ChannelSystem, 150)

	// Fader D (System) is configured MuteAll: a short press goes straight to
	// MutedToAll.
	fx.press(t, protocol.ButtonFader4Mute)
	cfg := fx.store.Fader(protocol.FaderD)
	if cfg.State != MutedToAll {
		t.Fatalf("state %v, want MutedToAll", cfg.State)
	}
	if cfg.PreviousVolume != 150 {
		t.Fatalf("previous volume %d, want 150", cfg.PreviousVolume)
	}
	// Hardware volume zeroed, persisted volume untouched.
	volOp := protocol.OpSetChannelVolume(uint8(protocol.ChannelSystem))
	calls := fx.engine.callsFor(volOp)
	if len(calls) == 0 || calls[len(calls)-1].body[0] != 0 {
		t.Fatal("hardware volume not zeroed on mute-to-all")
	}
	if fx.store.Volume(protocol.ChannelSystem) != 150 {
		t.Fatal("persisted volume clobbered by mute")
	}

	// Unmute restores the captured level.
	fx.press(t, protocol.ButtonFader4Mute)
	calls = fx.engine.callsFor(volOp)
	if calls[len(calls)-1].body[0] != 150 {
		t.Errorf("restored volume %d, want 150", calls[len(calls)-1].body[0])
	}
	if got := fx.store.Fader(protocol.FaderD).State; got != Unmuted {
		t.Errorf("state %v, want Unmuted", got)
	}
}

func TestShortPressNeverEscalatesToAll(t *testing.T) {
	fx := newFixture(t)

	fx.press(t, protocol.ButtonFader2Mute)
	if got := fx.store.Fader(protocol.FaderB).State; got != MutedToTarget {
		t.Fatalf("state %v, want MutedToTarget", got)
	}

	// A second short press unmutes; it must not escalate.
	fx.press(t, protocol.ButtonFader2Mute)
	if got := fx.store.Fader(protocol.FaderB).State; got != Unmuted {
		t.Errorf("second press gave %v, want Unmuted", got)
	}
}

func TestHoldForcesMuteToAll(t *testing.T) {
	fx := newFixture(t)

	// Function is ToStream, but a hold overrides it.
	fx.hold(t, protocol.ButtonFader2Mute)
	if got := fx.store.Fader(protocol.FaderB).State; got != MutedToAll {
		t.Fatalf("state after hold %v, want MutedToAll", got)
	}

	// Holding again while already MutedToAll is a no-op.
	volOp := protocol.OpSetChannelVolume(uint8(protocol.ChannelMusic))
	before := len(fx.engine.callsFor(volOp))
	fx.hold(t, protocol.ButtonFader2Mute)
	if got := fx.store.Fader(protocol.FaderB).State; got != MutedToAll {
		t.Errorf("state %v, want MutedToAll", got)
	}
	if after := len(fx.engine.callsFor(volOp)); after != before {
		t.Errorf("hold while muted-to-all issued %d extra volume writes", after-before)
	}
}

func TestHoldEscalatesTargetMuteWithoutClobberingPreviousVolume(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetVolume(protocol.ChannelMusic, 180)

	fx.press(t, protocol.ButtonFader2Mute) // MutedToTarget, volume untouched
	fx.hold(t, protocol.ButtonFader2Mute)  // escalate

	cfg := fx.store.Fader(protocol.FaderB)
	if cfg.State != MutedToAll {
		t.Fatalf("state %v, want MutedToAll", cfg.State)
	}
	if cfg.PreviousVolume != 180 {
		t.Errorf("previous volume %d, want the real pre-mute 180", cfg.PreviousVolume)
	}
}

func TestMuteStateCommandRejectsAllToTarget(t *testing.T) {
	fx := newFixture(t)

	if err := fx.ctrl.HandleCommand(SetFaderMuteState{Fader: protocol.FaderB, State: MutedToAll}); err != nil {
		t.Fatalf("SetFaderMuteState: %v", err)
	}

	err := fx.ctrl.HandleCommand(SetFaderMuteState{Fader: protocol.FaderB, State: MutedToTarget})
	if _, ok := err.(*CommandError); !ok {
		t.Fatalf("got %v, want *CommandError", err)
	}
	if got := fx.store.Fader(protocol.FaderB).State; got != MutedToAll {
		t.Errorf("rejected command changed state to %v", got)
	}
}

func TestMuteAllFunctionCollapsesTargetState(t *testing.T) {
	fx := newFixture(t)

	fx.press(t, protocol.ButtonFader2Mute)
	if got := fx.store.Fader(protocol.FaderB).State; got != MutedToTarget {
		t.Fatalf("state %v, want MutedToTarget", got)
	}

	// Reconfiguring the button to "All" while muted to a target leaves no
	// legal target state; it collapses to MutedToAll.
	if err := fx.ctrl.HandleCommand(SetMuteFunction{Fader: protocol.FaderB, Function: MuteAll}); err != nil {
		t.Fatalf("SetMuteFunction: %v", err)
	}
	if got := fx.store.Fader(protocol.FaderB).State; got != MutedToAll {
		t.Errorf("state %v, want MutedToAll after collapse", got)
	}
}

func TestCoughUnmuteSkipsRestoreWhileFaderStillMutes(t *testing.T) {
	fx := newFixture(t)

	// Both the mic fader (A) and the cough control hold the mic muted to all.
	fx.hold(t, protocol.ButtonFader1Mute)
	fx.hold(t, protocol.ButtonMicMute)

	volOp := protocol.OpSetChannelVolume(uint8(protocol.ChannelMic))
	stateOp := protocol.OpSetChannelState(uint8(protocol.ChannelMic))
	volBefore := len(fx.engine.callsFor(volOp))
	stateBefore := len(fx.engine.callsFor(stateOp))

	// Releasing the cough mute must not unmute the channel: the fader still
	// covers it.
	fx.press(t, protocol.ButtonMicMute)
	if got := fx.store.Cough().State; got != Unmuted {
		t.Fatalf("cough state %v, want Unmuted", got)
	}
	if got := len(fx.engine.callsFor(volOp)); got != volBefore {
		t.Errorf("volume restored despite an active fader mute")
	}
	if got := len(fx.engine.callsFor(stateOp)); got != stateBefore {
		t.Errorf("channel state rewritten despite an active fader mute")
	}

	// Unmuting the fader, the last active source, restores everything.
	fx.press(t, protocol.ButtonFader1Mute)
	calls := fx.engine.callsFor(stateOp)
	if len(calls) == stateBefore {
		t.Fatal("final unmute did not touch the channel state")
	}
	if calls[len(calls)-1].body[0] != protocol.ChannelStateUnmuted {
		t.Error("final unmute left the channel muted")
	}
}

func TestMuteAnnouncements(t *testing.T) {
	fx := newFixture(t)

	fx.press(t, protocol.ButtonMicMute)
	if len(fx.sink.messages) == 0 || fx.sink.messages[len(fx.sink.messages)-1] != "Mic muted" {
		t.Errorf("announcements %v, want trailing %q", fx.sink.messages, "Mic muted")
	}

	fx.press(t, protocol.ButtonMicMute)
	if fx.sink.messages[len(fx.sink.messages)-1] != "Mic unmuted" {
		t.Errorf("announcements %v, want trailing %q", fx.sink.messages, "Mic unmuted")
	}
}

func TestMuteLEDsFollowState(t *testing.T) {
	fx := newFixture(t)

	fx.press(t, protocol.ButtonFader2Mute)
	leds := fx.engine.callsFor(protocol.OpSetButtonStates)
	if len(leds) == 0 {
		t.Fatal("no LED payload pushed")
	}
	payload := leds[len(leds)-1].body
	if payload[protocol.ButtonFader2Mute.LEDPosition()] != byte(protocol.LEDFlashing) {
		t.Error("target mute must flash its button")
	}

	fx.hold(t, protocol.ButtonFader2Mute)
	leds = fx.engine.callsFor(protocol.OpSetButtonStates)
	payload = leds[len(leds)-1].body
	if payload[protocol.ButtonFader2Mute.LEDPosition()] != byte(protocol.LEDOn) {
		t.Error("mute-to-all must light its button solid")
	}
}
