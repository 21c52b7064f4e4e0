package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"mixerd/ipc"
	"mixerd/mixer"
	"mixerd/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDaemon builds a daemon over a throwaway profile directory with no
// device attached.
func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Profiles.Directory = t.TempDir()
	// Autosave would flush pending edits on profile switches; tests drive
	// saves explicitly.
	cfg.Profiles.Autosave = false

	d, err := NewDaemon(cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	return d
}

func TestFirstRunWritesDefaultProfile(t *testing.T) {
	d := newTestDaemon(t)

	if _, err := os.Stat(d.profilePath("default")); err != nil {
		t.Errorf("default profile not written: %v", err)
	}
	if len(d.profiles) != 1 || d.profiles[0] != "default" {
		t.Errorf("profiles %v, want [default]", d.profiles)
	}
}

func TestTranslateRequest(t *testing.T) {
	cases := []struct {
		req  ipc.Request
		want mixer.Command
	}{
		{
			ipc.SetVolume{Channel: "Music", Volume: 100},
			mixer.SetVolume{Channel: protocol.ChannelMusic, Volume: 100},
		},
		{
			ipc.AssignFader{Fader: "C", Channel: "Game"},
			mixer.AssignFader{Fader: protocol.FaderC, Channel: protocol.ChannelGame},
		},
		{
			ipc.SetRouting{Input: "Game", Output: "BroadcastMix", Enabled: true},
			mixer.SetRouting{Input: protocol.InputGame, Output: protocol.OutputBroadcastMix, Enabled: true},
		},
		{
			ipc.SetMuteFunction{Fader: "2", Function: "ToPhones"},
			mixer.SetMuteFunction{Fader: protocol.FaderB, Function: mixer.MuteToPhones},
		},
		{
			ipc.SetFaderMuteState{Fader: "a", State: "MutedToAll"},
			mixer.SetFaderMuteState{Fader: protocol.FaderA, State: mixer.MutedToAll},
		},
		{
			ipc.SetCoughMuteState{State: ""},
			mixer.SetCoughMuteState{State: mixer.Unmuted},
		},
		{
			ipc.SetMicGain{MicType: "condenser", Gain: 40},
			mixer.SetMicGain{Type: mixer.MicParamGainCondenser, Gain: 40},
		},
		{
			ipc.SetMonitoredOutput{Output: "LineOut"},
			mixer.SetMonitoredOutput{Output: protocol.OutputLineOut},
		},
	}
	for _, tc := range cases {
		got, err := translateRequest(tc.req)
		if err != nil {
			t.Errorf("%s: %v", tc.req, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %#v, want %#v", tc.req, got, tc.want)
		}
	}
}

func TestTranslateRequestRejectsBadNames(t *testing.T) {
	reqs := []ipc.Request{
		ipc.SetVolume{Channel: "Vocals"},
		ipc.AssignFader{Fader: "e", Channel: "Mic"},
		ipc.SetRouting{Input: "Mic", Output: "BroadcastMix"},
		ipc.SetMuteFunction{Fader: "a", Function: "Everywhere"},
		ipc.SetMicGain{MicType: "ribbon"},
	}
	for _, req := range reqs {
		if _, err := translateRequest(req); err == nil {
			t.Errorf("%s: expected an error", req)
		}
	}
}

func TestDispatchWithoutDevice(t *testing.T) {
	d := newTestDaemon(t)

	res := d.dispatch(ipc.SetVolume{Channel: "Music", Volume: 10})
	if !errors.Is(res.err, errDeviceGone) {
		t.Errorf("device command while disconnected gave %v, want errDeviceGone", res.err)
	}

	// Status and profile queries still work.
	res = d.dispatch(ipc.GetStatus{})
	if res.err != nil {
		t.Fatalf("GetStatus: %v", res.err)
	}
	status := res.data.(ipc.Status)
	if status.Connected {
		t.Error("status reports connected with no device")
	}
	if status.Profile != "default" {
		t.Errorf("active profile %q, want default", status.Profile)
	}
	if status.Faders["a"].Channel != "Mic" {
		t.Errorf("fader a carries %q, want Mic", status.Faders["a"].Channel)
	}

	res = d.dispatch(ipc.ListProfiles{})
	if res.err != nil {
		t.Fatalf("ListProfiles: %v", res.err)
	}
	if names := res.data.([]string); len(names) != 1 || names[0] != "default" {
		t.Errorf("profiles %v, want [default]", names)
	}
}

func TestSaveAndLoadProfileRoundTrip(t *testing.T) {
	d := newTestDaemon(t)

	d.store.SetVolume(protocol.ChannelMusic, 77)
	if res := d.dispatch(ipc.SaveProfile{Name: "stream"}); res.err != nil {
		t.Fatalf("SaveProfile: %v", res.err)
	}
	if d.active != "stream" {
		t.Errorf("active profile %q after save-as, want stream", d.active)
	}

	// Mutate, then load the saved copy back: the store must return to the
	// saved state.
	d.store.SetVolume(protocol.ChannelMusic, 5)
	if res := d.dispatch(ipc.LoadProfile{Name: "stream"}); res.err != nil {
		t.Fatalf("LoadProfile: %v", res.err)
	}
	if got := d.store.Volume(protocol.ChannelMusic); got != 77 {
		t.Errorf("Music volume %d after reload, want 77", got)
	}
}

func TestLoadProfileRejectsPathNames(t *testing.T) {
	d := newTestDaemon(t)
	if res := d.dispatch(ipc.LoadProfile{Name: "../etc/passwd"}); res.err == nil {
		t.Fatal("expected an error for a path-like profile name")
	}
}

func TestLoadMissingProfileFails(t *testing.T) {
	d := newTestDaemon(t)
	if res := d.dispatch(ipc.LoadProfile{Name: "nope"}); res.err == nil {
		t.Fatal("expected an error for a missing profile")
	}
}
