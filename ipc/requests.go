// Package ipc carries the daemon's external control surface: a line-delimited
// JSON protocol over a Unix domain socket, and a WebSocket feed that streams
// status updates to UIs.
package ipc

import (
	"encoding/json"
	"fmt"
)

// Request is the marker interface for operations a client can ask of the
// daemon. Enumerated values (channels, faders, outputs) travel as their
// display names; the daemon resolves them so clients never deal in wire
// ordinals.
type Request interface {
	requestMarker()
	String() string
}

// RequestEnvelope is the wire format: a type discriminator plus a payload.
type RequestEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is sent back for every request, on the same line-delimited stream.
type Response struct {
	Status string          `json:"status"`          // "ok" or "error"
	Error  string          `json:"error,omitempty"` // set when status == "error"
	Data   json.RawMessage `json:"data,omitempty"`  // query result payload
}

// ============================================================================
// Mixer state requests
// ============================================================================

// SetVolume sets a channel's volume.
type SetVolume struct {
	Channel string `json:"channel"`
	Volume  uint8  `json:"volume"`
}

func (SetVolume) requestMarker() {}
func (r SetVolume) String() string {
	return fmt.Sprintf("SetVolume{%s=%d}", r.Channel, r.Volume)
}

// SetSubVolume sets a channel's submix volume.
type SetSubVolume struct {
	Channel string `json:"channel"`
	Volume  uint8  `json:"volume"`
}

func (SetSubVolume) requestMarker() {}
func (r SetSubVolume) String() string {
	return fmt.Sprintf("SetSubVolume{%s=%d}", r.Channel, r.Volume)
}

// AssignFader puts a channel on a physical fader.
type AssignFader struct {
	Fader   string `json:"fader"`
	Channel string `json:"channel"`
}

func (AssignFader) requestMarker() {}
func (r AssignFader) String() string {
	return fmt.Sprintf("AssignFader{%s=%s}", r.Fader, r.Channel)
}

// SetRouting enables or disables one input/output crossing.
type SetRouting struct {
	Input   string `json:"input"`
	Output  string `json:"output"`
	Enabled bool   `json:"enabled"`
}

func (SetRouting) requestMarker() {}
func (r SetRouting) String() string {
	return fmt.Sprintf("SetRouting{%s->%s=%v}", r.Input, r.Output, r.Enabled)
}

// SetMuteFunction reconfigures what a fader's mute button does.
type SetMuteFunction struct {
	Fader    string `json:"fader"`
	Function string `json:"function"`
}

func (SetMuteFunction) requestMarker() {}
func (r SetMuteFunction) String() string {
	return fmt.Sprintf("SetMuteFunction{%s=%s}", r.Fader, r.Function)
}

// SetCoughMuteFunction reconfigures the dedicated mic-mute control.
type SetCoughMuteFunction struct {
	Function string `json:"function"`
}

func (SetCoughMuteFunction) requestMarker() {}
func (r SetCoughMuteFunction) String() string {
	return fmt.Sprintf("SetCoughMuteFunction{%s}", r.Function)
}

// SetFaderMuteState drives a fader's mute state directly, as if the button
// had been pressed or held.
type SetFaderMuteState struct {
	Fader string `json:"fader"`
	State string `json:"state"`
}

func (SetFaderMuteState) requestMarker() {}
func (r SetFaderMuteState) String() string {
	return fmt.Sprintf("SetFaderMuteState{%s=%s}", r.Fader, r.State)
}

// SetCoughMuteState drives the mic-mute control's state directly.
type SetCoughMuteState struct {
	State string `json:"state"`
}

func (SetCoughMuteState) requestMarker() {}
func (r SetCoughMuteState) String() string {
	return fmt.Sprintf("SetCoughMuteState{%s}", r.State)
}

// SetSubmixLinked links or unlinks a channel's submix from its volume.
type SetSubmixLinked struct {
	Channel string `json:"channel"`
	Linked  bool   `json:"linked"`
}

func (SetSubmixLinked) requestMarker() {}
func (r SetSubmixLinked) String() string {
	return fmt.Sprintf("SetSubmixLinked{%s=%v}", r.Channel, r.Linked)
}

// SetMonitoredOutput selects the mix mirrored onto the headphone output.
type SetMonitoredOutput struct {
	Output string `json:"output"`
}

func (SetMonitoredOutput) requestMarker() {}
func (r SetMonitoredOutput) String() string {
	return fmt.Sprintf("SetMonitoredOutput{%s}", r.Output)
}

// SetMonitorMicFX toggles monitoring the processed microphone.
type SetMonitorMicFX struct {
	Enabled bool `json:"enabled"`
}

func (SetMonitorMicFX) requestMarker() {}
func (r SetMonitorMicFX) String() string {
	return fmt.Sprintf("SetMonitorMicFX{%v}", r.Enabled)
}

// SetHardTuneSource pins the pitch-correction feed to one input. An empty
// source reverts to the default class of music-like inputs.
type SetHardTuneSource struct {
	Source string `json:"source,omitempty"`
}

func (SetHardTuneSource) requestMarker() {}
func (r SetHardTuneSource) String() string {
	return fmt.Sprintf("SetHardTuneSource{%s}", r.Source)
}

// SetMicGain configures the microphone type and its gain.
type SetMicGain struct {
	MicType string `json:"mic_type"` // "dynamic", "condenser" or "jack"
	Gain    uint16 `json:"gain"`
}

func (SetMicGain) requestMarker() {}
func (r SetMicGain) String() string {
	return fmt.Sprintf("SetMicGain{%s=%d}", r.MicType, r.Gain)
}

// ============================================================================
// Profile requests
// ============================================================================

// LoadProfile replaces the active profile with a named one from the profile
// directory and pushes it to the device.
type LoadProfile struct {
	Name string `json:"name"`
}

func (LoadProfile) requestMarker() {}
func (r LoadProfile) String() string {
	return fmt.Sprintf("LoadProfile{%s}", r.Name)
}

// SaveProfile persists the active profile, optionally under a new name.
type SaveProfile struct {
	Name string `json:"name,omitempty"`
}

func (SaveProfile) requestMarker() {}
func (r SaveProfile) String() string {
	return fmt.Sprintf("SaveProfile{%s}", r.Name)
}

// ListProfiles asks for the names of the profiles on disk.
type ListProfiles struct{}

func (ListProfiles) requestMarker() {}
func (ListProfiles) String() string { return "ListProfiles" }

// GetStatus asks for a full daemon status snapshot.
type GetStatus struct{}

func (GetStatus) requestMarker() {}
func (GetStatus) String() string { return "GetStatus" }

// ============================================================================
// Envelope codec
// ============================================================================

// UnmarshalRequest deserializes a JSON envelope into a concrete Request.
func UnmarshalRequest(data []byte) (Request, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	decode := func(v any) error {
		if len(env.Data) == 0 {
			return fmt.Errorf("%s: missing data", env.Type)
		}
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return nil
	}

	switch env.Type {
	case "set_volume":
		var r SetVolume
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "set_sub_volume":
		var r SetSubVolume
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "assign_fader":
		var r AssignFader
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "set_routing":
		var r SetRouting
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "set_mute_function":
		var r SetMuteFunction
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "set_cough_mute_function":
		var r SetCoughMuteFunction
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "set_fader_mute_state":
		var r SetFaderMuteState
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "set_cough_mute_state":
		var r SetCoughMuteState
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "set_submix_linked":
		var r SetSubmixLinked
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "set_monitored_output":
		var r SetMonitoredOutput
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "set_monitor_mic_fx":
		var r SetMonitorMicFX
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "set_hard_tune_source":
		var r SetHardTuneSource
		// Data may be omitted entirely: empty source means the default class.
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &r); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
			}
		}
		return r, nil

	case "set_mic_gain":
		var r SetMicGain
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "load_profile":
		var r LoadProfile
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "save_profile":
		var r SaveProfile
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &r); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
			}
		}
		return r, nil

	case "list_profiles":
		return ListProfiles{}, nil

	case "get_status":
		return GetStatus{}, nil

	default:
		return nil, fmt.Errorf("unknown request type: %q", env.Type)
	}
}

// MarshalRequest serializes a Request into a JSON envelope.
func MarshalRequest(r Request) ([]byte, error) {
	env := RequestEnvelope{}

	withData := func(t string, v any) error {
		env.Type = t
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", t, err)
		}
		env.Data = data
		return nil
	}

	var err error
	switch r := r.(type) {
	case SetVolume:
		err = withData("set_volume", r)
	case SetSubVolume:
		err = withData("set_sub_volume", r)
	case AssignFader:
		err = withData("assign_fader", r)
	case SetRouting:
		err = withData("set_routing", r)
	case SetMuteFunction:
		err = withData("set_mute_function", r)
	case SetCoughMuteFunction:
		err = withData("set_cough_mute_function", r)
	case SetFaderMuteState:
		err = withData("set_fader_mute_state", r)
	case SetCoughMuteState:
		err = withData("set_cough_mute_state", r)
	case SetSubmixLinked:
		err = withData("set_submix_linked", r)
	case SetMonitoredOutput:
		err = withData("set_monitored_output", r)
	case SetMonitorMicFX:
		err = withData("set_monitor_mic_fx", r)
	case SetHardTuneSource:
		err = withData("set_hard_tune_source", r)
	case SetMicGain:
		err = withData("set_mic_gain", r)
	case LoadProfile:
		err = withData("load_profile", r)
	case SaveProfile:
		err = withData("save_profile", r)
	case ListProfiles:
		env.Type = "list_profiles"
	case GetStatus:
		env.Type = "get_status"
	default:
		return nil, fmt.Errorf("unsupported request type: %T", r)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(env)
}
