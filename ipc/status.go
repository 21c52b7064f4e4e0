package ipc

// Status is the full externally visible daemon state, returned by get_status
// and streamed over the WebSocket feed. Enumerations travel as display names,
// matching the request surface.
type Status struct {
	Connected bool   `json:"connected"`
	Serial    string `json:"serial,omitempty"`
	Firmware  string `json:"firmware,omitempty"`

	Profile  string   `json:"profile"`
	Profiles []string `json:"profiles"`

	Volumes map[string]uint8      `json:"volumes,omitempty"`
	Faders  map[string]FaderInfo  `json:"faders,omitempty"`
	Cough   CoughInfo             `json:"cough"`
	Routing map[string][]string   `json:"routing,omitempty"`
	Submix  map[string]SubmixInfo `json:"submix,omitempty"`

	MonitoredOutput string `json:"monitored_output,omitempty"`
	MonitorMicFX    bool   `json:"monitor_mic_fx"`
	HardTuneSource  string `json:"hard_tune_source,omitempty"`
}

type FaderInfo struct {
	Channel      string `json:"channel"`
	MuteFunction string `json:"mute_function"`
	MuteState    string `json:"mute_state"`
}

type CoughInfo struct {
	MuteFunction string `json:"mute_function"`
	MuteState    string `json:"mute_state"`
}

type SubmixInfo struct {
	Linked bool  `json:"linked"`
	Volume uint8 `json:"volume"`
}
