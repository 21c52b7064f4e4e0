package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"mixerd/ipc"
)

// ============================================================================
// mixerctl - Command-line IPC Client
// ============================================================================
// This tool sends requests to the mixerd daemon via its Unix socket.
//
// Usage:
//   mixerctl status
//   mixerctl volume Music 180
//   mixerctl mute b MutedToAll
//   mixerctl load-profile stream
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/mixerd.sock)
// ============================================================================

func main() {
	socketPath := "/tmp/mixerd.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	req, err := parseCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if req == nil {
		// help
		return
	}

	data, err := ipc.Send(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := printResult(req, data); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseCommand maps CLI arguments onto an IPC request. A nil request with a
// nil error means help was printed.
func parseCommand(args []string) (ipc.Request, error) {
	switch args[0] {
	case "status":
		return ipc.GetStatus{}, nil

	case "profiles":
		return ipc.ListProfiles{}, nil

	case "load-profile":
		if len(args) < 2 {
			return nil, fmt.Errorf("load-profile requires a profile name")
		}
		return ipc.LoadProfile{Name: args[1]}, nil

	case "save-profile":
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		return ipc.SaveProfile{Name: name}, nil

	case "volume":
		if len(args) < 3 {
			return nil, fmt.Errorf("volume requires a channel and a value (0-255)")
		}
		v, err := parseByte(args[2])
		if err != nil {
			return nil, err
		}
		return ipc.SetVolume{Channel: args[1], Volume: v}, nil

	case "sub-volume":
		if len(args) < 3 {
			return nil, fmt.Errorf("sub-volume requires a channel and a value (0-255)")
		}
		v, err := parseByte(args[2])
		if err != nil {
			return nil, err
		}
		return ipc.SetSubVolume{Channel: args[1], Volume: v}, nil

	case "fader":
		if len(args) < 3 {
			return nil, fmt.Errorf("fader requires a fader (a-d) and a channel")
		}
		return ipc.AssignFader{Fader: args[1], Channel: args[2]}, nil

	case "route":
		if len(args) < 4 {
			return nil, fmt.Errorf("route requires an input, an output, and on|off")
		}
		enabled, err := parseOnOff(args[3])
		if err != nil {
			return nil, err
		}
		return ipc.SetRouting{Input: args[1], Output: args[2], Enabled: enabled}, nil

	case "mute-function":
		if len(args) < 3 {
			return nil, fmt.Errorf("mute-function requires a fader and a function")
		}
		return ipc.SetMuteFunction{Fader: args[1], Function: args[2]}, nil

	case "cough-function":
		if len(args) < 2 {
			return nil, fmt.Errorf("cough-function requires a function")
		}
		return ipc.SetCoughMuteFunction{Function: args[1]}, nil

	case "mute":
		if len(args) < 3 {
			return nil, fmt.Errorf("mute requires a fader and a state")
		}
		return ipc.SetFaderMuteState{Fader: args[1], State: args[2]}, nil

	case "cough":
		if len(args) < 2 {
			return nil, fmt.Errorf("cough requires a state")
		}
		return ipc.SetCoughMuteState{State: args[1]}, nil

	case "submix":
		if len(args) < 3 {
			return nil, fmt.Errorf("submix requires a channel and on|off")
		}
		linked, err := parseOnOff(args[2])
		if err != nil {
			return nil, err
		}
		return ipc.SetSubmixLinked{Channel: args[1], Linked: linked}, nil

	case "monitor":
		if len(args) < 2 {
			return nil, fmt.Errorf("monitor requires an output")
		}
		return ipc.SetMonitoredOutput{Output: args[1]}, nil

	case "monitor-mic-fx":
		if len(args) < 2 {
			return nil, fmt.Errorf("monitor-mic-fx requires on|off")
		}
		enabled, err := parseOnOff(args[1])
		if err != nil {
			return nil, err
		}
		return ipc.SetMonitorMicFX{Enabled: enabled}, nil

	case "hard-tune":
		source := ""
		if len(args) > 1 {
			source = args[1]
		}
		return ipc.SetHardTuneSource{Source: source}, nil

	case "mic-gain":
		if len(args) < 3 {
			return nil, fmt.Errorf("mic-gain requires a type (dynamic|condenser|jack) and a gain")
		}
		gain, err := strconv.ParseUint(args[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid gain %q: %w", args[2], err)
		}
		return ipc.SetMicGain{MicType: args[1], Gain: uint16(gain)}, nil

	case "help", "-h", "--help":
		printUsage()
		return nil, nil

	default:
		printUsage()
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q (want 0-255): %w", s, err)
	}
	return uint8(v), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid toggle %q (want on|off)", s)
}

// printResult renders the response payload for queries; mutations just print
// ok.
func printResult(req ipc.Request, data json.RawMessage) error {
	switch req.(type) {
	case ipc.GetStatus:
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		fmt.Println(buf.String())

	case ipc.ListProfiles:
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}

	default:
		fmt.Println("ok")
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `mixerctl - Control the mixerd daemon via IPC

Usage:
  mixerctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/mixerd.sock)

Commands:
  status                          Print the full daemon status as JSON
  profiles                        List profiles on disk
  load-profile <name>             Load and apply a profile
  save-profile [name]             Save the active profile (optionally as name)

  volume <channel> <0-255>        Set a channel volume
  sub-volume <channel> <0-255>    Set a channel's submix volume
  fader <a-d> <channel>           Assign a channel to a fader
  route <input> <output> <on|off> Toggle a routing crossing
  mute-function <a-d> <function>  Set a mute button's function
  cough-function <function>       Set the mic-mute control's function
  mute <a-d> <state>              Set a fader's mute state
  cough <state>                   Set the mic-mute control's state
  submix <channel> <on|off>       Link a submix to its channel volume
  monitor <output>                Select the monitored mix
  monitor-mic-fx <on|off>         Monitor the processed microphone
  hard-tune [input]               Pin the hard-tune source (none = default)
  mic-gain <type> <gain>          Set mic type (dynamic|condenser|jack) and gain

  help, -h, --help                Show this help message

Channels:   Mic LineIn Console System Game Chat Sample Music Headphones
            MicMonitor LineOut
Inputs:     Microphone Chat Music Game Console LineIn System Samples
Outputs:    Headphones BroadcastMix ChatMic Sampler LineOut
Functions:  All ToStream ToVoiceChat ToPhones ToLineOut
States:     Unmuted MutedToTarget MutedToAll

Examples:
  mixerctl volume Music 180
  mixerctl mute b MutedToAll
  mixerctl route Game BroadcastMix off
  mixerctl -socket /run/mixerd.sock status
`)
}
