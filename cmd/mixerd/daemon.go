package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"mixerd/ipc"
	"mixerd/mixer"
	"mixerd/profile"
	"mixerd/protocol"
	"mixerd/transport"
)

// ============================================================================
// Daemon - single-owner device loop
// ============================================================================
// All mutable state (the profile store, the controller, the device session)
// is owned by one goroutine: the one running Daemon.Run. External surfaces
// (IPC socket, WebSocket handshakes) submit requests over a channel and wait
// for the outcome, so responses reflect what the device actually did.
//
// The loop survives the device: on disconnect it keeps serving profile and
// status requests while reattaching with exponential backoff.
// ============================================================================

// holdTickInterval is the cadence at which pending button holds are
// evaluated. Coarser than the poll interval is fine; hold timing only needs
// to be accurate to a few tens of milliseconds.
const holdTickInterval = 50 * time.Millisecond

type commandResult struct {
	data any
	err  error
}

type commandRequest struct {
	req   ipc.Request
	reply chan commandResult
}

// Daemon owns the device and the active profile.
type Daemon struct {
	cfg    Config
	logger *slog.Logger
	sink   mixer.EventSink

	store    *profile.Store
	active   string
	profiles []string

	requests chan commandRequest
	statusCh chan ipc.Status

	// Device session; nil fields while disconnected. pause is shared between
	// the engine and the poller so foreground commands skip poll ticks.
	engine     transport.Engine
	controller *mixer.Controller
	pause      *atomic.Bool

	saveTimer *time.Timer
}

// NewDaemon loads the active profile (creating a default one on first run)
// and prepares the daemon. sink may be nil when notifications are disabled.
func NewDaemon(cfg Config, sink mixer.EventSink, logger *slog.Logger) (*Daemon, error) {
	dir := profile.ExpandPath(cfg.Profiles.Directory)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}

	path := filepath.Join(dir, cfg.Profiles.Active+profile.Extension)
	store, err := profile.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("profile not found, writing defaults", "profile", cfg.Profiles.Active)
		store, err = profile.NewStore(profile.DefaultProfile())
		if err == nil {
			err = store.Save(path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", cfg.Profiles.Active, err)
	}

	profiles, err := profile.ListProfiles(dir)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		sink:     sink,
		store:    store,
		active:   cfg.Profiles.Active,
		profiles: profiles,
		requests: make(chan commandRequest, 64),
		statusCh: make(chan ipc.Status, 16),
	}, nil
}

// StatusUpdates is the stream consumed by the WebSocket broadcaster.
func (d *Daemon) StatusUpdates() <-chan ipc.Status {
	return d.statusCh
}

// Handle submits one request to the owner goroutine and waits for the
// outcome. It is the ipc.Handler for the socket server.
func (d *Daemon) Handle(req ipc.Request) (any, error) {
	return d.HandleCtx(context.Background(), req)
}

// HandleCtx is Handle with caller-controlled cancellation.
func (d *Daemon) HandleCtx(ctx context.Context, req ipc.Request) (any, error) {
	reply := make(chan commandResult, 1)

	select {
	case d.requests <- commandRequest{req: req, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Second):
		return nil, errors.New("daemon busy")
	}

	select {
	case res := <-reply:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status implements ipc.StatusFunc for WebSocket handshakes.
func (d *Daemon) Status(ctx context.Context) (ipc.Status, error) {
	data, err := d.HandleCtx(ctx, ipc.GetStatus{})
	if err != nil {
		return ipc.Status{}, err
	}
	status, ok := data.(ipc.Status)
	if !ok {
		return ipc.Status{}, fmt.Errorf("unexpected status payload %T", data)
	}
	return status, nil
}

// Run drives the attach/serve/reattach cycle until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	watcher, err := profile.NewWatcher(d.cfg.Profiles.Directory, d.logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	backoff := time.Duration(d.cfg.Device.ReconnectMinMS) * time.Millisecond
	maxBackoff := time.Duration(d.cfg.Device.ReconnectMaxMS) * time.Millisecond

	for {
		if err := d.attach(); err != nil {
			d.logger.Info("no device", "error", err, "retry_in", backoff)
			if err := d.serveDisconnected(ctx, watcher, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Duration(d.cfg.Device.ReconnectMinMS) * time.Millisecond
		d.pushStatus()

		err := d.serve(ctx, watcher)
		d.teardownSession()
		d.pushStatus()
		if ctx.Err() != nil {
			return nil
		}
		d.logger.Warn("device session ended", "error", err)
	}
}

// attach finds a device, opens it, and pushes the active profile.
func (d *Daemon) attach() error {
	paths, err := transport.Find()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no supported mixer attached")
	}
	// Multiple devices are rare; drive the first and log the rest.
	if len(paths) > 1 {
		d.logger.Warn("multiple mixers attached, using the first", "count", len(paths))
	}

	att, err := transport.Attach(paths[0], d.logger)
	if err != nil {
		return err
	}

	pause := &atomic.Bool{}
	engine := transport.NewEngine(att.Control, transport.Config{
		Quiescence: att.Class.Quiescence(),
		Pause:      pause,
		Logger:     d.logger,
		OnDisconnect: func(serial string) {
			d.logger.Warn("device disconnected", "serial", serial)
		},
	})

	controller := mixer.New(engine, mixer.Config{
		Store:  d.store,
		Sink:   d.sink,
		Logger: d.logger,
		// The full-size unit applies volume in hardware when muting to all;
		// the mini handles it in its DSP.
		VolumeOnMute: att.Class == transport.ClassFull,
		HoldDuration: time.Duration(d.cfg.Device.HoldDurationMS) * time.Millisecond,
	})

	if err := controller.Initialize(engine); err != nil {
		_ = engine.Close()
		return fmt.Errorf("initialise device: %w", err)
	}

	d.engine = engine
	d.controller = controller
	d.pause = pause
	return nil
}

func (d *Daemon) teardownSession() {
	if d.engine != nil {
		_ = d.engine.Close()
	}
	d.engine = nil
	d.controller = nil
	d.pause = nil
}

// serve runs one connected session. It returns when the device fails or ctx
// is canceled.
func (d *Daemon) serve(ctx context.Context, watcher *profile.Watcher) error {
	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()

	interval := time.Duration(d.cfg.Device.PollIntervalMS) * time.Millisecond
	poller := transport.NewPoller(d.engine, d.pause, interval, d.logger)

	pollDone := make(chan error, 1)
	go func() {
		pollDone <- poller.Run(pollCtx)
	}()

	holdTicker := time.NewTicker(holdTickInterval)
	defer holdTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.flushProfile()
			return ctx.Err()

		case err := <-pollDone:
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("poller stopped: %w", err)

		case snap, ok := <-poller.Snapshots():
			if !ok {
				continue
			}
			changed, err := d.controller.OnSnapshot(snap)
			if err != nil {
				if errors.Is(err, transport.ErrDisconnected) {
					return err
				}
				d.logger.Warn("snapshot handling failed", "error", err)
			}
			if changed {
				d.afterChange()
			}

		case <-holdTicker.C:
			if err := d.controller.Tick(time.Now()); err != nil {
				if errors.Is(err, transport.ErrDisconnected) {
					return err
				}
				d.logger.Warn("hold evaluation failed", "error", err)
			}

		case req := <-d.requests:
			req.reply <- d.dispatch(req.req)
			if err := ctxErrIfDisconnected(d.engine); err != nil {
				return err
			}

		case names := <-watcher.Updates():
			d.profiles = names
			d.pushStatus()

		case <-d.saveTimerCh():
			d.saveTimer = nil
			d.flushProfile()
		}
	}
}

// serveDisconnected keeps the external surfaces alive while waiting out the
// reattach backoff.
func (d *Daemon) serveDisconnected(ctx context.Context, watcher *profile.Watcher, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.flushProfile()
			return ctx.Err()

		case <-timer.C:
			return nil

		case req := <-d.requests:
			req.reply <- d.dispatch(req.req)

		case names := <-watcher.Updates():
			d.profiles = names
			d.pushStatus()

		case <-d.saveTimerCh():
			d.saveTimer = nil
			d.flushProfile()
		}
	}
}

func ctxErrIfDisconnected(engine transport.Engine) error {
	if engine != nil && !engine.IsConnected() {
		return transport.ErrDisconnected
	}
	return nil
}

// ============================================================================
// Request dispatch
// ============================================================================

func (d *Daemon) dispatch(req ipc.Request) commandResult {
	d.logger.Debug("request", "request", req.String())

	switch r := req.(type) {
	case ipc.GetStatus:
		return commandResult{data: d.status()}

	case ipc.ListProfiles:
		return commandResult{data: d.profiles}

	case ipc.LoadProfile:
		return commandResult{err: d.loadProfile(r.Name)}

	case ipc.SaveProfile:
		return commandResult{err: d.saveProfile(r.Name)}

	case ipc.SetMonitorMicFX:
		if d.controller == nil {
			return commandResult{err: errDeviceGone}
		}
		d.store.SetMonitorMicWithFX(r.Enabled)
		return d.afterCommand(d.controller.HandleCommand(mixer.ApplyProfile{}))

	case ipc.SetHardTuneSource:
		if d.controller == nil {
			return commandResult{err: errDeviceGone}
		}
		if r.Source == "" {
			d.store.SetHardTuneSource(0, false)
		} else {
			in, ok := profile.ParseInput(r.Source)
			if !ok {
				return commandResult{err: fmt.Errorf("unknown input %q", r.Source)}
			}
			d.store.SetHardTuneSource(in, true)
		}
		return d.afterCommand(d.controller.HandleCommand(mixer.ApplyProfile{}))

	default:
		cmd, err := translateRequest(req)
		if err != nil {
			return commandResult{err: err}
		}
		if d.controller == nil {
			return commandResult{err: errDeviceGone}
		}
		return d.afterCommand(d.controller.HandleCommand(cmd))
	}
}

var errDeviceGone = errors.New("device not connected")

// afterCommand folds the common post-command bookkeeping: status broadcast
// and autosave scheduling on success.
func (d *Daemon) afterCommand(err error) commandResult {
	if err == nil {
		d.afterChange()
	}
	return commandResult{err: err}
}

// afterChange runs after any state mutation: broadcast the new status and
// schedule an autosave.
func (d *Daemon) afterChange() {
	d.pushStatus()
	d.scheduleSave()
}

// translateRequest resolves an IPC request's names into a controller command.
func translateRequest(req ipc.Request) (mixer.Command, error) {
	switch r := req.(type) {
	case ipc.SetVolume:
		ch, ok := profile.ParseChannel(r.Channel)
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", r.Channel)
		}
		return mixer.SetVolume{Channel: ch, Volume: r.Volume}, nil

	case ipc.SetSubVolume:
		ch, ok := profile.ParseChannel(r.Channel)
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", r.Channel)
		}
		return mixer.SetSubVolume{Channel: ch, Volume: r.Volume}, nil

	case ipc.AssignFader:
		f, ok := parseFader(r.Fader)
		if !ok {
			return nil, fmt.Errorf("unknown fader %q", r.Fader)
		}
		ch, ok := profile.ParseChannel(r.Channel)
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", r.Channel)
		}
		return mixer.AssignFader{Fader: f, Channel: ch}, nil

	case ipc.SetRouting:
		in, ok := profile.ParseInput(r.Input)
		if !ok {
			return nil, fmt.Errorf("unknown input %q", r.Input)
		}
		out, ok := profile.ParseOutput(r.Output)
		if !ok {
			return nil, fmt.Errorf("unknown output %q", r.Output)
		}
		return mixer.SetRouting{Input: in, Output: out, Enabled: r.Enabled}, nil

	case ipc.SetMuteFunction:
		f, ok := parseFader(r.Fader)
		if !ok {
			return nil, fmt.Errorf("unknown fader %q", r.Fader)
		}
		fn, ok := profile.ParseMuteFunction(r.Function)
		if !ok {
			return nil, fmt.Errorf("unknown mute function %q", r.Function)
		}
		return mixer.SetMuteFunction{Fader: f, Function: fn}, nil

	case ipc.SetCoughMuteFunction:
		fn, ok := profile.ParseMuteFunction(r.Function)
		if !ok {
			return nil, fmt.Errorf("unknown mute function %q", r.Function)
		}
		return mixer.SetCoughMuteFunction{Function: fn}, nil

	case ipc.SetFaderMuteState:
		f, ok := parseFader(r.Fader)
		if !ok {
			return nil, fmt.Errorf("unknown fader %q", r.Fader)
		}
		st, ok := profile.ParseMuteState(r.State)
		if !ok {
			return nil, fmt.Errorf("unknown mute state %q", r.State)
		}
		return mixer.SetFaderMuteState{Fader: f, State: st}, nil

	case ipc.SetCoughMuteState:
		st, ok := profile.ParseMuteState(r.State)
		if !ok {
			return nil, fmt.Errorf("unknown mute state %q", r.State)
		}
		return mixer.SetCoughMuteState{State: st}, nil

	case ipc.SetSubmixLinked:
		ch, ok := profile.ParseChannel(r.Channel)
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", r.Channel)
		}
		return mixer.SetSubmixLinked{Channel: ch, Linked: r.Linked}, nil

	case ipc.SetMonitoredOutput:
		out, ok := profile.ParseOutput(r.Output)
		if !ok {
			return nil, fmt.Errorf("unknown output %q", r.Output)
		}
		return mixer.SetMonitoredOutput{Output: out}, nil

	case ipc.SetMicGain:
		key, ok := parseMicType(r.MicType)
		if !ok {
			return nil, fmt.Errorf("unknown mic type %q", r.MicType)
		}
		return mixer.SetMicGain{Type: key, Gain: r.Gain}, nil

	default:
		return nil, fmt.Errorf("unsupported request %T", req)
	}
}

func parseFader(name string) (protocol.Fader, bool) {
	switch strings.ToLower(name) {
	case "a", "1":
		return protocol.FaderA, true
	case "b", "2":
		return protocol.FaderB, true
	case "c", "3":
		return protocol.FaderC, true
	case "d", "4":
		return protocol.FaderD, true
	}
	return 0, false
}

func parseMicType(name string) (uint16, bool) {
	switch strings.ToLower(name) {
	case "dynamic":
		return mixer.MicParamGainDynamic, true
	case "condenser":
		return mixer.MicParamGainCondenser, true
	case "jack":
		return mixer.MicParamGainJack, true
	}
	return 0, false
}

// ============================================================================
// Profile management
// ============================================================================

func (d *Daemon) profilePath(name string) string {
	dir := profile.ExpandPath(d.cfg.Profiles.Directory)
	return filepath.Join(dir, name+profile.Extension)
}

func (d *Daemon) loadProfile(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("invalid profile name %q", name)
	}

	// Unsaved changes to the outgoing profile are flushed first so a profile
	// switch never silently discards them.
	if d.cfg.Profiles.Autosave {
		d.flushProfile()
	}

	next, err := profile.Load(d.profilePath(name))
	if err != nil {
		return err
	}

	// The controller holds a reference to d.store; replace the contents in
	// place so the swap is visible without rebuilding the session.
	*d.store = *next
	d.active = name

	if d.controller != nil {
		if err := d.controller.HandleCommand(mixer.ApplyProfile{}); err != nil {
			return err
		}
	}

	d.logger.Info("profile loaded", "profile", name)
	d.pushStatus()
	return nil
}

func (d *Daemon) saveProfile(name string) error {
	if name == "" {
		name = d.active
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("invalid profile name %q", name)
	}
	if err := d.store.Save(d.profilePath(name)); err != nil {
		return err
	}
	d.active = name
	d.logger.Info("profile saved", "profile", name)
	d.pushStatus()
	return nil
}

// scheduleSave arms the autosave timer; an already armed timer keeps its
// deadline so a stream of changes coalesces into one write.
func (d *Daemon) scheduleSave() {
	if !d.cfg.Profiles.Autosave || !d.store.Dirty() {
		return
	}
	if d.saveTimer == nil {
		d.saveTimer = time.NewTimer(time.Duration(d.cfg.Profiles.AutosaveDelayMS) * time.Millisecond)
	}
}

func (d *Daemon) saveTimerCh() <-chan time.Time {
	if d.saveTimer == nil {
		return nil
	}
	return d.saveTimer.C
}

// flushProfile writes the active profile now if it has unsaved changes.
func (d *Daemon) flushProfile() {
	if d.saveTimer != nil {
		d.saveTimer.Stop()
		d.saveTimer = nil
	}
	if !d.cfg.Profiles.Autosave || !d.store.Dirty() {
		return
	}
	if err := d.store.Save(d.profilePath(d.active)); err != nil {
		d.logger.Error("autosave failed", "profile", d.active, "error", err)
		return
	}
	d.logger.Debug("profile autosaved", "profile", d.active)
}

// ============================================================================
// Status
// ============================================================================

func (d *Daemon) status() ipc.Status {
	s := ipc.Status{
		Connected: d.engine != nil && d.engine.IsConnected(),
		Profile:   d.active,
		Profiles:  d.profiles,

		Volumes: make(map[string]uint8, protocol.ChannelCount),
		Faders:  make(map[string]ipc.FaderInfo, protocol.FaderCount),
		Routing: make(map[string][]string, protocol.InputCount),
		Submix:  make(map[string]ipc.SubmixInfo),

		MonitoredOutput: d.store.MonitoredOutput().String(),
		MonitorMicFX:    d.store.MonitorMicWithFX(),
	}

	if d.controller != nil {
		s.Serial = d.controller.Serial()
		s.Firmware = d.controller.Firmware()
	}

	for ch := protocol.Channel(0); ch < protocol.ChannelCount; ch++ {
		s.Volumes[ch.String()] = d.store.Volume(ch)
	}

	for f := protocol.Fader(0); f < protocol.FaderCount; f++ {
		cfg := d.store.Fader(f)
		s.Faders[strings.ToLower(f.String())] = ipc.FaderInfo{
			Channel:      cfg.Channel.String(),
			MuteFunction: cfg.Function.String(),
			MuteState:    cfg.State.String(),
		}
	}

	cough := d.store.Cough()
	s.Cough = ipc.CoughInfo{
		MuteFunction: cough.Function.String(),
		MuteState:    cough.State.String(),
	}

	for in := protocol.InputDevice(0); in < protocol.InputCount; in++ {
		row := d.store.RoutingRow(in)
		outputs := []string{}
		for out := protocol.OutputDevice(0); out < protocol.OutputCount; out++ {
			if row[out] {
				outputs = append(outputs, out.String())
			}
		}
		s.Routing[in.String()] = outputs
	}

	for ch := protocol.Channel(0); ch < protocol.ChannelCount; ch++ {
		link := d.store.Submix(ch)
		if !link.Linked {
			continue
		}
		s.Submix[ch.String()] = ipc.SubmixInfo{Linked: true, Volume: link.Volume}
	}

	if src, explicit := d.store.HardTuneSource(); explicit {
		s.HardTuneSource = src.String()
	}

	return s
}

// pushStatus hands the current status to the WebSocket broadcaster. Never
// blocks; the broadcaster coalesces, and a dropped intermediate state is
// superseded by the next push anyway.
func (d *Daemon) pushStatus() {
	select {
	case d.statusCh <- d.status():
	default:
	}
}
