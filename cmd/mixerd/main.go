package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"mixerd/announce"
	"mixerd/ipc"
	"mixerd/mixer"
	"mixerd/profile"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("mixerd v%s\n", version)
	fmt.Println("User-space control daemon for GoXLR mixers")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  mixerd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that drives a GoXLR mixer over USB: fader assignments, mute")
	fmt.Println("  buttons, routing, submixes and profiles. External clients control it")
	fmt.Println("  via a Unix socket (see mixerctl) and subscribe to state over a")
	fmt.Println("  WebSocket.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to TOML config file (default: ~/.config/mixerd/config.toml")
	fmt.Println("        then /etc/mixerd/config.toml, if present)")
	fmt.Println()
	fmt.Println("  -profile-dir string")
	fmt.Println("        Directory holding profile YAML files (default \"~/.config/mixerd/profiles\")")
	fmt.Println()
	fmt.Println("  -profile string")
	fmt.Println("        Profile to load on startup (default \"default\")")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/mixerd.sock\")")
	fmt.Println()
	fmt.Println("  -http-addr string")
	fmt.Println("        Listen address for the status WebSocket (default \"127.0.0.1:14564\";")
	fmt.Println("        empty disables the listener)")
	fmt.Println()
	fmt.Println("  -notifications")
	fmt.Println("        Send desktop notifications on mute changes (default true)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with defaults, creating a default profile on first run")
	fmt.Println("  mixerd")
	fmt.Println()
	fmt.Println("  # Start with a named profile and verbose logging")
	fmt.Println("  mixerd -profile stream -log-level debug")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires access to the USB device (install a udev rule or run as root)")
	fmt.Println("  - Only one instance may run at a time; a lock file enforces this")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath  = flag.String("config", "", "Path to TOML config file")
		profileDir  = flag.String("profile-dir", "", "Directory holding profile YAML files")
		profileName = flag.String("profile", "", "Profile to load on startup")
		ipcSocket   = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		httpAddr    = flag.String("http-addr", "", "Listen address for the status WebSocket")
		notify      = flag.Bool("notifications", true, "Send desktop notifications on mute changes")
		logLevelStr = flag.String("log-level", "", "Log level: error, warn, info, debug")
		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Config file, then flag overrides on top.
	cfg := DefaultConfig()
	path := *configPath
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		loaded, err := LoadConfigFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	overrides := FlagOverrides{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "profile-dir":
			overrides.ProfileDir = profileDir
		case "profile":
			overrides.ActiveProfile = profileName
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocket
		case "http-addr":
			overrides.HTTPAddr = httpAddr
		case "notifications":
			overrides.NotifyEnabled = notify
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// One daemon per machine: a second instance would fight over the device
	// and the socket.
	lock, err := acquireLock(cfg.IPC.LockPath)
	if err != nil {
		logger.Error("another mixerd instance is running", "lock", cfg.IPC.LockPath, "error", err)
		os.Exit(1)
	}
	defer lock.Close()

	var sink mixer.EventSink
	if cfg.Notify.Enabled {
		notifier := announce.NewNotifier("mixerd", logger)
		defer notifier.Close()
		sink = notifier
	}

	daemon, err := NewDaemon(cfg, sink, logger)
	if err != nil {
		logger.Error("daemon setup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting mixerd", "version", version,
		"ipc", cfg.IPC.SocketPath,
		"http", cfg.HTTP.ListenAddr,
		"profile_dir", cfg.Profiles.Directory,
		"profile", cfg.Profiles.Active)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return daemon.Run(gctx)
	})

	g.Go(func() error {
		return ipc.RunServer(gctx, cfg.IPC.SocketPath, daemon.Handle, logger)
	})

	statusServer := ipc.NewStatusServer(logger, daemon.Status, ipc.StatusServerConfig{})
	g.Go(func() error {
		statusServer.Hub().Run(gctx)
		return nil
	})
	g.Go(func() error {
		ipc.RunBroadcaster(gctx, statusServer.Hub(), daemon.StatusUpdates(), logger)
		return nil
	})

	if cfg.HTTP.ListenAddr != "" {
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.ListenAddr, statusServer, logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// acquireLock takes an exclusive non-blocking flock on the lock file. The
// returned file must stay open for the lifetime of the process.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(profile.ExpandPath(path), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return f, nil
}

// runHTTPServer serves the status WebSocket until ctx is canceled.
func runHTTPServer(ctx context.Context, addr string, status *ipc.StatusServer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	status.Register(mux, "/api/websocket")

	server := &http.Server{Addr: addr, Handler: mux}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	logger.Info("http listening", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
