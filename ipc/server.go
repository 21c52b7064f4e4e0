package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// External clients control the daemon over a Unix domain socket with
// line-delimited JSON:
//   - Client sends: {"type": "request_name", "data": {...}}
//   - Server responds: {"status": "ok", "data": ...} or
//     {"status": "error", "error": "msg"}
//
// Requests are handed to a Handler synchronously; the daemon's handler
// forwards them to the owner goroutine and waits for the outcome, so the
// response on the socket reflects what the device actually did.
// ============================================================================

// Handler executes one request and returns an optional result payload.
type Handler func(Request) (any, error)

// RunServer serves the socket until ctx is canceled.
func RunServer(ctx context.Context, socketPath string, handle Handler, logger *slog.Logger) error {
	// A previous daemon instance may have left the socket behind.
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleConnection(conn, handle, logger)
	}
}

// handleConnection serves one client: requests in, responses out, one JSON
// document per line in each direction.
func handleConnection(conn net.Conn, handle Handler, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("IPC received", "line", line)

		req, err := UnmarshalRequest([]byte(line))
		if err != nil {
			writeResponse(encoder, logger, Response{
				Status: "error",
				Error:  fmt.Sprintf("parse request: %v", err),
			})
			continue
		}

		result, err := handle(req)
		if err != nil {
			writeResponse(encoder, logger, Response{Status: "error", Error: err.Error()})
			continue
		}

		resp := Response{Status: "ok"}
		if result != nil {
			data, err := json.Marshal(result)
			if err != nil {
				writeResponse(encoder, logger, Response{
					Status: "error",
					Error:  fmt.Sprintf("marshal result: %v", err),
				})
				continue
			}
			resp.Data = data
		}
		writeResponse(encoder, logger, resp)
	}

	logger.Debug("IPC connection closed")
}

func writeResponse(encoder *json.Encoder, logger *slog.Logger, resp Response) {
	if err := encoder.Encode(resp); err != nil {
		logger.Error("IPC failed to send response", "error", err)
	}
}

// ============================================================================
// IPC Client
// ============================================================================

// Send delivers one request to the daemon and returns the result payload, if
// any. Used by the control CLI and by tests.
func Send(socketPath string, req Request) (json.RawMessage, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := MarshalRequest(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.Status != "ok" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp.Data, nil
}
