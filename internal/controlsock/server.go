// Package controlsock implements ironpost's control socket: a narrow,
// read-only Unix domain socket the orchestrator listens on so
// `ironpostctl status` can ask a running daemon how it's doing without
// parsing logs or polling the metrics endpoint.
//
// Protocol: newline-delimited JSON over a Unix domain socket.
// Socket path: /run/ironpost/control.sock (configurable).
// Permissions: 0600, owned by the daemon's user.
//
// Commands (JSON request -> JSON response):
//
//	{"cmd":"status"}
//	  -> Returns daemon uptime and the health/state of every registered
//	     module, in registration order.
//	  -> Response: {"ok":true,"uptime_secs":123.4,"modules":[
//	       {"name":"ebpf-engine","state":"running","healthy":true}]}
//
// Security:
//   - Socket is created with 0600 permissions.
//   - Each connection is handled in a separate goroutine.
//   - Max concurrent connections: 4 (operator use only, not high-throughput).
//   - Max request size: 4096 bytes (prevents memory exhaustion).
//   - Connection timeout: 10s read/write.
package controlsock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// ModuleStatus is a snapshot of one registered module's lifecycle state
// and health.
type ModuleStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Healthy  bool   `json:"healthy"`
	Degraded bool   `json:"degraded,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// StatusProvider is the interface the control socket uses to read
// daemon status. Implemented by the orchestrator, backed by its
// ironcore.Registry.
type StatusProvider interface {
	// Uptime returns the time elapsed since the daemon finished startup.
	Uptime() time.Duration

	// ModuleStatuses returns the state and health of every registered
	// module, in registration order.
	ModuleStatuses(ctx context.Context) []ModuleStatus
}

// Request is the JSON structure for control commands. Only "status" is
// currently valid; the field exists so the protocol can grow without an
// incompatible wire change.
type Request struct {
	Cmd string `json:"cmd"`
}

// Response is the JSON structure for control command responses.
type Response struct {
	OK         bool           `json:"ok"`
	Error      string         `json:"error,omitempty"`
	UptimeSecs float64        `json:"uptime_secs,omitempty"`
	Modules    []ModuleStatus `json:"modules,omitempty"`
}

// Server is the ironpost control Unix domain socket server.
type Server struct {
	socketPath string
	provider   StatusProvider
	log        *zap.Logger
	sem        chan struct{} // Semaphore: max concurrent connections.
}

// NewServer creates a control socket Server.
func NewServer(socketPath string, provider StatusProvider, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		provider:   provider,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe starts the control socket server. Removes any stale
// socket file before binding. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("controlsock: remove stale socket %q: %w", s.socketPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("controlsock: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("controlsock: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("controlsock: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("control socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("controlsock: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("controlsock: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

// handleConn reads one JSON request, executes the command, and writes
// one JSON response.
func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("controlsock: read error", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	resp := s.dispatch(req)
	s.writeResponse(conn, resp)
}

func (s *Server) dispatch(req Request) Response {
	switch req.Cmd {
	case "status":
		return s.cmdStatus()
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) cmdStatus() Response {
	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()
	return Response{
		OK:         true,
		UptimeSecs: s.provider.Uptime().Seconds(),
		Modules:    s.provider.ModuleStatuses(ctx),
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}
