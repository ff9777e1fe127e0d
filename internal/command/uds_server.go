// Package command implements command channels.
package command

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const (
	maxRequestSize = 1 << 20
	// sessionIdle closes operator sessions that stop sending requests.
	sessionIdle = 2 * time.Minute
)

// UDSServer serves the local control socket used by the arpguard CLI. Each
// connection carries newline-delimited JSON-RPC 2.0 requests.
type UDSServer struct {
	socketPath string
	handler    *CommandHandler

	mu       sync.Mutex
	listener *net.UnixListener
	sessions map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewUDSServer creates a control socket server at socketPath.
func NewUDSServer(socketPath string, handler *CommandHandler) *UDSServer {
	return &UDSServer{
		socketPath: socketPath,
		handler:    handler,
		sessions:   make(map[net.Conn]struct{}),
	}
}

// Start binds the socket and serves until ctx is cancelled.
func (s *UDSServer) Start(ctx context.Context) error {
	ln, err := s.bind()
	if err != nil {
		return err
	}
	if ln == nil {
		return nil
	}

	slog.Info("control socket listening", "socket", s.socketPath)
	go s.serve(ctx, ln)

	<-ctx.Done()
	slog.Info("control socket closing", "reason", ctx.Err())
	return s.Stop()
}

// bind replaces a stale socket file and listens with owner-only access.
// It returns a nil listener when Stop won the race.
func (s *UDSServer) bind() (*net.UnixListener, error) {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove stale socket %s: %w", s.socketPath, err)
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: s.socketPath, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to restrict socket %s: %w", s.socketPath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		ln.Close()
		return nil, nil
	}
	s.listener = ln
	return ln, nil
}

func (s *UDSServer) serve(ctx context.Context, ln *net.UnixListener) {
	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("control socket accept failed", "error", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		go s.session(ctx, conn)
	}
}

func (s *UDSServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *UDSServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *UDSServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.sessions, conn)
	s.mu.Unlock()
	conn.Close()
	s.wg.Done()
}

// session answers requests on conn until the peer hangs up or goes idle.
func (s *UDSServer) session(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)

	in := bufio.NewScanner(conn)
	in.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
	out := json.NewEncoder(conn)

	served := 0
	for {
		conn.SetReadDeadline(time.Now().Add(sessionIdle))
		if !in.Scan() {
			break
		}
		if err := out.Encode(s.dispatch(ctx, in.Bytes())); err != nil {
			slog.Warn("control socket write failed", "error", err)
			return
		}
		served++
	}

	switch err := in.Err(); {
	case errors.Is(err, bufio.ErrTooLong):
		out.Encode(rpcError(nil, ErrCodeInvalidRequest, "request exceeds %d bytes", maxRequestSize))
	case err != nil && !errors.Is(err, os.ErrDeadlineExceeded) && !errors.Is(err, net.ErrClosed):
		slog.Warn("control socket read failed", "error", err)
	}
	slog.Debug("control session ended", "requests", served)
}

// dispatch decodes one request line and runs it through the handler.
func (s *UDSServer) dispatch(ctx context.Context, line []byte) JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return rpcError(nil, ErrCodeParseError, "parse error: %v", err)
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return rpcError(req.ID, ErrCodeInvalidRequest, "expected a jsonrpc 2.0 request with a method")
	}

	resp := s.handler.Handle(ctx, Command{
		Method: req.Method,
		Params: req.Params,
		ID:     fmt.Sprintf("%v", req.ID),
	})
	record(req.Method, "uds", resp)
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: resp.Result, Error: resp.Error}
}

func rpcError(id interface{}, code int, format string, args ...interface{}) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}

// Stop closes the listener and every open session, then removes the socket
// file. It is safe to call more than once.
func (s *UDSServer) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.sessions {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	os.RemoveAll(s.socketPath)
	slog.Info("control socket closed", "socket", s.socketPath)
	return nil
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}
