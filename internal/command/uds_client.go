// Package command implements command channels.
package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"firestige.xyz/arpguard/internal/core"
)

const maxResponseSize = 16 << 20

// UDSClient is a JSON-RPC client over Unix Domain Socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second // Default timeout
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Call sends a command and waits for response.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	// Create connection with timeout
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to socket %s: %v", core.ErrDaemonNotRunning, c.socketPath, err)
	}
	defer conn.Close()

	// Set deadline
	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	// Marshal params
	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = data
	}

	// Create JSON-RPC request
	reqID := fmt.Sprintf("req-%d", time.Now().UnixNano()) // Use string ID
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
		ID:      reqID,
	}

	// Send request
	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	// Read response
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseSize)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed without response")
	}

	// Parse JSON-RPC response
	var jsonrpcResp JSONRPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &jsonrpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Verify response ID matches (convert both to string for comparison)
	respIDStr := fmt.Sprintf("%v", jsonrpcResp.ID)
	if respIDStr != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, respIDStr)
	}

	// Convert to internal Response format
	resp := &Response{
		ID:     fmt.Sprintf("%v", jsonrpcResp.ID),
		Result: jsonrpcResp.Result,
		Error:  jsonrpcResp.Error,
	}

	return resp, nil
}

// Status is a convenience method for daemon_status command.
func (c *UDSClient) Status(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon_status", nil)
}

// Stats is a convenience method for daemon_stats command.
func (c *UDSClient) Stats(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon_stats", nil)
}

// Shutdown is a convenience method for daemon_shutdown command.
func (c *UDSClient) Shutdown(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon_shutdown", nil)
}

// ConfigReload is a convenience method for config_reload command.
func (c *UDSClient) ConfigReload(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "config_reload", nil)
}

// FlagsGet is a convenience method for flags_get command.
func (c *UDSClient) FlagsGet(ctx context.Context, scope string) (*Response, error) {
	return c.Call(ctx, "flags_get", FlagsParams{Scope: scope})
}

// FlagsSet is a convenience method for flags_set command.
func (c *UDSClient) FlagsSet(ctx context.Context, scope string, values map[string]interface{}) (*Response, error) {
	return c.Call(ctx, "flags_set", FlagsParams{Scope: scope, Values: values})
}

// NeighList is a convenience method for neigh_list command.
func (c *UDSClient) NeighList(ctx context.Context, iface string) (*Response, error) {
	return c.Call(ctx, "neigh_list", NeighParams{Interface: iface})
}

// NeighAdd is a convenience method for neigh_add command.
func (c *UDSClient) NeighAdd(ctx context.Context, params NeighParams) (*Response, error) {
	return c.Call(ctx, "neigh_add", params)
}

// NeighFlush is a convenience method for neigh_flush command.
func (c *UDSClient) NeighFlush(ctx context.Context, iface string) (*Response, error) {
	return c.Call(ctx, "neigh_flush", NeighParams{Interface: iface})
}

// ProxyList is a convenience method for proxy_list command.
func (c *UDSClient) ProxyList(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "proxy_list", nil)
}

// ProxyAdd is a convenience method for proxy_add command.
func (c *UDSClient) ProxyAdd(ctx context.Context, addr, iface string) (*Response, error) {
	return c.Call(ctx, "proxy_add", ProxyParams{Address: addr, Interface: iface})
}

// ProxyDelete is a convenience method for proxy_delete command.
func (c *UDSClient) ProxyDelete(ctx context.Context, addr, iface string) (*Response, error) {
	return c.Call(ctx, "proxy_delete", ProxyParams{Address: addr, Interface: iface})
}

// AttackerList is a convenience method for attacker_list command.
func (c *UDSClient) AttackerList(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "attacker_list", nil)
}

// AttackerClear is a convenience method for attacker_clear command.
// An empty hardware address clears every attacker.
func (c *UDSClient) AttackerClear(ctx context.Context, hw string) (*Response, error) {
	return c.Call(ctx, "attacker_clear", AttackerClearParams{HardwareAddr: hw})
}

// Resolve is a convenience method for resolve command.
func (c *UDSClient) Resolve(ctx context.Context, iface, addr string) (*Response, error) {
	return c.Call(ctx, "resolve", ResolveParams{Interface: iface, Address: addr})
}

// Ping checks that the daemon answers on the socket.
func (c *UDSClient) Ping(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}
