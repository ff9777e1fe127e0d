// Package command implements control plane command handling.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/metrics"
	"firestige.xyz/arpguard/internal/proxy"
)

// Controller is the daemon surface the commands operate on.
type Controller interface {
	Status() StatusInfo
	Stats() map[string]interface{}
	Reload() error
	Shutdown()

	Flags(scope string) (map[string]interface{}, error)
	SetFlags(scope string, values map[string]interface{}) (uint64, error)

	Neighbors(iface string) ([]NeighborInfo, error)
	AddNeighbor(iface string, addr netip.Addr, hw net.HardwareAddr, permanent bool) error
	FlushNeighbors(iface string) (int, error)

	ProxyEntries() []proxy.Entry
	AddProxyEntry(addr netip.Addr, iface string) error
	DeleteProxyEntry(addr netip.Addr, iface string) error

	Attackers() []AttackerInfo
	ClearAttackers(hw net.HardwareAddr) int

	Resolve(ctx context.Context, iface string, addr netip.Addr) (NeighborInfo, error)
}

// StatusInfo is the daemon_status result.
type StatusInfo struct {
	Version          string   `json:"version"`
	Hostname         string   `json:"hostname"`
	PID              int      `json:"pid"`
	Interfaces       []string `json:"interfaces"`
	GuardEnabled     bool     `json:"guard_enabled"`
	ConfigGeneration uint64   `json:"config_generation"`
	UptimeSec        int64    `json:"uptime_sec"`
}

// NeighborInfo is a binding as shown to operators.
type NeighborInfo struct {
	Address      string    `json:"address"`
	Interface    string    `json:"interface"`
	HardwareAddr string    `json:"hardware_addr,omitempty"`
	State        string    `json:"state"`
	Updated      time.Time `json:"updated"`
	Confirmed    time.Time `json:"confirmed,omitempty"`
	Probes       int       `json:"probes"`
}

// AttackerInfo is a recorded gateway impersonator.
type AttackerInfo struct {
	HardwareAddr string    `json:"hardware_addr"`
	Gateway      string    `json:"gateway"`
	Interface    string    `json:"interface"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	Hits         uint64    `json:"hits"`
}

// CommandHandler handles control plane commands.
type CommandHandler struct {
	ctl       Controller
	startTime int64 // Unix timestamp of daemon start for uptime calc
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(ctl Controller) *CommandHandler {
	return &CommandHandler{
		ctl:       ctl,
		startTime: time.Now().Unix(),
	}
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "neigh_list", "flags_set"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Info("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case "daemon_status":
		return h.handleDaemonStatus(cmd)
	case "daemon_stats":
		return Response{ID: cmd.ID, Result: h.ctl.Stats()}
	case "daemon_shutdown":
		return h.handleDaemonShutdown(cmd)
	case "config_reload":
		return h.handleConfigReload(cmd)
	case "flags_get":
		return h.handleFlagsGet(cmd)
	case "flags_set":
		return h.handleFlagsSet(cmd)
	case "neigh_list":
		return h.handleNeighList(cmd)
	case "neigh_add":
		return h.handleNeighAdd(cmd)
	case "neigh_flush":
		return h.handleNeighFlush(cmd)
	case "proxy_list":
		entries := h.ctl.ProxyEntries()
		return Response{ID: cmd.ID, Result: map[string]interface{}{"entries": entries, "count": len(entries)}}
	case "proxy_add":
		return h.handleProxy(cmd, true)
	case "proxy_delete":
		return h.handleProxy(cmd, false)
	case "attacker_list":
		attackers := h.ctl.Attackers()
		return Response{ID: cmd.ID, Result: map[string]interface{}{"attackers": attackers, "count": len(attackers)}}
	case "attacker_clear":
		return h.handleAttackerClear(cmd)
	case "resolve":
		return h.handleResolve(ctx, cmd)
	default:
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("method %q not found", cmd.Method),
			},
		}
	}
}

func errorResponse(id string, code int, format string, args ...interface{}) Response {
	return Response{
		ID: id,
		Error: &ErrorInfo{
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		},
	}
}

// failure maps domain errors onto JSON-RPC codes.
func failure(id, what string, err error) Response {
	code := ErrCodeInternalError
	switch {
	case errors.Is(err, core.ErrInterfaceNotFound),
		errors.Is(err, core.ErrConfigInvalid),
		errors.Is(err, core.ErrProxyEntryNotFound),
		errors.Is(err, core.ErrBindingPermanent):
		code = ErrCodeInvalidParams
	}
	return errorResponse(id, code, "%s failed: %v", what, err)
}

// decodeParams unmarshals cmd.Params into v. Empty params leave v untouched.
func decodeParams(cmd Command, v interface{}) *Response {
	if len(cmd.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(cmd.Params, v); err != nil {
		resp := errorResponse(cmd.ID, ErrCodeInvalidParams, "invalid params: %v", err)
		return &resp
	}
	return nil
}

func parseAddr(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%s is not an IPv4 address", s)
	}
	return addr, nil
}

// handleDaemonStatus returns daemon status information.
func (h *CommandHandler) handleDaemonStatus(cmd Command) Response {
	st := h.ctl.Status()
	st.UptimeSec = time.Now().Unix() - h.startTime
	return Response{ID: cmd.ID, Result: st}
}

// handleDaemonShutdown triggers graceful daemon shutdown.
func (h *CommandHandler) handleDaemonShutdown(cmd Command) Response {
	slog.Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.ctl.Shutdown() // Non-blocking: let the response be sent first

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "shutting_down",
		},
	}
}

func (h *CommandHandler) handleConfigReload(cmd Command) Response {
	if err := h.ctl.Reload(); err != nil {
		return failure(cmd.ID, "reload config", err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status":     "reloaded",
			"generation": h.ctl.Status().ConfigGeneration,
		},
	}
}

// FlagsParams selects a flag scope: "guard", "defaults" or an interface name.
type FlagsParams struct {
	Scope  string                 `json:"scope"`
	Values map[string]interface{} `json:"values,omitempty"`
}

func (h *CommandHandler) handleFlagsGet(cmd Command) Response {
	params := FlagsParams{Scope: "guard"}
	if resp := decodeParams(cmd, &params); resp != nil {
		return *resp
	}
	flags, err := h.ctl.Flags(params.Scope)
	if err != nil {
		return failure(cmd.ID, "get flags", err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"scope": params.Scope,
			"flags": flags,
		},
	}
}

func (h *CommandHandler) handleFlagsSet(cmd Command) Response {
	var params FlagsParams
	if resp := decodeParams(cmd, &params); resp != nil {
		return *resp
	}
	if params.Scope == "" || len(params.Values) == 0 {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "scope and values are required")
	}
	gen, err := h.ctl.SetFlags(params.Scope, params.Values)
	if err != nil {
		return failure(cmd.ID, "set flags", err)
	}
	slog.Info("flags updated", "scope", params.Scope, "values", params.Values, "generation", gen)
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"scope":      params.Scope,
			"generation": gen,
		},
	}
}

// NeighParams addresses bindings. An empty interface means all interfaces
// for list and flush.
type NeighParams struct {
	Interface    string `json:"interface,omitempty"`
	Address      string `json:"address,omitempty"`
	HardwareAddr string `json:"hardware_addr,omitempty"`
	Permanent    bool   `json:"permanent,omitempty"`
}

func (h *CommandHandler) handleNeighList(cmd Command) Response {
	var params NeighParams
	if resp := decodeParams(cmd, &params); resp != nil {
		return *resp
	}
	list, err := h.ctl.Neighbors(params.Interface)
	if err != nil {
		return failure(cmd.ID, "list neighbors", err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"neighbors": list,
			"count":     len(list),
		},
	}
}

func (h *CommandHandler) handleNeighAdd(cmd Command) Response {
	var params NeighParams
	if resp := decodeParams(cmd, &params); resp != nil {
		return *resp
	}
	if params.Interface == "" {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "interface is required")
	}
	addr, err := parseAddr(params.Address)
	if err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "invalid address: %v", err)
	}
	hw, err := net.ParseMAC(params.HardwareAddr)
	if err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "invalid hardware address: %v", err)
	}
	if err := h.ctl.AddNeighbor(params.Interface, addr, hw, params.Permanent); err != nil {
		return failure(cmd.ID, "add neighbor", err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"address": addr.String(),
			"status":  "added",
		},
	}
}

func (h *CommandHandler) handleNeighFlush(cmd Command) Response {
	var params NeighParams
	if resp := decodeParams(cmd, &params); resp != nil {
		return *resp
	}
	n, err := h.ctl.FlushNeighbors(params.Interface)
	if err != nil {
		return failure(cmd.ID, "flush neighbors", err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"flushed": n,
		},
	}
}

// ProxyParams names a proxy entry. An empty interface matches all.
type ProxyParams struct {
	Address   string `json:"address"`
	Interface string `json:"interface,omitempty"`
}

func (h *CommandHandler) handleProxy(cmd Command, add bool) Response {
	var params ProxyParams
	if resp := decodeParams(cmd, &params); resp != nil {
		return *resp
	}
	addr, err := parseAddr(params.Address)
	if err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "invalid address: %v", err)
	}

	status := "added"
	if add {
		err = h.ctl.AddProxyEntry(addr, params.Interface)
	} else {
		status = "deleted"
		err = h.ctl.DeleteProxyEntry(addr, params.Interface)
	}
	if err != nil {
		return failure(cmd.ID, cmd.Method, err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"address": addr.String(),
			"status":  status,
		},
	}
}

// AttackerClearParams selects one attacker; empty clears all.
type AttackerClearParams struct {
	HardwareAddr string `json:"hardware_addr,omitempty"`
}

func (h *CommandHandler) handleAttackerClear(cmd Command) Response {
	var params AttackerClearParams
	if resp := decodeParams(cmd, &params); resp != nil {
		return *resp
	}
	var hw net.HardwareAddr
	if params.HardwareAddr != "" {
		var err error
		if hw, err = net.ParseMAC(params.HardwareAddr); err != nil {
			return errorResponse(cmd.ID, ErrCodeInvalidParams, "invalid hardware address: %v", err)
		}
	}
	n := h.ctl.ClearAttackers(hw)
	slog.Info("attackers cleared", "hardware_addr", params.HardwareAddr, "count", n)
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"cleared": n,
		},
	}
}

// ResolveParams asks the daemon to resolve an address on an interface.
type ResolveParams struct {
	Interface string `json:"interface"`
	Address   string `json:"address"`
}

func (h *CommandHandler) handleResolve(ctx context.Context, cmd Command) Response {
	var params ResolveParams
	if resp := decodeParams(cmd, &params); resp != nil {
		return *resp
	}
	if params.Interface == "" {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "interface is required")
	}
	addr, err := parseAddr(params.Address)
	if err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "invalid address: %v", err)
	}
	n, err := h.ctl.Resolve(ctx, params.Interface, addr)
	if err != nil {
		return failure(cmd.ID, "resolve", err)
	}
	return Response{ID: cmd.ID, Result: n}
}

// record counts a handled command by the channel it arrived on.
func record(method, channel string, resp Response) {
	result := "ok"
	if resp.Error != nil {
		result = "error"
	}
	metrics.CommandsTotal.WithLabelValues(method, channel, result).Inc()
}
