// Package core defines sentinel errors and the value types shared by the
// ARP engine, its collaborators and the control plane.
package core

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	// Packet codec errors
	ErrTruncated        = errors.New("arpguard: packet truncated")
	ErrLengthMismatch   = errors.New("arpguard: address length mismatch")
	ErrUnsupportedMedia = errors.New("arpguard: unsupported hardware/protocol combination")
	ErrUnsupportedOp    = errors.New("arpguard: unsupported operation")
	ErrBuildFailed      = errors.New("arpguard: failed to build packet")

	// Binding cache errors
	ErrBindingNotFound  = errors.New("arpguard: binding not found")
	ErrBindingPermanent = errors.New("arpguard: binding is permanent")
	ErrNoHardwareAddr   = errors.New("arpguard: binding has no hardware address")
	ErrBindingLocked    = errors.New("arpguard: binding locked against override")

	// Proxy errors
	ErrProxyEntryNotFound = errors.New("arpguard: proxy entry not found")

	// Route errors
	ErrUnreachable = errors.New("arpguard: destination unreachable")
	ErrNoGateway   = errors.New("arpguard: no default gateway")

	// Configuration errors
	ErrConfigInvalid = errors.New("arpguard: invalid configuration")

	// Control plane errors
	ErrInterfaceNotFound = errors.New("arpguard: interface not found")
	ErrDaemonNotRunning  = errors.New("arpguard: daemon not running")
	ErrQueueFull         = errors.New("arpguard: queue full")
)
