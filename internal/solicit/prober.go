package solicit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/neigh"
)

// Transmitter sends an ARP message on an interface.
type Transmitter interface {
	Transmit(ifindex int, dst net.HardwareAddr, payload []byte) error
}

// Prober resolves a binding by soliciting until it is confirmed or the
// probe budget runs out.
type Prober struct {
	policy   *Policy
	bindings *neigh.Table
	tx       Transmitter
	notify   func(Solicitation)
}

// NewProber creates a prober. notify receives application-level resolution
// requests; it may be nil.
func NewProber(policy *Policy, bindings *neigh.Table, tx Transmitter, notify func(Solicitation)) *Prober {
	if notify == nil {
		notify = func(Solicitation) {}
	}
	return &Prober{policy: policy, bindings: bindings, tx: tx, notify: notify}
}

// Resolve probes for target on ifi every retrans interval. It returns the
// binding once it is connected, or core.ErrUnreachable when the budget is
// spent.
func (p *Prober) Resolve(ctx context.Context, ifi *core.Interface, announce int, target netip.Addr) (neigh.Binding, error) {
	e := p.bindings.LookupOrCreate(target, ifi.Index)
	if b := e.Snapshot(); b.State.Connected() {
		return b, nil
	}
	p.bindings.ResetProbes(e)

	interval := p.bindings.Params().RetransTime
	if interval <= 0 {
		interval = time.Second
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return e.Snapshot(), err
		}
		select {
		case <-ctx.Done():
			return e.Snapshot(), ctx.Err()
		case <-timer.C:
		}

		if b := e.Snapshot(); b.State.Connected() {
			return b, nil
		}

		s, err := p.policy.Next(ifi, announce, target, netip.Addr{})
		if err != nil {
			return e.Snapshot(), err
		}
		slog.Debug("solicitation", "interface", ifi.Name, "target", target, "phase", s.Phase, "probe", s.Probe)

		switch s.Phase {
		case PhaseExhausted:
			return e.Snapshot(), fmt.Errorf("%w: %s on %s", core.ErrUnreachable, target, ifi.Name)
		case PhaseNotify:
			p.notify(s)
		default:
			if err := p.tx.Transmit(ifi.Index, s.Dest, s.Payload); err != nil {
				slog.Warn("failed to send solicitation", "interface", ifi.Name, "target", target, "error", err)
			}
		}
		timer.Reset(interval)
	}
}
