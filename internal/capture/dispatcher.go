package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/serialx/hashring"

	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/core/codec"
	"firestige.xyz/arpguard/internal/engine"
	"firestige.xyz/arpguard/internal/metrics"
)

// Processor decides the fate of one inbound packet.
type Processor interface {
	Process(in engine.Inbound) engine.Decision
}

// Observer is called with every decision after its replies were sent.
type Observer func(d engine.Decision)

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Received  uint64 `json:"received"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Sent      uint64 `json:"sent"`
	Queued    []int  `json:"queued"`
}

// Dispatcher reads frames from the links, hands ARP payloads to a pool of
// workers and transmits the replies the engine asks for. Packets are
// assigned to workers by consistent hashing of the sender protocol address.
type Dispatcher struct {
	proc    Processor
	ifaces  *core.Interfaces
	observe Observer

	queues []chan engine.Inbound
	nodes  map[string]int
	ring   *hashring.HashRing

	mu     sync.RWMutex
	links  map[int]Link
	closed bool
	cancel context.CancelFunc

	readers sync.WaitGroup
	workers sync.WaitGroup

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	sent      atomic.Uint64
}

// NewDispatcher creates a dispatcher with the given number of workers, each
// with a queue of queueSize packets.
func NewDispatcher(proc Processor, ifaces *core.Interfaces, workers, queueSize int, observe Observer) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		proc:    proc,
		ifaces:  ifaces,
		observe: observe,
		queues:  make([]chan engine.Inbound, workers),
		nodes:   make(map[string]int, workers),
		links:   make(map[int]Link),
	}
	names := make([]string, workers)
	for i := range d.queues {
		d.queues[i] = make(chan engine.Inbound, queueSize)
		names[i] = "worker-" + strconv.Itoa(i)
		d.nodes[names[i]] = i
	}
	d.ring = hashring.New(names)
	return d
}

// AddLink attaches the link serving ifindex. Links added after Start are
// only used for transmission.
func (d *Dispatcher) AddLink(ifindex int, l Link) {
	d.mu.Lock()
	d.links[ifindex] = l
	d.mu.Unlock()
}

// Start launches the workers and one reader per link.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	for _, q := range d.queues {
		d.workers.Add(1)
		go d.work(q)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for idx, l := range d.links {
		ifi, ok := d.ifaces.ByIndex(idx)
		if !ok {
			slog.Warn("link without interface, not reading", "ifindex", idx)
			continue
		}
		d.readers.Add(1)
		go d.read(ctx, ifi, l)
	}
}

// Stop closes the links and waits for queued packets to be processed.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}

	d.mu.RLock()
	for _, l := range d.links {
		l.Close()
	}
	d.mu.RUnlock()
	d.readers.Wait()

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()
	d.workers.Wait()
}

// Submit queues a packet without blocking. It fails when the worker queue
// for the packet's sender is full or the dispatcher is stopped.
func (d *Dispatcher) Submit(in engine.Inbound) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("dispatcher stopped")
	}

	q := d.queues[d.partition(in.Payload)]
	select {
	case q <- in:
		d.received.Add(1)
		return nil
	default:
		d.dropped.Add(1)
		return core.ErrQueueFull
	}
}

// partition maps an ARP payload to a worker by its sender protocol address.
func (d *Dispatcher) partition(payload []byte) int {
	if len(d.queues) == 1 || len(payload) < 8 {
		return 0
	}
	off := 8 + int(payload[4])
	if len(payload) < off+4 {
		return 0
	}
	node, ok := d.ring.GetNode(string(payload[off : off+4]))
	if !ok {
		return 0
	}
	return d.nodes[node]
}

// Transmit sends an ARP message out of ifindex. An empty dst broadcasts.
func (d *Dispatcher) Transmit(ifindex int, dst net.HardwareAddr, payload []byte) error {
	return d.transmit(ifindex, dst, payload, "solicit")
}

func (d *Dispatcher) transmit(ifindex int, dst net.HardwareAddr, payload []byte, kind string) error {
	ifi, ok := d.ifaces.ByIndex(ifindex)
	if !ok {
		return fmt.Errorf("%w: ifindex %d", core.ErrInterfaceNotFound, ifindex)
	}
	d.mu.RLock()
	l, ok := d.links[ifindex]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no link on %s", core.ErrInterfaceNotFound, ifi.Name)
	}

	if len(dst) == 0 {
		dst = ifi.BroadcastAddr()
	}
	frame, err := codec.Frame(ifi.HardwareAddr, dst, payload)
	if err != nil {
		return err
	}
	if err := l.WritePacketData(frame); err != nil {
		metrics.TransmitErrorsTotal.WithLabelValues(ifi.Name).Inc()
		return fmt.Errorf("transmit on %s: %w", ifi.Name, err)
	}
	d.sent.Add(1)
	metrics.RepliesTotal.WithLabelValues(ifi.Name, kind).Inc()
	return nil
}

// Stats returns the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	s := Stats{
		Received:  d.received.Load(),
		Processed: d.processed.Load(),
		Dropped:   d.dropped.Load(),
		Sent:      d.sent.Load(),
		Queued:    make([]int, len(d.queues)),
	}
	for i, q := range d.queues {
		s.Queued[i] = len(q)
	}
	return s
}

func (d *Dispatcher) read(ctx context.Context, ifi *core.Interface, l Link) {
	defer d.readers.Done()
	slog.Info("capture started", "interface", ifi.Name)
	defer slog.Info("capture stopped", "interface", ifi.Name)

	for ctx.Err() == nil {
		data, _, err := l.ReadPacketData()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() == nil {
				slog.Error("capture read failed", "interface", ifi.Name, "error", err)
			}
			return
		}

		h, payload, err := codec.ParseFrame(data)
		if err != nil || !h.IsARP() {
			metrics.CaptureDropsTotal.WithLabelValues(ifi.Name, "parse").Inc()
			continue
		}
		in := engine.Inbound{
			Payload:    append([]byte(nil), payload...),
			Ifindex:    ifi.Index,
			PacketType: codec.Classify(h, ifi),
		}
		if err := d.Submit(in); err != nil {
			metrics.CaptureDropsTotal.WithLabelValues(ifi.Name, "queue_full").Inc()
		}
	}
}

func (d *Dispatcher) work(q <-chan engine.Inbound) {
	defer d.workers.Done()

	for in := range q {
		start := time.Now()
		dec := d.proc.Process(in)
		metrics.ProcessLatencySeconds.Observe(time.Since(start).Seconds())

		for _, r := range dec.Replies {
			if err := d.transmit(r.Ifindex, r.Dest, r.Payload, "reply"); err != nil {
				slog.Warn("failed to send arp reply", "ifindex", r.Ifindex, "error", err)
			}
		}
		d.processed.Add(1)
		if d.observe != nil {
			d.observe(dec)
		}
	}
}
