// Package transport drives the gossip coordinator over a real UDP socket:
// a single-owner event loop multiplexing inbound datagrams, the periodic
// gossip tick and seed re-resolution, plus seed/advertise-address
// discovery.
package transport

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/chitchatlabs/chitchat/internal/chitchat"
	"github.com/chitchatlabs/chitchat/pkg/log"
)

// Config configures the transport loop.
type Config struct {
	GossipInterval         time.Duration
	SeedReresolveInterval  time.Duration
	MaxPacketSize          int
	MarkedForDeletionGrace time.Duration
}

type inboundPacket struct {
	data []byte
	addr net.Addr
}

// Transport owns a UDP socket and drives Coordinator over it. It is the
// only caller of Coordinator's message-handling methods and the only
// reader/writer of the socket, so no additional locking is needed beyond
// what ClusterState already does internally.
type Transport struct {
	conn        net.PacketConn
	coordinator *chitchat.Coordinator
	metrics     *chitchat.Metrics
	logger      log.Logger

	cfg Config

	seedResolver *SeedResolver
	seedsWatch   *chitchat.Watch[[]string]

	recvCh     chan inboundPacket
	closed     *atomic.Bool
	shutdownCh chan struct{}
}

// New creates a Transport bound to conn, driving coordinator. seedResolver
// may be nil if this node will only ever be joined into, never join
// others.
func New(
	conn net.PacketConn,
	coordinator *chitchat.Coordinator,
	metrics *chitchat.Metrics,
	seedResolver *SeedResolver,
	cfg Config,
	logger log.Logger,
) *Transport {
	return &Transport{
		conn:         conn,
		coordinator:  coordinator,
		metrics:      metrics,
		logger:       logger.WithSubsystem("transport"),
		cfg:          cfg,
		seedResolver: seedResolver,
		seedsWatch:   chitchat.NewWatch[[]string](nil),
		recvCh:       make(chan inboundPacket, 64),
		closed:       atomic.NewBool(false),
		shutdownCh:   make(chan struct{}),
	}
}

// Serve runs the event loop until Close is called or the socket returns a
// permanent error. It blocks the calling goroutine.
func (t *Transport) Serve() error {
	go t.recvLoop()

	if t.seedResolver != nil {
		t.reresolveSeeds()
	}

	gossipTicker := time.NewTicker(t.cfg.GossipInterval)
	defer gossipTicker.Stop()

	var seedTicker *time.Ticker
	var seedTickerC <-chan time.Time
	if t.seedResolver != nil && t.cfg.SeedReresolveInterval > 0 {
		seedTicker = time.NewTicker(t.cfg.SeedReresolveInterval)
		defer seedTicker.Stop()
		seedTickerC = seedTicker.C
	}

	for {
		select {
		case pkt, ok := <-t.recvCh:
			if !ok {
				return fmt.Errorf("transport: socket closed")
			}
			t.handlePacket(pkt)
		case <-gossipTicker.C:
			t.coordinator.Tick(t.cfg.MarkedForDeletionGrace)
			t.gossipRound()
		case <-seedTickerC:
			t.reresolveSeeds()
		case <-t.shutdownCh:
			return nil
		}
	}
}

// Close stops the event loop and closes the underlying socket.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.shutdownCh)
	return t.conn.Close()
}

// recvLoop turns conn.ReadFrom, which cannot itself participate in a
// select, into a channel source the main loop can multiplex over.
func (t *Transport) recvLoop() {
	buf := make([]byte, 65507)
	for {
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			close(t.recvCh)
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case t.recvCh <- inboundPacket{data: data, addr: addr}:
		case <-t.shutdownCh:
			return
		}
	}
}

func (t *Transport) handlePacket(pkt inboundPacket) {
	t.metrics.PacketBytesInbound.Add(float64(len(pkt.data)))

	msg, err := chitchat.DecodeMessage(pkt.data)
	if err != nil {
		t.logger.Info("dropping malformed datagram", zap.String("addr", pkt.addr.String()), zap.Error(err))
		return
	}

	switch {
	case msg.Syn != nil:
		t.countDigestInbound(msg.Syn.Digest)
		reply := t.coordinator.OnSyn(msg.Syn)
		t.send(pkt.addr, reply)
	case msg.SynAck != nil:
		t.countDigestInbound(msg.SynAck.Digest)
		t.countDeltaInbound(msg.SynAck.Delta)
		reply := t.coordinator.OnSynAck(msg.SynAck)
		t.send(pkt.addr, reply)
	case msg.Ack != nil:
		t.countDeltaInbound(msg.Ack.Delta)
		t.coordinator.OnAck(msg.Ack)
	case msg.BadCluster != nil:
		t.logger.Warn("peer rejected our cluster id", zap.String("addr", pkt.addr.String()))
	}
}

func (t *Transport) send(addr net.Addr, msg *chitchat.Message) {
	b, err := chitchat.EncodeMessage(msg)
	if err != nil {
		t.logger.Error("failed to encode outbound message", zap.Error(err))
		return
	}
	t.countOutbound(msg)
	if _, err := t.conn.WriteTo(b, addr); err != nil {
		t.logger.Error("failed to write outbound packet", zap.String("addr", addr.String()), zap.Error(err))
		return
	}
	t.metrics.PacketBytesOutbound.Add(float64(len(b)))
}

func (t *Transport) countOutbound(msg *chitchat.Message) {
	switch {
	case msg.Syn != nil:
		t.countDigestOutbound(msg.Syn.Digest)
	case msg.SynAck != nil:
		t.countDigestOutbound(msg.SynAck.Digest)
		t.countDeltaOutbound(msg.SynAck.Delta)
	case msg.Ack != nil:
		t.countDeltaOutbound(msg.Ack.Delta)
	}
}

func (t *Transport) countDigestInbound(d *chitchat.Digest) {
	if d != nil {
		t.metrics.DigestEntriesInbound.Add(float64(d.Len()))
	}
}

func (t *Transport) countDigestOutbound(d *chitchat.Digest) {
	if d != nil {
		t.metrics.DigestEntriesOutbound.Add(float64(d.Len()))
	}
}

func (t *Transport) countDeltaInbound(d *chitchat.Delta) {
	t.metrics.DeltaKeyValuesInbound.Add(float64(deltaMutationCount(d)))
}

func (t *Transport) countDeltaOutbound(d *chitchat.Delta) {
	t.metrics.DeltaKeyValuesOutbound.Add(float64(deltaMutationCount(d)))
}

func deltaMutationCount(d *chitchat.Delta) int {
	if d == nil {
		return 0
	}
	total := 0
	for _, nd := range d.NodeDeltas {
		total += len(nd.Mutations)
	}
	return total
}

// gossipRound initiates a round of gossip, sending a Syn to a selection of
// live and dead/unreachable peers, and independently to a seed address.
func (t *Transport) gossipRound() {
	live, dead, includeSeed := t.coordinator.SelectGossipTargets()

	syn := t.coordinator.BuildSyn()
	for _, id := range append(live, dead...) {
		addr, err := net.ResolveUDPAddr("udp", id.GossipAdvertiseAddr)
		if err != nil {
			t.logger.Warn("failed to resolve peer addr", zap.String("addr", id.GossipAdvertiseAddr), zap.Error(err))
			continue
		}
		t.send(addr, syn)
	}

	if includeSeed {
		if seedAddr, ok := t.randomSeed(); ok {
			addr, err := net.ResolveUDPAddr("udp", seedAddr)
			if err == nil {
				t.send(addr, syn)
			}
		}
	}
}

func (t *Transport) randomSeed() (string, bool) {
	seeds, _ := t.seedsWatch.Get()
	if len(seeds) == 0 {
		return "", false
	}
	return seeds[rand.Intn(len(seeds))], true
}

func (t *Transport) reresolveSeeds() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addrs, err := t.seedResolver.Resolve(ctx)
	if err != nil {
		t.logger.Warn("failed to resolve seeds", zap.Error(err))
		return
	}
	t.seedsWatch.Set(addrs)
}
