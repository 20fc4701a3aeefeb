package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/libp2p/go-msgio"

	"github.com/underbots/ipcbus/internal/wire"
)

// probeTimeout bounds the dial used to tell a stale socket file from a
// live publisher.
const probeTimeout = 100 * time.Millisecond

// ipcPublisher binds a unix domain socket and fans frames out to every
// connected subscriber. Each peer has its own send queue and writer.
type ipcPublisher struct {
	addr     Address
	policy   Policy
	listener net.Listener
	logger   *slog.Logger
	release  func(io.Closer)

	mu     sync.Mutex
	peers  map[string]*ipcPeer
	closed bool

	wg    sync.WaitGroup
	stats counters
}

type ipcPeer struct {
	id   string
	conn net.Conn
	out  *queue
}

func bindIPC(a Address, policy Policy, logger *slog.Logger, release func(io.Closer)) (*ipcPublisher, error) {
	listener, err := listenUnix(a.Target)
	if err != nil {
		return nil, err
	}

	p := &ipcPublisher{
		addr:     a,
		policy:   policy,
		listener: listener,
		logger:   logger.With("addr", a.String()),
		release:  release,
		peers:    make(map[string]*ipcPeer),
	}

	p.wg.Add(1)
	go p.acceptConnections()

	return p, nil
}

// listenUnix listens on path, removing a leftover socket file only when no
// process answers on it.
func listenUnix(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		if conn, err := net.DialTimeout("unix", path, probeTimeout); err == nil {
			conn.Close()
			return nil, fmt.Errorf("%w: ipc://%s", ErrAddressInUse, path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket file %s: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on ipc://%s: %w", path, err)
	}
	return listener, nil
}

// acceptConnections accepts subscriber connections until the listener closes.
func (p *ipcPublisher) acceptConnections() {
	defer p.wg.Done()

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			p.logger.Error("Failed to accept connection", "error", err)
			continue
		}

		peer := &ipcPeer{
			id:   uuid.NewString(),
			conn: conn,
			out:  newQueue(p.policy),
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			conn.Close()
			return
		}
		p.peers[peer.id] = peer
		count := len(p.peers)
		p.mu.Unlock()

		p.logger.Debug("Subscriber connected", "peer_id", peer.id, "peers", count)

		p.wg.Add(2)
		go p.writeFrames(peer)
		go p.watchPeer(peer)
	}
}

// writeFrames drains the peer's queue onto its connection.
func (p *ipcPublisher) writeFrames(peer *ipcPeer) {
	defer p.wg.Done()

	w := msgio.NewVarintWriter(peer.conn)
	for {
		frame, err := peer.out.take(0)
		if err != nil {
			return
		}
		if err := w.WriteMsg(frame); err != nil {
			p.logger.Debug("Failed to write frame", "peer_id", peer.id, "error", err)
			p.dropPeer(peer)
			return
		}
	}
}

// watchPeer detects a subscriber hanging up. Subscribers never write, so
// any read result other than blocking means the connection is gone.
func (p *ipcPublisher) watchPeer(peer *ipcPeer) {
	defer p.wg.Done()

	_, _ = io.Copy(io.Discard, peer.conn)
	p.dropPeer(peer)
}

func (p *ipcPublisher) dropPeer(peer *ipcPeer) {
	p.mu.Lock()
	_, ok := p.peers[peer.id]
	delete(p.peers, peer.id)
	count := len(p.peers)
	p.mu.Unlock()

	peer.out.close()
	peer.conn.Close()
	if ok {
		p.logger.Debug("Subscriber disconnected", "peer_id", peer.id, "peers", count)
	}
}

// Send implements Publisher.
func (p *ipcPublisher) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	full := 0
	for _, peer := range p.peers {
		res := peer.out.offer(frame)
		if !res.accepted() {
			full++
		}
		p.stats.dropped.Add(res.lost())
	}
	p.stats.sent.Add(1)
	if full > 0 {
		return fmt.Errorf("%w: %d of %d peer(s) at %s", ErrQueueFull, full, len(p.peers), p.policy)
	}
	return nil
}

// Addr implements Publisher.
func (p *ipcPublisher) Addr() string {
	return p.addr.String()
}

// Stats implements Publisher.
func (p *ipcPublisher) Stats() Stats {
	s := p.stats.snapshot(p.addr.String())

	p.mu.Lock()
	defer p.mu.Unlock()
	s.Peers = len(p.peers)
	for _, peer := range p.peers {
		s.Queued += peer.out.len()
	}
	return s
}

// Close stops accepting, disconnects every peer and removes the socket
// file. It is idempotent.
func (p *ipcPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	peers := make([]*ipcPeer, 0, len(p.peers))
	for _, peer := range p.peers {
		peers = append(peers, peer)
	}
	p.mu.Unlock()

	err := p.listener.Close()
	for _, peer := range peers {
		peer.out.close()
		peer.conn.Close()
	}
	p.wg.Wait()

	if rmErr := os.Remove(p.addr.Target); rmErr != nil && !os.IsNotExist(rmErr) {
		p.logger.Warn("Failed to remove socket file", "error", rmErr)
	}
	p.release(p)
	p.logger.Debug("Publisher closed")

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close listener %s: %w", p.addr, err)
	}
	return nil
}

type ipcDialConfig struct {
	reconnect    time.Duration
	maxFrameSize int
}

// ipcSubscriber connects to a publisher's unix socket and keeps
// reconnecting for as long as it is open, so it may be created before the
// publisher binds.
type ipcSubscriber struct {
	addr    Address
	filter  string
	cfg     ipcDialConfig
	in      *queue
	logger  *slog.Logger
	release func(io.Closer)
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	conn net.Conn

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	stats     counters
}

func connectIPC(a Address, filter string, policy Policy, cfg ipcDialConfig, logger *slog.Logger, release func(io.Closer)) *ipcSubscriber {
	s := &ipcSubscriber{
		addr:    a,
		filter:  filter,
		cfg:     cfg,
		in:      newQueue(policy),
		logger:  logger.With("addr", a.String()),
		release: release,
		done:    make(chan struct{}),
	}

	// The watcher only shortens reconnect latency; the retry tick still
	// works without it.
	if w, err := fsnotify.NewWatcher(); err == nil {
		if err := w.Add(filepath.Dir(a.Target)); err == nil {
			s.watcher = w
		} else {
			w.Close()
		}
	}

	s.wg.Add(1)
	go s.run()

	return s
}

func (s *ipcSubscriber) run() {
	defer s.wg.Done()

	for {
		conn, err := net.Dial("unix", s.addr.Target)
		if err != nil {
			if !s.awaitPublisher() {
				return
			}
			continue
		}

		s.mu.Lock()
		select {
		case <-s.done:
			s.mu.Unlock()
			conn.Close()
			return
		default:
		}
		s.conn = conn
		s.mu.Unlock()

		s.logger.Debug("Connected to publisher")
		err = s.readFrames(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		select {
		case <-s.done:
			return
		default:
		}
		s.logger.Debug("Publisher connection lost", "error", err)
		if !s.sleep(s.cfg.reconnect) {
			return
		}
	}
}

// readFrames queues frames from conn until it fails.
func (s *ipcSubscriber) readFrames(conn net.Conn) error {
	r := msgio.NewVarintReaderSize(conn, s.cfg.maxFrameSize)
	for {
		frame, err := r.ReadMsg()
		if err != nil {
			return err
		}
		if s.filter != "" {
			if topic, ok := wire.PeekTopic(frame); ok && topic != s.filter {
				continue
			}
		}
		res := s.in.offer(frame)
		if res.accepted() {
			s.stats.received.Add(1)
		}
		s.stats.dropped.Add(res.lost())
	}
}

// awaitPublisher waits until the socket file shows up or the retry
// interval passes. It returns false once the subscriber is closed.
func (s *ipcSubscriber) awaitPublisher() bool {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if s.watcher != nil {
		events, errs = s.watcher.Events, s.watcher.Errors
	}

	retry := time.NewTimer(s.cfg.reconnect)
	defer retry.Stop()

	for {
		select {
		case <-s.done:
			return false
		case <-retry.C:
			return true
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == s.addr.Target && ev.Has(fsnotify.Create) {
				return true
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Debug("Socket directory watch error", "error", err)
		}
	}
}

func (s *ipcSubscriber) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.done:
		return false
	case <-t.C:
		return true
	}
}

// Poll implements Subscriber.
func (s *ipcSubscriber) Poll(timeout time.Duration) ([]byte, error) {
	return s.in.take(timeout)
}

// Addr implements Subscriber.
func (s *ipcSubscriber) Addr() string {
	return s.addr.String()
}

// Stats implements Subscriber.
func (s *ipcSubscriber) Stats() Stats {
	st := s.stats.snapshot(s.addr.String())
	st.Queued = s.in.len()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		st.Peers = 1
	}
	return st
}

// Close disconnects and releases the subscriber. Pending and future Poll
// calls return ErrClosed. It is idempotent.
func (s *ipcSubscriber) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()

		s.in.close()
		s.wg.Wait()
		if s.watcher != nil {
			s.watcher.Close()
		}
		s.release(s)
		s.logger.Debug("Subscriber closed")
	})
	return nil
}
