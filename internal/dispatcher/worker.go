package dispatcher

import (
	"net"
	"sync"
	"time"

	muerrors "github.com/yuyake44/munge/internal/errors"
	"github.com/yuyake44/munge/internal/log"
	"github.com/yuyake44/munge/internal/peerauth"
)

// Handler drives the actual credential encode/decode work for an
// authenticated peer. internal/daemon implements this, owning the
// secret key and replay cache; Pool itself knows nothing about
// credentials, only about framing and peer identity.
type Handler interface {
	Encode(peer peerauth.Identity, req EncodeReq) EncodeResp
	Decode(peer peerauth.Identity, req DecodeReq) DecodeResp
}

// Pool is a fixed-size worker pool draining a bounded channel of
// accepted connections. Concurrency is bounded by the configured thread
// count rather than a goroutine per connection, so a flood of clients
// degrades into queueing instead of unbounded fanout.
type Pool struct {
	handler    Handler
	deadline   time.Duration
	numWorkers int

	conns  chan net.Conn
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPool builds a Pool with numWorkers fixed goroutines, each request
// given deadline to complete before the connection is dropped.
func NewPool(numWorkers int, deadline time.Duration, handler Handler) *Pool {
	return &Pool{
		handler:    handler,
		deadline:   deadline,
		numWorkers: numWorkers,
		conns:      make(chan net.Conn, numWorkers),
		stopCh:     make(chan struct{}),
	}
}

// Serve runs the accept loop on l, handing each connection to the
// worker pool, until Stop is called or Accept returns a permanent
// error. It blocks until the accept loop exits.
func (p *Pool) Serve(l *net.UnixListener) error {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	// Closing the listener once Stop is called unblocks AcceptUnix.
	go func() {
		<-p.stopCh
		l.Close()
	}()

	for {
		conn, err := l.AcceptUnix()
		if err != nil {
			select {
			case <-p.stopCh:
				return nil
			default:
				return muerrors.NewSocketError("accept", err)
			}
		}
		select {
		case p.conns <- conn:
		case <-p.stopCh:
			conn.Close()
			return nil
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case conn, ok := <-p.conns:
			if !ok {
				return
			}
			p.handleConn(conn)
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) handleConn(conn net.Conn) {
	defer conn.Close()

	if p.deadline > 0 {
		conn.SetDeadline(time.Now().Add(p.deadline))
	}

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		log.Warn("rejected non-unix connection")
		return
	}

	peer, err := peerauth.Authenticate(unixConn)
	if err != nil {
		log.Warn("peer authentication failed", log.Err(err))
		return
	}

	frame, err := ReadFrame(conn)
	if err != nil {
		log.Warn("frame read failed", log.UID(int(peer.UID)), log.GID(int(peer.GID)), log.Err(err))
		return
	}
	defer frame.Release()

	switch frame.Type {
	case EncodeRequest:
		p.handleEncode(conn, peer, frame.Body)
	case DecodeRequest:
		p.handleDecode(conn, peer, frame.Body)
	default:
		log.Warn("rejected unknown request type", log.UID(int(peer.UID)), log.GID(int(peer.GID)))
	}
}

func (p *Pool) handleEncode(conn net.Conn, peer peerauth.Identity, body []byte) {
	req, err := UnmarshalEncodeReq(body)
	if err != nil {
		log.Warn("malformed encode request", log.UID(int(peer.UID)), log.GID(int(peer.GID)), log.Err(err))
		return
	}
	resp := p.handler.Encode(peer, req)
	if resp.Status != 0 {
		log.Warn("encode rejected", log.UID(int(peer.UID)), log.GID(int(peer.GID)), log.Kind(resp.Status))
	}
	if err := WriteFrame(conn, Frame{Type: EncodeResponse, Body: MarshalEncodeResp(resp)}); err != nil {
		log.Warn("encode response write failed", log.UID(int(peer.UID)), log.GID(int(peer.GID)), log.Err(err))
	}
}

func (p *Pool) handleDecode(conn net.Conn, peer peerauth.Identity, body []byte) {
	req, err := UnmarshalDecodeReq(body)
	if err != nil {
		log.Warn("malformed decode request", log.UID(int(peer.UID)), log.GID(int(peer.GID)), log.Err(err))
		return
	}
	resp := p.handler.Decode(peer, req)
	if resp.Status != 0 {
		log.Warn("decode rejected", log.UID(int(peer.UID)), log.GID(int(peer.GID)), log.Kind(resp.Status))
	}
	if err := WriteFrame(conn, Frame{Type: DecodeResponse, Body: MarshalDecodeResp(resp)}); err != nil {
		log.Warn("decode response write failed", log.UID(int(peer.UID)), log.GID(int(peer.GID)), log.Err(err))
	}
}

// Stop halts the accept loop and waits up to grace for in-flight
// workers to finish their current request.
func (p *Pool) Stop(grace time.Duration) {
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
	}
}
