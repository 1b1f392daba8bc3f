package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/stonehollow/craftd/pkg/protocol"
)

// Keep-alive cadence and tolerance.
const (
	keepAliveInterval = 20 * time.Second
	keepAliveTimeout  = 30 * time.Second
)

// Conn owns one TCP socket and its protocol state machine. Inbound bytes
// accumulate until whole frames can be sliced off; outbound frames go
// through a FIFO queue drained by a single writer at a time, preserving send
// order.
type Conn struct {
	srv      *Server
	sock     net.Conn
	remoteIP string

	phase atomic.Int32

	readBuf []byte

	writeMu    sync.Mutex
	writeQueue [][]byte
	writing    bool
	closeAfter bool

	closed atomic.Bool

	limiter *rate.Limiter

	profile  GameProfile
	entityID atomic.Int32

	lastKeepAlive     atomic.Int64 // unix ms of last matching response
	lastKeepAliveSent atomic.Int64 // id of the latest ping
}

func newConn(srv *Server, sock net.Conn, remoteIP string, packetLimit int) *Conn {
	c := &Conn{
		srv:      srv,
		sock:     sock,
		remoteIP: remoteIP,
	}
	c.phase.Store(int32(protocol.PhaseHandshaking))
	if packetLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(packetLimit), packetLimit)
	}
	return c
}

// Phase returns the connection's current protocol phase.
func (c *Conn) Phase() protocol.Phase {
	return protocol.Phase(c.phase.Load())
}

func (c *Conn) setPhase(p protocol.Phase) {
	c.phase.Store(int32(p))
}

// Closed reports whether Close has run.
func (c *Conn) Closed() bool { return c.closed.Load() }

// RemoteIP returns the peer address without the port.
func (c *Conn) RemoteIP() string { return c.remoteIP }

// Profile returns the identity attached at login.
func (c *Conn) Profile() GameProfile { return c.profile }

// EntityID returns the session entity id, 0 before login completes.
func (c *Conn) EntityID() int32 { return c.entityID.Load() }

// run is the connection's read loop. It returns when the socket dies or a
// fatal protocol error closes the connection.
func (c *Conn) run() {
	defer c.Close()

	buf := make([]byte, c.srv.cfg.Performance.NetworkBufferSize)
	for !c.Closed() {
		n, err := c.sock.Read(buf)
		if err != nil {
			return
		}
		c.readBuf = append(c.readBuf, buf[:n]...)

		if err := c.drainFrames(); err != nil {
			c.srv.log.Infof("closing %s: %v", c.remoteIP, err)
			return
		}
	}
}

// drainFrames slices complete frames off the accumulation buffer: a leading
// VarInt length, then that many bytes holding VarInt id plus body. A partial
// frame stops the loop until more bytes arrive.
func (c *Conn) drainFrames() error {
	for {
		length, prefix, err := protocol.PeekVarInt(c.readBuf)
		if errors.Is(err, protocol.ErrUnderflow) {
			return nil
		}
		if err != nil {
			return err
		}
		if length < 1 || length > protocol.MaxFrameLength {
			return fmt.Errorf("bad frame length %d", length)
		}
		if len(c.readBuf) < prefix+int(length) {
			return nil
		}

		if c.limiter != nil && !c.limiter.Allow() {
			return errors.New("packet rate limit exceeded")
		}

		frame := c.readBuf[prefix : prefix+int(length)]
		c.srv.perf.RecordPacket(prefix + int(length))

		if err := c.handleFrame(frame); err != nil {
			return err
		}
		c.readBuf = c.readBuf[prefix+int(length):]

		if c.Closed() {
			return nil
		}
	}
}

// handleFrame decodes one frame against the table active for the current
// phase and dispatches it. Unknown ids are dropped.
func (c *Conn) handleFrame(frame []byte) error {
	buf := protocol.BufferFrom(frame)
	id, err := buf.ReadVarInt()
	if err != nil {
		return err
	}

	pkt, err := c.srv.packets.Decode(c.Phase(), protocol.Serverbound, id, buf)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownPacket) {
			c.srv.log.Debugf("dropping unknown packet 0x%02X in %v from %s", id, c.Phase(), c.remoteIP)
			return nil
		}
		return err
	}

	return c.handlePacket(pkt)
}

// Send frames the packet and queues it for write. No-op after Close.
func (c *Conn) Send(p protocol.Packet) {
	if c.Closed() {
		return
	}
	frame := protocol.EncodeFrame(p)
	c.srv.perf.RecordPacket(len(frame))

	c.writeMu.Lock()
	c.writeQueue = append(c.writeQueue, frame)
	if c.writing {
		c.writeMu.Unlock()
		return
	}
	c.writing = true
	c.writeMu.Unlock()

	go c.writeLoop()
}

// writeLoop drains the queue with one outstanding socket write at a time.
func (c *Conn) writeLoop() {
	for {
		c.writeMu.Lock()
		if len(c.writeQueue) == 0 {
			c.writing = false
			closeNow := c.closeAfter
			c.writeMu.Unlock()
			if closeNow {
				c.Close()
			}
			return
		}
		frame := c.writeQueue[0]
		c.writeQueue = c.writeQueue[1:]
		c.writeMu.Unlock()

		if _, err := c.sock.Write(frame); err != nil {
			c.writeMu.Lock()
			c.writing = false
			c.writeQueue = nil
			c.writeMu.Unlock()
			c.Close()
			return
		}
	}
}

// Shutdown closes the connection once every queued frame has been written.
func (c *Conn) Shutdown() {
	c.writeMu.Lock()
	if c.writing || len(c.writeQueue) > 0 {
		c.closeAfter = true
		c.writeMu.Unlock()
		return
	}
	c.writeMu.Unlock()
	c.Close()
}

// Close is idempotent: it shuts the socket down, which wakes the read loop,
// and tells the server to detach the session. Further Sends become no-ops.
func (c *Conn) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.sock.Close()
	c.srv.connClosed(c)
}

// startKeepAlive pings the client every 20 seconds with the current
// monotonic millisecond timestamp and closes the connection when no
// matching response arrives within 30 seconds.
func (c *Conn) startKeepAlive() {
	c.lastKeepAlive.Store(time.Now().UnixMilli())

	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for range ticker.C {
			if c.Closed() {
				return
			}
			now := time.Now().UnixMilli()
			c.lastKeepAliveSent.Store(now)
			c.Send(&protocol.KeepAliveClientbound{KeepAliveID: now})

			if now-c.lastKeepAlive.Load() > keepAliveTimeout.Milliseconds() {
				c.srv.log.Infof("keep-alive timeout for %s", c.describe())
				c.Close()
				return
			}
		}
	}()
}

func (c *Conn) describe() string {
	if c.profile.Username != "" {
		return fmt.Sprintf("%s (%s)", c.profile.Username, c.remoteIP)
	}
	return c.remoteIP
}
