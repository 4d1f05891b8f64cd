package zxmit

import (
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// withDeadlines returns conn unchanged when it supports deadlines, and
// otherwise wraps it in a timedConn.
func withDeadlines(conn net.Conn) net.Conn {
	if _, ok := conn.(*timedConn); ok {
		return conn
	}
	if conn.SetDeadline(time.Time{}) == nil {
		return conn
	}
	return newTimedConn(conn)
}

// deadline closes its channel when the time set on it passes. Same
// behaviour as the deadlines of net.Pipe.
type deadline struct {
	mu     sync.Mutex
	timer  *time.Timer
	cancel chan struct{}
}

func newDeadline() *deadline {
	return &deadline{cancel: make(chan struct{})}
}

// set arms the deadline. A zero t disarms it and a past t fires it at once.
func (d *deadline) set(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil && !d.timer.Stop() {
		<-d.cancel // the timer fired; wait for it to close cancel
	}
	d.timer = nil

	closed := isClosedChan(d.cancel)
	if t.IsZero() {
		if closed {
			d.cancel = make(chan struct{})
		}
		return
	}
	if dur := time.Until(t); dur > 0 {
		if closed {
			d.cancel = make(chan struct{})
		}
		cancel := d.cancel
		d.timer = time.AfterFunc(dur, func() {
			close(cancel)
		})
		return
	}
	if !closed {
		close(d.cancel)
	}
}

func (d *deadline) wait() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel
}

func isClosedChan(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}

type readResult struct {
	buf []byte
	err error
}

// timedConn adds deadlines to a connection that has none, such as a channel
// forwarded over SSH. A background goroutine does the reading so that a
// blocked Read returns as soon as its deadline passes. An expired write
// deadline closes the connection if a Write is still in progress, since
// the write itself cannot be abandoned.
type timedConn struct {
	net.Conn

	readDeadline  *deadline
	writeDeadline *deadline

	reads     chan readResult
	pumpOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	aborted   atomic.Bool

	readMu  sync.Mutex
	pending []byte
	readErr error
}

func newTimedConn(conn net.Conn) *timedConn {
	return &timedConn{
		Conn:          conn,
		readDeadline:  newDeadline(),
		writeDeadline: newDeadline(),
		reads:         make(chan readResult),
		closed:        make(chan struct{}),
	}
}

func (c *timedConn) pump() {
	for {
		buf := make([]byte, 4096)
		n, err := c.Conn.Read(buf)
		select {
		case c.reads <- readResult{buf: buf[:n], err: err}:
		case <-c.closed:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *timedConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.pending) == 0 && c.readErr == nil {
		expired := c.readDeadline.wait()
		if isClosedChan(expired) {
			return 0, os.ErrDeadlineExceeded
		}
		c.pumpOnce.Do(func() {
			go c.pump()
		})
		select {
		case r := <-c.reads:
			c.pending, c.readErr = r.buf, r.err
		case <-expired:
			return 0, os.ErrDeadlineExceeded
		case <-c.closed:
			return 0, net.ErrClosed
		}
	}

	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	return 0, c.readErr
}

func (c *timedConn) Write(p []byte) (int, error) {
	expired := c.writeDeadline.wait()
	if isClosedChan(expired) {
		return 0, os.ErrDeadlineExceeded
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-expired:
			c.aborted.Store(true)
			c.Close()
		case <-done:
		}
	}()

	n, err := c.Conn.Write(p)
	if err != nil && c.aborted.Load() {
		err = os.ErrDeadlineExceeded
	}
	return n, err
}

func (c *timedConn) SetDeadline(t time.Time) error {
	c.readDeadline.set(t)
	c.writeDeadline.set(t)
	return nil
}

func (c *timedConn) SetReadDeadline(t time.Time) error {
	c.readDeadline.set(t)
	return nil
}

func (c *timedConn) SetWriteDeadline(t time.Time) error {
	c.writeDeadline.set(t)
	return nil
}

func (c *timedConn) Close() error {
	err := net.ErrClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.Conn.Close()
	})
	return err
}
