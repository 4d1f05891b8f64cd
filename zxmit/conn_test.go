package zxmit

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"
)

// bareConn hides the deadline support of the connection it wraps, the way
// a forwarded SSH channel does.
type bareConn struct {
	net.Conn
}

var errNoDeadline = errors.New("deadline not supported")

func (bareConn) SetDeadline(time.Time) error      { return errNoDeadline }
func (bareConn) SetReadDeadline(time.Time) error  { return errNoDeadline }
func (bareConn) SetWriteDeadline(time.Time) error { return errNoDeadline }

// bareDialer strips deadline support from every connection of its parent.
type bareDialer struct {
	Dialer
}

func (d bareDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return bareConn{conn}, nil
}

func TestWithDeadlines(t *testing.T) {
	host, peer := net.Pipe()
	defer host.Close()
	defer peer.Close()

	if got := withDeadlines(host); got != host {
		t.Error("connection with deadlines was wrapped")
	}
	wrapped := withDeadlines(bareConn{host})
	if _, ok := wrapped.(*timedConn); !ok {
		t.Fatalf("got %T, want *timedConn", wrapped)
	}
	if withDeadlines(wrapped) != wrapped {
		t.Error("timedConn was wrapped twice")
	}
}

func TestTimedConnReadDeadline(t *testing.T) {
	host, peer := net.Pipe()
	defer peer.Close()
	conn := newTimedConn(bareConn{host})
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	start := time.Now()
	_, err := conn.Read(make([]byte, 4))
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("Read = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("deadline took %v", elapsed)
	}

	// the connection stays usable once the deadline is cleared
	conn.SetReadDeadline(time.Time{})
	go peer.Write([]byte("ack!"))
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil || string(buf) != "ack!" {
		t.Errorf("Read after reset = %q, %v", buf, err)
	}
}

func TestTimedConnDeadlineWakesBlockedRead(t *testing.T) {
	host, peer := net.Pipe()
	defer peer.Close()
	conn := newTimedConn(bareConn{host})
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		_, err := conn.Read(make([]byte, 4))
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	conn.SetDeadline(time.Now())
	select {
	case err := <-done:
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			t.Errorf("Read = %v, want deadline exceeded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("blocked Read was not woken")
	}
}

func TestTimedConnWriteDeadline(t *testing.T) {
	host, peer := net.Pipe()
	defer peer.Close()
	conn := newTimedConn(bareConn{host})

	// nothing reads from peer, so the write blocks until the deadline
	conn.SetWriteDeadline(time.Now().Add(50 * time.Millisecond))
	_, err := conn.Write([]byte("frame"))
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("Write = %v, want deadline exceeded", err)
	}
	if _, err := conn.Write([]byte("again")); err == nil {
		t.Error("write after an expired deadline succeeded")
	}
	if err := conn.Close(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Close after abort = %v", err)
	}
}

func TestUploadWithoutDeadlineSupport(t *testing.T) {
	d := newPipeDialer(nil)
	s := NewSession(WithDialer(bareDialer{d}))

	data := randomBytes(5000, 12)
	if err := s.Send(context.Background(), Upload{Address: "zx", Name: "bare.bin", Data: data}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	r := d.result(t)
	if r.err != nil || len(r.file.Data) != len(data) {
		t.Errorf("receiver got %d bytes, %v", len(r.file.Data), r.err)
	}
}

func TestUploadWithoutDeadlineSupportTimesOut(t *testing.T) {
	host, peer := net.Pipe()
	defer peer.Close()
	go io.Copy(io.Discard, peer)

	config := DefaultConfig()
	config.Timeout = 100 * time.Millisecond
	s := NewSession(WithConfig(config), WithDialer(connDialer{bareConn{host}}))

	err := s.Send(context.Background(), Upload{Address: "zx", Name: "slow.bin", Data: make([]byte, 100)})
	if !IsConnection(err) {
		t.Errorf("expected a connection error, got %v", err)
	}
}

// connDialer hands out one prepared connection.
type connDialer struct {
	conn net.Conn
}

func (d connDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.conn, nil
}
