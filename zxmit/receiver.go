package zxmit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Receiver is a host-side stand-in for the Spectrum receiver. It decodes
// frames, decompresses payloads and acknowledges each frame, which makes it
// useful for development without real hardware and for loopback tests.
type Receiver struct {
	codec     Codec
	ackSplit  int
	staleAcks bool
	failBlock int
	timeout   time.Duration
	logger    Logger
}

// ReceiverConfig holds configuration for a receiver.
type ReceiverConfig struct {
	// Codec decodes compressed payloads; nil selects DefaultCodec
	Codec Codec

	// AckSplit is the number of records each frame is acknowledged with
	AckSplit int

	// StaleAcks sends a record for the previous sequence number before the
	// real acknowledgment of every frame
	StaleAcks bool

	// FailBlock, when positive, makes the receiver reject that 1-based
	// block with a nonzero status
	FailBlock int

	// Timeout bounds the wait for each frame; zero waits forever
	Timeout time.Duration

	// Logger for protocol debugging
	Logger Logger
}

// DefaultReceiverConfig returns a default receiver configuration.
func DefaultReceiverConfig() *ReceiverConfig {
	return &ReceiverConfig{
		Codec:    DefaultCodec,
		AckSplit: 1,
		Timeout:  60 * time.Second,
	}
}

// NewReceiver creates a new receiver.
func NewReceiver(config *ReceiverConfig) *Receiver {
	if config == nil {
		config = DefaultReceiverConfig()
	}
	r := &Receiver{
		codec:     config.Codec,
		ackSplit:  config.AckSplit,
		staleAcks: config.StaleAcks,
		failBlock: config.FailBlock,
		timeout:   config.Timeout,
		logger:    config.Logger,
	}
	if r.codec == nil {
		r.codec = DefaultCodec
	}
	if r.ackSplit <= 0 {
		r.ackSplit = 1
	}
	if r.logger == nil {
		r.logger = NoopLogger{}
	}
	return r
}

// ReceivedFile is the result of one transfer.
type ReceivedFile struct {
	// Name is the short name sent by the host
	Name string

	// Data is the reassembled, decompressed content
	Data []byte

	// Frames is the number of frames received
	Frames int

	// Compressed is the number of frames whose payload was compressed
	Compressed int

	// WireBytes counts every byte read, headers included
	WireBytes int64
}

// Receive reads frames from conn until the host closes the connection,
// acknowledging each one.
func (r *Receiver) Receive(ctx context.Context, conn io.ReadWriter) (*ReceivedFile, error) {
	file := &ReceivedFile{}
	var seq byte
	hdr := make([]byte, HeaderSize)

	for {
		if err := ctx.Err(); err != nil {
			return file, WrapError(ErrCancelled, "receive", err)
		}
		r.armDeadline(conn)

		if _, err := io.ReadFull(conn, hdr); err != nil {
			if errors.Is(err, io.EOF) {
				r.logger.Info("Host closed connection after %d frames", file.Frames)
				return file, nil
			}
			return file, WrapError(ErrConnection, "read header", err)
		}
		h, _ := ParseHeader(hdr)
		if h.Seq != seq {
			return file, NewError(ErrProtocol, fmt.Sprintf("frame sequence %d, expected %d", h.Seq, seq))
		}
		wire := HeaderSize + int(h.Length)

		if h.HasName() {
			if file.Frames != 0 {
				return file, NewError(ErrProtocol, fmt.Sprintf("name field on frame %d", file.Frames+1))
			}
			field := make([]byte, NameFieldSize)
			if _, err := io.ReadFull(conn, field); err != nil {
				return file, WrapError(ErrConnection, "read name", err)
			}
			file.Name = parseNameField(field)
			wire += NameFieldSize
			r.logger.Info("Receiving %s", file.Name)
		} else if file.Frames == 0 {
			return file, NewError(ErrProtocol, "first frame has no name field")
		}

		payload := make([]byte, h.Length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return file, WrapError(ErrConnection, "read payload", err)
		}
		if h.Compressed() {
			raw, err := r.codec.Decompress(payload)
			if err != nil {
				return file, WrapError(ErrProtocol, fmt.Sprintf("decompress frame %d", h.Seq), err)
			}
			payload = raw
			file.Compressed++
		}
		file.Data = append(file.Data, payload...)
		file.Frames++
		file.WireBytes += int64(wire)

		if err := r.acknowledge(conn, file.Frames, h.Seq, wire); err != nil {
			return file, err
		}
		seq++
	}
}

// acknowledge sends the records for one frame.
func (r *Receiver) acknowledge(w io.Writer, block int, seq byte, wire int) error {
	if r.failBlock > 0 && block == r.failBlock {
		if _, err := w.Write(Ack{Seq: seq, Status: 1, Length: uint16(wire)}.Bytes()); err != nil {
			return WrapError(ErrConnection, "write ack", err)
		}
		return NewError(ErrPeerStatus, fmt.Sprintf("rejected block %d", block))
	}

	var out []byte
	if r.staleAcks {
		out = append(out, Ack{Seq: seq - 1, Length: 1}.Bytes()...)
	}
	remaining := wire
	for i := r.ackSplit; i > 0; i-- {
		n := remaining / i
		out = append(out, Ack{Seq: seq, Length: uint16(n)}.Bytes()...)
		remaining -= n
	}
	if _, err := w.Write(out); err != nil {
		return WrapError(ErrConnection, "write ack", err)
	}
	r.logger.Debug("Acknowledged frame %d (%d bytes)", seq, wire)
	return nil
}

// ReceiveLegacy reads a 32-byte name buffer and then the file until the
// host closes the connection.
func (r *Receiver) ReceiveLegacy(conn io.Reader) (*ReceivedFile, error) {
	r.armDeadline(conn)
	field := make([]byte, LegacyNameLen)
	if _, err := io.ReadFull(conn, field); err != nil {
		return nil, WrapError(ErrConnection, "read name", err)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, WrapError(ErrConnection, "read file", err)
	}
	return &ReceivedFile{
		Name:      parseNameField(field),
		Data:      data,
		Frames:    1,
		WireBytes: int64(LegacyNameLen + len(data)),
	}, nil
}

// Serve accepts connections on ln one at a time and hands every result to
// handle. It returns when ctx ends or the listener fails.
func (r *Receiver) Serve(ctx context.Context, ln net.Listener, legacy bool, handle func(*ReceivedFile, error)) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.logger.Info("Connection from %s", conn.RemoteAddr())

		var file *ReceivedFile
		if legacy {
			file, err = r.ReceiveLegacy(conn)
		} else {
			file, err = r.Receive(ctx, conn)
		}
		conn.Close()
		handle(file, err)
	}
}

func (r *Receiver) armDeadline(conn interface{}) {
	if r.timeout <= 0 {
		return
	}
	if rt, ok := conn.(ReaderWithTimeout); ok {
		rt.SetReadDeadline(time.Now().Add(r.timeout))
	}
}
