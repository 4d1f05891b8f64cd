package zxmit

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Session sends files to a receiver, one transfer at a time.
type Session struct {
	// Configuration
	config *Config

	// Callbacks
	callbacks *Callbacks

	// Connection factory
	dialer Dialer

	// Context
	ctx context.Context

	// Logger
	logger Logger

	mu     sync.Mutex
	active bool
}

// Config holds session configuration.
type Config struct {
	// Port is appended to addresses that do not name one
	Port int

	// ChunkSize is the nominal payload size before compression
	ChunkSize int

	// QueueDepth bounds the frames prepared ahead of the network writer
	QueueDepth int

	// Timeout bounds each frame write and each acknowledgment read;
	// zero waits forever
	Timeout time.Duration

	// Codec compresses payloads; nil selects DefaultCodec
	Codec Codec

	// TraceIO logs every read and write on the connection at debug level
	TraceIO bool

	// ProgressInterval throttles OnProgress callbacks in SendFile
	ProgressInterval time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:             DefaultPort,
		ChunkSize:        DefaultChunkSize,
		QueueDepth:       DefaultQueueDepth,
		Timeout:          30 * time.Second,
		Codec:            DefaultCodec,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// normalize fills zero fields with defaults and clamps the chunk size to
// what a frame header can describe.
func (c *Config) normalize() *Config {
	def := DefaultConfig()
	out := *c
	if out.Port <= 0 {
		out.Port = def.Port
	}
	if out.ChunkSize <= 0 {
		out.ChunkSize = def.ChunkSize
	}
	if out.ChunkSize > MaxPayload {
		out.ChunkSize = MaxPayload
	}
	if out.QueueDepth <= 0 {
		out.QueueDepth = def.QueueDepth
	}
	if out.Codec == nil {
		out.Codec = def.Codec
	}
	if out.ProgressInterval <= 0 {
		out.ProgressInterval = def.ProgressInterval
	}
	return &out
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(config *Config) Option {
	return func(s *Session) {
		if config != nil {
			s.config = config.normalize()
		}
	}
}

// WithCallbacks sets the session callbacks.
func WithCallbacks(callbacks *Callbacks) Option {
	return func(s *Session) {
		s.callbacks = mergeCallbacks(callbacks)
	}
}

// WithContext sets the context used when a transfer is started with a nil
// context.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// WithLogger sets a logger for protocol debugging.
func WithLogger(logger Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithDialer replaces the default TCP dialer.
func WithDialer(dialer Dialer) Option {
	return func(s *Session) {
		s.dialer = dialer
	}
}

// NewSession creates a new session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		config:    DefaultConfig(),
		callbacks: defaultCallbacks(),
		dialer:    defaultDialer(),
		ctx:       context.Background(),
		logger:    NoopLogger{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Config returns a copy of the session configuration.
func (s *Session) Config() Config {
	return *s.config
}

// Upload describes one transfer.
type Upload struct {
	// Address of the receiver, with or without a port
	Address string

	// Name is the file name shown to the receiver; only its base name is
	// used to derive the short name
	Name string

	// Data is the complete file content
	Data []byte

	// Compress enables per-chunk compression
	Compress bool

	// Dummy runs the pipeline without any network traffic
	Dummy bool

	// Mode selects the protocol variant
	Mode Mode
}

// Upload starts a transfer when the returned sequence is ranged over.
//
// Each acknowledged frame yields a Progress with a nil error. A failed
// transfer ends with a single zero Progress and a *Error; a successful one
// simply ends. Breaking out of the loop aborts the transfer and closes the
// connection. The sequence can be ranged over only once.
//
//	for p, err := range session.Upload(ctx, up) {
//		if err != nil {
//			return err
//		}
//		fmt.Printf("%d/%d\n", p.Block, p.Blocks)
//	}
func (s *Session) Upload(ctx context.Context, u Upload) iter.Seq2[Progress, error] {
	var consumed atomic.Bool
	return func(yield func(Progress, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(Progress{}, NewError(ErrConsumed, "upload of "+u.Name+" was already run"))
			return
		}
		if !s.acquire() {
			yield(Progress{}, NewError(ErrBusy, "another transfer is in progress"))
			return
		}
		defer s.release()

		if ctx == nil {
			ctx = s.ctx
		}
		if err := s.transfer(ctx, u, yield); err != nil && err != errStopped {
			s.callbacks.emit(eventFor(err), -1, err.Error())
			yield(Progress{}, err)
		}
	}
}

// Send runs a transfer to completion and returns its result.
func (s *Session) Send(ctx context.Context, u Upload) error {
	for _, err := range s.Upload(ctx, u) {
		if err != nil {
			return err
		}
	}
	return nil
}

// SendFile reads path and sends it, reporting through the session
// callbacks. Fields of u other than Data are honoured; an empty Name is
// taken from path.
func (s *Session) SendFile(ctx context.Context, path string, u Upload) error {
	s.logger.Info("Reading file '%s'", path)
	data, err := os.ReadFile(path)
	if err != nil {
		err = WrapError(ErrSourceRead, "read "+path, err)
		s.callbacks.OnError(err, "read file")
		return err
	}
	u.Data = data
	if u.Name == "" {
		u.Name = filepath.Base(path)
	}

	short, err := ShortName(filepath.Base(u.Name), u.Mode.nameWidth())
	if err != nil {
		s.callbacks.OnError(err, "short name")
		return err
	}
	s.callbacks.OnFileStart(u.Name, short, int64(len(data)))
	s.callbacks.emit(EventFileStart, -1, short)

	tracker := NewProgressTracker(s.callbacks.OnProgress, s.config.ProgressInterval)
	tracker.Start()
	for p, err := range s.Upload(ctx, u) {
		if err != nil {
			s.callbacks.OnError(err, "send file")
			return err
		}
		tracker.Update(p)
	}
	duration := tracker.Complete()
	last, _, _ := tracker.Stats()

	s.logger.Info("Compressed %d bytes into %d bytes, ratio: %.3f, elapsed: %v",
		len(data), last.Sent, last.Ratio(), duration)
	s.callbacks.OnFileComplete(u.Name, last.Sent, duration)
	s.callbacks.emit(EventFileComplete, -1, short)
	return nil
}

func (s *Session) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	return true
}

func (s *Session) release() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

func eventFor(err error) EventType {
	if IsCancelled(err) {
		return EventCancelled
	}
	return EventError
}
