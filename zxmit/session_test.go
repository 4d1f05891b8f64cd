package zxmit

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestConfigNormalize(t *testing.T) {
	c := (&Config{ChunkSize: 1 << 20, Timeout: time.Second}).normalize()
	if c.ChunkSize != MaxPayload {
		t.Errorf("chunk size = %d, want %d", c.ChunkSize, MaxPayload)
	}
	if c.Port != DefaultPort || c.QueueDepth != DefaultQueueDepth || c.Codec == nil {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.Timeout != time.Second {
		t.Errorf("timeout = %v", c.Timeout)
	}

	s := NewSession(WithConfig(nil))
	if s.Config().ChunkSize != DefaultChunkSize {
		t.Errorf("nil config changed the session: %+v", s.Config())
	}
}

func TestJoinAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.0.7", "192.168.0.7:6144"},
		{"spectrum.local", "spectrum.local:6144"},
		{"10.0.0.1:7000", "10.0.0.1:7000"},
		{"::1", "[::1]:6144"},
		{"[fe80::1]:6000", "[fe80::1]:6000"},
	}
	for _, tc := range tests {
		if got := JoinAddress(tc.in, DefaultPort); got != tc.want {
			t.Errorf("JoinAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSendFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manic miner.tap")
	data := bytes.Repeat([]byte("WILLY"), 1000)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	var (
		mu        sync.Mutex
		short     string
		size      int64
		progress  []Progress
		completed int64
		events    []EventType
	)
	callbacks := &Callbacks{
		OnFileStart: func(filename, shortName string, n int64) {
			short, size = shortName, n
		},
		OnProgress: func(p Progress, rate float64) {
			progress = append(progress, p)
		},
		OnFileComplete: func(filename string, sent int64, d time.Duration) {
			completed = sent
		},
		OnEvent: func(e Event) {
			mu.Lock()
			events = append(events, e.Type)
			mu.Unlock()
		},
	}

	d := newPipeDialer(nil)
	s := NewSession(WithDialer(d), WithCallbacks(callbacks))
	if err := s.SendFile(context.Background(), path, Upload{Address: "zx", Compress: true}); err != nil {
		t.Fatal(err)
	}

	if short != "manic_mi.tap" || size != int64(len(data)) {
		t.Errorf("file start %q %d", short, size)
	}
	if len(progress) == 0 || !progress[len(progress)-1].Done() {
		t.Fatalf("final progress not reported: %+v", progress)
	}
	if completed != progress[len(progress)-1].Sent {
		t.Errorf("completed with %d bytes, last progress %d", completed, progress[len(progress)-1].Sent)
	}

	mu.Lock()
	if len(events) == 0 || events[0] != EventFileStart || events[len(events)-1] != EventFileComplete {
		t.Errorf("events %v", events)
	}
	mu.Unlock()

	r := d.result(t)
	if r.err != nil || r.file.Name != "manic_mi.tap" || !bytes.Equal(r.file.Data, data) {
		t.Errorf("received %+v, %v", r.file, r.err)
	}
}

func TestSendFileMissing(t *testing.T) {
	var reported error
	s := NewSession(WithCallbacks(&Callbacks{
		OnError: func(err error, context string) {
			reported = err
		},
	}))

	err := s.SendFile(context.Background(), filepath.Join(t.TempDir(), "nope.bin"), Upload{Dummy: true})
	if typ, ok := TypeOf(err); !ok || typ != ErrSourceRead {
		t.Fatalf("error = %v, want source read error", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("cause is not a missing file: %v", err)
	}
	if reported != err {
		t.Errorf("OnError got %v", reported)
	}
}

func TestSendFileNameOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}

	var short string
	s := NewSession(WithCallbacks(&Callbacks{
		OnFileStart: func(filename, shortName string, size int64) {
			short = shortName
		},
	}))
	if err := s.SendFile(context.Background(), path, Upload{Name: "screen.scr", Dummy: true}); err != nil {
		t.Fatal(err)
	}
	if short != "screen.scr" {
		t.Errorf("short name %q", short)
	}
}
