package main

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatchFileDebounces(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "game.tap", "v1")
	other := writeFile(t, dir, "notes.txt", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sends := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, path, func() error {
			sends <- struct{}{}
			return nil
		}, func(err error) {
			t.Errorf("watch error: %v", err)
		})
	}()

	// give the watcher time to register
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(other, []byte("ignored"), 0o600); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte(i)}, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-sends:
	case <-time.After(5 * time.Second):
		t.Fatal("no send after the file was written")
	}
	select {
	case <-sends:
		t.Error("one burst of writes was sent twice")
	case <-time.After(2 * debounceDelay):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watchFile returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watchFile did not stop")
	}
}
