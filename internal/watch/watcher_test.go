package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcherReportsWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "UserService.java")
	require.NoError(t, os.WriteFile(path, []byte("class UserService {}"), 0644))

	w, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, w.Watch(path))

	require.NoError(t, os.WriteFile(path, []byte("class UserService { void m() {} }"), 0644))

	select {
	case ev := <-w.Events():
		require.Equal(t, path, ev.Path)
		require.False(t, ev.Removed)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for write event")
	}
}

func TestWatcherReportsRemove(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "UserService.java")
	require.NoError(t, os.WriteFile(path, []byte("class UserService {}"), 0644))

	w, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, w.Watch(path))
	require.NoError(t, os.Remove(path))

	select {
	case ev := <-w.Events():
		require.True(t, ev.Removed)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for remove event")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	watched := filepath.Join(dir, "A.java")
	sibling := filepath.Join(dir, "B.java")
	require.NoError(t, os.WriteFile(watched, []byte("class A {}"), 0644))

	w, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, w.Watch(watched))
	require.NoError(t, os.WriteFile(sibling, []byte("class B {}"), 0644))

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for sibling file: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStopClosesEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := New()
	require.NoError(t, err)
	w.Start(context.Background())

	// A consumer blocked on Events() must observe shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := <-w.Events(); ok {
			t.Error("expected the events channel to be closed")
		}
	}()

	w.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("receiver still blocked after Stop")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w, err := New()
	require.NoError(t, err)

	ctx := context.Background()
	w.Start(ctx)
	w.Stop()
	w.Stop()
}
