package keywatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyWatcher_Change(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "secret.seed")
	require.NoError(t, os.WriteFile(keyFile, []byte("old"), 0600))

	var calls atomic.Int32
	var gotPath atomic.Value
	w, err := New(keyFile, func(path string) {
		gotPath.Store(path)
		calls.Add(1)
	}, Config{DebounceDuration: 50 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0600))

	// a burst of writes is reported once
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(keyFile, []byte("new"), 0600))
	}

	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	abs, err := filepath.Abs(keyFile)
	require.NoError(t, err)
	assert.Equal(t, abs, gotPath.Load())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestKeyWatcher_Replace(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "secret.seed")

	var calls atomic.Int32
	w, err := New(keyFile, func(string) { calls.Add(1) }, Config{DebounceDuration: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	tmp := filepath.Join(dir, ".seed-tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("key"), 0600))
	require.NoError(t, os.Rename(tmp, keyFile))

	assert.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestKeyWatcher_Close(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "secret.seed"), func(string) {}, Config{})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), ErrWatcherClosed)
	assert.ErrorIs(t, w.Run(context.Background()), ErrWatcherClosed)
}

func TestNew_MissingDirectory(t *testing.T) {
	_, err := New("/non/existent/dir/secret.seed", func(string) {}, Config{})
	assert.Error(t, err)
}

func TestDebouncer(t *testing.T) {
	var calls atomic.Int32
	d := newDebouncer(30*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 5; i++ {
		d.trigger()
	}
	assert.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	d.trigger()
	d.stop()
	d.trigger()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_StaleFireDropped(t *testing.T) {
	var calls atomic.Int32
	d := newDebouncer(time.Hour, func() { calls.Add(1) })

	// a timer that already fired but lost the race for the lock
	d.trigger()
	d.mu.Lock()
	stale := d.gen
	d.mu.Unlock()
	d.trigger()

	d.fire(stale)
	assert.Equal(t, int32(0), calls.Load())

	d.mu.Lock()
	current := d.gen
	d.mu.Unlock()
	d.fire(current)
	assert.Equal(t, int32(1), calls.Load())

	d.stop()
}
