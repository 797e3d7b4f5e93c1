package config

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRWMutexManagerGetSet(t *testing.T) {
	initial := &Config{General: General{LogLevel: "info"}}
	mgr := NewRWMutexManager(initial)

	got := mgr.Get()
	require.NotNil(t, got)
	require.NotSame(t, initial, got, "expected manager to store cloned config on bootstrap")
	require.Equal(t, "info", got.General.LogLevel)

	next := &Config{General: General{LogLevel: "debug"}}
	mgr.Set(next)
	next.General.LogLevel = "error"

	updated := mgr.Get()
	require.NotSame(t, next, updated, "expected manager to clone Set input")
	require.Equal(t, "debug", updated.General.LogLevel)
}

func TestRWMutexManagerReload(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	mgr := NewRWMutexManager(nil)

	require.NoError(t, mgr.Reload(path))

	cfg := mgr.Get()
	require.NotNil(t, cfg)
	require.NotEmpty(t, cfg.General.LogLevel)
}

func TestRWMutexManagerReloadRequiresPath(t *testing.T) {
	mgr := NewRWMutexManager(&Config{})
	require.Error(t, mgr.Reload(""))
}

func TestRWMutexManagerConcurrentReadWithWrites(t *testing.T) {
	mgr := NewRWMutexManager(&Config{General: General{MaxRetries: 1}})

	const readers = 32
	const readsPerReader = 1000
	const writes = 100

	var wg sync.WaitGroup
	wg.Add(readers + 1)

	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < readsPerReader; j++ {
				cfg := mgr.Get()
				require.NotNil(t, cfg)
				_ = cfg.General.MaxRetries
			}
		}()
	}

	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			mgr.Set(&Config{General: General{MaxRetries: i + 2}})
		}
	}()

	wg.Wait()
	require.NotNil(t, mgr.Get())
}

func TestLoadManager(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	mgr, err := LoadManager(path)
	require.NoError(t, err)
	require.NotNil(t, mgr.Get())
}

func TestLoadManagerRequiresPath(t *testing.T) {
	_, err := LoadManager("")
	require.Error(t, err)
}

func TestRWMutexManagerNilSafeMethods(t *testing.T) {
	var mgr *RWMutexManager

	require.Nil(t, mgr.Get())
	require.Error(t, mgr.Reload("somewhere"))

	mgr.Set(&Config{General: General{LogLevel: "info"}})
	require.Nil(t, mgr.Get())
}

func TestRWMutexManagerReloadUsesWriterLock(t *testing.T) {
	mgr := NewRWMutexManager(&Config{})
	path := writeTestConfig(t, validConfig)

	mgr.mu.RLock()
	done := make(chan struct{})
	go func() {
		err := mgr.Reload(path)
		if err != nil {
			t.Error(err)
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("reload completed while reader lock held; expected blocking")
	case <-time.After(20 * time.Millisecond):
	}

	mgr.mu.RUnlock()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("reload did not complete after releasing reader lock")
	}
}

func TestRWMutexManagerSetUsesExclusiveLock(t *testing.T) {
	mgr := NewRWMutexManager(&Config{})
	mgr.mu.RLock()

	done := make(chan struct{})
	go func() {
		mgr.Set(&Config{General: General{LogLevel: "debug"}})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("writer completed while reader lock held; expected blocking")
	case <-time.After(20 * time.Millisecond):
	}

	mgr.mu.RUnlock()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("writer did not complete after releasing reader lock")
	}
}

func TestRWMutexManagerGetUsesReadLock(t *testing.T) {
	mgr := NewRWMutexManager(&Config{General: General{LogLevel: "info"}})
	mgr.mu.Lock()

	done := make(chan struct{})
	go func() {
		_ = mgr.Get()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("reader completed while writer lock held; expected blocking")
	case <-time.After(20 * time.Millisecond):
	}

	mgr.mu.Unlock()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("reader did not complete after releasing writer lock")
	}
}

func BenchmarkRWMutexManagerGet(b *testing.B) {
	mgr := NewRWMutexManager(&Config{General: General{LogLevel: "info"}})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			cfg := mgr.Get()
			if cfg == nil {
				b.Fatal("nil config")
			}
		}
	})
}

func BenchmarkRWMutexManagerReadMostly(b *testing.B) {
	mgr := NewRWMutexManager(&Config{General: General{MaxRetries: 1}})
	var writes atomic.Int64

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				next := int(writes.Add(1))
				mgr.Set(&Config{General: General{MaxRetries: next}})
			case <-stop:
				return
			}
		}
	}()

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			cfg := mgr.Get()
			if cfg == nil {
				b.Fatal("nil config")
			}
			_ = cfg.General.MaxRetries
		}
	})
}

func TestRWMutexManagerReloadConcurrentReaders(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	mgr := NewRWMutexManager(nil)
	require.NoError(t, mgr.Reload(path))

	const iterations = 20
	const readers = 8

	var wg sync.WaitGroup
	wg.Add(readers + 1)

	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations*50; j++ {
				cfg := mgr.Get()
				require.NotNil(t, cfg)
				_ = cfg.General.MaxRetries
			}
		}()
	}

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			content := strings.Replace(validConfig, "max_retries = 2", fmt.Sprintf("max_retries = %d", i+1), 1)
			reloadPath := writeTestConfig(t, content)
			if err := mgr.Reload(reloadPath); err != nil {
				t.Errorf("reload failed: %v", err)
				return
			}
		}
	}()

	wg.Wait()
}
