package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type portState struct {
	Port int `json:"port"`
}

func TestStore_PutAndGet(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if err := s.Put(ctx, "server/last-port", portState{Port: 9975}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var got portState
	if err := s.Get(ctx, "server/last-port", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Port != 9975 {
		t.Errorf("got port %d, want 9975", got.Port)
	}
}

func TestStore_FileLayout(t *testing.T) {
	tmpDir := t.TempDir()
	s := New(tmpDir)

	if err := s.Put(context.Background(), "server/last-port", portState{Port: 9960}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	path := filepath.Join(tmpDir, "server", "last-port.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s: %v", path, err)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s := New(t.TempDir())

	var got portState
	if err := s.Get(context.Background(), "server/missing", &got); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if err := s.Put(ctx, "server/last-port", portState{Port: 9975}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(ctx, "server/last-port"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var got portState
	if err := s.Get(ctx, "server/last-port", &got); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got: %v", err)
	}
}

func TestStore_DeleteNonexistent(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Delete(context.Background(), "server/never-written"); err != nil {
		t.Errorf("deleting a missing key should not error: %v", err)
	}
}

func TestStore_Exists(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if s.Exists(ctx, "server/last-port") {
		t.Error("Exists should be false before Put")
	}
	if err := s.Put(ctx, "server/last-port", portState{Port: 9961}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !s.Exists(ctx, "server/last-port") {
		t.Error("Exists should be true after Put")
	}
}

func TestStore_Overwrite(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	for _, port := range []int{9960, 9961, 9975} {
		if err := s.Put(ctx, "server/last-port", portState{Port: port}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	var got portState
	if err := s.Get(ctx, "server/last-port", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Port != 9975 {
		t.Errorf("got port %d, want last written 9975", got.Port)
	}
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			if err := s.Put(ctx, "server/last-port", portState{Port: port}); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}(9960 + i)
	}
	wg.Wait()

	// Whatever won, the file must be intact JSON.
	var got portState
	if err := s.Get(ctx, "server/last-port", &got); err != nil {
		t.Fatalf("Get after concurrent writes failed: %v", err)
	}
	if got.Port < 9960 || got.Port > 9969 {
		t.Errorf("got port %d outside written range", got.Port)
	}
}
