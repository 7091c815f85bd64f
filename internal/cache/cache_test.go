package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/assetpack/assetpack/internal/config"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nls"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestWriteOnce(t *testing.T) {
	s := newStore(t)

	if s.Exists("nls1.js") {
		t.Fatal("expected empty store")
	}

	if err := s.Write("nls1.js", []byte("first"), false); err != nil {
		t.Fatal(err)
	}
	if !s.Exists("nls1.js") {
		t.Fatal("expected artifact to exist")
	}

	if err := s.Write("nls1.js", []byte("second"), false); err != nil {
		t.Fatal(err)
	}
	if bs, _ := s.Read("nls1.js"); string(bs) != "first" {
		t.Fatalf("expected existing artifact to be kept, got %q", bs)
	}

	if err := s.Write("nls1.js", []byte("forced"), true); err != nil {
		t.Fatal(err)
	}
	if bs, _ := s.Read("nls1.js"); string(bs) != "forced" {
		t.Fatalf("expected forced rewrite, got %q", bs)
	}

	fi, err := os.Stat(s.Path("nls1.js"))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0644 {
		t.Fatalf("expected 0644, got %v", fi.Mode().Perm())
	}

	assertNoTemp(t, s)
}

func TestWriteConcurrent(t *testing.T) {
	s := newStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Write("nls2.css", []byte("body{}"), false)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	if bs, _ := s.Read("nls2.css"); string(bs) != "body{}" {
		t.Fatalf("unexpected content %q", bs)
	}

	assertNoTemp(t, s)
}

func TestWriteError(t *testing.T) {
	s := newStore(t)

	for _, name := range []string{"", "../escape.js", "a/b.js", ".hidden"} {
		var werr *WriteError
		if err := s.Write(name, []byte("x"), false); !errors.As(err, &werr) {
			t.Fatalf("expected write error for %q, got %v", name, err)
		}
	}

	// Replace the directory by a file so the temporary file cannot be created.
	if err := os.RemoveAll(s.Dir()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Dir(), nil, 0644); err != nil {
		t.Fatal(err)
	}

	err := s.Write("nls3.js", []byte("x"), false)
	var werr *WriteError
	if !errors.As(err, &werr) || werr.Name != "nls3.js" {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestNewUnusableDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	for _, dir := range []string{"", file, filepath.Join(file, "nls")} {
		_, err := New(dir)
		var cerr *config.Error
		if !errors.As(err, &cerr) {
			t.Fatalf("expected configuration error for %q, got %v", dir, err)
		}
	}
}

func TestSubAndStats(t *testing.T) {
	s := newStore(t)

	res, err := s.Sub("resources")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Write("nls1.js", []byte("12345"), false); err != nil {
		t.Fatal(err)
	}
	if err := res.Write("nls9.png", []byte("123"), false); err != nil {
		t.Fatal(err)
	}

	unlock, err := s.Lock(t.Context(), "nls1.js")
	if err != nil {
		t.Fatal(err)
	}
	unlock()

	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Artifacts != 2 || st.Bytes != 8 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestLock(t *testing.T) {
	s := newStore(t)

	unlock, err := s.Lock(t.Context(), "nls4.js")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	if _, err := s.Lock(ctx, "nls4.js"); err == nil {
		t.Fatal("expected second lock to time out")
	}

	other, err := s.Lock(t.Context(), "nls5.js")
	if err != nil {
		t.Fatalf("expected independent lock, got %v", err)
	}
	other()

	done := make(chan error, 1)
	go func() {
		release, err := s.Lock(t.Context(), "nls4.js")
		if err == nil {
			release()
		}
		done <- err
	}()

	unlock()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("lock was not released")
	}
}

func assertNoTemp(t *testing.T, s *Store) {
	t.Helper()
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			t.Fatalf("temporary file left behind: %s", e.Name())
		}
	}
}
