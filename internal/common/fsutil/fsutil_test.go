package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"testing"
)

func TestExpandHome(t *testing.T) {
	// Set a deterministic HOME for the duration of this test so we never skip.
	origHome, hadHome := os.LookupEnv("HOME")
	origUserProfile, hadUserProfile := os.LookupEnv("USERPROFILE")
	t.Cleanup(func() {
		if hadHome {
			_ = os.Setenv("HOME", origHome)
		} else {
			_ = os.Unsetenv("HOME")
		}
		if hadUserProfile {
			_ = os.Setenv("USERPROFILE", origUserProfile)
		} else {
			_ = os.Unsetenv("USERPROFILE")
		}
	})

	home := t.TempDir()
	// Configure both env vars for cross-platform behavior of os.UserHomeDir.
	_ = os.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		_ = os.Setenv("USERPROFILE", home)
	}
	// raw path unaffected
	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// empty path
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// ~ expansion
	p, err := ExpandHome("~")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if p != home {
		t.Fatalf("expected %q, got %q", home, p)
	}
	// ~/subdir
	sub := "test-sub"
	exp, err := ExpandHome("~/" + sub)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if runtime.GOOS == "windows" {
		if filepath.Base(exp) != sub {
			t.Fatalf("unexpected expanded path: %q", exp)
		}
	} else {
		expected := filepath.Join(home, sub)
		if exp != expected {
			t.Fatalf("expected %q, got %q", expected, exp)
		}
	}
}

func TestFileLargerThan(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small")
	big := filepath.Join(dir, "big")
	if err := os.WriteFile(small, make([]byte, 50), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(big, make([]byte, 150), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if FileLargerThan(small, 100) {
		t.Fatalf("50 bytes should not pass a 100 byte floor")
	}
	if !FileLargerThan(big, 100) {
		t.Fatalf("150 bytes should pass a 100 byte floor")
	}
	if FileLargerThan(dir, 0) {
		t.Fatalf("directories are never files")
	}
	if FileLargerThan(filepath.Join(dir, "missing"), 0) {
		t.Fatalf("missing file reported present")
	}
}

func TestReplaceFile_CreatesParentsAndReplaces(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "a", "b", "weight.bin")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(dst, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := filepath.Join(dir, "incoming")
	if err := os.WriteFile(src, []byte("fresh"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ReplaceFile(src, dst); err != nil {
		t.Fatalf("replace: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil || string(b) != "fresh" {
		t.Fatalf("got %q err=%v", b, err)
	}
	if PathExists(src) {
		t.Fatalf("source should be gone after move")
	}

	src2 := filepath.Join(dir, "incoming2")
	if err := os.WriteFile(src2, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	nested := filepath.Join(dir, "new", "dir", "file")
	if err := ReplaceFile(src2, nested); err != nil {
		t.Fatalf("replace into new dir: %v", err)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prefs", "prefs.json")
	if err := WriteFileAtomic(p, []byte(`{"a":"1"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteFileAtomic(p, []byte(`{"a":"2"}`), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != `{"a":"2"}` {
		t.Fatalf("got %q err=%v", b, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(p))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestReplaceFile_DestinationNeverMissing(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "weight.bin")
	if err := os.WriteFile(dst, make([]byte, 256), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var missing int32
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if !FileLargerThan(dst, 100) {
				atomic.AddInt32(&missing, 1)
			}
		}
	}()
	for i := 0; i < 500; i++ {
		src := filepath.Join(dir, "incoming-"+strconv.Itoa(i))
		if err := os.WriteFile(src, make([]byte, 256), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := ReplaceFile(src, dst); err != nil {
			t.Fatalf("replace: %v", err)
		}
	}
	close(stop)
	<-done
	if n := atomic.LoadInt32(&missing); n != 0 {
		t.Fatalf("valid destination observed missing %d times", n)
	}
}
