//go:build unix

package fileops

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestOpenNoFollow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	writeFile(t, path, "payload")

	f, err := OpenNoFollow(path)
	if err != nil {
		t.Fatalf("OpenNoFollow() error = %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Errorf("read %q", data)
	}
}

func TestOpenNoFollow_RefusesSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	writeFile(t, target, "secret")
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	f, err := OpenNoFollow(link)
	if err == nil {
		f.Close()
		t.Fatal("expected symlink to be refused")
	}
	if !IsKind(err, KindSymlinkLoop) {
		t.Errorf("expected symlink_loop, got %v", KindOf(err))
	}
}

func TestOpenNoFollow_FIFODoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	fifo := filepath.Join(dir, "pipe")
	if err := unix.Mkfifo(fifo, 0o600); err != nil {
		t.Skipf("mkfifo unsupported: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		f, err := OpenNoFollow(fifo)
		if err == nil {
			f.Close()
		}
		done <- err
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opening a FIFO blocked")
	}
}

func TestDescriptorPath(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("descriptor paths are only available on Linux and macOS")
	}
	dir, _ := CanonicalDir(t.TempDir())
	path := filepath.Join(dir, "file.txt")
	writeFile(t, path, "x")

	f, err := OpenNoFollow(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, ok := DescriptorPath(f)
	if !ok {
		t.Fatal("DescriptorPath() not available")
	}
	if got != path {
		t.Errorf("DescriptorPath() = %q, want %q", got, path)
	}
}
