package fileops

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestExclusiveCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	writeFile(t, src, "hello world")

	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	if err := ExclusiveCopy(src, dst); err != nil {
		t.Fatalf("ExclusiveCopy() error = %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("copied content = %q", data)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
	}

	if _, err := os.Stat(src); err != nil {
		t.Errorf("source should remain after copy: %v", err)
	}
}

func TestExclusiveCopy_RefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	writeFile(t, src, "new")
	writeFile(t, dst, "original")

	err := ExclusiveCopy(src, dst)
	if !IsKind(err, KindAlreadyExists) {
		t.Fatalf("expected already_exists, got %v", err)
	}

	data, _ := os.ReadFile(dst)
	if string(data) != "original" {
		t.Errorf("destination was clobbered: %q", data)
	}
}

func TestExclusiveCopy_RefusesSymlinkSource(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	writeFile(t, target, "secret")
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "dst.txt")
	if err := ExclusiveCopy(link, dst); !IsKind(err, KindSymlinkLoop) {
		t.Fatalf("expected symlink refusal, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("no destination should be created for a refused source")
	}
}

func TestExclusiveCopy_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := ExclusiveCopy(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))
	if !IsKind(err, KindNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestLinkNoClobber(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	writeFile(t, src, "content")

	if err := LinkNoClobber(src, dst); err != nil {
		t.Fatalf("LinkNoClobber() error = %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "content" {
		t.Errorf("linked content = %q", data)
	}

	other := filepath.Join(dir, "other.txt")
	writeFile(t, other, "other")
	if err := LinkNoClobber(other, dst); !IsKind(err, KindAlreadyExists) {
		t.Errorf("expected already_exists, got %v", err)
	}
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	if err := AtomicWriteFile(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWriteFile(path, []byte(`{"a":2}`), 0o600); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != `{"a":2}` {
		t.Errorf("content = %q", data)
	}

	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if info.Mode().Perm() != 0o600 {
			t.Errorf("perm = %v", info.Mode().Perm())
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestEnsureDirectoryExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := EnsureDirectoryExists(dir); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDirectoryExists(dir); err != nil {
		t.Errorf("second call should succeed: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}
}

func TestMoveNoClobber(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "sub", "a.txt")
	writeFile(t, src, "payload")
	if err := EnsureDirectoryExists(filepath.Dir(dst)); err != nil {
		t.Fatal(err)
	}

	if err := MoveNoClobber(src, dst); err != nil {
		t.Fatalf("MoveNoClobber() error = %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be gone after move")
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "payload" {
		t.Errorf("moved content = %q", data)
	}

	writeFile(t, src, "second")
	if err := MoveNoClobber(src, dst); !IsKind(err, KindAlreadyExists) {
		t.Fatalf("expected already_exists, got %v", err)
	}
	data, _ = os.ReadFile(dst)
	if string(data) != "payload" {
		t.Errorf("destination was clobbered: %q", data)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("source must survive a refused move")
	}

	if err := MoveNoClobber(filepath.Join(dir, "missing"), filepath.Join(dir, "x")); !IsKind(err, KindNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}
