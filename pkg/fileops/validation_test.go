package fileops

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestValidatePathSecurity(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"plain relative", "docs/file.txt", false},
		{"absolute", "/home/user/file.txt", false},
		{"dots inside a name", "file..txt", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"null byte", "file\x00.txt", true},
		{"unix traversal", "../../etc/passwd", true},
		{"embedded traversal", "docs/../../secret", true},
		{"windows traversal", `..\..\windows\system32`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathSecurity(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePathSecurity(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !IsKind(err, KindPathRejected) {
				t.Errorf("expected path_rejected, got %v", KindOf(err))
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandPath("~"); got != home {
		t.Errorf("ExpandPath(~) = %q, want %q", got, home)
	}
	if got := ExpandPath("~/Downloads"); got != filepath.Join(home, "Downloads") {
		t.Errorf("ExpandPath(~/Downloads) = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath(/abs/path) = %q", got)
	}
	if got := ExpandPath("~user/x"); got != "~user/x" {
		t.Errorf("ExpandPath should leave ~user alone, got %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"report.pdf", "report.pdf", false},
		{"../../../etc/passwd", "passwd", false},
		{`..\..\boot.ini`, "boot.ini", false},
		{"", "", true},
		{"..", "", true},
		{"/", "", true},
	}

	for _, tt := range tests {
		got, err := SanitizeFilename(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SanitizeFilename(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsReservedName(t *testing.T) {
	reserved := []string{"CON", "con.txt", "dir/NUL", "LPT1.log", "com9", "aux "}
	for _, name := range reserved {
		if !IsReservedName(name) {
			t.Errorf("IsReservedName(%q) = false, want true", name)
		}
	}

	allowed := []string{"console.txt", "COM10", "report.pdf", "nullable.go"}
	for _, name := range allowed {
		if IsReservedName(name) {
			t.Errorf("IsReservedName(%q) = true, want false", name)
		}
	}
}

func TestDefaultBlockPatterns(t *testing.T) {
	patterns, err := CompilePatterns(DefaultBlockPatterns())
	if err != nil {
		t.Fatalf("default patterns must compile: %v", err)
	}

	blocked := []string{
		"/work/project/node_modules/lib/index.js",
		"/work/project/.git/config",
	}
	if runtime.GOOS == "linux" {
		blocked = append(blocked, "/etc/passwd", "/proc/self/environ", "/var/log/syslog")
	}
	for _, p := range blocked {
		if _, ok := MatchAny(patterns, p); !ok {
			t.Errorf("expected %q to be blocked", p)
		}
	}

	allowed := []string{"/work/project/src/main.go", "/work/.github/workflows/ci.yml", "/work/node_modules_backup/x"}
	for _, p := range allowed {
		if re, ok := MatchAny(patterns, p); ok {
			t.Errorf("%q unexpectedly matched %s", p, re)
		}
	}
}

func TestCompilePatternsInvalid(t *testing.T) {
	_, err := CompilePatterns([]string{"valid", "(unclosed"})
	if err == nil || !strings.Contains(err.Error(), "(unclosed") {
		t.Errorf("expected error naming the bad pattern, got %v", err)
	}
}

func TestIsWithin(t *testing.T) {
	base := filepath.FromSlash("/home/user")
	tests := []struct {
		target string
		want   bool
	}{
		{"/home/user", true},
		{"/home/user/docs/a.txt", true},
		{"/home/userX", false},
		{"/home/userX/a.txt", false},
		{"/home", false},
		{"/etc/passwd", false},
		{"/home/user/..data", true},
	}
	for _, tt := range tests {
		if got := IsWithin(base, filepath.FromSlash(tt.target)); got != tt.want {
			t.Errorf("IsWithin(%q, %q) = %v, want %v", base, tt.target, got, tt.want)
		}
	}
}

func TestValidateFileSizeLimit(t *testing.T) {
	if err := ValidateFileSizeLimit("/f", 1024, 2048); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateFileSizeLimit("/f", 2048, 2048); err != nil {
		t.Errorf("size equal to limit must pass: %v", err)
	}

	err := ValidateFileSizeLimit("/f", 3*1024*1024, 1024*1024)
	if !IsKind(err, KindTooLarge) {
		t.Fatalf("expected too_large, got %v", err)
	}
	if !strings.Contains(err.Error(), "3.0 MiB") {
		t.Errorf("expected human readable size in %q", err.Error())
	}

	if err := ValidateFileSizeLimit("/f", 1, 0); err == nil {
		t.Error("expected error for non-positive limit")
	}
}
