package fileops

import "testing"

func TestIsSensitivePath(t *testing.T) {
	sensitive := []string{
		"/home/u/.ssh/config",
		"/home/u/keys/id_ed25519",
		"/home/u/keys/id_rsa.pub",
		"/home/u/certs/server.PEM",
		"/home/u/vault.kdbx",
		"/srv/app/.env",
		"/srv/app/.env.production",
		"/home/u/.bash_history",
		"/home/u/.zsh_history",
		"/home/u/.netrc",
		"/home/u/.aws/credentials",
		"/home/u/.kube/config",
		"/home/u/Documents/secrets.yaml",
		"/etc/shadow",
		"/home/u/.mozilla/firefox/abc/logins.json",
	}
	for _, p := range sensitive {
		if !IsSensitivePath(p) {
			t.Errorf("IsSensitivePath(%q) = false, want true", p)
		}
	}

	ordinary := []string{
		"/home/u/Documents/report.pdf",
		"/home/u/keys.txt",
		"/home/u/environment.md",
		"/home/u/history.txt",
		"/home/u/Pictures/secretary.jpg",
		"/home/u/monkey.png",
	}
	for _, p := range ordinary {
		if IsSensitivePath(p) {
			t.Errorf("IsSensitivePath(%q) = true, want false", p)
		}
	}
}
