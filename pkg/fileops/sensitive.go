package fileops

import (
	"regexp"
)

// sensitivePatterns match credential files, key material, shell history and
// password databases. They are checked independently of any allow-list.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(^|/)\.ssh/`),
	regexp.MustCompile(`(?i)(^|/)\.gnupg/`),
	regexp.MustCompile(`(?i)(^|/)id_(rsa|dsa|ecdsa|ed25519)(\.pub)?$`),
	regexp.MustCompile(`(?i)\.(pem|key|p12|pfx|jks|keystore|asc|gpg)$`),
	regexp.MustCompile(`(?i)\.(kdbx?|1pux|agilekeychain|opvault)$`),
	regexp.MustCompile(`(?i)(^|/)\.env(\.[^/]*)?$`),
	regexp.MustCompile(`(?i)(^|/)\.[a-z]*_history$`),
	regexp.MustCompile(`(?i)(^|/)\.(netrc|pgpass|npmrc|pypirc|git-credentials|htpasswd)$`),
	regexp.MustCompile(`(?i)(^|/)\.aws/(credentials|config)$`),
	regexp.MustCompile(`(?i)(^|/)\.docker/config\.json$`),
	regexp.MustCompile(`(?i)(^|/)\.kube/config$`),
	regexp.MustCompile(`(?i)(^|/)(credentials|secrets?)(\.[a-z]+)?$`),
	regexp.MustCompile(`(?i)(^|/)(shadow|gshadow|master\.passwd)$`),
	regexp.MustCompile(`(?i)(^|/)login data$`),
	regexp.MustCompile(`(?i)(^|/)(key[34]|logins)\.(db|json)$`),
}

// IsSensitivePath reports whether path looks like a credential, key, shell
// history or password store.
func IsSensitivePath(path string) bool {
	_, ok := MatchAny(sensitivePatterns, path)
	return ok
}
