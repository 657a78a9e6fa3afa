package domain

import (
	"regexp"
	"strings"

	dErrors "ansregistry/pkg/domain-errors"
)

// ANSName is the canonical identifier binding one agent registration:
// ans://v{version}.{host}. It is derived exactly once at intake and never
// recomputed; uniqueness across all agents is enforced by the store.
type ANSName string

const ansScheme = "ans://"

// hostPattern accepts lowercase DNS names: dot-separated labels of letters,
// digits and hyphens, no leading or trailing hyphen, at least two labels.
var hostPattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// versionPattern keeps versions to characters that read unambiguously inside
// the name: digits, letters, dots and hyphens.
var versionPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.-]{0,31}$`)

// DeriveANSName computes the natural key for a registration. Host is
// normalized to lowercase before derivation so the same host always yields
// the same name.
func DeriveANSName(version, host string) (ANSName, error) {
	version = strings.TrimSpace(version)
	host = strings.ToLower(strings.TrimSpace(host))

	if version == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "version is required")
	}
	if !versionPattern.MatchString(version) {
		return "", dErrors.New(dErrors.CodeBadRequest, "version contains invalid characters")
	}
	if host == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "agent host is required")
	}
	if !hostPattern.MatchString(host) {
		return "", dErrors.New(dErrors.CodeBadRequest, "agent host is not a valid DNS name")
	}
	return ANSName(ansScheme + "v" + version + "." + host), nil
}

// NormalizeHost lowercases and trims a caller-supplied host. Callers must
// store the normalized form so the derived name and the DNS lookup agree.
func NormalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

// ChallengeRecordName returns the DNS TXT record the agent operator must
// publish to prove control of the host.
func ChallengeRecordName(host string) string {
	return "_ans-challenge." + NormalizeHost(host)
}

// String returns the name in ans:// URI form.
func (n ANSName) String() string {
	return string(n)
}

// IsNil reports whether the name is empty.
func (n ANSName) IsNil() bool {
	return n == ""
}
