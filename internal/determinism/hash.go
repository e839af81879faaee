package determinism

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"runtime/debug"
)

// hashLen truncates content hashes for readable fingerprints; 48 bits is
// plenty for distinguishing fixture and code versions.
const hashLen = 12

// HashBytes returns the truncated sha256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:hashLen]
}

// HashFile returns the truncated sha256 of a file's contents.
func HashFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// CodeHash fingerprints the engine version. Preference order: the VCS
// revision embedded at build time, then a hash of the executable itself. The
// value only needs to change when the code changes, and to be stable within
// a process, so the verifier's repeated runs always share it.
func CodeHash() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		var rev, modified string
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				rev = s.Value
			case "vcs.modified":
				modified = s.Value
			}
		}
		if rev != "" && modified != "true" {
			if len(rev) > hashLen {
				rev = rev[:hashLen]
			}
			return rev
		}
	}
	exe, err := os.Executable()
	if err != nil {
		return "unknown"
	}
	h, err := HashFile(exe)
	if err != nil {
		return "unknown"
	}
	return h
}
