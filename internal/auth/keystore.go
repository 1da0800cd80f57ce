// Package auth implements API key authentication for the Radagast proxy.
// Trusted keys are loaded from a line-delimited file and held as salted
// SHA-256 hashes; the live set is refreshed lazily on a timer.
package auth

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// hashSeparator joins a raw key and the salt before digesting. It is part
// of the hash format shared with external key-provisioning tooling.
const hashSeparator = "@separator@"

// keySet is an immutable set of salted key hashes. It is built once per
// load and replaced wholesale, never mutated, so readers need no locking.
type keySet map[string]struct{}

func (s keySet) contains(hash string) bool {
	_, ok := s[hash]
	return ok
}

// SaltedHash returns the hex SHA-256 digest of raw joined with salt.
// Pure and stable: the same inputs always yield the same hash.
func SaltedHash(raw, salt string) string {
	h := sha256.Sum256([]byte(raw + hashSeparator + salt))
	return hex.EncodeToString(h[:])
}

// keyStore reads trusted keys from a line-delimited file.
type keyStore struct {
	path          string
	salt          string
	alreadySalted bool // file entries are pre-salted hashes, used verbatim
}

// load reads the key file and returns the trusted set. Blank lines are
// skipped and duplicates collapse. A missing or unreadable file yields an
// empty set together with the error; the caller decides the fallback policy.
func (ks *keyStore) load() (keySet, error) {
	f, err := os.Open(ks.path)
	if err != nil {
		return keySet{}, fmt.Errorf("open key file: %w", err)
	}
	defer f.Close()

	set := keySet{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if ks.alreadySalted {
			set[line] = struct{}{}
		} else {
			set[SaltedHash(line, ks.salt)] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return keySet{}, fmt.Errorf("read key file: %w", err)
	}
	return set, nil
}
