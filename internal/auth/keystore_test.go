package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func writeKeyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api_keys.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSaltedHash(t *testing.T) {
	t.Parallel()

	h1 := SaltedHash("correct", "salt-a")
	h2 := SaltedHash("correct", "salt-a")
	if h1 != h2 {
		t.Error("same key and salt should hash identically")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 (hex SHA-256)", len(h1))
	}

	if SaltedHash("correct", "salt-a") == SaltedHash("correct", "salt-b") {
		t.Error("different salts should produce different hashes")
	}
	if SaltedHash("correct", "salt-a") == SaltedHash("wrong", "salt-a") {
		t.Error("different keys should produce different hashes")
	}
}

func TestKeyStoreLoadRaw(t *testing.T) {
	t.Parallel()

	path := writeKeyFile(t, "alpha\n\n  beta  \nalpha\n")
	ks := &keyStore{path: path, salt: "s"}

	set, err := ks.load()
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 2 {
		t.Fatalf("set size = %d, want 2 (duplicates and blanks collapse)", len(set))
	}
	if !set.contains(SaltedHash("alpha", "s")) {
		t.Error("missing hash for alpha")
	}
	if !set.contains(SaltedHash("beta", "s")) {
		t.Error("missing hash for beta (whitespace should be trimmed)")
	}
}

func TestKeyStoreLoadAlreadySalted(t *testing.T) {
	t.Parallel()

	hash := SaltedHash("alpha", "external-salt")
	path := writeKeyFile(t, hash+"\n")
	ks := &keyStore{path: path, salt: "external-salt", alreadySalted: true}

	set, err := ks.load()
	if err != nil {
		t.Fatal(err)
	}
	if !set.contains(hash) {
		t.Error("pre-salted entry should be trusted verbatim")
	}
	if set.contains(SaltedHash(hash, "external-salt")) {
		t.Error("pre-salted entry must not be hashed again")
	}
}

func TestKeyStoreLoadMissingFile(t *testing.T) {
	t.Parallel()

	ks := &keyStore{path: filepath.Join(t.TempDir(), "nope.txt"), salt: "s"}
	set, err := ks.load()
	if err == nil {
		t.Error("missing file should surface an error for logging")
	}
	if len(set) != 0 {
		t.Errorf("set size = %d, want 0", len(set))
	}
}
