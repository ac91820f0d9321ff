package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// digest accumulates the SHA-256 of everything written to it.
type digest struct {
	h hash.Hash
}

func newDigest() *digest {
	return &digest{h: sha256.New()}
}

func (d *digest) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Hex returns the lowercase hex digest of the bytes written so far.
func (d *digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

func hashBytes(data []byte) string {
	d := newDigest()
	_, _ = d.Write(data)
	return d.Hex()
}

// hashFile returns the hex SHA-256 of a file's contents
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	d := newDigest()
	if _, err := io.Copy(d, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return d.Hex(), nil
}
