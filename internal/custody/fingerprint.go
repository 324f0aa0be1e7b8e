package custody

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// checksumBufSize bounds peak memory while hashing, independent of file size.
const checksumBufSize = 1 << 18

// Checksum calculates a content checksum for a path. Directories result in
// the empty sentinel: they are tracked for existence, not content.
func Checksum(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	digest := sha1.New()
	buf := make([]byte, checksumBufSize)
	if _, err := io.CopyBuffer(digest, f, buf); err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// sumCacheKey identifies a checksum cache slot. Any change to mtime or size
// invalidates the slot, so a hit can only serve a byte-identical file.
type sumCacheKey struct {
	path  string
	mtime int64
	size  int64
}

// checksum is the cached variant used internally. Skip propagation and
// multi-output recording touch the same files repeatedly within a run; the
// LRU keeps that from turning into repeated full reads.
func (c *Custodian) checksum(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", nil
	}
	key := sumCacheKey{path: path, mtime: info.ModTime().UnixNano(), size: info.Size()}
	if sum, ok := c.sums.Get(key); ok {
		return sum, nil
	}
	sum, err := Checksum(path)
	if err != nil {
		return "", err
	}
	c.sums.Add(key, sum)
	return sum, nil
}
