package nocloud

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// ContentHash reads r to the end and returns its xxhash64 as hex.
func ContentHash(r io.Reader) (string, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

// HashBytes is ContentHash for in-memory content.
func HashBytes(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// FileHash hashes a file on fsys.
func FileHash(fsys afero.Fs, name string) (string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return "", &PathError{Op: "hash", Path: name, Err: err}
	}
	defer f.Close()
	return ContentHash(f)
}
