package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/patchgate/patchgate/pkg/model"
)

// FileDigest returns the SHA-256 of the file content at path.
func FileDigest(path string) (model.HashValue, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return model.HashValue(hex.EncodeToString(h.Sum(nil))), nil
}

// VerifyFile reports whether the file at path still has digest want.
func VerifyFile(path string, want model.HashValue) (bool, error) {
	got, err := FileDigest(path)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
