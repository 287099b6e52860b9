package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/northcutted/drvscan/pkg/peimage"
)

// Hash returns the lowercase hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader streams r through SHA-256. A read failure is reported as
// ErrFileRead.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("%w: %w", peimage.ErrFileRead, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashImage(img *peimage.Image) (string, error) {
	return HashReader(bytes.NewReader(img.Bytes()))
}
