package peimage

import (
	"fmt"
	"math"
	"os"
	"sync"
)

// Image is the raw byte view of one candidate driver file. The bytes are shared
// by the header parser, the import walker and the hasher and must not be
// modified.
type Image struct {
	name    string
	data    []byte
	release func() error
	once    sync.Once
}

// Load maps the file at path into memory. Missing, unreadable, empty and
// non-regular paths fail with ErrFileOpen; no partial view is ever returned.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileOpen, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileOpen, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrFileOpen, path)
	}
	size := info.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrFileOpen, path)
	}
	if size > math.MaxInt {
		return nil, fmt.Errorf("%w: %s is too large to map (%d bytes)", ErrFileOpen, path, size)
	}

	data, release, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to map %s: %w", ErrFileOpen, path, err)
	}
	return &Image{name: path, data: data, release: release}, nil
}

// FromBytes wraps an in-memory buffer. The caller gives up ownership of data.
func FromBytes(name string, data []byte) *Image {
	return &Image{name: name, data: data}
}

// Name returns the path or identifier the image was created from.
func (i *Image) Name() string { return i.name }

// Bytes returns the full file contents.
func (i *Image) Bytes() []byte { return i.data }

// Len returns the size of the image in bytes.
func (i *Image) Len() int { return len(i.data) }

// Close releases the mapping. It is safe to call more than once; the byte view
// must not be used afterwards.
func (i *Image) Close() error {
	var err error
	i.once.Do(func() {
		if i.release != nil {
			err = i.release()
		}
		i.data = nil
	})
	return err
}
