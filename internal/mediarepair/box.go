package mediarepair

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	boxMovie     = "moov"
	boxMediaData = "mdat"

	headerSize      = 8
	largeHeaderSize = 16
)

var (
	// ErrMalformedContainer is returned when top-level boxes cannot be walked.
	ErrMalformedContainer = errors.New("mediarepair: malformed container")
	// ErrEmptyArtifact is returned for zero-length files.
	ErrEmptyArtifact = errors.New("mediarepair: empty artifact")
)

// Box is one top-level box of an ISO base media file.
type Box struct {
	Type   string
	Offset int64
	Size   int64
}

// Layout lists the top-level boxes of a file in on-disk order.
type Layout struct {
	Size  int64
	Boxes []Box
}

// Find returns the first top-level box with the given type.
func (l Layout) Find(boxType string) (Box, bool) {
	for _, b := range l.Boxes {
		if b.Type == boxType {
			return b, true
		}
	}
	return Box{}, false
}

// FastStart reports whether the movie box precedes every media data box.
func (l Layout) FastStart() bool {
	moov, ok := l.Find(boxMovie)
	if !ok {
		return false
	}
	mdat, ok := l.Find(boxMediaData)
	if !ok {
		return true
	}
	return moov.Offset < mdat.Offset
}

// Parse walks the top-level boxes of r, which holds size bytes.
func Parse(r io.ReaderAt, size int64) (Layout, error) {
	if size <= 0 {
		return Layout{}, ErrEmptyArtifact
	}

	layout := Layout{Size: size}
	var header [largeHeaderSize]byte
	offset := int64(0)

	for offset < size {
		if size-offset < headerSize {
			return Layout{}, fmt.Errorf("%w: truncated header at offset %d", ErrMalformedContainer, offset)
		}
		if _, err := r.ReadAt(header[:headerSize], offset); err != nil {
			return Layout{}, fmt.Errorf("read box header at %d: %w", offset, err)
		}

		boxSize := int64(binary.BigEndian.Uint32(header[0:4]))
		boxType := string(header[4:8])
		if !validBoxType(header[4:8]) {
			return Layout{}, fmt.Errorf("%w: invalid box type %q at offset %d", ErrMalformedContainer, boxType, offset)
		}

		switch boxSize {
		case 0:
			boxSize = size - offset
		case 1:
			if size-offset < largeHeaderSize {
				return Layout{}, fmt.Errorf("%w: truncated large header at offset %d", ErrMalformedContainer, offset)
			}
			if _, err := r.ReadAt(header[headerSize:largeHeaderSize], offset+headerSize); err != nil {
				return Layout{}, fmt.Errorf("read large size at %d: %w", offset, err)
			}
			large := binary.BigEndian.Uint64(header[headerSize:largeHeaderSize])
			if large < largeHeaderSize || large > uint64(size-offset) {
				return Layout{}, fmt.Errorf("%w: box %q at %d declares size %d", ErrMalformedContainer, boxType, offset, large)
			}
			boxSize = int64(large)
		default:
			if boxSize < headerSize || boxSize > size-offset {
				return Layout{}, fmt.Errorf("%w: box %q at %d declares size %d", ErrMalformedContainer, boxType, offset, boxSize)
			}
		}

		layout.Boxes = append(layout.Boxes, Box{Type: boxType, Offset: offset, Size: boxSize})
		offset += boxSize
	}

	return layout, nil
}

// InspectFile parses the top-level layout of the file at path.
func InspectFile(path string) (Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return Layout{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Layout{}, err
	}
	return Parse(f, info.Size())
}

// ScanMarker returns the offset of the first raw "moov" byte sequence in r.
// It does not interpret box structure and may match inside media payloads.
func ScanMarker(r io.Reader) (int64, bool, error) {
	marker := []byte(boxMovie)
	buf := make([]byte, 64*1024)
	carry := make([]byte, 0, len(marker)-1)
	var consumed int64

	for {
		n, err := r.Read(buf)
		if n > 0 {
			window := append(carry, buf[:n]...)
			if idx := bytes.Index(window, marker); idx >= 0 {
				return consumed - int64(len(carry)) + int64(idx), true, nil
			}
			keep := len(marker) - 1
			if len(window) < keep {
				keep = len(window)
			}
			carry = append(carry[:0], window[len(window)-keep:]...)
			consumed += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
	}
}

func validBoxType(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
