package ico

import (
	"fmt"
	"strings"
)

// FormatError reports a structurally invalid ICO header or directory.
// It aborts the whole load.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "ico: invalid format: " + e.Reason
}

// TruncatedStreamError reports an entry whose payload extends past the end
// of the stream. Only that entry is abandoned.
type TruncatedStreamError struct {
	Offset    int64
	Length    int64
	Available int64
}

func (e *TruncatedStreamError) Error() string {
	return fmt.Sprintf("ico: entry payload [%d, %d) exceeds stream length %d",
		e.Offset, e.Offset+e.Length, e.Available)
}

// EntryError ties a per-entry decode failure to its directory index.
type EntryError struct {
	Index    int
	Encoding PayloadEncoding
	Err      error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d (%s): %v", e.Index, e.Encoding, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// DimensionError reports a payload whose own header declares dimensions
// outside 1..256. It is raised before any pixel buffer is allocated.
type DimensionError struct {
	Width  int
	Height int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("ico: payload declares %dx%d, outside 1..%d", e.Width, e.Height, maxDimension)
}

// NoDecodableImageError is returned when no directory entry could be decoded.
type NoDecodableImageError struct {
	Entries  int
	Failures []error
}

func (e *NoDecodableImageError) Error() string {
	if e.Entries == 0 || len(e.Failures) == 0 {
		return "ico: no decodable image: directory has no valid entries"
	}
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("ico: no decodable image among %d entries: %s",
		e.Entries, strings.Join(msgs, "; "))
}

func (e *NoDecodableImageError) Unwrap() []error { return e.Failures }

// UnsupportedSizeError reports an encode size outside the standard set.
// Encoding continues at DefaultSize.
type UnsupportedSizeError struct {
	Requested int
}

func (e *UnsupportedSizeError) Error() string {
	return fmt.Sprintf("ico: unsupported icon size %d, using %d", e.Requested, DefaultSize)
}

// errorKind is the short label used for metrics and inspection reports.
func errorKind(err error) string {
	switch unwrapEntry(err).(type) {
	case *TruncatedStreamError:
		return "truncated"
	case *FormatError:
		return "format"
	case *DimensionError:
		return "dimensions"
	case nil:
		return "none"
	default:
		return "decode"
	}
}

func unwrapEntry(err error) error {
	if ee, ok := err.(*EntryError); ok {
		return ee.Err
	}
	return err
}
