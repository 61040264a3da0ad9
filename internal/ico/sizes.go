package ico

import (
	"fmt"
	"strconv"
	"strings"
)

// SizeRequest is the nominal encode size: one of StandardSizes, or SizeAll.
type SizeRequest int

const (
	// SizeAll requests every standard size.
	SizeAll SizeRequest = -1
	// DefaultSize replaces any unrecognized request.
	DefaultSize = 32
)

// StandardSizes are the resolutions written by a stacked encode, in
// directory order.
var StandardSizes = []int{16, 32, 48, 64, 128, 256}

// SizeSet is the resolved list of square target sizes for one encode.
type SizeSet []int

// ParseSizeRequest accepts "all", a bare number, or "NxN".
func ParseSizeRequest(s string) (SizeRequest, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "all" {
		return SizeAll, nil
	}
	if w, h, ok := strings.Cut(s, "x"); ok {
		if w != h {
			return 0, fmt.Errorf("icon size %q is not square", s)
		}
		s = w
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid icon size %q", s)
	}
	return SizeRequest(n), nil
}

// Valid reports whether the request is SizeAll or a standard size.
func (r SizeRequest) Valid() bool {
	if r == SizeAll {
		return true
	}
	for _, s := range StandardSizes {
		if int(r) == s {
			return true
		}
	}
	return false
}

func (r SizeRequest) String() string {
	if r == SizeAll {
		return "all"
	}
	return strconv.Itoa(int(r))
}

// ResolveSizes turns a request and the stacking flag into the sizes to
// encode. Without stacking the result is a single size; with it, every
// standard size up to and including the request, ascending. SizeAll always
// yields the full standard list.
//
// An unrecognized request resolves as DefaultSize and is reported with a
// non-nil *UnsupportedSizeError alongside the usable SizeSet.
func ResolveSizes(req SizeRequest, stack bool) (SizeSet, error) {
	var unsupported error
	if !req.Valid() {
		unsupported = &UnsupportedSizeError{Requested: int(req)}
		req = DefaultSize
	}
	if req == SizeAll {
		return append(SizeSet(nil), StandardSizes...), unsupported
	}
	if !stack {
		return SizeSet{int(req)}, unsupported
	}
	var set SizeSet
	for _, s := range StandardSizes {
		if s <= int(req) {
			set = append(set, s)
		}
	}
	return set, unsupported
}
