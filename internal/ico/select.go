package ico

import (
	"image"
	"sort"
)

// DecodedIcon is one successfully decoded directory entry.
type DecodedIcon struct {
	// Index is the entry's position in Directory.Entries.
	Index  int
	Width  int
	Height int
	// BitsPerPixel is the directory's declared depth, not verified against
	// the decoded pixels.
	BitsPerPixel int
	Encoding     PayloadEncoding
	Image        *image.NRGBA
}

// Area is width × height, widened so no pair of dimensions can overflow.
func (d *DecodedIcon) Area() int64 {
	return int64(d.Width) * int64(d.Height)
}

// SelectBest returns the candidate with the largest area, breaking ties by
// the higher declared bit depth and then by directory order.
func SelectBest(candidates []*DecodedIcon, failures []error) (*DecodedIcon, error) {
	if len(candidates) == 0 {
		return nil, &NoDecodableImageError{Entries: len(failures), Failures: failures}
	}
	ordered := make([]*DecodedIcon, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		ai, aj := ordered[i].Area(), ordered[j].Area()
		if ai != aj {
			return ai > aj
		}
		return ordered[i].BitsPerPixel > ordered[j].BitsPerPixel
	})
	return ordered[0], nil
}
