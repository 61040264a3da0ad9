package ico

import (
	"context"
	"io"
)

// Report describes a container's directory and the outcome of decoding
// each entry.
type Report struct {
	Type           uint16        `json:"type"`
	Count          uint16        `json:"count"`
	StreamSize     int64         `json:"stream_size"`
	Skipped        int           `json:"skipped"`
	TableTruncated bool          `json:"table_truncated,omitempty"`
	Best           int           `json:"best"`
	Entries        []EntryReport `json:"entries"`
}

type EntryReport struct {
	Index         int    `json:"index"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	ColorCount    uint8  `json:"color_count"`
	ColorPlanes   uint16 `json:"color_planes"`
	BitsPerPixel  uint16 `json:"bits_per_pixel"`
	Size          uint32 `json:"size"`
	Offset        uint32 `json:"offset"`
	Encoding      string `json:"encoding"`
	DecodedWidth  int    `json:"decoded_width,omitempty"`
	DecodedHeight int    `json:"decoded_height,omitempty"`
	Error         string `json:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
}

// Inspect decodes every entry of r and reports what it found. Best is the
// index SelectBest would pick, or -1 when nothing decoded. Only errors that
// would abort a load are returned.
func (c *Codec) Inspect(ctx context.Context, r io.ReadSeeker) (*Report, error) {
	res, err := c.DecodeAll(ctx, r)
	if err != nil {
		return nil, err
	}
	dir := res.Directory
	rep := &Report{
		Type:           dir.Type,
		Count:          dir.Count,
		StreamSize:     dir.StreamSize,
		Skipped:        dir.Skipped,
		TableTruncated: dir.TableTruncated,
		Best:           -1,
		Entries:        make([]EntryReport, len(dir.Entries)),
	}
	for i, e := range dir.Entries {
		rep.Entries[i] = EntryReport{
			Index:        i,
			Width:        e.Width,
			Height:       e.Height,
			ColorCount:   e.ColorCount,
			ColorPlanes:  e.ColorPlanes,
			BitsPerPixel: e.BitsPerPixel,
			Size:         e.Size,
			Offset:       e.Offset,
		}
	}
	for _, icon := range res.Icons {
		er := &rep.Entries[icon.Index]
		er.Encoding = icon.Encoding.String()
		er.DecodedWidth = icon.Width
		er.DecodedHeight = icon.Height
	}
	for _, f := range res.Failures {
		ee := f.(*EntryError)
		er := &rep.Entries[ee.Index]
		er.Encoding = ee.Encoding.String()
		er.Error = ee.Err.Error()
		er.ErrorKind = errorKind(ee)
	}
	if best, err := SelectBest(res.Icons, res.Failures); err == nil {
		rep.Best = best.Index
	}
	return rep, nil
}
