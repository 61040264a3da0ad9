package ico

import (
	"context"
	"fmt"
	"image"
	"io"
	"runtime"
	"time"

	imgpkg "icokit/internal/image"
	"icokit/pkg/logger"
	"icokit/pkg/metrics"
)

// Resizer scales an image to exactly width×height.
type Resizer interface {
	Resize(img image.Image, width, height int) *image.NRGBA
}

type PNGEncoder interface {
	EncodePNG(img image.Image) ([]byte, error)
}

// PNGDecoder decodes PNG entries. DecodePNGConfig reads only the header.
type PNGDecoder interface {
	DecodePNG(b []byte) (image.Image, error)
	DecodePNGConfig(b []byte) (image.Config, error)
}

// PNGCodec compresses encode payloads and decodes PNG entries.
type PNGCodec interface {
	PNGEncoder
	PNGDecoder
}

// NativeDecoder decodes a complete single-entry ICO blob. It serves the
// legacy bitmap path only.
type NativeDecoder interface {
	DecodeICO(b []byte) (image.Image, error)
	DecodeICOConfig(b []byte) (image.Config, error)
}

// Codec decodes and encodes ICO containers. A Codec holds no per-call
// state and is safe for concurrent use.
type Codec struct {
	Resize Resizer
	PNG    PNGCodec
	Native NativeDecoder
	// Workers bounds concurrent per-size encodes. Zero means GOMAXPROCS.
	Workers int

	log *logger.Logger
}

// NewCodec returns a Codec using the package's default collaborators.
// A nil log uses the process logger.
func NewCodec(log *logger.Logger) *Codec {
	if log == nil {
		log = logger.Default()
	}
	return &Codec{
		Resize: imgpkg.Resampler{},
		PNG:    imgpkg.PNGCodec{},
		Native: GoICODecoder{},
		log:    log.With("component", "ico"),
	}
}

func (c *Codec) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// DecodeResult is every candidate and failure from one container.
type DecodeResult struct {
	Directory *Directory
	Icons     []*DecodedIcon
	// Failures holds one *EntryError per abandoned entry.
	Failures []error
}

// DecodeAll parses the directory and decodes every valid entry in order.
// Entry failures are collected, not returned; only a structural error,
// a read error on the directory or cancellation ends the call early.
func (c *Codec) DecodeAll(ctx context.Context, r io.ReadSeeker) (*DecodeResult, error) {
	dir, err := ParseDirectory(r)
	if err != nil {
		return nil, err
	}
	if dir.Type != typeIcon {
		c.log.Warn("directory declares image type %d, decoding as icon", dir.Type)
	}
	if dir.Skipped > 0 || dir.TableTruncated {
		c.log.Debug("directory declares %d records, %d usable, %d skipped, table truncated: %v",
			dir.Count, len(dir.Entries), dir.Skipped, dir.TableTruncated)
	}

	m := metrics.Get()
	m.AddEntriesSkipped(dir.Skipped)

	res := &DecodeResult{Directory: dir}
	for i, e := range dir.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		icon, err := c.DecodeEntry(r, dir.StreamSize, e)
		if err != nil {
			ee := asEntryError(i, err)
			m.IncEntryFailed(errorKind(ee))
			c.log.Debug("skipping %v", ee)
			res.Failures = append(res.Failures, ee)
			continue
		}
		icon.Index = i
		if icon.Width != e.Width || icon.Height != e.Height {
			c.log.Debug("entry %d: directory says %dx%d, payload is %dx%d",
				i, e.Width, e.Height, icon.Width, icon.Height)
		}
		if icon.Encoding == EncodingBitmap && imgpkg.IsNearlyBlank(icon.Image) {
			c.log.Warn("entry %d: bitmap payload decoded to a nearly blank image", i)
		}
		m.IncEntryDecoded(icon.Encoding.String())
		res.Icons = append(res.Icons, icon)
	}
	return res, nil
}

func asEntryError(index int, err error) *EntryError {
	if ee, ok := err.(*EntryError); ok {
		ee.Index = index
		return ee
	}
	return &EntryError{Index: index, Encoding: EncodingUnknown, Err: err}
}

// Decode returns the best candidate of the container. The pixel buffers of
// the other candidates are released.
func (c *Codec) Decode(ctx context.Context, r io.ReadSeeker) (*DecodedIcon, error) {
	start := time.Now()
	m := metrics.Get()
	m.IncDecode()

	res, err := c.DecodeAll(ctx, r)
	if err != nil {
		m.IncDecodeFailure()
		return nil, err
	}
	best, err := SelectBest(res.Icons, res.Failures)
	if err != nil {
		m.IncDecodeFailure()
		return nil, err
	}
	for _, icon := range res.Icons {
		if icon != best {
			icon.Image = nil
		}
	}
	m.RecordDecodeDuration(time.Since(start))
	c.log.Debug("selected entry %d (%dx%d, %d bpp, %s) of %d decoded",
		best.Index, best.Width, best.Height, best.BitsPerPixel, best.Encoding, len(res.Icons))
	return best, nil
}

// LoadIcon decodes r and returns the image of its best entry.
func (c *Codec) LoadIcon(ctx context.Context, r io.ReadSeeker) (*image.NRGBA, error) {
	best, err := c.Decode(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("load icon: %w", err)
	}
	return best.Image, nil
}

// SaveIcon encodes img into w at the sizes resolved from req and stack.
// A non-square img is centered on a transparent square first. An
// unrecognized req is logged and encoded at DefaultSize.
func (c *Codec) SaveIcon(ctx context.Context, w io.Writer, img image.Image, req SizeRequest, stack bool) error {
	sizes, unsupported := ResolveSizes(req, stack)
	if unsupported != nil {
		c.log.Warn("%v", unsupported)
	}
	data, err := c.EncodeSizes(ctx, imgpkg.SquareCanvas(img), sizes)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
