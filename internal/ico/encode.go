package ico

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"icokit/pkg/metrics"
)

// encodedBitDepth is declared for every entry this package writes; payloads
// are always 32-bit RGBA PNGs.
const encodedBitDepth = 32

// Layout computes the directory records for payloads written back to back
// after the header and table, in the given order.
func Layout(sizes []int, payloadLens []int) []Entry {
	entries := make([]Entry, len(sizes))
	offset := headerLen + recordLen*len(sizes)
	for i, size := range sizes {
		entries[i] = Entry{
			Width:        size,
			Height:       size,
			BitsPerPixel: encodedBitDepth,
			Size:         uint32(payloadLens[i]),
			Offset:       uint32(offset),
		}
		offset += payloadLens[i]
	}
	return entries
}

func writeICO(w io.Writer, sizes []int, payloads [][]byte) error {
	lens := make([]int, len(payloads))
	for i, p := range payloads {
		lens[i] = len(p)
	}
	if err := WriteDirectory(w, Layout(sizes, lens)); err != nil {
		return err
	}
	for _, p := range payloads {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// EncodeSizes resizes img to every size in sizes, compresses each as PNG and
// returns the assembled container. img should already be square.
//
// Sizes are rendered concurrently; the directory is written once every
// payload length is known. Collaborator errors are returned as is.
func (c *Codec) EncodeSizes(ctx context.Context, img image.Image, sizes SizeSet) ([]byte, error) {
	if len(sizes) == 0 {
		return nil, errors.New("ico: no sizes to encode")
	}
	start := time.Now()

	payloads := make([][]byte, len(sizes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i, size := range sizes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := c.PNG.EncodePNG(c.Resize.Resize(img, size, size))
			if err != nil {
				return err
			}
			payloads[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeICO(&buf, sizes, payloads); err != nil {
		return nil, err
	}

	m := metrics.Get()
	m.IncEncode()
	m.AddEncodedBytes(buf.Len())
	for _, s := range sizes {
		m.IncSizeEncoded(s)
	}
	m.RecordEncodeDuration(time.Since(start))
	c.log.Debug("encoded %d sizes %v into %d bytes in %v", len(sizes), []int(sizes), buf.Len(), time.Since(start))

	return buf.Bytes(), nil
}

// EncodeSingle writes a one-entry container at size. An unrecognized size
// is encoded at DefaultSize and logged.
func (c *Codec) EncodeSingle(ctx context.Context, img image.Image, size int) ([]byte, error) {
	if req := SizeRequest(size); req == SizeAll || !req.Valid() {
		c.log.Warn("%v", &UnsupportedSizeError{Requested: size})
		size = DefaultSize
	}
	return c.EncodeSizes(ctx, img, SizeSet{size})
}
