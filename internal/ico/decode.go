package ico

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	goico "github.com/sergeymakinen/go-ico"

	imgpkg "icokit/internal/image"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// PayloadEncoding is the embedded image format of a directory entry,
// resolved by sniffing the payload.
type PayloadEncoding int

const (
	// EncodingUnknown marks an entry whose payload could not be read.
	EncodingUnknown PayloadEncoding = iota
	EncodingBitmap
	EncodingPNG
)

func (p PayloadEncoding) String() string {
	switch p {
	case EncodingPNG:
		return "png"
	case EncodingBitmap:
		return "bitmap"
	}
	return "unknown"
}

// SniffPayload classifies a payload. Anything without the PNG signature is
// treated as a legacy bitmap fragment.
func SniffPayload(b []byte) PayloadEncoding {
	if bytes.HasPrefix(b, pngSignature) {
		return EncodingPNG
	}
	return EncodingBitmap
}

// WrapFragment rebuilds a standalone one-entry container around a legacy
// bitmap payload, reusing the entry's own metadata.
func WrapFragment(e Entry, payload []byte) []byte {
	buf := make([]byte, singleDataOffset+len(payload))
	putHeader(buf, 1)
	e.Size = uint32(len(payload))
	e.Offset = singleDataOffset
	e.putRecord(buf[headerLen:singleDataOffset])
	copy(buf[singleDataOffset:], payload)
	return buf
}

// GoICODecoder decodes well-formed single-entry ICO blobs with
// github.com/sergeymakinen/go-ico.
type GoICODecoder struct{}

func (GoICODecoder) DecodeICO(b []byte) (image.Image, error) {
	return goico.Decode(bytes.NewReader(b))
}

// DecodeICOConfig reads the bitmap header of the container's entry. The
// height is already halved for the AND mask.
func (GoICODecoder) DecodeICOConfig(b []byte) (image.Config, error) {
	return goico.DecodeConfig(bytes.NewReader(b))
}

// readPayload reads the entry's payload after checking its bounds against
// the stream length, so a forged record cannot force a large allocation.
func readPayload(r io.ReadSeeker, streamSize int64, e Entry) ([]byte, error) {
	if e.End() > streamSize {
		return nil, &TruncatedStreamError{Offset: int64(e.Offset), Length: int64(e.Size), Available: streamSize}
	}
	if _, err := r.Seek(int64(e.Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to payload: %w", err)
	}
	buf := make([]byte, e.Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, &TruncatedStreamError{Offset: int64(e.Offset), Length: int64(e.Size), Available: streamSize}
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return buf, nil
}

// DecodeEntry reads and decodes the payload of one directory entry.
// streamSize is the total length of r, as reported by ParseDirectory.
//
// On the bitmap path the returned dimensions come from the decoded bitmap;
// on the PNG path they come from the PNG itself.
func (c *Codec) DecodeEntry(r io.ReadSeeker, streamSize int64, e Entry) (*DecodedIcon, error) {
	payload, err := readPayload(r, streamSize, e)
	if err != nil {
		return nil, err
	}
	return c.decodePayload(e, payload)
}

func (c *Codec) decodePayload(e Entry, payload []byte) (*DecodedIcon, error) {
	enc := SniffPayload(payload)

	var (
		img image.Image
		err error
	)
	if enc == EncodingPNG {
		img, err = c.decodePNGEntry(payload)
	} else {
		img, err = c.decodeBitmapEntry(WrapFragment(e, payload))
	}
	if err != nil {
		return nil, &EntryError{Encoding: enc, Err: err}
	}

	nrgba := imgpkg.ToNRGBA(img)
	b := nrgba.Bounds()
	return &DecodedIcon{
		Width:        b.Dx(),
		Height:       b.Dy(),
		BitsPerPixel: int(e.BitsPerPixel),
		Encoding:     enc,
		Image:        nrgba,
	}, nil
}

// decodePNGEntry checks the PNG header dimensions before decoding pixels.
func (c *Codec) decodePNGEntry(payload []byte) (image.Image, error) {
	cfg, err := c.PNG.DecodePNGConfig(payload)
	if err != nil {
		return nil, err
	}
	if err := checkDimensions(cfg); err != nil {
		return nil, err
	}
	return c.PNG.DecodePNG(payload)
}

// decodeBitmapEntry decodes a legacy fragment already wrapped back into a
// standalone container.
func (c *Codec) decodeBitmapEntry(wrapped []byte) (image.Image, error) {
	cfg, err := c.Native.DecodeICOConfig(wrapped)
	if err != nil {
		return nil, err
	}
	if err := checkDimensions(cfg); err != nil {
		return nil, err
	}
	return c.Native.DecodeICO(wrapped)
}

// checkDimensions bounds the pixel buffer a payload header may request.
func checkDimensions(cfg image.Config) error {
	if cfg.Width < 1 || cfg.Height < 1 || cfg.Width > maxDimension || cfg.Height > maxDimension {
		return &DimensionError{Width: cfg.Width, Height: cfg.Height}
	}
	return nil
}
