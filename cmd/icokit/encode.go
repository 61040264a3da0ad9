package main

import (
	"bytes"
	"fmt"
	"image"

	"github.com/spf13/cobra"

	"icokit/internal/ico"
	imgpkg "icokit/internal/image"
	"icokit/pkg/logger"
)

var encodeOutput string

var encodeCmd = &cobra.Command{
	Use:   "encode <source>",
	Short: "Encode an image into an ICO file",
	Long: `Encode a source image into an ICO container with PNG-compressed entries.

The source may be a file, "-" for stdin, or an http(s) URL. ICO sources are
decoded to their best entry first. Non-square sources are centered on a
transparent square.

Examples:
  icokit encode logo.svg
  icokit encode logo.png --size 64 --stack -o favicon.ico
  icokit encode https://example.com/apple-touch-icon.png --size all`,
	Args: cobra.ExactArgs(1),
	RunE: runEncode,
}

func init() {
	f := encodeCmd.Flags()
	f.StringVarP(&encodeOutput, "output", "o", "", `output file, "-" for stdout (default: <source>.ico)`)
	f.String("size", "256", `icon size: 16, 32, 48, 64, 128, 256 or "all"`)
	f.Bool("stack", true, "also include every standard size below --size")
	mustBind("encode.size", f.Lookup("size"))
	mustBind("encode.stack", f.Lookup("stack"))

	rootCmd.AddCommand(encodeCmd)
}

func runEncode(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src := args[0]

	dst, err := outputPath(encodeOutput, src, ".ico")
	if err != nil {
		return err
	}
	data, err := readInput(ctx, src)
	if err != nil {
		return err
	}

	var img image.Image
	if imgpkg.LooksLikeICO(data) {
		img, err = app.codec.LoadIcon(ctx, bytes.NewReader(data))
	} else {
		var format string
		img, format, err = imgpkg.DecodeSource(data)
		logger.Debug("source format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}

	req := app.cfg.SizeRequest()
	stack := app.cfg.Encode.Stack
	sizes, _ := ico.ResolveSizes(req, stack)

	var out bytes.Buffer
	if err := app.codec.SaveIcon(ctx, &out, img, req, stack); err != nil {
		return err
	}
	if err := writeOutput(dst, out.Bytes()); err != nil {
		return err
	}
	logger.Info("wrote %s: %d bytes, sizes %v", dst, out.Len(), []int(sizes))
	return nil
}
