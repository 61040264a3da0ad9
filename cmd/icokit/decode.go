package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	imgpkg "icokit/internal/image"
	"icokit/pkg/logger"
)

var decodeOutput string

var decodeCmd = &cobra.Command{
	Use:   "decode <file.ico>",
	Short: "Extract the best image from an ICO file",
	Long: `Decode an ICO container and write its largest, deepest entry.

Both PNG entries and legacy bitmap entries are supported. Entries that fail
to decode are skipped; the command fails only when none decodes.

Examples:
  icokit decode favicon.ico
  icokit decode favicon.ico --format webp -o icon.webp
  icokit decode https://example.com/favicon.ico -o -`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	f := decodeCmd.Flags()
	f.StringVarP(&decodeOutput, "output", "o", "", `output file, "-" for stdout`)
	f.String("format", "png", "output format: png, webp or avif")
	mustBind("decode.format", f.Lookup("format"))

	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src := args[0]
	format := app.cfg.Decode.Format

	data, err := readInput(ctx, src)
	if err != nil {
		return err
	}
	img, err := app.codec.LoadIcon(ctx, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}

	out, ct := imgpkg.EncodeByFormat(img, format)
	if len(out) == 0 {
		return errors.New("output encoding failed")
	}
	if want := imgpkg.ContentTypeFor(format); ct != want {
		logger.Warn("%s output unavailable, wrote %s instead", format, ct)
	}

	dst, err := outputPath(decodeOutput, src, imgpkg.ExtensionFor(ct))
	if err != nil {
		return err
	}
	if err := writeOutput(dst, out); err != nil {
		return err
	}
	b := img.Bounds()
	logger.Info("wrote %s: %dx%d %s, %d bytes", dst, b.Dx(), b.Dy(), ct, len(out))
	return nil
}
