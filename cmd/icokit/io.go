package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"icokit/internal/security"
)

func mustBind(key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", f.Name, err))
	}
}

// readInput loads a local file, stdin ("-") or an http(s) URL.
func readInput(ctx context.Context, src string) ([]byte, error) {
	switch {
	case src == "-":
		return io.ReadAll(os.Stdin)
	case security.LooksLikeURL(src):
		if app.fetcher == nil {
			return nil, errors.New("remote sources are disabled (fetch.enabled=false)")
		}
		res, err := app.fetcher.Get(ctx, src)
		if err != nil {
			return nil, err
		}
		return res.Body, nil
	default:
		return os.ReadFile(src)
	}
}

// outputPath picks the destination: the explicit flag, or the input's base
// name with ext. Stdin input requires an explicit destination.
func outputPath(flag, src, ext string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	var base string
	switch {
	case src == "-":
		return "", errors.New("--output is required when reading stdin")
	case security.LooksLikeURL(src):
		if u, err := url.Parse(src); err == nil {
			base = path.Base(u.Path)
		}
		if base == "" || base == "/" || base == "." {
			base = "icon"
		}
	default:
		base = filepath.Base(src)
	}
	out := strings.TrimSuffix(base, filepath.Ext(base)) + ext
	if filepath.Clean(out) == filepath.Clean(src) {
		return "", fmt.Errorf("refusing to overwrite input %s; pass --output", src)
	}
	return out, nil
}

func writeOutput(dst string, data []byte) error {
	if dst == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
