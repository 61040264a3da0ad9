package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"icokit/internal/ico"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.ico>",
	Short: "Show the directory of an ICO file",
	Long: `Parse an ICO directory, decode every entry and report what was found.

Examples:
  icokit inspect favicon.ico
  icokit inspect --json https://example.com/favicon.ico`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	rep, err := app.codec.Inspect(cmd.Context(), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("inspect %s: %w", args[0], err)
	}

	if inspectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return printReport(cmd.OutOrStdout(), rep)
}

func printReport(w io.Writer, rep *ico.Report) error {
	fmt.Fprintf(w, "type %d, %d declared, %d valid, %d skipped, %d bytes\n",
		rep.Type, rep.Count, len(rep.Entries), rep.Skipped, rep.StreamSize)
	if rep.TableTruncated {
		fmt.Fprintln(w, "warning: directory table runs past end of file")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSIZE\tBPP\tBYTES\tOFFSET\tENCODING\tDECODED\tSTATUS")
	for _, e := range rep.Entries {
		decoded, status := "-", "ok"
		if e.Error != "" {
			status = e.ErrorKind + ": " + e.Error
		} else {
			decoded = fmt.Sprintf("%dx%d", e.DecodedWidth, e.DecodedHeight)
		}
		if e.Index == rep.Best {
			status += " (best)"
		}
		fmt.Fprintf(tw, "%d\t%dx%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			e.Index, e.Width, e.Height, e.BitsPerPixel, e.Size, e.Offset, e.Encoding, decoded, status)
	}
	return tw.Flush()
}
