package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/nvskit/nvskit/pkg/export"
	"github.com/nvskit/nvskit/pkg/format"
	"github.com/nvskit/nvskit/pkg/partition"
)

const helpText = `nvskit - ESP32 NVS partition inspection toolkit

Usage:
  nvskit dump [options] <partition.bin> <out.json>   Decode a partition image to JSON
  nvskit csv [options] <in.json> <out.csv>           Convert a JSON dump to generator CSV
  nvskit shell [options] <partition.bin>             Inspect a partition interactively

Options (dump):
  -page-size N    NVS page size in bytes (default 4096)
  -compress       zstd-compress the JSON output
  -v              verbose (debug) logging

Options (csv):
  -blobs DIR      directory for extracted blob files (default "blobs")
  -v              verbose (debug) logging

Options (shell):
  -page-size N    NVS page size in bytes (default 4096)
  -v              verbose (debug) logging

The JSON dump can be edited and fed back through the csv command; the
resulting CSV plus blob files are input for the partition generator tool,
which also needs the target partition size.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, helpText)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "dump":
		runDump(os.Args[2:])
	case "csv":
		runCSV(os.Args[2:])
	case "shell":
		runShell(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(helpText)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, helpText)
		os.Exit(2)
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// decodeImage loads and decodes a partition image, logging every warning.
func decodeImage(logger zerolog.Logger, path string, pageSize int) *partition.Result {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal().Err(err).Msg("read partition image")
	}

	res, err := partition.Decode(data, partition.Options{PageSize: pageSize, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("decode partition")
	}
	for _, w := range res.Warnings {
		logger.Warn().Int("page", w.Page).Str("kind", string(w.Kind)).Msg(w.Detail)
	}
	return res
}

func runDump(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	pageSize := fs.Int("page-size", format.DefaultPageSize, "NVS page size in bytes")
	compress := fs.Bool("compress", false, "zstd-compress the JSON output")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: nvskit dump [options] <partition.bin> <out.json>")
		os.Exit(2)
	}

	logger := newLogger(*verbose)
	res := decodeImage(logger, fs.Arg(0), *pageSize)

	out, err := os.Create(fs.Arg(1))
	if err != nil {
		logger.Fatal().Err(err).Msg("create output file")
	}
	if err := export.WriteJSON(out, export.NewDump(res), *compress); err != nil {
		out.Close()
		logger.Fatal().Err(err).Msg("write dump")
	}
	if err := out.Close(); err != nil {
		logger.Fatal().Err(err).Msg("close output file")
	}

	logger.Info().
		Int("records", len(res.Records)).
		Int("warnings", len(res.Warnings)).
		Str("output", fs.Arg(1)).
		Msg("dump complete")
}

func runCSV(args []string) {
	fs := flag.NewFlagSet("csv", flag.ExitOnError)
	blobDir := fs.String("blobs", "blobs", "directory for extracted blob files")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: nvskit csv [options] <in.json> <out.csv>")
		os.Exit(2)
	}

	logger := newLogger(*verbose)
	in, err := os.Open(fs.Arg(0))
	if err != nil {
		logger.Fatal().Err(err).Msg("open dump")
	}
	dump, err := export.ReadJSON(in)
	in.Close()
	if err != nil {
		logger.Fatal().Err(err).Msg("read dump")
	}

	out, err := os.Create(fs.Arg(1))
	if err != nil {
		logger.Fatal().Err(err).Msg("create output file")
	}
	if err := export.WriteCSV(out, dump.Entries, *blobDir); err != nil {
		out.Close()
		logger.Fatal().Err(err).Msg("write csv")
	}
	if err := out.Close(); err != nil {
		logger.Fatal().Err(err).Msg("close output file")
	}

	logger.Info().
		Int("records", len(dump.Entries)).
		Str("output", fs.Arg(1)).
		Str("blobs", *blobDir).
		Msg("csv complete")
}
