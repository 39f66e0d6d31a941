// Command dcl2bmp converts a directory of DCL images to BMP, PNG or QOI.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rcarmo/go-dcl/internal/config"
	"github.com/rcarmo/go-dcl/internal/convert"
	"github.com/rcarmo/go-dcl/internal/logging"
	"github.com/rcarmo/go-dcl/internal/raster"
)

const (
	appName    = "dcl2bmp"
	appVersion = "1.0.0"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configFile := fs.String("config", "", "YAML configuration file")
	format := fs.String("format", "", "output format (bmp, png, qoi)")
	workers := fs.Int("workers", 0, "number of files converted in parallel")
	pattern := fs.String("pattern", "", "input file name pattern")
	strict := fs.Bool("strict", false, "treat a format P bit stream overrun as an error")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	helpFlag := fs.Bool("help", false, "show help")
	versionFlag := fs.Bool("version", false, "show version")

	if err := fs.Parse(argv); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		showHelp(stdout)
		return exitUsage
	}

	if *helpFlag {
		showHelp(stdout)
		return exitOK
	}
	if *versionFlag {
		fmt.Fprintf(stdout, "%s %s\n", appName, appVersion)
		return exitOK
	}

	opts := config.LoadOptions{
		ConfigFile:      strings.TrimSpace(*configFile),
		Format:          strings.TrimSpace(*format),
		Workers:         *workers,
		Pattern:         strings.TrimSpace(*pattern),
		StrictStreamEnd: *strict,
		LogLevel:        strings.TrimSpace(*logLevel),
	}
	if fs.NArg() > 0 {
		opts.InputDir = fs.Arg(0)
	}
	if fs.NArg() > 1 {
		opts.OutputDir = fs.Arg(1)
	}

	cfg, err := config.LoadWithOverrides(opts)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return exitUsage
	}
	if fs.NArg() > 2 || cfg.Convert.InputDir == "" || cfg.Convert.OutputDir == "" {
		showHelp(stdout)
		return exitUsage
	}

	logging.Default().SetOutput(stderr)
	closer, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return exitError
	}
	defer closer.Close()

	outFormat, err := raster.ParseFormat(cfg.Convert.Format)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return exitUsage
	}

	conv := convert.New(convert.Options{
		Pattern:         cfg.Convert.Pattern,
		Format:          outFormat,
		Workers:         cfg.Convert.Workers,
		StrictStreamEnd: cfg.Convert.StrictStreamEnd,
	}, logging.Default())

	report, err := conv.Run(ctx, cfg.Convert.InputDir, cfg.Convert.OutputDir)
	if report != nil {
		fmt.Fprintf(stdout, "Conversion completed: %d converted, %d failed\n", report.Converted(), len(report.Failed()))
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return exitError
	}
	return exitOK
}

func showHelp(w io.Writer) {
	fmt.Fprintln(w, "DCL image converter")
	fmt.Fprintln(w, "USAGE: dcl2bmp [options] <input_directory> <output_directory>")
	fmt.Fprintln(w, "OPTIONS:")
	fmt.Fprintln(w, "  -format             Output format: bmp, png or qoi (default bmp)")
	fmt.Fprintln(w, "  -workers            Files converted in parallel (default: number of CPUs)")
	fmt.Fprintln(w, "  -pattern            Input file name pattern, case-insensitive (default *.DCL)")
	fmt.Fprintln(w, "  -strict             Treat a format P bit stream overrun as an error")
	fmt.Fprintln(w, "  -config             Load settings from a YAML file")
	fmt.Fprintln(w, "  -log-level          Set log level (debug, info, warn, error)")
	fmt.Fprintln(w, "  -version            Show version information")
	fmt.Fprintln(w, "  -help               Show this help message")
	fmt.Fprintln(w, "ENVIRONMENT VARIABLES: DCL_CONFIG_FILE, DCL_INPUT_DIR, DCL_OUTPUT_DIR, DCL_OUTPUT_FORMAT, DCL_WORKERS, LOG_LEVEL, LOG_FORMAT, LOG_FILE")
	fmt.Fprintln(w, "EXAMPLES: dcl2bmp -format png ./DCL ./out")
}
