// Package convert runs DCL decoding over whole directories.
package convert

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/rcarmo/go-dcl/internal/codec"
	"github.com/rcarmo/go-dcl/internal/logging"
	"github.com/rcarmo/go-dcl/internal/raster"
)

// zstdSuffix marks inputs stored as a zstd frame around the DCL file.
const zstdSuffix = ".zst"

// Options configures a Converter.
type Options struct {
	Pattern         string
	Format          raster.Format
	Workers         int
	StrictStreamEnd bool
}

// Converter decodes DCL files and writes standard images.
type Converter struct {
	opts Options
	log  *logging.Logger
}

// New returns a Converter. Zero fields in opts take the defaults "*.DCL",
// BMP output and one worker. A nil logger means the default logger.
func New(opts Options, log *logging.Logger) *Converter {
	if opts.Pattern == "" {
		opts.Pattern = "*.DCL"
	}
	if opts.Format == "" {
		opts.Format = raster.FormatBMP
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if log == nil {
		log = logging.Default()
	}
	return &Converter{opts: opts, log: log}
}

// Result is the outcome of converting one file.
type Result struct {
	Name    string
	Output  string
	Tag     codec.Format
	Err     error
	Elapsed time.Duration
}

// OK reports whether the file converted.
func (r Result) OK() bool {
	return r.Err == nil
}

// Report collects the results of a batch, sorted by file name.
type Report struct {
	Results []Result
}

// Converted returns the number of files that converted.
func (r *Report) Converted() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Run converts every matching file in inDir into outDir. Per-file failures
// are logged and recorded in the report; the returned error covers only
// problems with the directories themselves or cancellation of ctx.
func (c *Converter) Run(ctx context.Context, inDir, outDir string) (*Report, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil { // #nosec G301
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	files, err := c.List(inDir)
	if err != nil {
		return nil, err
	}
	c.log.Debug("found %d files in %s", len(files), inDir)

	jobs := make(chan string)
	results := make(chan Result, len(files))

	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- c.ConvertFile(path, outDir)
			}
		}()
	}

	var cancelErr error
	for _, path := range files {
		if cancelErr = ctx.Err(); cancelErr != nil {
			break
		}
		select {
		case <-ctx.Done():
			cancelErr = ctx.Err()
		case jobs <- path:
		}
		if cancelErr != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	report := &Report{}
	for res := range results {
		report.Results = append(report.Results, res)
	}
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Name < report.Results[j].Name
	})

	if cancelErr != nil {
		c.log.Warn("conversion interrupted after %d of %d files", len(report.Results), len(files))
		return report, fmt.Errorf("conversion interrupted: %w", cancelErr)
	}
	c.log.Info("processed %d files: %d converted, %d failed", len(report.Results), report.Converted(), len(report.Failed()))
	return report, nil
}

// List returns the regular files in dir whose names match the pattern,
// ignoring case, with or without a trailing ".zst".
func (c *Converter) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	pattern := strings.ToLower(c.opts.Pattern)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", c.opts.Pattern, err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := strings.ToLower(e.Name())
		name = strings.TrimSuffix(name, zstdSuffix)
		if ok, _ := filepath.Match(pattern, name); ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ConvertFile decodes the file at path and writes <stem>.<ext> into outDir.
// The error is carried in the result and logged, never returned.
func (c *Converter) ConvertFile(path, outDir string) Result {
	start := time.Now()
	name := filepath.Base(path)
	res := Result{Name: name}

	res.Output, res.Tag, res.Err = c.convert(path, outDir)
	res.Elapsed = time.Since(start)

	if res.Err != nil {
		c.log.Error("error converting %s: %v", name, res.Err)
	} else {
		c.log.Info("converted %s (format %s, %s)", name, res.Tag, res.Elapsed.Round(time.Millisecond))
	}
	return res
}

func (c *Converter) convert(path, outDir string) (string, codec.Format, error) {
	block, err := ReadFile(path)
	if err != nil {
		return "", 0, err
	}

	tag, err := codec.DetectFormat(block)
	if err != nil {
		return "", tag, err
	}

	pixels, err := codec.Decode(block, &codec.Options{StrictStreamEnd: c.opts.StrictStreamEnd})
	if err != nil {
		return "", tag, err
	}

	img, err := codec.ToImage(pixels)
	if err != nil {
		return "", tag, err
	}

	out := filepath.Join(outDir, Stem(path)+c.opts.Format.Extension())
	if err := writeImage(out, img, c.opts.Format); err != nil {
		return "", tag, err
	}
	return out, tag, nil
}

// ReadFile reads one DCL block from path, unwrapping zstd when the name
// ends in ".zst".
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 -- paths come from the directory listing
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), zstdSuffix) {
		dec, err := zstd.NewReader(f,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
		)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	return codec.ReadBlock(r)
}

// Unwrap returns data with any zstd frame removed.
func Unwrap(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, make([]byte, 0, codec.BlockSize))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Stem returns the file name without directory, ".zst" and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(base), zstdSuffix) {
		base = base[:len(base)-len(zstdSuffix)]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// writeImage encodes img into path, removing a partial file on failure.
func writeImage(path string, img image.Image, f raster.Format) (err error) {
	out, err := os.Create(path) // #nosec G304 -- output directory is operator-supplied
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	w := bufio.NewWriter(out)
	if err := raster.Encode(w, img, f); err != nil {
		return err
	}
	return w.Flush()
}
