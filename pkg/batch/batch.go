// Package batch runs the crop-and-count pipeline over a directory of
// TIFFs, one file at a time, writing a cropped TIFF and a report row for
// each file that makes it through.
package batch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abworrall/circlecrop/pkg/circle"
	"github.com/abworrall/circlecrop/pkg/report"
	"github.com/abworrall/circlecrop/pkg/roi"
	"github.com/abworrall/circlecrop/pkg/tiffio"
)

type Processor struct {
	Config

	params   circle.Params
	selected roi.IntensityRange

	croppedDir string
	debugDir   string
	report     *report.Writer

	ETA     *ETA
	Summary *Summary
}

// New checks the config and the input directory, creates the output
// folders, and starts a fresh report with just its header row.
func New(cfg Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	selected, _ := cfg.Range()

	p := &Processor{
		Config:   cfg,
		params:   cfg.CircleParams(),
		selected: selected,
		Summary:  NewSummary(),
	}

	if info, err := os.Stat(cfg.TiffDirectory); err != nil {
		return nil, fmt.Errorf("%w: tiff directory: %v", tiffio.ErrIO, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%w: tiff directory '%s' is not a directory", tiffio.ErrIO, cfg.TiffDirectory)
	}

	var err error
	if p.croppedDir, err = tiffio.AddFolderToDirectory(cfg.CroppedTiffDirectory, CroppedFolder); err != nil {
		return nil, err
	}
	if cfg.DebugOverlays {
		if p.debugDir, err = tiffio.AddFolderToDirectory(p.croppedDir, DebugFolder); err != nil {
			return nil, err
		}
	}

	reportDir, err := tiffio.AddFolderToDirectory(cfg.CsvSavePath, ReportFolder)
	if err != nil {
		return nil, err
	}
	columns := report.Columns(fmt.Sprintf("Pixels in [%d,%d]", selected.Low, selected.High))
	if p.report, err = report.Create(filepath.Join(reportDir, ReportFilename), columns); err != nil {
		return nil, fmt.Errorf("%w: %v", tiffio.ErrIO, err)
	}

	return p, nil
}

func (p *Processor) ReportFilename() string { return p.report.Filename() }

func (p *Processor) Close() error { return p.report.Close() }

// Run processes every TIFF in the input directory, in lexical order. A
// file that fails is logged and skipped; the batch carries on. The
// context is checked between files.
func (p *Processor) Run(ctx context.Context) (*Summary, error) {
	files, err := tiffio.ListTIFFs(p.TiffDirectory)
	if err != nil {
		return p.Summary, err
	}

	p.ETA = NewETA(len(files))
	if p.Verbosity > 0 {
		log.Printf("Found %d TIFF files in %s\n", len(files), p.TiffDirectory)
	}

	for _, filename := range files {
		if err := ctx.Err(); err != nil {
			log.Printf("Stopping early, %d of %d files done: %v\n", p.Summary.Seen, len(files), err)
			return p.Summary, err
		}

		name := filepath.Base(filename)
		log.Printf("Estimated time remaining: %s\n", p.ETA)
		log.Printf("Working on: %s\n", name)

		res := p.ProcessFile(filename)
		p.ETA.FileDone(res.Elapsed, res.OK())
		p.Summary.Add(res)

		if !res.OK() {
			log.Printf("ERROR: %s in %s: %v\n", FailureKind(res.Err), name, res.Err)
			continue
		}
		log.Printf("Finished: %s\n", name)
	}

	return p.Summary, nil
}

// ProcessFile takes one file all the way through the pipeline. The
// cropped TIFF is only written once the counts are known to be good, so
// a failed file leaves nothing behind apart from debug output.
func (p *Processor) ProcessFile(filename string) FileResult {
	res := FileResult{
		SourcePath: filename,
		OutputPath: filepath.Join(p.croppedDir, tiffio.ModifiedFilename(filename, CroppedSuffix)),
		Stage:      Pending,
	}
	start := time.Now()
	fail := func(err error) FileResult {
		res.Elapsed = time.Since(start)
		return res.fail(err)
	}

	res.Stage = Detecting
	frame, err := tiffio.LoadTIFF(filename)
	if err != nil {
		return fail(err)
	}
	res.Meta = frame.Meta
	if p.Verbosity > 0 && !frame.Meta.IsZero() {
		log.Printf("%s: %s\n", filepath.Base(filename), frame.Meta)
	}

	res.Candidates, err = circle.Detect(frame.Image, p.params)
	if err != nil {
		return fail(err)
	}
	c, selectErr := circle.Select(res.Candidates, p.params.EdgeBuffer)
	if p.DebugOverlays {
		p.writeDebug(frame, res.Candidates, c, selectErr == nil)
	}
	if selectErr != nil {
		return fail(selectErr)
	}
	res.Circle = c
	if p.Verbosity > 0 {
		log.Printf("%s: %s\n", filepath.Base(filename), c)
	}

	res.Stage = Cropping
	cropped := roi.Crop(frame.Image, c.Center(), c.Radius)

	res.Stage = Counting
	if res.Measurement, err = roi.Measure(cropped, p.selected); err != nil {
		return fail(err)
	}
	if err := tiffio.WriteTIFF(cropped, res.OutputPath); err != nil {
		return fail(err)
	}
	res.Elapsed = time.Since(start)

	row := report.Row{
		SourcePath:     res.SourcePath,
		OutputPath:     res.OutputPath,
		CenterX:        c.X,
		CenterY:        c.Y,
		Radius:         c.Radius,
		SelectedPixels: res.Measurement.Selected,
		TotalPixels:    res.Measurement.Total,
		Ratio:          res.Measurement.Ratio,
		Elapsed:        res.Elapsed,
	}
	if err := p.report.Append(row); err != nil {
		return fail(fmt.Errorf("%w: %v", tiffio.ErrIO, err))
	}

	res.Stage = Reported
	return res
}

// writeDebug dumps the overlay, and at higher verbosity the Hough
// ray support grid. Problems here are logged, and never fail the file.
func (p *Processor) writeDebug(frame tiffio.Frame, candidates []circle.Circle, c circle.Circle, found bool) {
	base := strings.TrimSuffix(filepath.Base(frame.LoadFilename), filepath.Ext(frame.LoadFilename))

	var crop *circle.Circle
	if found {
		crop = &c
	}
	title := fmt.Sprintf("%s: %d candidate(s)", filepath.Base(frame.LoadFilename), len(candidates))
	overlay := filepath.Join(p.debugDir, base+"-overlay.png")
	if err := WriteOverlay(frame.Image, candidates, crop, title, overlay); err != nil {
		log.Printf("debug overlay %s: %v\n", overlay, err)
	}

	if p.Verbosity >= 2 {
		acc := filepath.Join(p.debugDir, base+"-accumulator.png")
		if err := circle.DumpAccumulator(frame.Image, p.params, base, acc); err != nil {
			log.Printf("debug accumulator %s: %v\n", acc, err)
		}
	}
}
