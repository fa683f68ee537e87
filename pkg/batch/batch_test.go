package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/abworrall/circlecrop/pkg/roi"
	"github.com/abworrall/circlecrop/pkg/tiffio"
)

// createDiskImage is a black frame with a filled gray disk in it
func createDiskImage(width, height, cx, cy, radius int, gray uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{0, 0, 0, 0xFF}
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= radius*radius {
				c = color.NRGBA{gray, gray, gray, 0xFF}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writeTestTIFF(t *testing.T, dir, name string, img image.Image) {
	t.Helper()
	if err := tiffio.WriteTIFF(img, filepath.Join(dir, name)); err != nil {
		t.Fatal(err)
	}
}

func writeTestFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) Config {
	root := t.TempDir()
	c := NewConfig()
	c.TiffDirectory = filepath.Join(root, "in")
	c.CroppedTiffDirectory = filepath.Join(root, "out")
	c.CsvSavePath = filepath.Join(root, "csv")
	c.CircleMinDist = 50
	c.CircleMinRadius = 20
	c.HoughDP = 1
	c.CircleEdgeBuffer = 10

	if err := os.MkdirAll(c.TiffDirectory, 0755); err != nil {
		t.Fatal(err)
	}
	return c
}

func readReport(t *testing.T, p *Processor) [][]string {
	t.Helper()
	f, err := os.Open(p.ReportFilename())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestRun_SkipsFailuresAndIneligibleFiles(t *testing.T) {
	cfg := testConfig(t)
	disk := createDiskImage(300, 300, 150, 150, 100, 150)
	writeTestTIFF(t, cfg.TiffDirectory, "b_disk.tif", disk)
	writeTestTIFF(t, cfg.TiffDirectory, "a_disk.TIF", disk)
	writeTestTIFF(t, cfg.TiffDirectory, "c_black.tif", image.NewNRGBA(image.Rect(0, 0, 200, 200)))
	writeTestFile(t, cfg.TiffDirectory, "notes.txt")
	writeTestFile(t, cfg.TiffDirectory, "d.png")

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Seen != 3 || summary.Reported != 2 {
		t.Errorf("summary: seen %d, reported %d; want 3, 2", summary.Seen, summary.Reported)
	}
	if summary.Failures["NoCircleDetected"] != 1 {
		t.Errorf("failures = %v", summary.Failures)
	}
	if !p.ETA.Known() {
		t.Error("ETA should have an estimate after a successful file")
	}

	records := readReport(t, p)
	if len(records) != 3 {
		t.Fatalf("report has %d records, want header + 2", len(records))
	}
	if records[0][5] != "Pixels in [40,200]" {
		t.Errorf("header = %v", records[0])
	}

	croppedDir := filepath.Join(cfg.CroppedTiffDirectory, CroppedFolder)
	wantRows := []struct{ src, out string }{
		{"a_disk.TIF", "a_disk_crop.TIF"},
		{"b_disk.tif", "b_disk_crop.tif"},
	}
	for i, want := range wantRows {
		row := records[i+1]
		if row[0] != filepath.Join(cfg.TiffDirectory, want.src) {
			t.Errorf("row %d source = %q, want %s", i, row[0], want.src)
		}
		if row[1] != filepath.Join(croppedDir, want.out) {
			t.Errorf("row %d output = %q, want %s", i, row[1], want.out)
		}
		if row[7] != "1" {
			t.Errorf("row %d ratio = %q, want 1 (whole disk is gray 150)", i, row[7])
		}
		if _, err := os.Stat(filepath.Join(croppedDir, want.out)); err != nil {
			t.Errorf("cropped TIFF missing: %v", err)
		}
	}

	if _, err := os.Stat(filepath.Join(croppedDir, "c_black_crop.tif")); !os.IsNotExist(err) {
		t.Errorf("failed file should have no output, stat err = %v", err)
	}
}

func TestProcessFile_CroppedOutput(t *testing.T) {
	cfg := testConfig(t)
	writeTestTIFF(t, cfg.TiffDirectory, "disk.tif", createDiskImage(300, 300, 150, 150, 100, 150))

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	res := p.ProcessFile(filepath.Join(cfg.TiffDirectory, "disk.tif"))
	if !res.OK() {
		t.Fatalf("ProcessFile failed at %s: %v", res.FailedAt, res.Err)
	}

	c := res.Circle
	if c.Radius < 87 || c.Radius > 93 {
		t.Errorf("radius = %d, want about 100-10", c.Radius)
	}
	if res.Measurement.Total == 0 || res.Measurement.Selected != res.Measurement.Total {
		t.Errorf("measurement = %+v", res.Measurement)
	}

	f, err := tiffio.LoadTIFF(res.OutputPath)
	if err != nil {
		t.Fatalf("loading cropped output: %v", err)
	}
	out, ok := f.Image.(*image.NRGBA)
	if !ok {
		t.Fatalf("cropped output is a %T", f.Image)
	}
	if out.NRGBAAt(c.X, c.Y).A != 0xFF {
		t.Error("center of crop should be opaque")
	}
	if out.NRGBAAt(0, 0).A != 0 {
		t.Error("corner of crop should be transparent")
	}

	// The saved crop counts the same as the in-memory one
	m, err := roi.Measure(out, roi.SelectedRange)
	if err != nil || m != res.Measurement {
		t.Errorf("saved crop measures %+v (%v), want %+v", m, err, res.Measurement)
	}
}

func TestProcessFile_EdgeBufferSwallowsCircle(t *testing.T) {
	cfg := testConfig(t)
	cfg.CircleEdgeBuffer = 200
	writeTestTIFF(t, cfg.TiffDirectory, "disk.tif", createDiskImage(300, 300, 150, 150, 100, 150))

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	res := p.ProcessFile(filepath.Join(cfg.TiffDirectory, "disk.tif"))
	if !errors.Is(res.Err, roi.ErrEmptyRegion) {
		t.Fatalf("expected ErrEmptyRegion, got %v", res.Err)
	}
	if res.Stage != Failed || res.FailedAt != Counting {
		t.Errorf("stage = %s, failed at %s", res.Stage, res.FailedAt)
	}
	if _, err := os.Stat(res.OutputPath); !os.IsNotExist(err) {
		t.Errorf("no output expected for an empty region, stat err = %v", err)
	}
	if p.report.Rows() != 0 {
		t.Errorf("report has %d rows, want 0", p.report.Rows())
	}
}

func TestProcessFile_BadTIFF(t *testing.T) {
	cfg := testConfig(t)
	writeTestFile(t, cfg.TiffDirectory, "broken.tif")

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	res := p.ProcessFile(filepath.Join(cfg.TiffDirectory, "broken.tif"))
	if FailureKind(res.Err) != "IOError" || res.FailedAt != Detecting {
		t.Errorf("got %s at %s: %v", FailureKind(res.Err), res.FailedAt, res.Err)
	}
}

func TestRun_DebugOverlays(t *testing.T) {
	cfg := testConfig(t)
	cfg.DebugOverlays = true
	cfg.Verbosity = 2
	writeTestTIFF(t, cfg.TiffDirectory, "disk.tif", createDiskImage(200, 200, 100, 100, 60, 150))
	writeTestTIFF(t, cfg.TiffDirectory, "black.tif", image.NewNRGBA(image.Rect(0, 0, 100, 100)))

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	debugDir := filepath.Join(cfg.CroppedTiffDirectory, CroppedFolder, DebugFolder)
	for _, name := range []string{"disk-overlay.png", "disk-accumulator.png", "black-overlay.png"} {
		if _, err := os.Stat(filepath.Join(debugDir, name)); err != nil {
			t.Errorf("debug output %s missing: %v", name, err)
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	writeTestTIFF(t, cfg.TiffDirectory, "disk.tif", createDiskImage(300, 300, 150, 150, 100, 150))

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if summary.Seen != 0 {
		t.Errorf("no files should have been processed, saw %d", summary.Seen)
	}
	if records := readReport(t, p); len(records) != 1 {
		t.Errorf("report has %d records, want just the header", len(records))
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.HoughDP = 0
	if _, err := New(cfg); err == nil {
		t.Error("expected an error for hough_dp 0")
	}
}

func TestNew_MissingInputDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.TiffDirectory = filepath.Join(cfg.TiffDirectory, "nope")

	if _, err := New(cfg); !errors.Is(err, tiffio.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}

	// Nothing should have been written
	for _, dir := range []string{cfg.CroppedTiffDirectory, cfg.CsvSavePath} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("%s should not exist, got %v", dir, err)
		}
	}
}

func TestRun_InputDirRemoved(t *testing.T) {
	cfg := testConfig(t)

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if err := os.Remove(cfg.TiffDirectory); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background()); !errors.Is(err, tiffio.ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
}
