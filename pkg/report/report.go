// Package report appends one CSV row per processed image.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// A Row is the summary of one successfully processed image.
type Row struct {
	SourcePath     string
	OutputPath     string
	CenterX        int
	CenterY        int
	Radius         int
	SelectedPixels int
	TotalPixels    int
	Ratio          float64
	Elapsed        time.Duration
}

func (r Row) Record() []string {
	return []string{
		r.SourcePath,
		r.OutputPath,
		strconv.Itoa(r.CenterX),
		strconv.Itoa(r.CenterY),
		strconv.Itoa(r.Radius),
		strconv.Itoa(r.SelectedPixels),
		strconv.Itoa(r.TotalPixels),
		strconv.FormatFloat(r.Ratio, 'f', -1, 64),
		FormatElapsed(r.Elapsed),
	}
}

// Columns returns the header row; the selected range label is the only
// part that varies.
func Columns(selectedLabel string) []string {
	return []string{
		"Original Image FileName",
		"Cropped Image FileName",
		"CenterX",
		"CenterY",
		"Radius",
		selectedLabel,
		"Pixels",
		"Pixel Ratio",
		"time",
	}
}

// A Writer is an append-only CSV sink. Each row is flushed as it is
// written, so a crash mid-batch leaves every finished row on disk.
type Writer struct {
	mu       sync.Mutex
	filename string
	file     *os.File
	csv      *csv.Writer
	rows     int
}

// Create truncates filename and writes the header row.
func Create(filename string, columns []string) (*Writer, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("open+w '%s': %v", filename, err)
	}

	w := &Writer{filename: filename, file: f, csv: csv.NewWriter(f)}
	if err := w.write(columns); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) Append(r Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.write(r.Record()); err != nil {
		return err
	}
	w.rows++
	return nil
}

func (w *Writer) write(record []string) error {
	if w.file == nil {
		return fmt.Errorf("write '%s': already closed", w.filename)
	}
	if err := w.csv.Write(record); err != nil {
		return fmt.Errorf("write '%s': %v", w.filename, err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush '%s': %v", w.filename, err)
	}
	return nil
}

// Rows is how many rows have been appended, not counting the header.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

func (w *Writer) Filename() string { return w.filename }

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	w.csv.Flush()
	err := w.csv.Error()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	return err
}

// FormatElapsed renders a duration as H:MM:SS.ffffff, with a "N day(s), "
// prefix once it goes past 24h. The microseconds are dropped when zero.
func FormatElapsed(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}

	us := d.Microseconds()
	days := us / (24 * 3600 * 1e6)
	us -= days * 24 * 3600 * 1e6
	h := us / (3600 * 1e6)
	us -= h * 3600 * 1e6
	m := us / (60 * 1e6)
	us -= m * 60 * 1e6
	s := us / 1e6
	us -= s * 1e6

	str := fmt.Sprintf("%d:%02d:%02d", h, m, s)
	if us != 0 {
		str += fmt.Sprintf(".%06d", us)
	}
	switch {
	case days == 1:
		str = "1 day, " + str
	case days > 1:
		str = fmt.Sprintf("%d days, %s", days, str)
	}
	if neg {
		str = "-" + str
	}
	return str
}
