// Package tiffio reads and writes the TIFF files that flow through a batch,
// and has the small path helpers that decide where outputs go.
package tiffio

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"
)

var ErrIO = errors.New("i/o error")

// A Frame is an image loaded from disk, with whatever metadata came with it.
type Frame struct {
	LoadFilename string
	Image        image.Image
	Meta         Metadata
}

// Metadata is read from the EXIF block, if the TIFF has one. Scientific
// cameras often don't, so every field is optional.
type Metadata struct {
	Model       string
	Software    string
	Description string
	Taken       time.Time
}

func (m Metadata) IsZero() bool { return m == Metadata{} }

func (m Metadata) String() string {
	if m.IsZero() {
		return "Metadata{}"
	}
	s := fmt.Sprintf("Metadata{model=%q", m.Model)
	if m.Software != "" {
		s += fmt.Sprintf(", software=%q", m.Software)
	}
	if m.Description != "" {
		s += fmt.Sprintf(", desc=%q", m.Description)
	}
	if !m.Taken.IsZero() {
		s += fmt.Sprintf(", taken=%s", m.Taken.Format(time.RFC3339))
	}
	return s + "}"
}

func LoadTIFF(filename string) (Frame, error) {
	f := Frame{LoadFilename: filename}

	// First, try to load the EXIF metadata. It is fine for it to be missing.
	if reader, err := os.Open(filename); err != nil {
		return f, fmt.Errorf("%w: open+r exif '%s': %v", ErrIO, filename, err)
	} else {
		f.Meta = readMetadata(reader)
		reader.Close()
	}

	// Re-open the file, now for the image data
	reader, err := os.Open(filename)
	if err != nil {
		return f, fmt.Errorf("%w: open+r img '%s': %v", ErrIO, filename, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return f, fmt.Errorf("%w: tiff loading '%s': %v", ErrIO, filename, err)
	}
	f.Image = img

	return f, nil
}

func readMetadata(reader *os.File) Metadata {
	m := Metadata{}

	ex, err := exif.Decode(reader)
	if err != nil {
		return m
	}

	if tag, err := ex.Get(exif.Model); err == nil {
		m.Model, _ = tag.StringVal()
	}
	if tag, err := ex.Get(exif.Software); err == nil {
		m.Software, _ = tag.StringVal()
	}
	if tag, err := ex.Get(exif.ImageDescription); err == nil {
		m.Description, _ = tag.StringVal()
	}
	if t, err := ex.DateTime(); err == nil {
		m.Taken = t
	}

	m.Model = strings.TrimSpace(m.Model)
	m.Software = strings.TrimSpace(m.Software)
	m.Description = strings.TrimSpace(m.Description)

	return m
}

// WriteTIFF saves the image with deflate compression. An *image.NRGBA is
// written with unassociated alpha, so the RGB under a transparent pixel
// survives.
func WriteTIFF(img image.Image, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("%w: open+w '%s': %v", ErrIO, filename, err)
	}

	if err := tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		writer.Close()
		os.Remove(filename)
		return fmt.Errorf("%w: tiff encoding '%s': %v", ErrIO, filename, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("%w: close '%s': %v", ErrIO, filename, err)
	}
	return nil
}

// IsTIFF is true for .tif and .tiff, in any case.
func IsTIFF(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		return true
	}
	return false
}

// ListTIFFs returns the TIFF files directly inside dir, in lexical order.
// Subdirectories are not descended into.
func ListTIFFs(dir string) ([]string, error) {
	contents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: readdir %s: %v", ErrIO, dir, err)
	}

	files := []string{}
	for _, content := range contents {
		if content.IsDir() || !IsTIFF(content.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, content.Name()))
	}

	sort.Strings(files)
	return files, nil
}

// ModifiedFilename inserts a suffix between the base name and its
// extension: "a/b/img.tif" with "_crop" gives "img_crop.tif".
func ModifiedFilename(filename, suffix string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + suffix + ext
}

// AddFolderToDirectory makes sure dir/folder exists, and returns its path.
func AddFolderToDirectory(dir, folder string) (string, error) {
	path := filepath.Join(dir, folder)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("%w: mkdir %s: %v", ErrIO, path, err)
	}
	return path, nil
}
