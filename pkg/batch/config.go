package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"log"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/circlecrop/pkg/circle"
	"github.com/abworrall/circlecrop/pkg/roi"
)

var ErrConfigMissingKey = errors.New("config missing key")

// Where outputs go, under the configured directories.
const (
	CroppedFolder  = "cropped_TIFFs"
	DebugFolder    = "debug"
	ReportFolder   = "csv_report"
	ReportFilename = "report.csv"
	CroppedSuffix  = "_crop"
)

// RequiredKeys must be present in every config file; there are no
// sensible defaults for them.
var RequiredKeys = []string{
	"tiff_directory",
	"cropped_tiff_directory",
	"csv_save_path",
	"circle_min_dist",
	"circle_min_radius",
	"hough_dp",
}

type Config struct {
	TiffDirectory        string  `yaml:"tiff_directory" json:"tiff_directory"`
	CroppedTiffDirectory string  `yaml:"cropped_tiff_directory" json:"cropped_tiff_directory"`
	CsvSavePath          string  `yaml:"csv_save_path" json:"csv_save_path"`
	CircleMinDist        float64 `yaml:"circle_min_dist" json:"circle_min_dist"`
	CircleMinRadius      int     `yaml:"circle_min_radius" json:"circle_min_radius"`
	HoughDP              float64 `yaml:"hough_dp" json:"hough_dp"`

	CircleEdgeBuffer int     `yaml:"circle_edge_buffer" json:"circle_edge_buffer"` // dark annulus to trim off the detected radius
	CircleMaxRadius  int     `yaml:"circle_max_radius" json:"circle_max_radius"`   // 0 means no limit
	HoughParam1      float64 `yaml:"hough_param1" json:"hough_param1"`             // canny upper threshold
	HoughParam2      float64 `yaml:"hough_param2" json:"hough_param2"`             // accumulator threshold
	HoughBlurSigma   float64 `yaml:"hough_blur_sigma" json:"hough_blur_sigma"`
	SelectedRange    []int   `yaml:"selected_range,flow" json:"selected_range"` // [low, high)

	Verbosity     int  `yaml:"verbosity" json:"verbosity"`
	DebugOverlays bool `yaml:"debug_overlays" json:"debug_overlays"`
}

func NewConfig() Config {
	p := circle.DefaultParams()
	return Config{
		CircleEdgeBuffer: p.EdgeBuffer,
		HoughParam1:      p.CannyThreshold,
		HoughParam2:      p.AccumulatorThreshold,
		HoughBlurSigma:   p.BlurSigma,
		SelectedRange:    []int{roi.SelectedRange.Low, roi.SelectedRange.High},
	}
}

func LoadConfig(filename string) (Config, error) {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %v", filename, err)
	}

	c, err := ConfigFromYaml(contents)
	if err != nil {
		return c, fmt.Errorf("config %s: %w", filename, err)
	}
	return c, nil
}

// ConfigFromYaml parses a YAML config. Older JSON configs are accepted
// too.
func ConfigFromYaml(b []byte) (Config, error) {
	unmarshal := yaml.Unmarshal
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '{' {
		unmarshal = json.Unmarshal
	}

	present := map[string]interface{}{}
	if err := unmarshal(b, &present); err != nil {
		return Config{}, fmt.Errorf("parse: %v", err)
	}
	for _, key := range RequiredKeys {
		if _, exists := present[key]; !exists {
			return Config{}, fmt.Errorf("%w '%s'", ErrConfigMissingKey, key)
		}
	}

	c := NewConfig()
	if err := unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse: %v", err)
	}

	return c, c.Validate()
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

func (c Config) Validate() error {
	switch {
	case c.TiffDirectory == "":
		return fmt.Errorf("tiff_directory is empty")
	case c.CroppedTiffDirectory == "":
		return fmt.Errorf("cropped_tiff_directory is empty")
	case c.CsvSavePath == "":
		return fmt.Errorf("csv_save_path is empty")
	}

	if _, err := c.Range(); err != nil {
		return err
	}
	return c.CircleParams().Validate()
}

func (c Config) CircleParams() circle.Params {
	return circle.Params{
		EdgeBuffer:           c.CircleEdgeBuffer,
		DP:                   c.HoughDP,
		MinDist:              c.CircleMinDist,
		MinRadius:            c.CircleMinRadius,
		MaxRadius:            c.CircleMaxRadius,
		CannyThreshold:       c.HoughParam1,
		AccumulatorThreshold: c.HoughParam2,
		BlurSigma:            c.HoughBlurSigma,
		Verbosity:            c.Verbosity,
	}
}

// Range is the intensity range whose pixels get counted.
func (c Config) Range() (roi.IntensityRange, error) {
	if len(c.SelectedRange) != 2 {
		return roi.IntensityRange{}, fmt.Errorf("selected_range should be [low, high], got %v", c.SelectedRange)
	}
	r := roi.IntensityRange{Low: c.SelectedRange[0], High: c.SelectedRange[1]}
	return r, r.Validate()
}
