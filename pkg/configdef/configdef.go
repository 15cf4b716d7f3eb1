package configdef

import (
	"errors"
	"fmt"

	"gopkg.in/dealancer/validate.v2"
)

type Resolution struct {
	Width  int `json:"width" validate:"gte=2"`
	Height int `json:"height" validate:"gte=2"`
}

type Display struct {
	Kind         string `json:"kind" validate:"one_of=software,window"`
	RefreshHz    int    `json:"refresh_hz" validate:"gte=1 & lte=240"`
	Width        int    `json:"width" validate:"gte=1"`
	Height       int    `json:"height" validate:"gte=1"`
	SnapshotPath string `json:"snapshot_path"`
}

type Mock struct {
	FPS        int    `json:"fps" validate:"gte=1 & lte=120"`
	Label      string `json:"label"`
	RowPadding int    `json:"row_padding" validate:"gte=0 & lte=256"`
}

type OpenCVDevice struct {
	ID     string       `json:"id" validate:"empty=false"`
	Name   string       `json:"name"`
	Facing string       `json:"facing" validate:"one_of=back,front,external"`
	Sizes  []Resolution `json:"sizes"`
}

type Telemetry struct {
	RecordTimings bool   `json:"record_timings"`
	DatabasePath  string `json:"database_path"`
	HistogramPath string `json:"histogram_path"`
	Window        int    `json:"window" validate:"gte=1"`
	ReportBuffer  int    `json:"report_buffer" validate:"gte=1"`
}

type Values struct {
	Debug              bool           `json:"debug"`
	LogLevel           string         `json:"log_level" validate:"one_of=silent,info,warn,debug"`
	Backend            string         `json:"backend" validate:"one_of=mock,opencv"`
	Facing             string         `json:"facing" validate:"one_of=back,front,external"`
	FallbackResolution Resolution     `json:"fallback_resolution"`
	MaxBuffers         int            `json:"max_buffers" validate:"gte=2 & lte=8"`
	ReleaseTimeoutMs   int            `json:"release_timeout_ms" validate:"gte=100 & lte=60000"`
	Processor          string         `json:"processor" validate:"one_of=luma,opencv"`
	ProcessingMode     string         `json:"processing_mode" validate:"one_of=passthrough,transformed"`
	Display            Display        `json:"display"`
	Mock               Mock           `json:"mock"`
	OpenCVDevices      []OpenCVDevice `json:"opencv_devices"`
	Telemetry          Telemetry      `json:"telemetry"`
	Interactive        bool           `json:"interactive"`
}

// RunValidate checks field tags first, then rules spanning fields.
func (v Values) RunValidate() error {
	if err := validate.Validate(&v); err != nil {
		return err
	}
	return v.validate()
}

func (v Values) validate() error {
	const validationErrorHeader = "validation failed: %w"
	if v.FallbackResolution.Width%2 != 0 || v.FallbackResolution.Height%2 != 0 {
		return fmt.Errorf(validationErrorHeader, errors.New("fallback resolution must have even dimensions"))
	}
	if v.Backend == "opencv" && len(v.OpenCVDevices) == 0 {
		return fmt.Errorf(validationErrorHeader, errors.New("opencv backend needs at least one device"))
	}
	if hasDupDeviceIDs(v.OpenCVDevices) {
		return fmt.Errorf(validationErrorHeader, errors.New("opencv device ids must be unique"))
	}
	return nil
}

func hasDupDeviceIDs(devices []OpenCVDevice) bool {
	seen := map[string]struct{}{}
	for _, d := range devices {
		if _, ok := seen[d.ID]; ok {
			return true
		}
		seen[d.ID] = struct{}{}
	}
	return false
}
