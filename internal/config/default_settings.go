package config

import "github.com/tauraamui/edgecam/pkg/configdef"

const (
	defaultMaxBuffers       = 3
	defaultReleaseTimeoutMs = 2000
	defaultRefreshHz        = 60
	defaultMockFPS          = 30
	defaultTimingWindow     = 600
	defaultReportBuffer     = 64
)

func defaultValues() configdef.Values {
	return configdef.Values{
		LogLevel:           "warn",
		Backend:            "mock",
		Facing:             "back",
		FallbackResolution: configdef.Resolution{Width: 1280, Height: 720},
		MaxBuffers:         defaultMaxBuffers,
		ReleaseTimeoutMs:   defaultReleaseTimeoutMs,
		Processor:          "luma",
		ProcessingMode:     "passthrough",
		Display: configdef.Display{
			Kind:      "software",
			RefreshHz: defaultRefreshHz,
			Width:     1280,
			Height:    720,
		},
		Mock: configdef.Mock{FPS: defaultMockFPS},
		Telemetry: configdef.Telemetry{
			Window:       defaultTimingWindow,
			ReportBuffer: defaultReportBuffer,
		},
		OpenCVDevices: []configdef.OpenCVDevice{},
	}
}

// applyDefaults fills fields a config file explicitly zeroed or blanked.
func applyDefaults(values *configdef.Values) {
	defaults := defaultValues()
	if values.LogLevel == "" {
		values.LogLevel = defaults.LogLevel
	}
	if values.Backend == "" {
		values.Backend = defaults.Backend
	}
	if values.Facing == "" {
		values.Facing = defaults.Facing
	}
	if values.FallbackResolution == (configdef.Resolution{}) {
		values.FallbackResolution = defaults.FallbackResolution
	}
	if values.MaxBuffers == 0 {
		values.MaxBuffers = defaults.MaxBuffers
	}
	if values.ReleaseTimeoutMs == 0 {
		values.ReleaseTimeoutMs = defaults.ReleaseTimeoutMs
	}
	if values.Processor == "" {
		values.Processor = defaults.Processor
	}
	if values.ProcessingMode == "" {
		values.ProcessingMode = defaults.ProcessingMode
	}
	if values.Display.Kind == "" {
		values.Display.Kind = defaults.Display.Kind
	}
	if values.Display.RefreshHz == 0 {
		values.Display.RefreshHz = defaults.Display.RefreshHz
	}
	if values.Display.Width == 0 || values.Display.Height == 0 {
		values.Display.Width, values.Display.Height = defaults.Display.Width, defaults.Display.Height
	}
	if values.Mock.FPS == 0 {
		values.Mock.FPS = defaults.Mock.FPS
	}
	if values.Telemetry.Window == 0 {
		values.Telemetry.Window = defaults.Telemetry.Window
	}
	if values.Telemetry.ReportBuffer == 0 {
		values.Telemetry.ReportBuffer = defaults.Telemetry.ReportBuffer
	}
	for i := range values.OpenCVDevices {
		if values.OpenCVDevices[i].Facing == "" {
			values.OpenCVDevices[i].Facing = "external"
		}
	}
}
