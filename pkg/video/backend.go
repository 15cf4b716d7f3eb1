package video

import (
	"github.com/tauraamui/edgecam/pkg/configdef"
	"github.com/tauraamui/edgecam/pkg/video/videobackend"
	"github.com/tauraamui/edgecam/pkg/video/videobackend/opencvbackend"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const (
	MockBackendName   = "mock"
	OpenCVBackendName = "opencv"
)

// ResolveBackend builds the sensor backend named by the config.
func ResolveBackend(values configdef.Values) (videobackend.Backend, error) {
	switch values.Backend {
	case "", MockBackendName:
		return videobackend.Mock(videobackend.MockSettings{
			FPS:        values.Mock.FPS,
			Label:      values.Mock.Label,
			RowPadding: values.Mock.RowPadding,
		}), nil
	case OpenCVBackendName:
		if len(values.OpenCVDevices) == 0 {
			return nil, xerror.Errorf("no devices configured for %s backend: %w", OpenCVBackendName, videoframe.ErrDeviceUnavailable)
		}
		return opencvbackend.New(openCVSources(values.OpenCVDevices)), nil
	}
	return nil, xerror.Errorf("unknown video backend [%s]", values.Backend)
}

func openCVSources(devices []configdef.OpenCVDevice) []opencvbackend.Source {
	sources := make([]opencvbackend.Source, 0, len(devices))
	for _, d := range devices {
		name := d.Name
		if len(name) == 0 {
			name = "opencv device " + d.ID
		}
		sources = append(sources, opencvbackend.Source{
			ID:     d.ID,
			Name:   name,
			Facing: videobackend.ParseFacing(d.Facing),
			Addr:   d.ID,
			Sizes:  Resolutions(d.Sizes),
		})
	}
	return sources
}

func Resolutions(sizes []configdef.Resolution) []videoframe.Dimensions {
	dims := make([]videoframe.Dimensions, 0, len(sizes))
	for _, s := range sizes {
		dims = append(dims, videoframe.Dimensions{W: s.Width, H: s.Height})
	}
	return dims
}
