package video_test

import (
	"errors"
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/edgecam/pkg/configdef"
	"github.com/tauraamui/edgecam/pkg/video"
	"github.com/tauraamui/edgecam/pkg/video/videobackend"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
)

func TestResolveBackendDefaultsToMock(t *testing.T) {
	is := is.New(t)
	backend, err := video.ResolveBackend(configdef.Values{})
	is.NoErr(err)

	devices, err := backend.Devices()
	is.NoErr(err)
	is.Equal(len(devices), 2)
}

func TestResolveBackendOpenCVListsConfiguredDevices(t *testing.T) {
	is := is.New(t)
	backend, err := video.ResolveBackend(configdef.Values{
		Backend: "opencv",
		OpenCVDevices: []configdef.OpenCVDevice{
			{ID: "0", Facing: "front", Sizes: []configdef.Resolution{{Width: 640, Height: 480}}},
			{ID: "rtsp://cam.local/stream", Name: "porch", Facing: "external"},
		},
	})
	is.NoErr(err)

	devices, err := backend.Devices()
	is.NoErr(err)
	is.Equal(devices, []videobackend.DeviceInfo{
		{ID: "0", Name: "opencv device 0", Facing: videobackend.FacingFront},
		{ID: "rtsp://cam.local/stream", Name: "porch", Facing: videobackend.FacingExternal},
	})

	sizes, err := backend.OutputSizes("0", videoframe.FormatYUV420)
	is.NoErr(err)
	is.Equal(sizes, []videoframe.Dimensions{{W: 640, H: 480}})
}

func TestResolveBackendOpenCVWithoutDevicesFails(t *testing.T) {
	is := is.New(t)
	_, err := video.ResolveBackend(configdef.Values{Backend: "opencv"})
	is.True(errors.Is(err, videoframe.ErrDeviceUnavailable))
}

func TestResolveBackendUnknownName(t *testing.T) {
	is := is.New(t)
	_, err := video.ResolveBackend(configdef.Values{Backend: "v4l2"})
	is.Equal(err.Error(), "unknown video backend [v4l2]")
}
