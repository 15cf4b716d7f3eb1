package videoframe

import (
	"errors"

	"github.com/tauraamui/xerror"
)

const (
	KindDeviceUnavailable xerror.Kind = "DeviceUnavailable"
	KindFormat            xerror.Kind = "FormatError"
	KindProcessing        xerror.Kind = "ProcessingFailure"
	KindResourceStall     xerror.Kind = "ResourceStall"
	KindConfigureFailed   xerror.Kind = "ConfigureFailed"
)

// Per-frame errors (format, processing) drop the frame and the pipeline
// carries on. Device level errors end the session.
var (
	ErrDeviceUnavailable = xerror.NewWithKind(KindDeviceUnavailable, "no usable sensor device")
	ErrFormat            = xerror.NewWithKind(KindFormat, "malformed sensor buffer")
	ErrProcessingFailure = xerror.NewWithKind(KindProcessing, "frame processing failed")
	ErrResourceStall     = xerror.NewWithKind(KindResourceStall, "sensor buffers not released in time")
	ErrConfigureFailed   = xerror.NewWithKind(KindConfigureFailed, "capture session configuration rejected")
)

// IsFatal reports whether err must terminate the session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable) ||
		errors.Is(err, ErrResourceStall) ||
		errors.Is(err, ErrConfigureFailed)
}
