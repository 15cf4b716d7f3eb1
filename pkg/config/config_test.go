package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
	"github.com/tacusci/logging/v2"
	"github.com/tauraamui/edgecam/pkg/config"
)

func TestDefaultCreateResolverRoundTripsThroughDisk(t *testing.T) {
	is := is.New(t)
	logging.CurrentLoggingLevel = logging.SilentLevel
	defer func() { logging.CurrentLoggingLevel = logging.WarnLevel }()

	path := filepath.Join(t.TempDir(), "edgecam", "config.json")
	t.Setenv("EDGECAM_CONFIG", path)

	is.NoErr(config.DefaultCreator().Create())
	_, err := os.Stat(path)
	is.NoErr(err)

	values, err := config.DefaultResolver().Resolve()
	is.NoErr(err)
	is.Equal(values.Backend, "mock")
	is.Equal(values.MaxBuffers, 3)

	is.NoErr(config.DefaultDestroyer().Destroy())
	_, err = os.Stat(path)
	is.True(os.IsNotExist(err))
}
