package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"
	"github.com/tacusci/logging/v2"
	"github.com/tauraamui/edgecam/pkg/configdef"
	"github.com/tauraamui/edgecam/pkg/processor"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
)

type RunnerTestSuite struct {
	suite.Suite
	fs      afero.Fs
	resetFS func()
}

func (suite *RunnerTestSuite) SetupSuite() {
	logging.CurrentLoggingLevel = logging.SilentLevel
}

func (suite *RunnerTestSuite) TearDownSuite() {
	logging.CurrentLoggingLevel = logging.WarnLevel
}

func (suite *RunnerTestSuite) SetupTest() {
	suite.fs = afero.NewMemMapFs()
	fsRef := fs
	fs = suite.fs
	suite.resetFS = func() { fs = fsRef }
}

func (suite *RunnerTestSuite) TearDownTest() {
	suite.resetFS()
}

func TestRunnerTestSuite(t *testing.T) {
	suite.Run(t, &RunnerTestSuite{})
}

func testValues() configdef.Values {
	return configdef.Values{
		Backend:            "mock",
		Facing:             "back",
		FallbackResolution: configdef.Resolution{Width: 64, Height: 48},
		MaxBuffers:         3,
		ReleaseTimeoutMs:   2000,
		Processor:          "luma",
		ProcessingMode:     "transformed",
		Display:            configdef.Display{Kind: "software", RefreshHz: 120, Width: 32, Height: 24, SnapshotPath: "/out/snapshot.png"},
		Mock:               configdef.Mock{FPS: 100},
		Telemetry:          configdef.Telemetry{HistogramPath: "/out/histogram.png", Window: 100, ReportBuffer: 16},
	}
}

func (suite *RunnerTestSuite) TestRunUntilQuitThenWritesOutputs() {
	r, err := newRunner(testValues(), false)
	suite.Require().NoError(err)
	suite.Equal(processor.ModeTransformed, r.mode.Load())

	done := make(chan error, 1)
	go func() { done <- r.run() }()

	deadline := time.After(5 * time.Second)
	for r.stats.Summary().Frames == 0 {
		select {
		case <-deadline:
			suite.FailNow("no frames were processed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	r.quit()

	select {
	case err := <-done:
		suite.NoError(err)
	case <-time.After(5 * time.Second):
		suite.FailNow("runner did not stop after quit")
	}

	suite.NoError(r.close())
	for _, path := range []string{"/out/snapshot.png", "/out/histogram.png"} {
		exists, err := afero.Exists(suite.fs, filepath.Clean(path))
		suite.NoError(err)
		suite.True(exists, path)
	}
}

func (suite *RunnerTestSuite) TestRunFailsWhenNoCameraFaces() {
	values := testValues()
	values.Backend = "opencv"
	values.OpenCVDevices = []configdef.OpenCVDevice{{ID: "9", Facing: "front"}}

	r, err := newRunner(values, false)
	suite.Require().NoError(err)
	defer r.close()

	err = r.run()
	suite.ErrorIs(err, videoframe.ErrDeviceUnavailable)
}

func (suite *RunnerTestSuite) TestKeysToggleModeAndQuit() {
	r, err := newRunner(testValues(), false)
	suite.Require().NoError(err)
	defer r.close()

	r.handleKey('t')
	suite.Equal(processor.ModePassthrough, r.mode.Load())

	r.handleKey('q')
	select {
	case <-r.quitting:
	default:
		suite.Fail("q did not quit the runner")
	}
}
