package pipeline_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tauraamui/edgecam/pkg/pipeline"
	"github.com/tauraamui/edgecam/pkg/processor"
	"github.com/tauraamui/edgecam/pkg/telemetry"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/edgecam/pkg/video/videoslot"
)

type CoordinatorTestSuite struct {
	suite.Suite
	slot         *videoslot.Slot[videoframe.RenderableFrame]
	mode         *processor.ModeSwitch
	timings      []telemetry.Timing
	resetTimeNow func()
	clock        time.Time
	stepPerCall  time.Duration
}

func (suite *CoordinatorTestSuite) SetupTest() {
	suite.slot = videoslot.New[videoframe.RenderableFrame]()
	suite.mode = processor.NewModeSwitch(processor.ModePassthrough)
	suite.timings = nil
	suite.clock = time.Date(2021, 6, 1, 9, 0, 0, 0, time.UTC)
	suite.stepPerCall = 5 * time.Millisecond
	suite.resetTimeNow = pipeline.OverloadTimeNow(func() time.Time {
		now := suite.clock
		suite.clock = suite.clock.Add(suite.stepPerCall)
		return now
	})
}

func (suite *CoordinatorTestSuite) TearDownTest() {
	suite.resetTimeNow()
}

func (suite *CoordinatorTestSuite) observe(t telemetry.Timing) {
	suite.timings = append(suite.timings, t)
}

func (suite *CoordinatorTestSuite) coordinator(p processor.Processor) *pipeline.Coordinator {
	return pipeline.New(p, suite.mode, suite.slot, telemetry.ObserverFunc(suite.observe))
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, &CoordinatorTestSuite{})
}

func testFrame(seq uint64, w, h int) videoframe.PixelFrame {
	return videoframe.PixelFrame{Seq: seq, Width: w, Height: h, Data: make([]byte, videoframe.NV21Size(w, h))}
}

func rgbaOf(nv21 []byte, w, h int, mode processor.Mode) ([]byte, error) {
	return make([]byte, videoframe.RGBASize(w, h)), nil
}

func (suite *CoordinatorTestSuite) TestPublishesProcessedFrameAndReportsTiming() {
	c := suite.coordinator(processor.Func(rgbaOf))

	c.Deliver(testFrame(1, 4, 2))

	f, ok := suite.slot.TakeIfPresent()
	suite.Require().True(ok)
	suite.Equal(uint64(1), f.Seq)
	suite.True(f.Valid())

	suite.Require().Len(suite.timings, 1)
	suite.Equal(uint64(1), suite.timings[0].Seq)
	suite.Equal(5*time.Millisecond, suite.timings[0].Duration)
	suite.True(suite.timings[0].Published)
	suite.NoError(suite.timings[0].Err)
}

func (suite *CoordinatorTestSuite) TestFailedFrameIsSkippedAndNextIsPublished() {
	c := suite.coordinator(processor.Func(func(nv21 []byte, w, h int, mode processor.Mode) ([]byte, error) {
		if len(suite.timings) == 0 {
			return nil, errors.New("transform failed")
		}
		return rgbaOf(nv21, w, h, mode)
	}))

	c.Deliver(testFrame(10, 4, 2))
	_, ok := suite.slot.TakeIfPresent()
	suite.False(ok)

	c.Deliver(testFrame(11, 4, 2))
	f, ok := suite.slot.TakeIfPresent()
	suite.Require().True(ok)
	suite.Equal(uint64(11), f.Seq)

	suite.Require().Len(suite.timings, 2)
	suite.ErrorIs(suite.timings[0].Err, videoframe.ErrProcessingFailure)
	suite.False(suite.timings[0].Published)
	suite.True(suite.timings[1].Published)
	suite.Equal(uint64(2), c.Processed())
	suite.Equal(uint64(1), c.Failed())
}

func (suite *CoordinatorTestSuite) TestPanickingProcessorIsRecovered() {
	c := suite.coordinator(processor.Func(func(nv21 []byte, w, h int, mode processor.Mode) ([]byte, error) {
		panic("index out of range")
	}))

	suite.NotPanics(func() { c.Deliver(testFrame(3, 4, 2)) })

	_, ok := suite.slot.TakeIfPresent()
	suite.False(ok)
	suite.Require().Len(suite.timings, 1)
	suite.ErrorIs(suite.timings[0].Err, videoframe.ErrProcessingFailure)
	suite.Contains(suite.timings[0].Err.Error(), "index out of range")
}

func (suite *CoordinatorTestSuite) TestWrongSizedOutputIsNotPublished() {
	c := suite.coordinator(processor.Func(func(nv21 []byte, w, h int, mode processor.Mode) ([]byte, error) {
		return make([]byte, 7), nil
	}))

	c.Deliver(testFrame(4, 4, 2))

	_, ok := suite.slot.TakeIfPresent()
	suite.False(ok)
	suite.Require().Len(suite.timings, 1)
	suite.ErrorIs(suite.timings[0].Err, videoframe.ErrProcessingFailure)
}

func (suite *CoordinatorTestSuite) TestModeIsReadOncePerFrame() {
	var seen []processor.Mode
	c := suite.coordinator(processor.Func(func(nv21 []byte, w, h int, mode processor.Mode) ([]byte, error) {
		seen = append(seen, mode)
		// a toggle during processing only affects the following frame
		suite.mode.Toggle()
		return rgbaOf(nv21, w, h, mode)
	}))

	c.Deliver(testFrame(1, 4, 2))
	c.Deliver(testFrame(2, 4, 2))
	c.Deliver(testFrame(3, 4, 2))

	suite.Equal([]processor.Mode{
		processor.ModePassthrough, processor.ModeTransformed, processor.ModePassthrough,
	}, seen)
	suite.Equal(processor.ModePassthrough, suite.timings[0].Mode)
	suite.Equal(processor.ModeTransformed, suite.timings[1].Mode)
}

func (suite *CoordinatorTestSuite) TestUnconsumedFrameIsOverwritten() {
	c := suite.coordinator(processor.Func(rgbaOf))

	c.Deliver(testFrame(1, 4, 2))
	c.Deliver(testFrame(2, 4, 2))

	f, ok := suite.slot.TakeIfPresent()
	suite.Require().True(ok)
	suite.Equal(uint64(2), f.Seq)
	suite.Equal(uint64(1), suite.slot.Overwrites())
}

func (suite *CoordinatorTestSuite) TestNilObserverAndModeSwitch() {
	c := pipeline.New(processor.Func(rgbaOf), nil, suite.slot, nil)
	suite.NotPanics(func() { c.Deliver(testFrame(1, 2, 2)) })
	suite.Equal(processor.ModePassthrough, c.Mode().Load())
}
