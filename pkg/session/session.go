package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tauraamui/edgecam/pkg/camera"
	"github.com/tauraamui/edgecam/pkg/log"
	"github.com/tauraamui/edgecam/pkg/pipeline"
	"github.com/tauraamui/edgecam/pkg/process"
	"github.com/tauraamui/edgecam/pkg/processor"
	"github.com/tauraamui/edgecam/pkg/render"
	"github.com/tauraamui/edgecam/pkg/telemetry"
	"github.com/tauraamui/edgecam/pkg/video/videobackend"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/edgecam/pkg/video/videoslot"
	"github.com/tauraamui/xerror"
)

const defaultRefreshHz = 60

type Options struct {
	Backend   videobackend.Backend
	Camera    camera.Settings
	Processor processor.Processor
	// Mode is read once per frame, nil starts in passthrough.
	Mode      *processor.ModeSwitch
	Surface   render.Surface
	RefreshHz int
	// Observers receive every frame timing after the session's own
	// log and stats observers.
	Observers    []telemetry.Observer
	ReportBuffer int
	StatsWindow  int
}

type Stats struct {
	Source         camera.Stats
	Processed      uint64
	Failed         uint64
	Render         render.Counters
	SlotOverwrites uint64
	TimingsDropped uint64
	Timings        telemetry.Summary
}

// Session is one run of the camera pipeline, from an opened device
// through processing to the render surface.
type Session struct {
	uuid        string
	slot        *videoslot.Slot[videoframe.RenderableFrame]
	reporter    *telemetry.Reporter
	coordinator *pipeline.Coordinator
	loop        *render.Loop
	ticker      *time.Ticker
	procs       process.Process
	source      *camera.Source
	stats       *telemetry.Stats

	mu     sync.Mutex
	closed bool
}

// Start wires the pipeline together and opens the camera. When the
// camera cannot be opened or configured everything started so far is
// stopped again and the error is returned.
func Start(ctx context.Context, opts Options) (*Session, error) {
	if opts.Backend == nil {
		return nil, xerror.Errorf("no video backend given: %w", videoframe.ErrDeviceUnavailable)
	}
	if opts.Processor == nil {
		opts.Processor = processor.NewLuma()
	}
	if opts.Surface == nil {
		return nil, xerror.New("no render surface given")
	}
	if opts.RefreshHz < 1 {
		opts.RefreshHz = defaultRefreshHz
	}

	s := &Session{
		uuid:  uuid.NewString(),
		slot:  videoslot.New[videoframe.RenderableFrame](),
		stats: telemetry.NewStats(opts.StatsWindow),
	}

	observers := append([]telemetry.Observer{telemetry.LogObserver{}, s.stats}, opts.Observers...)
	s.reporter = telemetry.NewReporter(opts.ReportBuffer, observers...)
	s.coordinator = pipeline.New(opts.Processor, opts.Mode, s.slot, s.reporter)
	s.loop = render.NewLoop(s.slot, opts.Surface)
	s.ticker = time.NewTicker(time.Second / time.Duration(opts.RefreshHz))

	// stopped in reverse, so the render loop ends before the reporter
	s.procs = process.NewGroup(s.reporter.Process(), render.NewProcess(s.loop, s.ticker.C)).Setup()
	s.procs.Start()

	source, err := camera.Open(ctx, opts.Backend, opts.Camera, s.coordinator.Deliver)
	if err != nil {
		s.stopProcesses()
		return nil, err
	}
	s.source = source

	log.Info("Started session [%s] with camera [%s]", s.uuid, source.Title())
	return s, nil
}

func (s *Session) UUID() string {
	return s.uuid
}

func (s *Session) Mode() *processor.ModeSwitch {
	return s.coordinator.Mode()
}

// Fatal yields the failure which ended frame delivery, if any. The
// session must still be closed afterwards.
func (s *Session) Fatal() <-chan error {
	return s.source.Err()
}

func (s *Session) Stats() Stats {
	return Stats{
		Source:         s.source.Stats(),
		Processed:      s.coordinator.Processed(),
		Failed:         s.coordinator.Failed(),
		Render:         s.loop.Counters(),
		SlotOverwrites: s.slot.Overwrites(),
		TimingsDropped: s.reporter.Dropped(),
		Timings:        s.stats.Summary(),
	}
}

func (s *Session) Samples() []float64 {
	return s.stats.Samples()
}

// Close stops delivery from the camera first, then the render loop and
// finally the reporter once it has passed on every buffered timing.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.source.Close()
	s.stopProcesses()
	log.Info("Closed session [%s]", s.uuid)
	return err
}

func (s *Session) stopProcesses() {
	s.procs.Stop()
	s.ticker.Stop()
}
