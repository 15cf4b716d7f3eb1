package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/tauraamui/edgecam/pkg/camera"
	"github.com/tauraamui/edgecam/pkg/configdef"
	"github.com/tauraamui/edgecam/pkg/log"
	"github.com/tauraamui/edgecam/pkg/processor"
	"github.com/tauraamui/edgecam/pkg/processor/opencvproc"
	"github.com/tauraamui/edgecam/pkg/render"
	"github.com/tauraamui/edgecam/pkg/render/windowsurface"
	"github.com/tauraamui/edgecam/pkg/session"
	"github.com/tauraamui/edgecam/pkg/telemetry"
	"github.com/tauraamui/edgecam/pkg/telemetry/timingstore"
	"github.com/tauraamui/edgecam/pkg/tui"
	"github.com/tauraamui/edgecam/pkg/video"
	"github.com/tauraamui/edgecam/pkg/video/videobackend"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const restartDelay = 500 * time.Millisecond

var fs = afero.NewOsFs()

// runner owns everything that outlives a single session, the backend,
// processor and surface are reused when a stalled session is replaced.
type runner struct {
	values    configdef.Values
	ctx       context.Context
	cancel    context.CancelFunc
	mode      *processor.ModeSwitch
	backend   videobackend.Backend
	proc      processor.Processor
	surface   render.Surface
	software  *render.SoftwareSurface
	keys      <-chan int
	viewer    *tui.Viewer
	store     *timingstore.Store
	stats     *telemetry.Stats
	observers []telemetry.Observer
	closers   []io.Closer

	quitOnce sync.Once
	quitting chan struct{}
	viewerWg sync.WaitGroup
}

func newRunner(values configdef.Values, interactive bool) (*runner, error) {
	backend, err := video.ResolveBackend(values)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{
		values:   values,
		ctx:      ctx,
		cancel:   cancel,
		mode:     processor.NewModeSwitch(processor.ParseMode(values.ProcessingMode)),
		backend:  backend,
		stats:    telemetry.NewStats(values.Telemetry.Window),
		quitting: make(chan struct{}),
	}
	r.observers = append(r.observers, r.stats)

	switch values.Processor {
	case "opencv":
		p := opencvproc.New()
		r.proc = p
		r.closers = append(r.closers, p)
	default:
		r.proc = processor.NewLuma()
	}

	switch values.Display.Kind {
	case "window":
		w := windowsurface.New(name, values.Display.Width, values.Display.Height)
		r.surface = w
		r.keys = w.Keys()
		r.closers = append(r.closers, w)
	default:
		r.software = render.NewSoftwareSurface(values.Display.Width, values.Display.Height)
		r.surface = r.software
	}

	if values.Telemetry.RecordTimings {
		store, err := timingstore.Open(values.Telemetry.DatabasePath)
		if err != nil {
			cancel()
			r.closeAll()
			return nil, err
		}
		r.store = store
		r.observers = append(r.observers, store)
	}

	if interactive {
		r.viewer = tui.NewViewer(ctx, tui.NewModel(name, r.mode, values.Telemetry.Window))
		r.observers = append(r.observers, r.viewer)
	}

	return r, nil
}

func (r *runner) quit() {
	r.quitOnce.Do(func() { close(r.quitting) })
}

func (r *runner) sessionOptions() session.Options {
	return session.Options{
		Backend: r.backend,
		Camera: camera.Settings{
			Facing:         videobackend.ParseFacing(r.values.Facing),
			Format:         videoframe.FormatYUV420,
			Fallback:       videoframe.Dimensions{W: r.values.FallbackResolution.Width, H: r.values.FallbackResolution.Height},
			MaxBuffers:     r.values.MaxBuffers,
			ReleaseTimeout: time.Duration(r.values.ReleaseTimeoutMs) * time.Millisecond,
		},
		Processor:    r.proc,
		Mode:         r.mode,
		Surface:      r.surface,
		RefreshHz:    r.values.Display.RefreshHz,
		Observers:    r.observers,
		ReportBuffer: r.values.Telemetry.ReportBuffer,
		StatsWindow:  r.values.Telemetry.Window,
	}
}

// run starts sessions until asked to quit. A session ended by a resource
// stall is replaced, any other failure ends the run.
func (r *runner) run() error {
	if r.viewer != nil {
		r.viewerWg.Add(1)
		go func() {
			defer r.viewerWg.Done()
			if err := r.viewer.Run(); err != nil {
				log.Error("Viewer failed: %v", err)
			}
			r.quit()
		}()
	}

	for {
		s, err := session.Start(r.ctx, r.sessionOptions())
		if err != nil {
			return xerror.Errorf("unable to start session: %w", err)
		}

		restart, err := r.wait(s)
		r.finish(s)
		if !restart {
			return err
		}

		log.Warn("Restarting session after failure: %v", err)
		select {
		case <-r.quitting:
			return nil
		case <-time.After(restartDelay):
		}
	}
}

func (r *runner) wait(s *session.Session) (bool, error) {
	for {
		select {
		case <-r.quitting:
			return false, nil
		case err := <-s.Fatal():
			if errors.Is(err, videoframe.ErrResourceStall) {
				return true, err
			}
			return false, err
		case key := <-r.keys:
			r.handleKey(key)
		}
	}
}

func (r *runner) handleKey(key int) {
	switch key {
	case 't':
		log.Info("Switched processing mode to %s", r.mode.Toggle())
	case 'q', 27:
		r.quit()
	}
}

func (r *runner) finish(s *session.Session) {
	if err := s.Close(); err != nil {
		log.Error("Unable to close session [%s]: %v", s.UUID(), err)
	}
	stats := s.Stats()
	log.Info(
		"Session [%s] delivered %d frames (%d dropped, %d malformed), processed %d, failed %d",
		s.UUID(), stats.Source.Delivered, stats.Source.Dropped, stats.Source.FormatErrors, stats.Processed, stats.Failed,
	)
}

// close writes the optional snapshot and histogram and releases what
// newRunner acquired.
func (r *runner) close() error {
	r.quit()
	r.cancel()
	r.viewerWg.Wait()

	if path := r.values.Display.SnapshotPath; len(path) > 0 && r.software != nil {
		if err := r.software.WritePNG(fs, path); err != nil {
			log.Error("Unable to write snapshot: %v", err)
		} else {
			log.Info("Wrote snapshot to %s", path)
		}
	}

	if path := r.values.Telemetry.HistogramPath; len(path) > 0 {
		if err := telemetry.WriteHistogram(fs, path, r.stats.Samples()); err != nil {
			log.Error("Unable to write frame time histogram: %v", err)
		} else {
			log.Info("Wrote frame time histogram to %s", path)
		}
	}

	log.Info(r.stats.Summary().String())
	return r.closeAll()
}

func (r *runner) closeAll() error {
	var firstErr error
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			firstErr = err
		} else if r.store.Failed() > 0 {
			log.Warn("%d frame timings could not be recorded", r.store.Failed())
		}
	}
	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
