package process

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/tauraamui/edgecam/pkg/log"
)

// Process is a unit of work that owns its goroutines. Start launches them,
// Stop asks them to finish and Wait blocks until every one has.
type Process interface {
	Setup() Process
	Start()
	Stop()
	Wait()
}

type Settings struct {
	WaitForShutdownMsg string
	// Process starts the work bound to ctx and returns one channel per
	// goroutine it launched, each closed once that goroutine returns.
	Process func(context.Context) []chan interface{}
}

func New(settings Settings) Process {
	return &process{
		waitForShutdownMsg: settings.WaitForShutdownMsg,
		process:            settings.Process,
	}
}

type process struct {
	mu                 sync.Mutex
	process            func(context.Context) []chan interface{}
	waitForShutdownMsg string
	canceller          context.CancelFunc
	signals            []chan interface{}
}

func (p *process) logShutdown() {
	if len(p.waitForShutdownMsg) > 0 {
		log.Info(p.waitForShutdownMsg)
	}
}

func (p *process) Setup() Process { return p }

func (p *process) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.canceller != nil {
		return
	}
	ctx, canceller := context.WithCancel(context.Background())
	p.canceller = canceller
	p.signals = append(p.signals, p.process(ctx)...)
}

func (p *process) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.canceller == nil {
		return
	}
	p.logShutdown()
	p.canceller()
}

func (p *process) Wait() {
	p.mu.Lock()
	signals := p.signals
	p.mu.Unlock()
	for _, sig := range signals {
		<-sig
	}
}

// Group runs several processes as one. They start in the order given and
// are stopped and waited on one at a time in reverse.
type Group struct {
	procs []Process
}

func NewGroup(procs ...Process) *Group {
	return &Group{procs: procs}
}

func (g *Group) Setup() Process {
	for _, p := range g.procs {
		p.Setup()
	}
	return g
}

func (g *Group) Start() {
	for _, p := range g.procs {
		p.Start()
	}
}

func (g *Group) Stop() {
	for i := len(g.procs) - 1; i >= 0; i-- {
		g.procs[i].Stop()
		g.procs[i].Wait()
	}
}

func (g *Group) Wait() {
	wg := sync.WaitGroup{}
	wg.Add(len(g.procs))
	for _, p := range g.procs {
		go func(p Process) {
			defer wg.Done()
			p.Wait()
		}(p)
	}
	wg.Wait()
}

// Loop is the usual body of a process: fn runs once per tick until ctx
// ends, on a single goroutine.
func Loop(ticks <-chan time.Time, fn func()) func(context.Context) []chan interface{} {
	return loop(ticks, fn, nil, false)
}

// LockedLoop is Loop with its goroutine wired to one OS thread for its
// whole life, for callers such as UI toolkits which must always be driven
// from the same thread. exit, when not nil, runs on that thread once ctx
// ends and before the thread is released.
func LockedLoop(ticks <-chan time.Time, fn, exit func()) func(context.Context) []chan interface{} {
	return loop(ticks, fn, exit, true)
}

func loop(ticks <-chan time.Time, fn, exit func(), locked bool) func(context.Context) []chan interface{} {
	return func(ctx context.Context) []chan interface{} {
		stopped := make(chan interface{})
		go func() {
			defer close(stopped)
			if locked {
				runtime.LockOSThread()
				defer runtime.UnlockOSThread()
			}
			if exit != nil {
				defer exit()
			}
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticks:
					fn()
				}
			}
		}()
		return []chan interface{}{stopped}
	}
}
