package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tauraamui/edgecam/pkg/telemetry"
)

// Viewer runs the interactive display. It is a telemetry observer so the
// session reporter can feed it directly.
type Viewer struct {
	program *tea.Program
}

func NewViewer(ctx context.Context, model Model, opts ...tea.ProgramOption) *Viewer {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	return &Viewer{program: tea.NewProgram(model, opts...)}
}

// Observe blocks until the viewer takes the timing or has exited.
func (v *Viewer) Observe(t telemetry.Timing) {
	v.program.Send(TimingMsg(t))
}

// Run blocks until the user quits or ctx is cancelled.
func (v *Viewer) Run() error {
	_, err := v.program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

var _ telemetry.Observer = (*Viewer)(nil)
