package telemetry

import (
	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const histogramBins = 30

// WriteHistogram renders the frame times as a PNG histogram at path.
func WriteHistogram(fs afero.Fs, path string, samples []float64) error {
	if len(samples) == 0 {
		return xerror.New("no frame times to plot")
	}

	p := plot.New()
	p.Title.Text = "Frame processing time"
	p.X.Label.Text = "ms"
	p.Y.Label.Text = "frames"

	h, err := plotter.NewHist(plotter.Values(samples), histogramBins)
	if err != nil {
		return xerror.Errorf("unable to bin frame times: %w", err)
	}
	p.Add(h)

	w, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return xerror.Errorf("unable to render histogram: %w", err)
	}

	f, err := fs.Create(path)
	if err != nil {
		return xerror.Errorf("unable to create histogram file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := w.WriteTo(f); err != nil {
		return xerror.Errorf("unable to write histogram file %s: %w", path, err)
	}
	return nil
}
