package main

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/flattraj/internal/storage"
)

// savePNG draws every component of sim as a solid line and the matching
// planned component dashed in the same color.
func savePNG(path string, meta *storage.RunMetadata, times []float64, sim, planned [][]float64, prefix string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s (%s, %s basis)", meta.System, meta.Name, meta.Mode, meta.Basis)
	p.X.Label.Text = "time (s)"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for j := range sim[0] {
		line, err := plotter.NewLine(xys(times, column(sim, j)))
		if err != nil {
			return err
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(j)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s%d", prefix, j), line)

		if len(planned) == 0 {
			continue
		}
		ref, err := plotter.NewLine(xys(times, column(planned, j)))
		if err != nil {
			return err
		}
		ref.LineStyle.Width = vg.Points(1)
		ref.LineStyle.Color = plotutil.Color(j)
		ref.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(ref)
		p.Legend.Add(fmt.Sprintf("%s%d planned", prefix, j), ref)
	}

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

func xys(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		if i < len(ys) {
			pts[i].Y = ys[i]
		}
	}
	return pts
}
