// Package report renders prediction summaries and training diagnostics as
// PNG charts, and computes the holdout scores the trainer logs.
package report

import (
	"image/color"
	"io"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"tabserve/internal/errors"
	"tabserve/internal/predict"
)

var (
	class0Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	class1Color = color.RGBA{R: 219, G: 68, B: 55, A: 255}
)

// DistributionChart writes a PNG bar chart of the per-class counts.
func DistributionChart(w io.Writer, d predict.Distribution, title string) error {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Rows"
	p.Y.Min = 0

	width := vg.Points(40)
	b0, err := plotter.NewBarChart(plotter.Values{float64(d.Class0)}, width)
	if err != nil {
		return errors.Wrap(err, "class 0 bar")
	}
	b0.Color = class0Color
	b0.Offset = -width / 2

	b1, err := plotter.NewBarChart(plotter.Values{float64(d.Class1)}, width)
	if err != nil {
		return errors.Wrap(err, "class 1 bar")
	}
	b1.Color = class1Color
	b1.Offset = width / 2

	p.Add(b0, b1)
	p.Legend.Add(legendLabel("Class 0", d.Class0Percent), b0)
	p.Legend.Add(legendLabel("Class 1", d.Class1Percent), b1)
	p.Legend.Top = true
	p.NominalX("")
	if d.Class0 == 0 && d.Class1 == 0 {
		p.Y.Max = 1
	}

	wt, err := p.WriterTo(5*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return errors.Wrap(err, "render distribution chart")
	}
	_, err = wt.WriteTo(w)
	return errors.Wrap(err, "write distribution chart")
}

func legendLabel(name string, pct float64) string {
	return name + " (" + formatPercent(pct) + ")"
}

// formatPercent rounds to one decimal for display only.
func formatPercent(pct float64) string {
	return strconv.FormatFloat(pct, 'f', 1, 64) + "%"
}
