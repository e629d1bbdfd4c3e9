package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"stellabench/internal/types"

	"github.com/google/uuid"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// statOf selects one coverage dimension out of a curve point.
type statOf func(types.CurvePoint) types.BucketStat

// RenderPlots draws the two curve families for one subject: code/branch
// coverage and protocol state coverage (states solid, transitions dashed).
// One line per fuzzer with a shaded ±stddev band. Returns the written
// paths. Only the CSV table is byte-exact; plot bytes may vary with the
// plotting library version.
func RenderPlots(rep types.ComparisonReport, outputDir string) ([]string, error) {
	codePath := filepath.Join(outputDir, rep.Subject+"-code-cov.png")
	statePath := filepath.Join(outputDir, rep.Subject+"-state-cov.png")

	if err := renderFamily(rep, codePath, "Branch coverage over time", "Branches covered",
		[]family{{"", func(p types.CurvePoint) types.BucketStat { return p.Branches }}}); err != nil {
		return nil, err
	}
	if err := renderFamily(rep, statePath, "State coverage over time", "States / transitions covered",
		[]family{
			{"states", func(p types.CurvePoint) types.BucketStat { return p.States }},
			{"transitions", func(p types.CurvePoint) types.BucketStat { return p.Transitions }},
		}); err != nil {
		return nil, err
	}
	return []string{codePath, statePath}, nil
}

type family struct {
	label string
	stat  statOf
}

func renderFamily(rep types.ComparisonReport, path, title, yLabel string, families []family) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: %s", rep.Subject, title)
	p.X.Label.Text = "Time (minutes)"
	p.Y.Label.Text = yLabel
	p.Legend.Top = true
	p.Legend.Left = true

	minutes := rep.BucketWidth.Minutes()

	for ci, curve := range rep.Curves {
		lineColor := plotutil.Color(ci)
		for fi, fam := range families {
			mean := make(plotter.XYs, len(curve.Points))
			band := make(plotter.XYs, 0, 2*len(curve.Points))
			for i, pt := range curve.Points {
				s := fam.stat(pt)
				x := float64(i+1) * minutes
				mean[i] = plotter.XY{X: x, Y: s.Mean}
				band = append(band, plotter.XY{X: x, Y: s.Mean + s.StdDev})
			}
			for i := len(curve.Points) - 1; i >= 0; i-- {
				s := fam.stat(curve.Points[i])
				y := s.Mean - s.StdDev
				if y < 0 {
					y = 0
				}
				band = append(band, plotter.XY{X: float64(i+1) * minutes, Y: y})
			}

			poly, err := plotter.NewPolygon(band)
			if err != nil {
				return fmt.Errorf("failed to build dispersion band: %w", err)
			}
			poly.Color = withAlpha(lineColor, 40)
			poly.LineStyle.Width = 0
			p.Add(poly)

			line, err := plotter.NewLine(mean)
			if err != nil {
				return fmt.Errorf("failed to build mean line: %w", err)
			}
			line.Color = lineColor
			line.Width = vg.Points(1.5)
			if fi > 0 {
				line.Dashes = plotutil.Dashes(fi)
			}
			p.Add(line)

			legend := curve.Fuzzer
			if fam.label != "" {
				legend += " (" + fam.label + ")"
			}
			p.Legend.Add(legend, line)
		}
	}

	// render next to the destination and move into place on success
	tmp := filepath.Join(filepath.Dir(path), ".tmp-"+uuid.New().String()+".png")
	if err := p.Save(8*vg.Inch, 5*vg.Inch, tmp); err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move plot into place: %w", err)
	}
	return nil
}

func withAlpha(c color.Color, alpha uint8) color.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = alpha
	return n
}
