// Package report renders calibration run artifacts: a convergence plot PNG
// and a standalone HTML report.
package report

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/guochaodlnu/kontiki/internal/calibdb"
	"github.com/guochaodlnu/kontiki/internal/solver"
)

// SaveConvergencePlot writes a cost-per-accepted-step plot to path (PNG).
func SaveConvergencePlot(summary *solver.Summary, path string) error {
	p := plot.New()
	p.Title.Text = "Calibration convergence"
	p.X.Label.Text = "Accepted step"
	p.Y.Label.Text = "Cost"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{}

	pts := make(plotter.XYs, 0, len(summary.CostHistory))
	for i, c := range summary.CostHistory {
		if c <= 0 {
			// log scale cannot show an exactly-zero cost
			c = 1e-300
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: c})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build cost line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("cost", line)
	p.Legend.Top = true

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save convergence plot: %w", err)
	}
	return nil
}

// WriteHTMLReport renders a standalone HTML page for a calibration run: run
// metadata in the title and the cost history as a line chart.
func WriteHTMLReport(run calibdb.Run, summary *solver.Summary, path string) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Calibration report", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Calibration run %s", run.RunID),
			Subtitle: fmt.Sprintf("sensor=%s iterations=%d termination=%s final_cost=%.3e", run.SensorID, summary.Iterations, summary.Termination, summary.FinalCost),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Accepted step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Cost"}),
	)

	x := make([]string, len(summary.CostHistory))
	y := make([]opts.LineData, len(summary.CostHistory))
	for i, c := range summary.CostHistory {
		x[i] = fmt.Sprint(i)
		y[i] = opts.LineData{Value: c}
	}
	line.SetXAxis(x).AddSeries("cost", y)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
