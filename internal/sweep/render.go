package sweep

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/banshee-data/blinkfit/internal/fsutil"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// CSVHeader is the header row written by WriteCSV.
var CSVHeader = []string{"value", "mean_log10", "included", "failed", "error"}

// WriteCSV writes one row per point.
func WriteCSV(w io.Writer, p *Profile) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, pt := range p.Points {
		msg := ""
		if pt.Err != nil {
			msg = pt.Err.Error()
		}
		row := []string{
			strconv.FormatFloat(pt.Value, 'g', -1, 64),
			strconv.FormatFloat(pt.Mean, 'g', -1, 64),
			strconv.Itoa(pt.Included),
			strconv.Itoa(pt.Failed),
			msg,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (p *Profile) title() string {
	return fmt.Sprintf("%s profile over %s", p.Model, p.Param)
}

// PlotPNG draws the profile with gonum/plot. Failed points are left out.
func PlotPNG(p *Profile, width, height vg.Length) (io.WriterTo, error) {
	pl := plot.New()
	pl.Title.Text = p.title()
	pl.X.Label.Text = p.Param
	pl.Y.Label.Text = "mean log10 L"

	pts := make(plotter.XYs, 0, len(p.Points))
	for _, pt := range p.Points {
		if pt.Err == nil {
			pts = append(pts, plotter.XY{X: pt.Value, Y: pt.Mean})
		}
	}
	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("sweep: line: %w", err)
		}
		line.Width = vg.Points(1)
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("sweep: scatter: %w", err)
		}
		pl.Add(line, scatter, plotter.NewGrid())
	}
	return pl.WriterTo(width, height, "png")
}

// RenderHTML writes an interactive go-echarts page of the profile. Failed
// points appear as gaps.
func RenderHTML(w io.Writer, p *Profile) error {
	xs := make([]string, len(p.Points))
	ys := make([]opts.LineData, len(p.Points))
	for i, pt := range p.Points {
		xs[i] = strconv.FormatFloat(pt.Value, 'g', 6, 64)
		if pt.Err != nil {
			ys[i] = opts.LineData{Value: "-"}
		} else {
			ys[i] = opts.LineData{Value: pt.Mean}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: p.title(), Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: p.title(), Subtitle: fmt.Sprintf("base %v", p.Base)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: p.Param, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mean log10 L", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(xs).AddSeries("mean log10 L", ys)

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}

// Save writes prefix.csv, prefix.png and prefix.html and returns their
// paths.
func Save(fsys fsutil.FileSystem, prefix string, p *Profile) ([]string, error) {
	if dir := path.Dir(prefix); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	var csvBuf bytes.Buffer
	if err := WriteCSV(&csvBuf, p); err != nil {
		return nil, err
	}
	img, err := PlotPNG(p, 8*vg.Inch, 5*vg.Inch)
	if err != nil {
		return nil, err
	}
	var pngBuf bytes.Buffer
	if _, err := img.WriteTo(&pngBuf); err != nil {
		return nil, fmt.Errorf("sweep: png: %w", err)
	}
	var htmlBuf bytes.Buffer
	if err := RenderHTML(&htmlBuf, p); err != nil {
		return nil, fmt.Errorf("sweep: html: %w", err)
	}

	outputs := []struct {
		ext  string
		data []byte
	}{
		{".csv", csvBuf.Bytes()},
		{".png", pngBuf.Bytes()},
		{".html", htmlBuf.Bytes()},
	}
	paths := make([]string, 0, len(outputs))
	for _, o := range outputs {
		name := prefix + o.ext
		if err := fsys.WriteFile(name, o.data, 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, name)
	}
	return paths, nil
}
