package viz

import (
	"github.com/guptarohit/asciigraph"
)

const (
	plotHeight = 10
	plotWidth  = 80
)

// PlotSeries renders one or more equally sampled series as an ASCII chart.
// Series are resampled to the plot width.
func PlotSeries(caption string, series ...[]float64) string {
	data := make([][]float64, 0, len(series))
	for _, s := range series {
		if len(s) > 0 {
			data = append(data, Downsample(s, plotWidth))
		}
	}
	if len(data) == 0 {
		return ""
	}
	opts := []asciigraph.Option{
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.Caption(caption),
	}
	if len(data) > 1 {
		opts = append(opts, asciigraph.SeriesColors(seriesColors[:min(len(data), len(seriesColors))]...))
	}
	return asciigraph.PlotMany(data, opts...)
}

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Red,
	asciigraph.Green,
	asciigraph.Blue,
	asciigraph.Yellow,
}

// Downsample keeps at most n points of s, picking evenly spaced samples and
// always the last one.
func Downsample(s []float64, n int) []float64 {
	if n <= 1 || len(s) <= n {
		return s
	}
	out := make([]float64, n)
	step := float64(len(s)-1) / float64(n-1)
	for i := range out {
		out[i] = s[int(float64(i)*step+0.5)]
	}
	return out
}
