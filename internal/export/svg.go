// Package export renders monitor frames and stored series as SVG.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/san-kum/wbqp/internal/viz"
)

// CanvasToSVG converts a Braille canvas to SVG, one dot per set sub-pixel.
func CanvasToSVG(canvas *viz.Canvas, scale float64, color string) string {
	if canvas == nil {
		return ""
	}

	width := float64(canvas.Width) * scale * 2
	height := float64(canvas.Height) * scale * 4

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g fill="%s">
`, width, height, width, height, color)

	dotRadius := scale * 0.4
	for y := 0; y < canvas.Height*4; y++ {
		for x := 0; x < canvas.Width*2; x++ {
			if !canvas.IsSet(x, y) {
				continue
			}
			fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n",
				float64(x)*scale+scale/2, float64(y)*scale+scale/2, dotRadius)
		}
	}

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// Series is one named polyline of a chart.
type Series struct {
	Name   string
	Color  string
	Values []float64
}

// SeriesToSVG draws series against a shared time axis. All series must have
// len(times) samples.
func SeriesToSVG(times []float64, series []Series, width, height int) (string, error) {
	if len(times) < 2 {
		return "", errors.New("need at least two samples")
	}
	if len(series) == 0 {
		return "", errors.New("no series")
	}

	minT, maxT := times[0], times[len(times)-1]
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		if len(s.Values) != len(times) {
			return "", errors.Errorf("series %s has %d samples, want %d", s.Name, len(s.Values), len(times))
		}
		for _, v := range s.Values {
			minY, maxY = min(minY, v), max(maxY, v)
		}
	}

	rangeT := maxT - minT
	rangeY := maxY - minY
	if rangeT == 0 {
		rangeT = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	rangeY *= 1.2

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	for i, s := range series {
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, s.Color)
		for j, v := range s.Values {
			x := (times[j] - minT) / rangeT * float64(width)
			y := float64(height) - (v-minY)/rangeY*float64(height)
			if j == 0 {
				fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
		fmt.Fprintf(&sb, "<text x=\"8\" y=\"%d\" fill=\"%s\" font-family=\"monospace\" font-size=\"12\">%s</text>\n",
			16*(i+1), s.Color, s.Name)
	}

	sb.WriteString("</svg>")
	return sb.String(), nil
}

// Palette cycles through stroke colors for multi-series charts.
var Palette = []string{"#5fffaf", "#ffaf00", "#00d7ff", "#ff5f5f"}
