package viz

import (
	"strings"
)

// Braille cells hold 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

// Canvas is a grid of Braille cells addressed in sub-pixels. The canvas is
// (Width*2) x (Height*4) sub-pixels with the origin at the top left.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

func (c *Canvas) cell(x, y int) (row, col int, mask rune, ok bool) {
	if x < 0 || y < 0 {
		return 0, 0, 0, false
	}
	col, row = x/2, y/4
	if col >= c.Width || row >= c.Height {
		return 0, 0, 0, false
	}
	return row, col, pixelMap[y%4][x%2], true
}

// Set turns on the sub-pixel at (x, y). Points off the canvas are ignored.
func (c *Canvas) Set(x, y int) {
	if row, col, mask, ok := c.cell(x, y); ok {
		c.Grid[row][col] |= mask
	}
}

func (c *Canvas) Unset(x, y int) {
	if row, col, mask, ok := c.cell(x, y); ok {
		c.Grid[row][col] &^= mask
		c.Grid[row][col] |= brailleBlank
	}
}

// IsSet reports whether the sub-pixel at (x, y) is on.
func (c *Canvas) IsSet(x, y int) bool {
	row, col, mask, ok := c.cell(x, y)
	return ok && c.Grid[row][col]&mask != 0
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawRect outlines the axis-aligned box spanned by two corners.
func (c *Canvas) DrawRect(x0, y0, x1, y1 int) {
	c.DrawLine(x0, y0, x1, y0)
	c.DrawLine(x1, y0, x1, y1)
	c.DrawLine(x1, y1, x0, y1)
	c.DrawLine(x0, y1, x0, y0)
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

// Viewport maps a metric plane onto canvas sub-pixels. Center is the world
// point drawn at the middle of the canvas, Scale is sub-pixels per meter and
// world up is screen up.
type Viewport struct {
	CenterU, CenterV float64
	Scale            float64
	W, H             int
}

func NewViewport(c *Canvas, scale float64) Viewport {
	return Viewport{Scale: scale, W: c.Width * 2, H: c.Height * 4}
}

// Project returns the sub-pixel of the world point (u, v).
func (vp Viewport) Project(u, v float64) (int, int) {
	x := float64(vp.W)/2 + (u-vp.CenterU)*vp.Scale
	y := float64(vp.H)/2 - (v-vp.CenterV)*vp.Scale
	return int(x + 0.5), int(y + 0.5)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
