package spectral

import (
	"bufio"
	"fmt"
	"io"
	"math"
)

// Plot draws data as a width x height character chart between lo and hi,
// downsampling columns when data is longer than width. Values outside the
// range are clamped to the border rows.
func Plot(w io.Writer, data []float64, width, height int, lo, hi float64) error {
	if width <= 0 || height <= 0 || hi <= lo {
		return fmt.Errorf("spectral: invalid plot size %dx%d [%v, %v]", width, height, lo, hi)
	}
	if len(data) == 0 {
		return nil
	}
	if width > len(data) {
		width = len(data)
	}

	grid := make([][]byte, height)
	for y := range grid {
		grid[y] = make([]byte, width)
		for x := range grid[y] {
			grid[y][x] = ' '
		}
	}
	for x := 0; x < width; x++ {
		v := data[x*len(data)/width]
		if math.IsInf(v, -1) || math.IsNaN(v) {
			v = lo
		}
		row := int(math.Round((hi - v) / (hi - lo) * float64(height-1)))
		row = clamp(row, 0, height-1)
		grid[row][x] = '|'
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, " %*s\n", width, fmt.Sprintf("[%.0f, %.0f] x %d", lo, hi, len(data)))
	border := make([]byte, width)
	for i := range border {
		border[i] = '_'
	}
	fmt.Fprintf(bw, " %s\n", border)
	for _, line := range grid {
		fmt.Fprintf(bw, "|%s|\n", line)
	}
	fmt.Fprintf(bw, " %s\n", border)
	return bw.Flush()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
