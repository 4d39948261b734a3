package spo2

import "sort"

// spo2Table maps the AC/DC ratio (x100) to SpO2, approximating
// -45.060*r*r + 30.354*r + 94.845.
var spo2Table = []int{95, 95, 95, 96, 96, 96, 97, 97, 97, 97, 97, 98, 98, 98, 98, 98, 99, 99, 99, 99,
	99, 99, 99, 99, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100,
	100, 100, 100, 100, 99, 99, 99, 99, 99, 99, 99, 99, 98, 98, 98, 98, 98, 98, 97, 97,
	97, 97, 96, 96, 96, 96, 95, 95, 95, 94, 94, 94, 93, 93, 93, 92, 92, 92, 91, 91,
	90, 90, 89, 89, 89, 88, 88, 87, 87, 86, 86, 85, 85, 84, 84, 83, 82, 82, 81, 81,
	80, 80, 79, 78, 78, 77, 76, 76, 75, 74, 74, 73, 72, 72, 71, 70, 69, 69, 68, 67,
	66, 66, 65, 64, 63, 62, 62, 61, 60, 59, 58, 57, 56, 56, 55, 54, 53, 52, 51, 50,
	49, 48, 47, 46, 45, 44, 43, 42, 41, 40, 39, 38, 37, 36, 35, 34, 33, 31, 30, 29,
	28, 27, 26, 25, 23, 22, 21, 20, 19, 17, 16, 15, 14, 12, 11, 10, 9, 7, 6, 5,
	3, 2, 1}

const (
	ma4Size        = 4
	minThreshold   = 30
	maxThreshold   = 60
	minPeakDist    = 4
	maxPeaks       = 15
	maxRatios      = 5
	minValleyWidth = 3
)

// Maxim is the Maxim Integrated reference SpO2/heart-rate algorithm
// (MAXREFDES117). It finds valleys of the IR signal, derives the heart rate
// from their mean distance, and looks up SpO2 from the median red/IR AC/DC
// ratio between valleys.
type Maxim struct {
	// SampleRate of the windows in Hz. Zero means 100 Hz.
	SampleRate int
}

// Estimate implements Algorithm.
func (m Maxim) Estimate(irWindow, redWindow []float64) Result {
	fs := int64(m.SampleRate)
	if fs <= 0 {
		fs = 100
	}
	n := min(len(irWindow), len(redWindow))
	res := Result{SpO2: Invalid, HeartRate: Invalid}
	if n <= ma4Size {
		return res
	}

	ir := make([]int64, n)
	red := make([]int64, n)
	mean := int64(0)
	for k := 0; k < n; k++ {
		ir[k] = int64(irWindow[k])
		red[k] = int64(redWindow[k])
		mean += ir[k]
	}
	mean /= int64(n)

	// Remove DC and invert, so the peak finder finds valleys.
	x := make([]int64, n)
	for k := range x {
		x[k] = -(ir[k] - mean)
	}
	for k := 0; k < n-ma4Size; k++ {
		x[k] = (x[k] + x[k+1] + x[k+2] + x[k+3]) / 4
	}

	th := int64(0)
	for _, v := range x {
		th += v
	}
	th /= int64(n)
	th = max(minThreshold, min(th, maxThreshold))

	valleys := findPeaks(x, th, minPeakDist, maxPeaks)

	if len(valleys) >= 2 {
		sum := 0
		for k := 1; k < len(valleys); k++ {
			sum += valleys[k] - valleys[k-1]
		}
		sum /= len(valleys) - 1
		res.HeartRate = int(fs * 60 / int64(sum))
		res.HRValid = true
	}

	// AC/DC ratio between consecutive valleys on the raw signals.
	var ratios []int64
	for k := 0; k < len(valleys)-1; k++ {
		lo, hi := valleys[k], valleys[k+1]
		if hi-lo <= minValleyWidth {
			continue
		}
		irMax, redMax := int64(-16777216), int64(-16777216)
		irMaxIdx, redMaxIdx := lo, lo
		for i := lo; i < hi; i++ {
			if ir[i] > irMax {
				irMax, irMaxIdx = ir[i], i
			}
			if red[i] > redMax {
				redMax, redMaxIdx = red[i], i
			}
		}
		width := int64(hi - lo)

		redAC := (red[hi] - red[lo]) * int64(redMaxIdx-lo)
		redAC = red[lo] + redAC/width
		redAC = red[redMaxIdx] - redAC

		irAC := (ir[hi] - ir[lo]) * int64(irMaxIdx-lo)
		irAC = ir[lo] + irAC/width
		irAC = ir[redMaxIdx] - irAC

		nume := (redAC * irMax) >> 7
		denom := (irAC * redMax) >> 7
		if denom > 0 && len(ratios) < maxRatios && nume != 0 {
			ratios = append(ratios, nume*100/denom)
		}
	}
	if len(ratios) == 0 {
		return res
	}

	sort.Slice(ratios, func(i, j int) bool { return ratios[i] < ratios[j] })
	mid := len(ratios) / 2
	ratio := ratios[mid]
	if mid > 1 {
		ratio = (ratios[mid-1] + ratios[mid]) / 2
	}

	if ratio > 2 && ratio < int64(len(spo2Table)) {
		res.SpO2 = spo2Table[ratio]
		res.SpO2Valid = true
	}
	return res
}

// findPeaks returns the locations of at most maxNum peaks of x higher than
// minHeight and at least minDistance apart, in ascending order.
func findPeaks(x []int64, minHeight int64, minDistance, maxNum int) []int {
	locs := peaksAboveMinHeight(x, minHeight, maxNum)
	locs = removeClosePeaks(x, locs, minDistance)
	if len(locs) > maxNum {
		locs = locs[:maxNum]
	}
	return locs
}

func peaksAboveMinHeight(x []int64, minHeight int64, maxNum int) []int {
	var locs []int
	n := len(x)
	for i := 1; i < n-1; {
		if x[i] <= minHeight || x[i] <= x[i-1] {
			i++
			continue
		}
		// Flat peaks report their left edge.
		width := 1
		for i+width < n && x[i] == x[i+width] {
			width++
		}
		if i+width < n && x[i] > x[i+width] && len(locs) < maxNum {
			locs = append(locs, i)
			i += width + 1
		} else {
			i += width
		}
	}
	return locs
}

// removeClosePeaks keeps the largest peaks and drops any peak closer than
// minDistance to a larger one.
func removeClosePeaks(x []int64, locs []int, minDistance int) []int {
	sort.SliceStable(locs, func(i, j int) bool { return x[locs[i]] > x[locs[j]] })

	for i := -1; i < len(locs); i++ {
		kept := locs[:i+1]
		for j := i + 1; j < len(locs); j++ {
			prev := -1
			if i >= 0 {
				prev = locs[i]
			}
			if dist := locs[j] - prev; dist > minDistance || dist < -minDistance {
				kept = append(kept, locs[j])
			}
		}
		locs = kept
	}

	sort.Ints(locs)
	return locs
}
