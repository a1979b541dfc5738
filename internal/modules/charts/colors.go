package charts

import (
	"fmt"
	"math"
)

// Diverging scale endpoints. Gains saturate at +/- colorClampPercent
// so everyday moves still produce visible shading.
const colorClampPercent = 3.0

var (
	colorLoss    = [3]float64{0xf6, 0x35, 0x38}
	colorNeutral = [3]float64{0x41, 0x45, 0x54}
	colorGain    = [3]float64{0x30, 0xcc, 0x5a}
)

// ColorForChange maps a percent change onto a red to green diverging
// scale and returns a hex color like "#30cc5a".
func ColorForChange(percent float64) string {
	t := percent / colorClampPercent
	if t > 1 {
		t = 1
	}
	if t < -1 {
		t = -1
	}

	var from, to [3]float64
	if t >= 0 {
		from, to = colorNeutral, colorGain
	} else {
		from, to = colorNeutral, colorLoss
		t = -t
	}

	var rgb [3]int
	for i := 0; i < 3; i++ {
		rgb[i] = int(math.Round(from[i] + (to[i]-from[i])*t))
	}

	return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])
}
