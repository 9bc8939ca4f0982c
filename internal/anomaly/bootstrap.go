package anomaly

import (
	"github.com/brianvoe/gofakeit/v7"

	"github.com/sentra-auth/sentra/internal/behavior"
)

// SyntheticTrainingSet generates n feature arrays for bootstrapping the
// global model before any real telemetry exists. Roughly 90% are plausible
// "normal user" rows (a relaxed touch typist with ordinary mouse use); the
// remainder are bot-like anomalies so calibration anchors on actual outliers
// rather than the tail of normal traffic. Normal rows come first.
func SyntheticTrainingSet(n int, seed uint64) [][]float64 {
	f := gofakeit.New(seed)
	anomalous := n / 10
	data := make([][]float64, 0, n)
	for i := 0; i < n-anomalous; i++ {
		data = append(data, normalRow(f))
	}
	for i := 0; i < anomalous; i++ {
		data = append(data, botRow(f))
	}
	return data
}

func normalRow(f *gofakeit.Faker) []float64 {
	keystrokes := float64(f.IntRange(10, 60))
	mice := float64(f.IntRange(5, 40))
	row := make([]float64, behavior.FeatureDim)
	row[0] = f.Float64Range(0.06, 0.16) // avg key hold time (s)
	row[1] = f.Float64Range(0.08, 0.40) // avg inter-key interval (s)
	row[2] = f.Float64Range(2.0, 9.0)   // typing speed (keys/s)
	row[3] = f.Float64Range(0.01, 0.05) // key hold std
	row[4] = f.Float64Range(0.02, 0.20) // inter-key std
	row[5] = f.Float64Range(200, 1500)  // avg mouse speed (px/s)
	row[6] = f.Float64Range(100, 3000)  // avg mouse acceleration
	row[7] = f.Float64Range(0.1, 2.0)   // click rate (clicks/s)
	row[8] = f.Float64Range(50, 600)    // mouse speed std
	row[9] = keystrokes + mice          // total events
	row[10] = keystrokes
	row[11] = mice
	return row
}

// botRow draws one of three anomaly profiles: a fast bot, an implausibly
// consistent replayer, or a suspiciously slow operator (hijacked session).
func botRow(f *gofakeit.Faker) []float64 {
	row := make([]float64, behavior.FeatureDim)
	switch f.IntRange(0, 2) {
	case 0: // fast
		keystrokes := float64(f.IntRange(80, 150))
		mice := float64(f.IntRange(70, 150))
		row[0] = f.Float64Range(0.015, 0.025)
		row[1] = f.Float64Range(0.025, 0.035)
		row[2] = f.Float64Range(18, 22)
		row[3] = f.Float64Range(0.002, 0.004)
		row[4] = f.Float64Range(0.004, 0.006)
		row[5] = f.Float64Range(1800, 2200)
		row[6] = f.Float64Range(450, 550)
		row[7] = f.Float64Range(1.7, 2.3)
		row[8] = f.Float64Range(40, 60)
		row[9] = keystrokes + mice
		row[10] = keystrokes
		row[11] = mice
	case 1: // consistent
		keystrokes := float64(f.IntRange(20, 100))
		mice := float64(f.IntRange(30, 100))
		row[0] = 0.1
		row[1] = 0.15
		row[2] = 5.0
		row[3] = 0.001
		row[4] = 0.001
		row[5] = 500
		row[6] = 100
		row[7] = 0.5
		row[8] = 10
		row[9] = keystrokes + mice
		row[10] = keystrokes
		row[11] = mice
	default: // slow
		keystrokes := float64(f.IntRange(5, 20))
		mice := float64(f.IntRange(5, 30))
		row[0] = f.Float64Range(0.4, 0.6)
		row[1] = f.Float64Range(0.7, 1.3)
		row[2] = f.Float64Range(0.7, 1.3)
		row[3] = f.Float64Range(0.07, 0.13)
		row[4] = f.Float64Range(0.2, 0.4)
		row[5] = f.Float64Range(70, 130)
		row[6] = f.Float64Range(10, 30)
		row[7] = f.Float64Range(0.05, 0.15)
		row[8] = f.Float64Range(20, 40)
		row[9] = keystrokes + mice
		row[10] = keystrokes
		row[11] = mice
	}
	return row
}
