package anomaly

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// node is one binary split in an isolation tree. Leaves have nil children
// and carry the number of training samples that reached them.
type node struct {
	SplitDim   int      `json:"d"`
	SplitValue float64  `json:"v"`
	Left       *node    `json:"l,omitempty"`
	Right      *node    `json:"r,omitempty"`
	Size       int      `json:"n,omitempty"`
}

// Model is a trained isolation forest with its input scaler and score
// calibration. All fields are read-only after Train.
type Model struct {
	Trees      []*node   `json:"trees"`
	SampleSize int       `json:"sampleSize"`
	Dim        int       `json:"dim"`

	// Scaler: per-dimension mean and standard deviation of the training
	// set. Degenerate dimensions get std 1 so scaling is a no-op there.
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`

	// Calibration anchors mapping raw forest scores onto [0,1]: ScoreLo is
	// the training median (typical behavior scores ~0), ScoreHi the
	// (1-contamination) training quantile.
	ScoreLo       float64 `json:"scoreLo"`
	ScoreHi       float64 `json:"scoreHi"`
	Contamination float64 `json:"contamination"`

	TrainedAt time.Time `json:"trainedAt"`
	Samples   int       `json:"samples"`
}

// Option configures Train.
type Option func(*trainConfig)

type trainConfig struct {
	trees         int
	subsample     int
	contamination float64
	seed          int64
	seeded        bool
}

// WithTrees sets the ensemble size.
func WithTrees(n int) Option {
	return func(c *trainConfig) {
		if n > 0 {
			c.trees = n
		}
	}
}

// WithSubsample sets the per-tree subsample size.
func WithSubsample(n int) Option {
	return func(c *trainConfig) {
		if n > 1 {
			c.subsample = n
		}
	}
}

// WithContamination sets the expected anomaly fraction used for score
// calibration. Values outside (0, 0.5) are ignored.
func WithContamination(f float64) Option {
	return func(c *trainConfig) {
		if f > 0 && f < 0.5 {
			c.contamination = f
		}
	}
}

// WithSeed makes training deterministic (for tests).
func WithSeed(seed int64) Option {
	return func(c *trainConfig) {
		c.seed = seed
		c.seeded = true
	}
}

// Train fits an isolation forest on data. Every row must have the same
// length. Returns ErrTooFewSamples below MinTrainSamples.
func Train(data [][]float64, opts ...Option) (*Model, error) {
	if len(data) < MinTrainSamples {
		return nil, ErrTooFewSamples
	}
	dim := len(data[0])
	for _, row := range data {
		if len(row) != dim {
			return nil, ErrDimensionMismatch
		}
	}

	cfg := trainConfig{
		trees:         DefaultTrees,
		subsample:     DefaultSubsample,
		contamination: DefaultContamination,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var rng *rand.Rand
	if cfg.seeded {
		rng = rand.New(rand.NewSource(cfg.seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	m := &Model{
		SampleSize:    cfg.subsample,
		Dim:           dim,
		Contamination: cfg.contamination,
		TrainedAt:     time.Now(),
		Samples:       len(data),
	}
	if m.SampleSize > len(data) {
		m.SampleSize = len(data)
	}

	m.fitScaler(data)
	scaled := make([][]float64, len(data))
	for i, row := range data {
		scaled[i] = m.scale(row)
	}

	heightLimit := int(math.Ceil(math.Log2(float64(m.SampleSize))))
	m.Trees = make([]*node, cfg.trees)
	for i := range m.Trees {
		sample := subsample(scaled, m.SampleSize, rng)
		m.Trees[i] = growTree(sample, 0, heightLimit, rng)
	}

	m.calibrate(scaled)
	return m, nil
}

// Score returns the calibrated anomaly score of x in [0,1], where 0 is
// typical and 1 is maximally anomalous relative to the training set.
func (m *Model) Score(x []float64) (float64, error) {
	if len(x) != m.Dim {
		return 0, ErrDimensionMismatch
	}
	raw := m.rawScore(m.scale(x))
	span := m.ScoreHi - m.ScoreLo
	if span <= 0 {
		span = 1
	}
	return clamp01((raw - m.ScoreLo) / span), nil
}

// rawScore computes the standard isolation score 2^(-E[h]/c(psi)) on an
// already scaled vector.
func (m *Model) rawScore(scaled []float64) float64 {
	var total float64
	for _, t := range m.Trees {
		total += pathLength(t, scaled, 0)
	}
	avg := total / float64(len(m.Trees))
	return math.Pow(2, -avg/avgPathLength(m.SampleSize))
}

func (m *Model) fitScaler(data [][]float64) {
	m.Mean = make([]float64, m.Dim)
	m.Std = make([]float64, m.Dim)
	n := float64(len(data))
	for _, row := range data {
		for d, v := range row {
			m.Mean[d] += v
		}
	}
	for d := range m.Mean {
		m.Mean[d] /= n
	}
	for _, row := range data {
		for d, v := range row {
			diff := v - m.Mean[d]
			m.Std[d] += diff * diff
		}
	}
	for d := range m.Std {
		m.Std[d] = math.Sqrt(m.Std[d] / n)
		if m.Std[d] <= 0 {
			m.Std[d] = 1
		}
	}
}

func (m *Model) scale(x []float64) []float64 {
	out := make([]float64, len(x))
	for d, v := range x {
		out[d] = (v - m.Mean[d]) / m.Std[d]
	}
	return out
}

// calibrate anchors the raw score distribution of the training set so that
// the median maps to 0 and the (1-contamination) quantile maps to 1. The
// floor on the span keeps near-constant training sets from amplifying noise.
func (m *Model) calibrate(scaled [][]float64) {
	scores := make([]float64, len(scaled))
	for i, row := range scaled {
		scores[i] = m.rawScore(row)
	}
	sort.Float64s(scores)

	m.ScoreLo = quantile(scores, 0.5)
	hi := quantile(scores, 1-m.Contamination)
	if hi < m.ScoreLo+0.05 {
		hi = m.ScoreLo + 0.05
	}
	m.ScoreHi = hi
}

func growTree(data [][]float64, depth, limit int, rng *rand.Rand) *node {
	if depth >= limit || len(data) <= 1 {
		return &node{Size: len(data)}
	}

	dim := rng.Intn(len(data[0]))
	lo, hi := data[0][dim], data[0][dim]
	for _, row := range data[1:] {
		if row[dim] < lo {
			lo = row[dim]
		}
		if row[dim] > hi {
			hi = row[dim]
		}
	}
	if hi <= lo {
		return &node{Size: len(data)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range data {
		if row[dim] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return &node{
		SplitDim:   dim,
		SplitValue: split,
		Left:       growTree(left, depth+1, limit, rng),
		Right:      growTree(right, depth+1, limit, rng),
	}
}

func pathLength(n *node, x []float64, depth int) float64 {
	if n.Left == nil && n.Right == nil {
		return float64(depth) + avgPathLength(n.Size)
	}
	if x[n.SplitDim] < n.SplitValue {
		return pathLength(n.Left, x, depth+1)
	}
	return pathLength(n.Right, x, depth+1)
}

const eulerGamma = 0.5772156649015329

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n items.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		f := float64(n)
		return 2*(math.Log(f-1)+eulerGamma) - 2*(f-1)/f
	}
}

func subsample(data [][]float64, size int, rng *rand.Rand) [][]float64 {
	if size >= len(data) {
		return data
	}
	idx := rng.Perm(len(data))[:size]
	out := make([][]float64, size)
	for i, j := range idx {
		out[i] = data[j]
	}
	return out
}

// quantile reads q from sorted values with linear interpolation.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
