package semivar

import (
	"errors"
	"fmt"
)

// Bucket geometry. The spatial search radius follows directly from the
// distance bucketing: pairs farther apart than the last bucket are never
// accumulated, so the neighbor query never needs to reach past it.
const (
	LatBands        = 18
	LatBandWidthDeg = 10.0

	LagBuckets  = 40
	LagBucketMs = int64(6 * 3600 * 1000)

	// TimeMarginMs bounds the forward temporal neighborhood of every point:
	// ten days at the default lag bucketing.
	TimeMarginMs = int64(LagBuckets) * LagBucketMs

	DistBuckets    = 50
	DistBucketKm   = 2.0
	SearchRadiusKm = DistBuckets * DistBucketKm

	HistBuckets  = 400
	HistBucketMm = 10
)

// ErrAccumulatorOverflow is raised when a squared-sum accumulator wraps
// negative. Results accumulated before the offending pair remain valid.
var ErrAccumulatorOverflow = errors.New("semivar: squared-sum accumulator overflow")

// pairBucket accumulates one (latitude band, time lag, distance) cell. The
// residual sums record how far the pairs in the cell actually sat from the
// cell center, for calibration output.
type pairBucket struct {
	count        int64
	sumAbsMm     int64
	sumSqMm      int64
	sumLagResid  int64   // ms offsets from the lag bucket center
	sumDistResid float64 // km offsets from the distance bucket center
}

// Accumulator holds the 3-D semivariogram buckets and the 1-D raw value
// histogram. Buckets are allocated once, sized for a whole run, and mutated
// incrementally.
type Accumulator struct {
	buckets []pairBucket // LatBands x LagBuckets x DistBuckets
	hist    []int64
}

// NewAccumulator allocates an accumulator sized for a full run.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		buckets: make([]pairBucket, LatBands*LagBuckets*DistBuckets),
		hist:    make([]int64, HistBuckets),
	}
}

func bucketIndex(latBand, lag, dist int) int {
	return (latBand*LagBuckets+lag)*DistBuckets + dist
}

// latBandOf maps a latitude in degrees to its band, clamped.
func latBandOf(latDeg float64) int {
	band := int((latDeg + 90) / LatBandWidthDeg)
	if band < 0 {
		band = 0
	} else if band >= LatBands {
		band = LatBands - 1
	}
	return band
}

// AddValue buckets one raw measured value (millimeters) into the histogram.
// Bucket i covers [(i-200)*10, (i-199)*10) mm, so negative values need floor
// division. Values past either end land in the edge buckets.
func (a *Accumulator) AddValue(mm int32) {
	i := int(mm)
	if i < 0 {
		i -= HistBucketMm - 1
	}
	i = i/HistBucketMm + HistBuckets/2
	if i < 0 {
		i = 0
	} else if i >= HistBuckets {
		i = HistBuckets - 1
	}
	a.hist[i]++
}

// AddPair accumulates one neighbor pair: the point latitude, the forward
// time lag, the great-circle distance, and the signed value difference in
// millimeters. Pairs beyond the lag or distance bucketing are ignored. A
// squared-sum sign flip surfaces ErrAccumulatorOverflow immediately.
func (a *Accumulator) AddPair(latDeg float64, lagMs int64, distKm float64, diffMm int64) error {
	if lagMs < 0 {
		return fmt.Errorf("semivar: negative time lag %d ms", lagMs)
	}
	lag := int(lagMs / LagBucketMs)
	dist := int(distKm / DistBucketKm)
	if lag >= LagBuckets || dist < 0 || dist >= DistBuckets {
		return nil
	}
	d := diffMm
	if d < 0 {
		d = -d
	}
	b := &a.buckets[bucketIndex(latBandOf(latDeg), lag, dist)]
	b.count++
	b.sumAbsMm += d
	b.sumSqMm += d * d
	if b.sumSqMm < 0 {
		return fmt.Errorf("%w: lat band %d lag %d dist %d after %d pairs",
			ErrAccumulatorOverflow, latBandOf(latDeg), lag, dist, b.count)
	}
	b.sumLagResid += lagMs - (int64(lag)*LagBucketMs + LagBucketMs/2)
	b.sumDistResid += distKm - (float64(dist)+0.5)*DistBucketKm
	return nil
}

// Pairs returns the total number of accumulated pairs.
func (a *Accumulator) Pairs() int64 {
	var n int64
	for i := range a.buckets {
		n += a.buckets[i].count
	}
	return n
}
