package semivar

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// Output is tab-separated text with one header line. Numbers are formatted
// with strconv, so they are locale-independent and not-a-number renders as
// the literal NaN token.

func formatF(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// WriteHistogram emits the raw value histogram as height-bin-center (cm)
// versus count, one line per bucket.
func (a *Accumulator) WriteHistogram(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, "height_cm\tcount"); err != nil {
		return err
	}
	for i, count := range a.hist {
		centerMm := float64(i-HistBuckets/2)*HistBucketMm + float64(HistBucketMm)/2
		if _, err := fmt.Fprintf(bw, "%s\t%d\n", formatF(centerMm/10), count); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteTable emits one line per non-empty semivariogram bucket: latitude
// band center, mean time lag in days, mean distance in km, mean absolute
// difference in cm, RMS difference in cm, and the pair count.
func (a *Accumulator) WriteTable(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, "latitude\ttime_lag_days\tdistance_km\tmean_abs_diff_cm\trms_diff_cm\tpair_count"); err != nil {
		return err
	}
	for latBand := 0; latBand < LatBands; latBand++ {
		latCenter := -90 + (float64(latBand)+0.5)*LatBandWidthDeg
		for lag := 0; lag < LagBuckets; lag++ {
			lagCenterMs := int64(lag)*LagBucketMs + LagBucketMs/2
			for dist := 0; dist < DistBuckets; dist++ {
				b := a.buckets[bucketIndex(latBand, lag, dist)]
				if b.count == 0 {
					continue
				}
				n := float64(b.count)
				meanLagDays := (float64(lagCenterMs) + float64(b.sumLagResid)/n) / 86_400_000
				meanDistKm := (float64(dist)+0.5)*DistBucketKm + b.sumDistResid/n
				meanAbsCm := float64(b.sumAbsMm) / n / 10
				rmsCm := math.Sqrt(float64(b.sumSqMm)/n) / 10
				if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%s\t%d\n",
					formatF(latCenter), formatF(meanLagDays), formatF(meanDistKm),
					formatF(meanAbsCm), formatF(rmsCm), b.count); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// Write emits both output tables to files.
func (e *Engine) Write(histogramPath, tablePath string) error {
	hf, err := os.Create(histogramPath)
	if err != nil {
		return fmt.Errorf("semivar: create %s: %w", histogramPath, err)
	}
	if err := e.acc.WriteHistogram(hf); err != nil {
		hf.Close()
		return err
	}
	if err := hf.Close(); err != nil {
		return err
	}

	tf, err := os.Create(tablePath)
	if err != nil {
		return fmt.Errorf("semivar: create %s: %w", tablePath, err)
	}
	if err := e.acc.WriteTable(tf); err != nil {
		tf.Close()
		return err
	}
	return tf.Close()
}
