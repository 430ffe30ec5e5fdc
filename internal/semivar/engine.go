package semivar

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/oceanward/corssh/internal/corssh"
	"github.com/oceanward/corssh/internal/window"
)

// DefaultMaxWindowRecords caps how many records one sliding window may hold.
const DefaultMaxWindowRecords = 2_000_000

// Stats counts the work done by one Compute run.
type Stats struct {
	RecordsProcessed int64
	RecordsSkipped   int64
	PairsAccumulated int64
	WindowsLoaded    int
	Elapsed          time.Duration
}

// Engine drives a sliding window across a record source and accumulates
// height histograms and semivariogram buckets.
type Engine struct {
	acc        *Accumulator
	log        zerolog.Logger
	maxRecords int
	stats      Stats
}

// NewEngine creates an engine with a fresh accumulator.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		acc:        NewAccumulator(),
		log:        log,
		maxRecords: DefaultMaxWindowRecords,
	}
}

// SetMaxWindowRecords overrides the per-window record cap. Values at or
// below zero disable the cap.
func (e *Engine) SetMaxWindowRecords(n int) { e.maxRecords = n }

// Accumulator exposes the engine's accumulated results.
func (e *Engine) Accumulator() *Accumulator { return e.acc }

// Stats returns counters for the last Compute run.
func (e *Engine) Stats() Stats { return e.stats }

// Compute processes every record of src inside region between startMs and
// endMs. The buffer is driven across the range in successive windows, each
// padded by TimeMarginMs on both sides so every processed point has its full
// forward temporal neighborhood resident; windows advance reusing the
// already-loaded tail.
func (e *Engine) Compute(src corssh.RecordSource, region window.Shape, startMs, endMs int64) error {
	begin := time.Now()
	e.stats = Stats{}
	buf := window.NewBuffer(src, region)

	cur := startMs
	for cur < endMs {
		status, err := buf.SetTimeRange(cur-TimeMarginMs, endMs+TimeMarginMs, e.maxRecords)
		if err != nil {
			return err
		}
		e.stats.WindowsLoaded++
		last, any := buf.LastTime()
		if !any {
			break
		}

		// Points past upper lack a complete forward neighborhood in this
		// window; they wait for the next load.
		upper := endMs
		if status != window.LoadExhausted {
			if u := last - TimeMarginMs; u < upper {
				upper = u
			}
		}
		if upper <= cur {
			return fmt.Errorf("semivar: window starting %s holds no full neighborhood under record cap %d",
				time.UnixMilli(cur).UTC().Format(time.RFC3339), e.maxRecords)
		}

		for i := buf.Search(cur); i < buf.Len(); i++ {
			p := buf.Point(i)
			if p.TimeMs >= upper {
				break
			}
			if err := e.processPoint(buf, p); err != nil {
				return err
			}
		}

		e.log.Debug().
			Int("window", e.stats.WindowsLoaded).
			Int("resident", buf.Len()).
			Str("status", status.String()).
			Int64("records", e.stats.RecordsProcessed).
			Int64("pairs", e.stats.PairsAccumulated).
			Msg("window processed")

		if status == window.LoadExhausted {
			break
		}
		cur = upper
	}
	e.stats.RecordsSkipped = buf.Skipped()
	e.stats.Elapsed = time.Since(begin)
	return nil
}

// processPoint buckets one record's raw value and accumulates its pairwise
// differences against every neighbor within the spatial search radius and
// the strictly-forward time margin.
func (e *Engine) processPoint(buf *window.Buffer, p window.Point) error {
	e.acc.AddValue(p.ValueMm)
	e.stats.RecordsProcessed++

	latDeg := float64(p.LatMicro) * 1e-6
	lonDeg := float64(p.LonMicro) * 1e-6

	rect := searchRect(p, latDeg)
	tr := &window.TimeRange{StartMs: p.TimeMs + 1, EndMs: p.TimeMs + TimeMarginMs}
	cur := buf.PointsInside(rect, tr)
	for {
		q, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		ang := angularDistance(latDeg, lonDeg, float64(q.LatMicro)*1e-6, float64(q.LonMicro)*1e-6)
		distKm := ang * apparentRadiusKm((latDeg+float64(q.LatMicro)*1e-6)/2)
		if err := e.acc.AddPair(latDeg, q.TimeMs-p.TimeMs, distKm, int64(p.ValueMm)-int64(q.ValueMm)); err != nil {
			return err
		}
		e.stats.PairsAccumulated++
	}
}

// searchRect converts the spatial search radius to a degree box at the
// point's latitude using the local radii of curvature. Near the poles the
// longitude span degenerates and the box widens to the full circle. The box
// does not wrap at the 0/360 longitude seam, so neighbors straddling it are
// not found.
func searchRect(p window.Point, latDeg float64) window.Rect {
	kmPerDegLat := meridionalRadiusKm(latDeg) * math.Pi / 180
	dLat := int32(SearchRadiusKm / kmPerDegLat * 1e6)

	kmPerDegLon := primeVerticalRadiusKm(latDeg) * math.Cos(degToRad(latDeg)) * math.Pi / 180
	dLon := int32(360_000_000)
	if kmPerDegLon > 1e-6 {
		if span := SearchRadiusKm / kmPerDegLon * 1e6; span < 360e6 {
			dLon = int32(span)
		}
	}

	return window.Rect{
		MinLat: p.LatMicro - dLat,
		MaxLat: p.LatMicro + dLat,
		MinLon: p.LonMicro - dLon,
		MaxLon: p.LonMicro + dLon,
	}
}
