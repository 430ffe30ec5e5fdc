package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oceanward/corssh/internal/corssh"
	"github.com/oceanward/corssh/internal/logx"
	"github.com/oceanward/corssh/internal/semivar"
	"github.com/oceanward/corssh/internal/window"
)

func parseDate(s string) (int64, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized date %q (want YYYY-MM-DD or RFC3339)", s)
}

// parseRegion reads "minLat,minLon,maxLat,maxLon" in degrees.
func parseRegion(s string) (window.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return window.Rect{}, fmt.Errorf("region %q: want minLat,minLon,maxLat,maxLon", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return window.Rect{}, fmt.Errorf("region %q: %w", s, err)
		}
		vals[i] = v
	}
	return window.Rect{
		MinLat: int32(vals[0] * 1e6),
		MinLon: int32(vals[1] * 1e6),
		MaxLat: int32(vals[2] * 1e6),
		MaxLon: int32(vals[3] * 1e6),
	}, nil
}

func main() {
	defaultMaxRecords := semivar.DefaultMaxWindowRecords
	if env := os.Getenv("CORSSH_MAX_RECORDS"); env != "" {
		if n, err := strconv.Atoi(env); err == nil {
			defaultMaxRecords = n
		}
	}
	defaultLevel := "info"
	if env := os.Getenv("CORSSH_LOG_LEVEL"); env != "" {
		defaultLevel = env
	}

	var (
		startStr   = flag.String("start", "", "Start date (YYYY-MM-DD or RFC3339)")
		endStr     = flag.String("end", "", "End date (YYYY-MM-DD or RFC3339)")
		regionStr  = flag.String("region", "-90,0,90,360", "Region as minLat,minLon,maxLat,maxLon degrees")
		histPath   = flag.String("hist", "histogram.tsv", "Histogram output path")
		tablePath  = flag.String("table", "semivariogram.tsv", "Semivariogram output path")
		maxRecords = flag.Int("max-records", defaultMaxRecords, "Window record cap (0 = unlimited)")
		noCache    = flag.Bool("no-cache", false, "Skip the persisted file descriptor catalog")
		fitModel   = flag.String("fit", "", "Report a variogram model fit (spherical, exponential or gaussian)")
		logLevel   = flag.String("log-level", defaultLevel, "Log level")
	)
	flag.Parse()

	logger := logx.NewLoggerWithLevel(*logLevel)

	if *startStr == "" || *endStr == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: semivar --start <date> --end <date> [options] <dir-or-file>...")
		flag.PrintDefaults()
		os.Exit(1)
	}
	startMs, err := parseDate(*startStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse start date")
	}
	endMs, err := parseDate(*endStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse end date")
	}
	region, err := parseRegion(*regionStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse region")
	}

	open := corssh.OpenDirectories
	if *noCache {
		open = corssh.OpenDirectoriesNoCache
	}
	sources := make([]corssh.RecordSource, 0, flag.NArg())
	for _, root := range flag.Args() {
		src, err := open([]string{root})
		if err != nil {
			logger.Fatal().Err(err).Str("root", root).Msg("open data source")
		}
		files := len(src.Descriptors())
		records, _ := src.RecordCount()
		logger.Info().Str("root", root).Int("files", files).Int64("records", records).Msg("opened data source")
		sources = append(sources, src)
	}
	merged := corssh.NewMergeTree(sources...)
	defer merged.Close()

	logger.Info().
		Str("start", time.UnixMilli(startMs).UTC().Format(time.RFC3339)).
		Str("end", time.UnixMilli(endMs).UTC().Format(time.RFC3339)).
		Str("region", *regionStr).
		Msg("starting semivariance run")

	engine := semivar.NewEngine(logger)
	engine.SetMaxWindowRecords(*maxRecords)
	if err := engine.Compute(merged, region, startMs, endMs); err != nil {
		logger.Fatal().Err(err).Msg("semivariance computation failed")
	}

	stats := engine.Stats()
	logger.Info().
		Int64("records", stats.RecordsProcessed).
		Int64("skipped", stats.RecordsSkipped).
		Int64("pairs", stats.PairsAccumulated).
		Int("windows", stats.WindowsLoaded).
		Dur("elapsed", stats.Elapsed).
		Msg("computation finished")

	if err := engine.Write(*histPath, *tablePath); err != nil {
		logger.Fatal().Err(err).Msg("write output tables")
	}
	logger.Info().Str("hist", *histPath).Str("table", *tablePath).Msg("wrote output tables")

	if *fitModel != "" {
		reportFits(logger, engine.Accumulator(), semivar.ModelType(*fitModel))
	}
}

// reportFits logs a model fit for every latitude band with enough data in
// the first lag bucket.
func reportFits(logger zerolog.Logger, acc *semivar.Accumulator, model semivar.ModelType) {
	for band := 0; band < semivar.LatBands; band++ {
		h, gamma, _ := acc.Profile(band, 0)
		fit, err := semivar.FitModel(model, h, gamma)
		if err != nil {
			continue
		}
		logger.Info().
			Float64("latitude", -90+(float64(band)+0.5)*semivar.LatBandWidthDeg).
			Str("model", string(fit.Model)).
			Float64("nugget", fit.Nugget).
			Float64("sill", fit.Sill).
			Float64("range_km", fit.Range).
			Float64("residual", fit.Residual).
			Int("points", fit.Points).
			Msg("variogram model fit")
	}
}
