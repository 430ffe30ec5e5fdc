package main

import (
	"flag"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oceanward/corssh/internal/corssh"
	"github.com/oceanward/corssh/internal/logx"
)

// corsshgen writes synthetic CORSSH files: a sawtooth ground track with
// one-second records, mildly noisy heights, and the occasional over-land
// sentinel. Useful for smoke runs and for exercising the directory source
// with several files.

const (
	gapSeconds  = 1800 // quiet time between passes
	meanHeight  = 30_000
	landEvery   = 487 // prime, so land records drift across passes
	usecPerStep = 250_000
)

func main() {
	var (
		outDir   = flag.String("out", ".", "Output directory")
		startStr = flag.String("start", "1993-01-01", "Start date (YYYY-MM-DD)")
		days     = flag.Int("days", 3, "Days of data to generate")
		perFile  = flag.Int("days-per-file", 1, "Days covered by each file")
		passLen  = flag.Int("pass-records", 3000, "Records per pass")
		seed     = flag.Int64("seed", 1, "Random seed")
		logLevel = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger := logx.NewLoggerWithLevel(*logLevel)

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse start date")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("create output directory")
	}

	rng := rand.New(rand.NewSource(*seed))
	epoch := time.Date(1985, time.January, 1, 0, 0, 0, 0, time.UTC)
	startDay := int32(start.UTC().Sub(epoch).Hours()/24) + 1

	pass := int32(1)
	sec := int64(0) // seconds since the start date, across all files
	total := 0

	for fileDay := 0; fileDay < *days; fileDay += *perFile {
		fileEnd := int64(fileDay+*perFile) * 86_400
		name := "ssh_" + start.AddDate(0, 0, fileDay).Format("20060102") + corssh.DataFileExt
		path := filepath.Join(*outDir, name)
		w, err := corssh.NewWriter(path)
		if err != nil {
			logger.Fatal().Err(err).Msg("create output file")
		}

		wrote := 0
		for sec+int64(*passLen) <= fileEnd {
			day := startDay + int32(sec/86_400)
			sod := int32(sec % 86_400)
			if err := w.BeginPass(pass, int32(*passLen), day, sod, usecPerStep); err != nil {
				logger.Fatal().Err(err).Msg("write pass header")
			}
			for i := 0; i < *passLen; i++ {
				var r corssh.Record
				s := sec + int64(i)
				frac := float64(i) / float64(*passLen)
				r[corssh.FieldDay] = startDay + int32(s/86_400)
				r[corssh.FieldSecond] = int32(s % 86_400)
				r[corssh.FieldMicrosecond] = usecPerStep
				r[corssh.FieldLatitude] = int32(72e6 * math.Sin(2*math.Pi*frac))
				r[corssh.FieldLongitude] = int32(math.Mod(float64(s)*0.41, 360) * 1e6)
				if total%landEvery == 0 {
					r[corssh.FieldLongitude] = corssh.LandLongitude
				}
				r[corssh.FieldMeanHeight] = meanHeight
				r[corssh.FieldHeight] = meanHeight + int32(rng.NormFloat64()*120)
				r[corssh.FieldBaroCorrection] = int32(rng.NormFloat64() * 15)
				if err := w.WriteRecord(r); err != nil {
					logger.Fatal().Err(err).Msg("write record")
				}
				total++
			}
			wrote += *passLen
			pass++
			sec += int64(*passLen) + gapSeconds
		}
		if err := w.Close(); err != nil {
			logger.Fatal().Err(err).Msg("close output file")
		}
		logger.Info().Str("path", path).Int("records", wrote).Msg("wrote file")
		sec = fileEnd + gapSeconds
	}
	logger.Info().Int("records", total).Msg("generation complete")
}
