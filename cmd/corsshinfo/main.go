package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/oceanward/corssh/internal/corssh"
	"github.com/oceanward/corssh/internal/logx"
)

func fmtMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

func main() {
	var (
		noCache  = flag.Bool("no-cache", false, "Skip the persisted file descriptor catalog")
		logLevel = flag.String("log-level", "warn", "Log level")
	)
	flag.Parse()

	logger := logx.NewLoggerWithLevel(*logLevel)

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: corsshinfo [options] <dir-or-file>...")
		flag.PrintDefaults()
		os.Exit(1)
	}

	open := corssh.OpenDirectories
	if *noCache {
		open = corssh.OpenDirectoriesNoCache
	}
	src, err := open(flag.Args())
	if err != nil {
		logger.Fatal().Err(err).Msg("open data sources")
	}
	defer src.Close()

	fmt.Println("path\tstart\tend\tpasses\trecords")
	for _, desc := range src.Descriptors() {
		fmt.Printf("%s\t%s\t%s\t%d\t%d\n",
			desc.Path, fmtMs(desc.StartMs), fmtMs(desc.EndMs), desc.Passes, desc.Records)
	}
	passes, _ := src.PassCount()
	records, _ := src.RecordCount()
	fmt.Printf("total\t%d files\t%d passes\t%d records\n", len(src.Descriptors()), passes, records)
}
