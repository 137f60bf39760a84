package main

import (
	"context"
	"flag"
	"math/rand/v2"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/internal/loadgen"
	"github.com/okian/leadflow/pkg/logger"
)

const (
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultDuplicatePct = 5
	defaultRunTimeout   = 30 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numLeads   = flag.Int("leads", loadgen.DefaultNumLeads, "Number of leads to submit")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent submitters")
		ratePerSec = flag.Float64("rate", 0, "Submissions per second, 0 for unlimited")
		dupPct     = flag.Int("dup", defaultDuplicatePct, "Percentage of duplicate submissions")
		lat        = flag.Float64("lat", 51.5074, "Latitude of the generated area centre")
		lng        = flag.Float64("lng", -0.1278, "Longitude of the generated area centre")
		spread     = flag.Float64("spread", loadgen.DefaultSpreadKM, "Radius of the generated area in km")
		categories = flag.String("categories", "boiler_repair,plumbing,electrical", "Comma separated categories")
		timeout    = flag.Duration("timeout", loadgen.DefaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", loadgen.DefaultSettleWait, "How long to wait for leads to finalize")
		output     = flag.String("output", "", "Write the generated leads to this JSON file")
		verbose    = flag.Bool("verbose", false, "Log every submission")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &loadgen.Config{
		BaseURL:      strings.TrimSuffix(*baseURL, "/"),
		NumLeads:     *numLeads,
		Workers:      *workers,
		Rate:         *ratePerSec,
		DuplicatePct: *dupPct,
		Center:       model.Location{Lat: *lat, Lng: *lng},
		SpreadKM:     *spread,
		Categories:   strings.Split(*categories, ","),
		Timeout:      *timeout,
		SettleWait:   *settle,
		OutputFile:   *output,
		Verbose:      *verbose,
	}

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	if _, err := loadgen.Run(ctx, cfg, rng); err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}
