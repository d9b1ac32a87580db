// Command scavenger mines a Burst-style Proof-of-Capacity pool or solo
// target from a set of local plot files.
//
// Flag parsing and the SIGINT/SIGTERM lifecycle are grounded on the
// teacher's cmd/cli/main.go and cmd/driver/hasher-host/main.go (flag vars
// at package scope, os/signal.Notify into a buffered channel, a clean exit
// path distinct from a fatal one).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"scavenge/internal/bufferpool"
	"scavenge/internal/config"
	"scavenge/internal/coordinator"
	"scavenge/internal/kernel"
	"scavenge/internal/logging"
	"scavenge/internal/pipeline"
	"scavenge/internal/plotfile"
	"scavenge/internal/reader"
	"scavenge/internal/submitter"
	"scavenge/internal/worker"
)

var configPath = flag.String("config", "scavenge.toml", "path to the miner's TOML configuration file")

const (
	exitOK           = 0
	exitConfigError  = 1
	exitNoPlots      = 2
	exitPlotDirError = 3
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfigError
	}

	log := logging.New(logging.Options{
		ConsoleLevel:   cfg.ConsoleLogLevel,
		FileLevel:      cfg.LogfileLogLevel,
		FilePath:       "scavenge.log",
		FileMaxSizeMB:  cfg.LogfileMaxSize,
		FileMaxBackups: cfg.LogfileMaxCount,
	})

	log.Info().Str("variant", string(kernel.SelectedVariant())).Msg("deadline kernel resolved")

	plots, err := discoverPlots(cfg.PlotDirs, cfg.HDDUseDirectIO, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to scan plot directories")
		return exitPlotDirError
	}
	if len(plots) == 0 {
		log.Error().Msg("no valid plot files found, refusing to start")
		return exitNoPlots
	}
	defer func() {
		for _, p := range plots {
			p.Close()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	if err := mine(ctx, cfg, plots, log); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("miner exited with error")
		return exitConfigError
	}

	log.Info().Msg("clean shutdown")
	return exitOK
}

// discoverPlots walks each configured directory non-recursively, opening
// every regular file as a plot and logging-and-skipping anything that
// fails to parse or validate (spec.md §6: "invalid files are logged and
// skipped").
func discoverPlots(dirs []string, useDirectIO bool, log zerolog.Logger) ([]*plotfile.Plot, error) {
	var plots []*plotfile.Plot
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading plot dir %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			p, err := plotfile.Open(path, useDirectIO)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("skipping invalid plot file")
				continue
			}
			plots = append(plots, p)
			log.Info().Str("path", path).Uint64("nonces", p.Nonces).Msg("loaded plot file")
		}
	}
	return plots, nil
}

// mine wires the reader/worker/coordinator/submitter pipeline together and
// runs it until ctx is cancelled.
func mine(ctx context.Context, cfg config.Config, plots []*plotfile.Plot, log zerolog.Logger) error {
	bufCapacity := alignedBufferCapacity(plots, log)
	pool := bufferpool.New(cfg.CPUWorkerThreadCount*2, bufCapacity)

	readReplies := make(chan pipeline.ReadReply, cfg.CPUWorkerThreadCount*2)
	nonceData := make(chan pipeline.NonceData, cfg.CPUWorkerThreadCount*2)
	roundsPerReader := make([]chan reader.RoundParams, cfg.HDDReaderThreadCount)

	readerPlots := partitionPlots(plots, cfg.HDDReaderThreadCount)

	var wg sync.WaitGroup
	for i := 0; i < cfg.HDDReaderThreadCount; i++ {
		roundsPerReader[i] = make(chan reader.RoundParams, 1)
		rd := reader.New(readerPlots[i], pool, readReplies, cfg.CPUWorkerThreadCount, cfg.WakeupAfter(), log)
		wg.Add(1)
		go func(ch <-chan reader.RoundParams) {
			defer wg.Done()
			if err := rd.Run(ctx, ch); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("reader exited unexpectedly")
			}
		}(roundsPerReader[i])
	}

	for i := 0; i < cfg.CPUWorkerThreadCount; i++ {
		w := worker.New(pool, readReplies, nonceData, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("worker exited unexpectedly")
			}
		}()
	}

	coord := coordinator.NewClient(cfg.URL, cfg.SecretPhrase, cfg.TargetDeadline, cfg.RequestTimeout(), log)
	sub := submitter.New(cfg.URL, cfg.SecretPhrase, cfg.RequestTimeout(), log)

	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatchNonces(ctx, coord, sub, nonceData, log)
	}()

	onRoundChange := func(round coordinator.Round) {
		params := reader.RoundParams{GenSig: round.GenSig, Height: round.Height, Scoop: round.Scoop}
		for _, ch := range roundsPerReader {
			select {
			case ch <- params:
			case <-ctx.Done():
			}
		}
	}

	err := coord.Poll(ctx, cfg.PollInterval(), onRoundChange)
	wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// dispatchNonces forwards accepted candidates to the submitter, firing
// each submission in its own goroutine so a slow pool never stalls the
// coordinator (spec.md §4.F: "does not await submissions; it fires and
// forgets").
func dispatchNonces(ctx context.Context, coord *coordinator.Client, sub *submitter.Submitter, nonceData <-chan pipeline.NonceData, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case nd, ok := <-nonceData:
			if !ok {
				return
			}
			if !coord.Consider(nd) {
				continue
			}
			go func(nd pipeline.NonceData) {
				if err := sub.Submit(ctx, nd.AccountID, nd.Nonce, nd.Height, nd.Deadline); err != nil {
					log.Error().Err(err).Uint64("height", nd.Height).Uint64("nonce", nd.Nonce).Msg("submission failed")
				}
			}(nd)
		}
	}
}

// partitionPlots distributes plots round-robin across n reader threads.
func partitionPlots(plots []*plotfile.Plot, n int) [][]*plotfile.Plot {
	out := make([][]*plotfile.Plot, n)
	for i, p := range plots {
		idx := i % n
		out[idx] = append(out[idx], p)
	}
	return out
}

// alignedBufferCapacity picks a buffer size that is a multiple of both one
// scoop and the backing filesystem's sector size, satisfying spec.md
// §4.C's constraint. The sector size is discovered natively
// (plotfile.SectorSize, via Fstatfs on Linux) from the first plot found;
// on platforms or filesystems where that discovery isn't available it
// falls back to plotfile.DefaultSectorSize.
func alignedBufferCapacity(plots []*plotfile.Plot, log zerolog.Logger) int {
	sector := plotfile.DefaultSectorSize
	if len(plots) > 0 {
		sector = plotfile.SectorSize(plots[0].Path)
	}
	log.Info().Int("sector_size", sector).Msg("sizing buffer pool")
	return sector * 16
}
