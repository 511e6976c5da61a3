package qc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/grailbio/msqc/idpdb"
	"github.com/grailbio/msqc/msdata"
)

// openMu serializes raw-file opens across workers: the reader backends are
// not reentrant during open. Reads on an open list proceed concurrently.
var openMu sync.Mutex

func openRaw(path string) (msdata.List, error) {
	openMu.Lock()
	defer openMu.Unlock()
	return msdata.Open(path)
}

// Run drains the discovered inputs with a pool of workers. A per-file
// failure is logged and does not stop the remaining files; Run reports an
// error if any file failed.
func Run(ctx context.Context, cfg *Config, inputs []RunInput, workers int) error {
	if workers < 1 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}
	tasks := make(chan int, len(inputs))
	for i := range inputs {
		tasks <- i
	}
	close(tasks)

	var failed int32
	err := traverse.Each(workers, func(_ int) error {
		for idx := range tasks {
			input := inputs[idx]
			start := time.Now()
			if err := processInput(ctx, cfg, input); err != nil {
				log.Error.Printf("%s: %v", input.RawPath, err)
				atomic.AddInt32(&failed, 1)
				continue
			}
			log.Printf("%s took %.1fs to analyze", input.RawPath, time.Since(start).Seconds())
		}
		return nil
	})
	if err != nil {
		return err
	}
	if n := atomic.LoadInt32(&failed); n > 0 {
		return fmt.Errorf("%d of %d input(s) failed", n, len(inputs))
	}
	return nil
}

func processInput(ctx context.Context, cfg *Config, input RunInput) error {
	switch input.Type {
	case NISTMS:
		return nistMSMetrics(ctx, cfg, input)
	case ScanRanker:
		return scanRankerMetrics(ctx, input)
	}
	// Pepitome inputs are recognized but have no metric implementation.
	return nil
}

// nistMSMetrics computes the full identification-based panel for one run:
// two streaming passes over the spectrum list, chromatogram extraction,
// peak picking and metric derivation.
func nistMSMetrics(ctx context.Context, cfg *Config, input RunInput) error {
	db, err := idpdb.Open(input.DBPath, cfg.MaxFDR)
	if err != nil {
		return err
	}
	defer db.Close() // nolint: errcheck
	ids, err := db.Stats(input.SourceID)
	if err != nil {
		return err
	}

	list, err := openRaw(input.RawPath)
	if err != nil {
		return err
	}
	log.Printf("started processing file %s", input.RawPath)

	idx, err := BuildScanIndex(list, ids.NativeIDs)
	if err != nil {
		return err
	}
	if idx.MS1Count+idx.MS2Count == 0 {
		return fmt.Errorf("no spectra")
	}
	if len(idx.Identified) == 0 {
		return fmt.Errorf("no identified spectra for source %s", input.SourceName)
	}

	quart := identifiedRTQuartiles(idx.Identified)
	set := BuildWindows(idx, ids.Peptides)
	sn, err := BuildXICs(list, ids.NativeIDs, set, quart.Q3Time)
	if err != nil {
		return err
	}

	stem := strings.TrimSuffix(input.RawPath, "."+fileExt(input.RawPath))
	if cfg.ChromatogramOutput {
		if err := WriteChromatograms(ctx, stem+"-quameter_chromatograms.mzML", input.SourceName, set); err != nil {
			return err
		}
	}

	pepPicks, identPicks, unidentPicks := PickPeaks(set)
	m := Derive(idx, quart, ids, pepPicks, identPicks, unidentPicks, sn)
	m.Filename = input.RawPath
	return WriteReport(ctx, stem+".qual.txt", m, cfg.TabbedOutput)
}
