package qc

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"

	"github.com/grailbio/msqc/stats"
)

// ScanRanker metrics: distribution summaries of the per-spectrum tag
// quality scores produced by ScanRanker, written as <stem>.sr.txt.

type scanRankerData struct {
	bestTagScore stats.Accumulator
	bestTagTIC   stats.Accumulator
	tagMZRange   stats.Accumulator
}

// readScanRankerFile parses a ScanRanker metadata table: a tab-separated
// file whose header names the columns; comment lines start with '#'.
func readScanRankerFile(path string) (*scanRankerData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck

	data := &scanRankerData{}
	scoreCol, ticCol, rangeCol := -1, -1, -1
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if scoreCol < 0 {
			for i, name := range fields {
				switch name {
				case "BestTagScore":
					scoreCol = i
				case "BestTagTIC":
					ticCol = i
				case "TagMzRange":
					rangeCol = i
				}
			}
			if scoreCol < 0 || ticCol < 0 || rangeCol < 0 {
				return nil, fmt.Errorf("scanranker %s: header lacks BestTagScore/BestTagTIC/TagMzRange", path)
			}
			continue
		}
		if len(fields) <= scoreCol || len(fields) <= ticCol || len(fields) <= rangeCol {
			return nil, fmt.Errorf("scanranker %s: short row %q", path, line)
		}
		add := func(acc *stats.Accumulator, s string) error {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("scanranker %s: bad value %q", path, s)
			}
			acc.Add(v)
			return nil
		}
		if err := add(&data.bestTagScore, fields[scoreCol]); err != nil {
			return nil, err
		}
		if err := add(&data.bestTagTIC, fields[ticCol]); err != nil {
			return nil, err
		}
		if err := add(&data.tagMZRange, fields[rangeCol]); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return data, nil
}

func writeAccumulatorRow(tw *tsv.Writer, name string, acc *stats.Accumulator) error {
	tw.WriteString(name)
	for _, stat := range []func() (float64, bool){
		acc.Mean, acc.Median, acc.Kurtosis, acc.Skewness, acc.Variance, acc.StdErrOfMean,
	} {
		tw.WriteString(formatMetric(orNaN(stat())))
	}
	return tw.EndLine()
}

// scanRankerMetrics summarizes one ScanRanker report next to its raw file.
func scanRankerMetrics(ctx context.Context, input RunInput) (err error) {
	data, err := readScanRankerFile(input.ScanRankerPath)
	if err != nil {
		return err
	}
	outPath := strings.TrimSuffix(input.RawPath, "."+fileExt(input.RawPath)) + ".sr.txt"
	out, err := file.Create(ctx, outPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	tw := tsv.NewWriter(out.Writer(ctx))
	for _, col := range []string{"Series", "Mean", "Median", "Kurtosis", "Skewness", "Variance", "StdErrOfMean"} {
		tw.WriteString(col)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	if err := writeAccumulatorRow(tw, "BestTagScore", &data.bestTagScore); err != nil {
		return err
	}
	if err := writeAccumulatorRow(tw, "BestTagTIC", &data.bestTagTIC); err != nil {
		return err
	}
	if err := writeAccumulatorRow(tw, "TagMzRange", &data.tagMZRange); err != nil {
		return err
	}
	return tw.Flush()
}

func fileExt(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return ""
}
