package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pestscan-server/internal/bootstrap"
	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/domain/image"
	"pestscan-server/internal/domain/inference"
	"pestscan-server/internal/utils"
)

var scanExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// scanOutcome is the result for one file, in directory order.
type scanOutcome struct {
	File   string
	Result *inference.ClassificationResult
	Err    error
}

type pestHit struct {
	Confidence float64
	Agreement  int
	Total      int
	File       string
}

func runScan(cmd *cobra.Command, args []string) error {
	files, err := collectImages(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", args[0])
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := bootstrap.Prepare(ctx, bootstrap.Options{
		ConfigPath:     configPath,
		Version:        version,
		Console:        logSink(quiet),
		DisableStorage: !record,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.Model.Loaded() {
		return app.Model.Err()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning %d images...\n", len(files))

	outcomes := scanFiles(ctx, app.Classifier, files, threshold, workers)
	for _, o := range outcomes {
		fmt.Fprintln(out, formatOutcome(o))
	}
	writeSummary(out, app.Model.Labels(), outcomes)
	return nil
}

// collectImages lists the supported images directly under dir, sorted.
func collectImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if scanExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// scanFiles classifies files with at most limit in flight.
func scanFiles(ctx context.Context, classifier classifierRunner, files []string, threshold float64, limit int) []scanOutcome {
	if limit <= 0 {
		limit = 1
	}
	outcomes := make([]scanOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			outcomes[i] = classifyFile(gctx, classifier, path, threshold)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// classifierRunner is the part of inference.Classifier the scanner uses.
type classifierRunner interface {
	Run(ctx context.Context, req inference.Request) *inference.ClassificationResult
}

func classifyFile(ctx context.Context, classifier classifierRunner, path string, threshold float64) scanOutcome {
	name := utils.SourceName(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return scanOutcome{File: name, Err: err}
	}
	result := classifier.Run(ctx, inference.Request{
		Data:      data,
		Format:    image.NormalizeFormat(filepath.Ext(path)),
		Source:    name,
		Threshold: threshold,
	})
	return scanOutcome{File: name, Result: result}
}

func formatOutcome(o scanOutcome) string {
	switch {
	case o.Err != nil:
		return fmt.Sprintf("  [%-12s] %s: %v", inference.StatusFailed, o.File, o.Err)
	case !o.Result.Success:
		return fmt.Sprintf("  [%-12s] %s: %s", inference.StatusFailed, o.File, o.Result.Error)
	case o.Result.BestMatch == nil || o.Result.Status == detection.StatusOutOfScope:
		return fmt.Sprintf("  [%-12s] %s", o.Result.StatusLabel(), o.File)
	default:
		best := o.Result.BestMatch
		return fmt.Sprintf("  [%-12s] %s: %s %.1f%% | TTA %d/%d",
			o.Result.StatusLabel(), o.File, best.PestType, best.WeightedConfidence, best.TTAAgreement, best.TTATotal)
	}
}

// writeSummary prints the top three hits per pest and the detection
// coverage over labels.
func writeSummary(w io.Writer, labels []string, outcomes []scanOutcome) {
	hits := make(map[string][]pestHit)
	outOfScope, failed := 0, 0
	for _, o := range outcomes {
		switch {
		case o.Err != nil || !o.Result.Success:
			failed++
		case o.Result.Status == detection.StatusOutOfScope || o.Result.BestMatch == nil:
			outOfScope++
		default:
			best := o.Result.BestMatch
			hits[best.PestType] = append(hits[best.PestType], pestHit{
				Confidence: best.WeightedConfidence,
				Agreement:  best.TTAAgreement,
				Total:      best.TTATotal,
				File:       o.File,
			})
		}
	}

	detections := 0
	for _, h := range hits {
		detections += len(h)
	}

	fmt.Fprintf(w, "\nDone! %d images scanned.\n", len(outcomes))
	fmt.Fprintf(w, "OUT_OF_SCOPE: %d\n", outOfScope)
	fmt.Fprintf(w, "FAILED: %d\n", failed)
	fmt.Fprintf(w, "Detections: %d\n\n", detections)

	fmt.Fprintln(w, separator())
	fmt.Fprintln(w, "RESULTS BY PEST TYPE")
	fmt.Fprintln(w, separator())
	for _, pest := range labels {
		list := hits[pest]
		if len(list) == 0 {
			fmt.Fprintf(w, "\n  %s: ** NO DETECTIONS **\n", pest)
			continue
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Confidence > list[j].Confidence })
		fmt.Fprintf(w, "\n  %s: %d detections\n", pest, len(list))
		for _, h := range list[:min(3, len(list))] {
			fmt.Fprintf(w, "    %5.1f%% | TTA %d/%d | %s\n", h.Confidence, h.Agreement, h.Total, h.File)
		}
		if len(list) > 3 {
			fmt.Fprintf(w, "    ... +%d more\n", len(list)-3)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, separator())
	fmt.Fprintln(w, "DETECTION COVERAGE SUMMARY")
	fmt.Fprintln(w, separator())
	var missing []string
	for _, pest := range labels {
		status := "OK"
		if len(hits[pest]) == 0 {
			status = "MISSING"
			missing = append(missing, pest)
		}
		fmt.Fprintf(w, "  [%7s] %-22s - %d images detected\n", status, pest, len(hits[pest]))
	}
	if len(missing) > 0 {
		fmt.Fprintf(w, "\n  MISSING: %s\n", strings.Join(missing, ", "))
	}
}
