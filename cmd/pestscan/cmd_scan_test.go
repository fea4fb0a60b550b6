package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/domain/inference"
)

type scriptedRunner struct {
	calls  atomic.Int32
	byFile map[string]*inference.ClassificationResult
}

func (s *scriptedRunner) Run(_ context.Context, req inference.Request) *inference.ClassificationResult {
	s.calls.Add(1)
	if res, ok := s.byFile[req.Source]; ok {
		return res
	}
	return &inference.ClassificationResult{Success: true, Predictions: []detection.ClassAggregate{}, Status: detection.StatusOutOfScope}
}

func detected(pest string, confidence float64) *inference.ClassificationResult {
	best := detection.ClassAggregate{PestType: pest, WeightedConfidence: confidence, TTAAgreement: 4, TTATotal: 5}
	return &inference.ClassificationResult{
		Success:     true,
		Status:      detection.StatusDetected,
		Predictions: []detection.ClassAggregate{best},
		BestMatch:   &best,
	}
}

func TestCollectImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.JPG", "a.png", "notes.txt", "c.webp", "d.gif"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))

	files, err := collectImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.JPG"),
		filepath.Join(dir, "c.webp"),
	}, files)

	_, err = collectImages(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestScanFiles_KeepsOrder(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		files = append(files, path)
	}
	files = append(files, filepath.Join(dir, "gone.jpg"))

	runner := &scriptedRunner{byFile: map[string]*inference.ClassificationResult{
		"2.jpg": detected("Brontispa", 71.5),
	}}
	outcomes := scanFiles(context.Background(), runner, files, 0.55, 2)

	require.Len(t, outcomes, 6)
	for i, name := range []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg", "gone.jpg"} {
		assert.Equal(t, name, outcomes[i].File)
	}
	assert.Equal(t, detection.StatusDetected, outcomes[1].Result.Status)
	assert.Error(t, outcomes[5].Err)
	assert.Equal(t, int32(5), runner.calls.Load())
}

func TestFormatOutcome(t *testing.T) {
	assert.Equal(t, "  [DETECTED    ] leaf.jpg: Brontispa 71.5% | TTA 4/5",
		formatOutcome(scanOutcome{File: "leaf.jpg", Result: detected("Brontispa", 71.5)}))
	assert.Equal(t, "  [OUT_OF_SCOPE] sky.jpg",
		formatOutcome(scanOutcome{File: "sky.jpg", Result: &inference.ClassificationResult{Success: true, Status: detection.StatusOutOfScope}}))
	assert.Equal(t, "  [FAILED      ] bad.jpg: Failed to load image: truncated",
		formatOutcome(scanOutcome{File: "bad.jpg", Result: &inference.ClassificationResult{Error: "Failed to load image: truncated"}}))
}

func TestWriteSummary(t *testing.T) {
	outcomes := []scanOutcome{
		{File: "a.jpg", Result: detected("Brontispa", 65)},
		{File: "b.jpg", Result: detected("Brontispa", 90)},
		{File: "c.jpg", Result: detected("Brontispa", 70)},
		{File: "d.jpg", Result: detected("Brontispa", 61)},
		{File: "e.jpg", Result: detected("White Grub", 80)},
		{File: "f.jpg", Result: &inference.ClassificationResult{Success: true, Status: detection.StatusOutOfScope}},
		{File: "g.jpg", Err: os.ErrNotExist},
	}

	var buf bytes.Buffer
	writeSummary(&buf, detection.DefaultLabels, outcomes)
	out := buf.String()

	assert.Contains(t, out, "Done! 7 images scanned.")
	assert.Contains(t, out, "OUT_OF_SCOPE: 1")
	assert.Contains(t, out, "FAILED: 1")
	assert.Contains(t, out, "Detections: 5")
	assert.Contains(t, out, "  Brontispa: 4 detections")
	assert.Contains(t, out, "     90.0% | TTA 4/5 | b.jpg")
	assert.Contains(t, out, "    ... +1 more")
	assert.NotContains(t, out, "d.jpg")
	assert.Contains(t, out, "  [     OK] Brontispa              - 4 images detected")
	assert.Contains(t, out, "  [MISSING] APW Adult              - 0 images detected")
	assert.Contains(t, out, "  APW Adult: ** NO DETECTIONS **")

	top := strings.Index(out, "b.jpg")
	second := strings.Index(out, "c.jpg")
	third := strings.Index(out, "a.jpg")
	assert.True(t, top < second && second < third, "hits sorted by confidence")
}

func TestPrintLabels(t *testing.T) {
	var buf bytes.Buffer
	printLabels(&buf, detection.DefaultLabels)
	assert.True(t, strings.HasPrefix(buf.String(), " 0  APW Adult\n"))
	assert.Contains(t, buf.String(), "7 labels")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "pestscan dev\n", buf.String())
}
