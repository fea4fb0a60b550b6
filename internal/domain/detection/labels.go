package detection

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"pestscan-server/internal/platform/errors"
)

// DefaultLabels maps class ids to pest names.
var DefaultLabels = []string{
	"APW Adult",
	"APW Larvae",
	"Brontispa",
	"Brontispa Pupa",
	"Rhinoceros Beetle",
	"Slug Caterpillar",
	"White Grub",
}

// OutOfScopeLabel is reported in place of a pest name when nothing qualifies.
const OutOfScopeLabel = "Out-of-Scope Pest Instance"

// LoadLabels reads one label per line, skipping blank lines.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindModel, "labels.load", "Labels file not found", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.KindModel, "labels.load", "read labels", err)
	}
	if len(labels) == 0 {
		return nil, errors.New(errors.KindModel, "labels.load", "labels file is empty")
	}
	return labels, nil
}

func labelFor(labels []string, classID int) string {
	if classID >= 0 && classID < len(labels) {
		return labels[classID]
	}
	return fmt.Sprintf("Unknown(%d)", classID)
}

func indexOf(labels []string, name string) int {
	for i, l := range labels {
		if l == name {
			return i
		}
	}
	return -1
}
