// Package snli reads the Stanford Natural Language Inference corpus.
package snli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"nli-data/internal/core/parsetree"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	Entailment    = 0
	Contradiction = 1
	Neutral       = 2

	TrainFile = "snli_1.0_train.txt"
	TestFile  = "snli_1.0_test.txt"

	SplitTrain = "train"
	SplitTest  = "test"
)

var labelSet = map[string]int{
	"entailment":    Entailment,
	"contradiction": Contradiction,
	"neutral":       Neutral,
}

var labelNames = []string{"entailment", "contradiction", "neutral"}

var ErrNoSuchSplit = errors.New("unknown snli split")

var (
	parenRe      = regexp.MustCompile(`[()]`)
	whitespaceRe = regexp.MustCompile(`\s{2,}`)
)

// ExtractText strips the brackets of a binary parse and collapses the
// leftover whitespace.
func ExtractText(s string) string {
	s = parenRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func LabelName(label int) string {
	if label < 0 || label >= len(labelNames) {
		return ""
	}
	return labelNames[label]
}

func ParseLabel(name string) (int, bool) {
	label, ok := labelSet[name]
	return label, ok
}

type Example struct {
	Premise    string
	Hypothesis string
	Label      int
}

// Corpus holds parallel premise, hypothesis and label slices of equal length.
type Corpus struct {
	Premises   []string
	Hypotheses []string
	Labels     []int
}

func (c Corpus) Len() int {
	return len(c.Labels)
}

func (c Corpus) Example(i int) Example {
	return Example{Premise: c.Premises[i], Hypothesis: c.Hypotheses[i], Label: c.Labels[i]}
}

func (c *Corpus) add(premise, hypothesis string, label int) {
	c.Premises = append(c.Premises, premise)
	c.Hypotheses = append(c.Hypotheses, hypothesis)
	c.Labels = append(c.Labels, label)
}

type ReadOptions struct {
	// Strict drops rows whose premise or hypothesis is not a well formed
	// binary parse.
	Strict bool
}

// SplitFile maps a split name to its file in the extracted corpus.
func SplitFile(split string) (string, error) {
	switch split {
	case SplitTrain:
		return TrainFile, nil
	case SplitTest:
		return TestFile, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrNoSuchSplit, split)
	}
}

func ReadSNLI(dataDir string, isTrain bool) (Corpus, error) {
	return ReadSNLIWithOptions(dataDir, isTrain, ReadOptions{})
}

func ReadSNLIWithOptions(dataDir string, isTrain bool, opts ReadOptions) (Corpus, error) {
	name := TestFile
	if isTrain {
		name = TrainFile
	}
	return ReadFile(filepath.Join(dataDir, name), opts)
}

func ReadFile(path string, opts ReadOptions) (Corpus, error) {
	file, err := os.Open(path)
	if err != nil {
		return Corpus{}, fmt.Errorf("error opening snli file: %w", err)
	}
	defer file.Close()

	corpus, err := ReadSNLIFromWithOptions(file, opts)
	if err != nil {
		return Corpus{}, fmt.Errorf("error reading snli file %s: %w", path, err)
	}

	slog.Info("read snli file", "path", path, "examples", corpus.Len())
	return corpus, nil
}

func ReadSNLIFrom(r io.Reader) (Corpus, error) {
	return ReadSNLIFromWithOptions(r, ReadOptions{})
}

func ReadSNLIFromWithOptions(r io.Reader, opts ReadOptions) (Corpus, error) {
	var corpus Corpus

	reader := bufio.NewReader(r)
	header := true
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if header {
				header = false
			} else {
				parseRow(&corpus, line, opts)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Corpus{}, err
		}
	}

	return corpus, nil
}

func parseRow(corpus *Corpus, line string, opts ReadOptions) {
	row := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(row) < 3 {
		return
	}

	label, ok := ParseLabel(row[0])
	if !ok {
		return
	}

	if opts.Strict {
		if _, err := parsetree.Parse(row[1]); err != nil {
			return
		}
		if _, err := parsetree.Parse(row[2]); err != nil {
			return
		}
	}

	corpus.add(ExtractText(row[1]), ExtractText(row[2]), label)
}
