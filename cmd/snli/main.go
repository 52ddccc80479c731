package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"nli-data/cmd"
	"nli-data/internal/core/benchmark"
	"nli-data/internal/core/dataset"
	"nli-data/internal/core/snli"
	"nli-data/internal/storage"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

type options struct {
	dataDir   string
	batchSize int
	numSteps  int
	minFreq   int
	workers   int
	seed      uint64
	strict    bool
	bench     bool
	epochs    int
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.dataDir, "data-dir", "", "directory for downloaded corpora (default $DATA_DIR)")
	flag.IntVar(&opts.batchSize, "batch-size", 0, "examples per batch (default $BATCH_SIZE)")
	flag.IntVar(&opts.numSteps, "num-steps", 0, "tokens per padded sequence (default $NUM_STEPS)")
	flag.IntVar(&opts.minFreq, "min-freq", -1, "minimum token frequency for the vocabulary (default $MIN_FREQ)")
	flag.IntVar(&opts.workers, "workers", -1, "batch assembly workers (default $WORKERS)")
	flag.Uint64Var(&opts.seed, "seed", 0, "shuffle seed, 0 picks a random seed")
	flag.BoolVar(&opts.strict, "strict", false, "drop rows whose parses are not well formed")
	flag.BoolVar(&opts.bench, "benchmark", false, "compare sequential and worker pool batch assembly")
	flag.IntVar(&opts.epochs, "epochs", 3, "passes over the training set per benchmark run")

	// parses the flags above together with -env
	cmd.LoadEnvFile()
	return opts
}

func timePass(desc string, loader *dataset.Loader, epochs int) time.Duration {
	timer := benchmark.NewTimer()
	for epoch := range epochs {
		bar := progressbar.NewOptions(loader.NumBatches(),
			progressbar.OptionSetDescription(fmt.Sprintf("⏳ %s epoch %d", desc, epoch+1)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)

		timer.Start()
		for range loader.Batches() {
			bar.Add(1) //nolint:errcheck
		}
		timer.Stop()
		bar.Finish() //nolint:errcheck
	}
	fmt.Println(benchmark.Format(desc+" (avg epoch)", timer.Avg()))
	return timer.Sum()
}

func main() {
	opts := parseFlags()
	cfg := cmd.MustLoadConfig()

	if opts.dataDir != "" {
		cfg.Data.DataDir = opts.dataDir
	}
	if opts.batchSize > 0 {
		cfg.Data.BatchSize = opts.batchSize
	}
	if opts.numSteps > 0 {
		cfg.Data.NumSteps = opts.numSteps
	}
	if opts.minFreq >= 0 {
		cfg.Data.MinFreq = opts.minFreq
	}
	if opts.workers >= 0 {
		cfg.Data.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid options: %v", err)
	}

	var mirror storage.Provider
	if cfg.Storage.UseS3() {
		mirror = cmd.CreateStorage(context.Background(), cfg.Storage)
	}
	hub := cmd.CreateHub(cfg, mirror, os.Stderr)

	var (
		train, test *dataset.Loader
		err         error
	)
	benchmark.Time("load", func() {
		train, test, _, err = dataset.LoadDataSNLIWithOptions(context.Background(), hub, dataset.PipelineOptions{
			BatchSize: cfg.Data.BatchSize,
			NumSteps:  cfg.Data.NumSteps,
			MinFreq:   cfg.Data.MinFreq,
			Workers:   cfg.Data.Workers,
			Seed:      opts.seed,
			Read:      snli.ReadOptions{Strict: opts.strict},
		})
	})
	if err != nil {
		log.Fatalf("error loading SNLI: %v", err)
	}

	v := train.Dataset().Vocab()
	fmt.Printf("read %d train examples, %d test examples\n", train.Dataset().Len(), test.Dataset().Len())
	fmt.Printf("vocab size: %d\n", v.Len())

	for b := range train.Batches() {
		fmt.Printf("X[0] shape: %v\n", b.PremiseShape())
		fmt.Printf("X[1] shape: %v\n", b.HypothesisShape())
		fmt.Printf("Y shape: %v\n", b.LabelShape())
		break
	}

	if !opts.bench {
		return
	}

	ds := train.Dataset()
	sequential, err := dataset.NewLoader(ds, dataset.LoaderOptions{BatchSize: cfg.Data.BatchSize, Shuffle: true, Seed: opts.seed})
	if err != nil {
		log.Fatalf("error creating loader: %v", err)
	}
	seqTotal := timePass("sequential", sequential, opts.epochs)

	workers := max(cfg.Data.Workers, 2)
	pooled, err := dataset.NewLoader(ds, dataset.LoaderOptions{BatchSize: cfg.Data.BatchSize, Shuffle: true, Seed: opts.seed, Workers: workers})
	if err != nil {
		log.Fatalf("error creating loader: %v", err)
	}
	poolTotal := timePass(fmt.Sprintf("worker pool (%d)", workers), pooled, opts.epochs)

	if poolTotal > 0 {
		fmt.Printf("speedup: %.2fx\n", seqTotal.Seconds()/poolTotal.Seconds())
	}
}
