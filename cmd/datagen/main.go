package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lodgetix/reconcile/internal/generator"
)

func main() {
	cfg := generator.DefaultConfig()
	var (
		registrations = flag.Int("registrations", cfg.NumRegistrations, "number of registrations to generate")
		exactShare    = flag.Float64("exact-id-share", cfg.ExactIDShare, "fraction of payments carrying a processor identifier linked to their registration")
		emailShare    = flag.Float64("email-amount-share", cfg.EmailAmountShare, "fraction of payments matchable by email and amount only")
		dateShare     = flag.Float64("amount-date-share", cfg.AmountDateShare, "fraction of payments matchable by amount and timing only")
		seed          = flag.Int64("seed", cfg.Seed, "random seed for deterministic generation")
		outputDir     = flag.String("output-dir", "data", "directory to write registrations.json and payments.json")
		writeStdout   = flag.Bool("stdout", false, "write combined dataset to stdout instead of files")
	)
	flag.Parse()

	genCfg := generator.Config{
		NumRegistrations: *registrations,
		ExactIDShare:     clampProbability(*exactShare),
		EmailAmountShare: clampProbability(*emailShare),
		AmountDateShare:  clampProbability(*dateShare),
		Seed:             *seed,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gen := generator.New(genCfg)
	dataset, err := gen.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
		os.Exit(1)
	}

	if *writeStdout {
		if err := json.NewEncoder(os.Stdout).Encode(dataset); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write dataset to stdout: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := generator.WriteDataset(dataset, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write dataset: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "Generated %d registrations and %d payments into %s\n", len(dataset.Registrations), len(dataset.Payments), *outputDir)
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
