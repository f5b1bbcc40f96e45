package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

var (
	decomposeModels      []string
	decomposeTemperature float32
)

// decomposeCmd runs one goal against one or more models
var decomposeCmd = &cobra.Command{
	Use:   "decompose [goal]",
	Short: "Decompose a goal with one or more models",
	Long: `Decompose sends the goal to every --model concurrently and prints one
envelope per model, in the order the models were given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecompose,
}

func init() {
	decomposeCmd.Flags().StringArrayVarP(&decomposeModels, "model", "m", nil, "Logical model name (repeatable, default "+decomposer.DefaultModel+")")
	decomposeCmd.Flags().Float32VarP(&decomposeTemperature, "temperature", "t", decomposer.DefaultTemperature, "Sampling temperature")
}

// modelResult pairs a model with the envelope it produced.
type modelResult struct {
	Model    string              `json:"model"`
	Envelope decomposer.Envelope `json:"envelope"`
}

func runDecompose(cmd *cobra.Command, args []string) error {
	detach := observe(logger)
	defer detach()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	models := decomposeModels
	if len(models) == 0 {
		models = []string{decomposer.DefaultModel}
	}

	var temperature *float32
	if cmd.Flags().Changed("temperature") {
		temperature = &decomposeTemperature
	}

	results := fanOut(cmd.Context(), a.dispatcher, models, strings.Join(args, " "), temperature)
	if err := printResults(cmd.OutOrStdout(), results); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if !r.Envelope.Succeeded() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d models failed", failed, len(results))
	}
	return nil
}

// dispatcher is the part of decomposer.Dispatcher fanOut needs.
type dispatcher interface {
	Decompose(ctx context.Context, req decomposer.Request) decomposer.Envelope
}

// fanOut dispatches query to every model concurrently. Results keep the
// order of models.
func fanOut(ctx context.Context, d dispatcher, models []string, query string, temperature *float32) []modelResult {
	results := make([]modelResult, len(models))
	g, ctx := errgroup.WithContext(ctx)
	for i, model := range models {
		g.Go(func() error {
			results[i] = modelResult{
				Model: model,
				Envelope: d.Decompose(ctx, decomposer.Request{
					Model:       model,
					Query:       query,
					Temperature: temperature,
				}),
			}
			return nil
		})
	}
	// Decompose never returns an error; Wait only joins.
	_ = g.Wait()
	return results
}

func printResults(w io.Writer, results []modelResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
