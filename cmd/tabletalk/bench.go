package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tabletalk/internal/bench"
	"tabletalk/internal/config"
	"tabletalk/internal/domain"
	"tabletalk/internal/provider"
	"tabletalk/internal/telemetry"
)

func newBenchCmd() *cobra.Command {
	var timeout time.Duration
	var queries []string

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark every configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runBench(configPath, queries, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall benchmark timeout")
	cmd.Flags().StringArrayVar(&queries, "query", nil, "benchmark query (repeatable, default battery when omitted)")

	return cmd
}

func runBench(configPath string, queries []string, timeout time.Duration) error {
	cfg := config.LoadOrDefault(configPath)

	if _, _, err := telemetry.Init(cfg); err != nil {
		return err
	}

	providers := make(map[string]domain.Provider)
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		kind, ok := domain.ParseKind(pc.Kind)
		if !ok {
			return fmt.Errorf("provider %q: unknown kind %q", name, pc.Kind)
		}
		p, err := provider.New(kind, name, pc.Options)
		if err != nil {
			if errors.Is(err, domain.ErrConfiguration) {
				return fmt.Errorf("provider %q misconfigured: %w", name, err)
			}
			slog.Warn("Provider unavailable, skipping", "provider", name, "error", err)
			continue
		}
		providers[name] = p
		defer p.Cleanup()
	}

	if len(providers) == 0 {
		return fmt.Errorf("no providers available to benchmark")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	results := bench.New(queries).Run(ctx, providers)
	printResults(results)
	return nil
}

func printResults(results map[string]domain.BenchmarkResult) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tAVG TIME\tSUCCESS\tQUERIES\tTOKENS/S")
	for _, name := range names {
		r := results[name]
		avg := "n/a"
		if !math.IsInf(r.AvgResponseTime, 1) {
			avg = fmt.Sprintf("%.2fs", r.AvgResponseTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%d\t%.1f\n",
			name, avg, r.SuccessRate*100, r.TotalQueries, r.TokensPerSecond)
	}
	w.Flush()
}
