package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"caseflow/adapters/excel"
	"caseflow/internal"
	"caseflow/internal/calendar"
	"caseflow/internal/config"
	"caseflow/internal/container"
	"caseflow/internal/session"
	"caseflow/internal/testkit"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "caseflow-dev",
		Short: "Caseflow development tools",
	}

	rootCmd.AddCommand(
		newGenerateCmd(),
		newSmokeTestCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type generateFlags struct {
	from, to    string
	departments string
	seed        int64
	mean        float64
	malformed   float64
	duplicates  float64
}

func (f *generateFlags) register(cmd *cobra.Command) {
	d := testkit.DefaultCaseConfig()
	cmd.Flags().StringVar(&f.from, "from", "", "First case date (YYYY-MM-DD, default generator start)")
	cmd.Flags().StringVar(&f.to, "to", "", "Last case date (YYYY-MM-DD, default generator end)")
	cmd.Flags().StringVar(&f.departments, "departments", "", "Comma separated department names")
	cmd.Flags().Int64Var(&f.seed, "seed", d.Seed, "Random seed")
	cmd.Flags().Float64Var(&f.mean, "mean", d.BusinessDayMean, "Cases per department per business day")
	cmd.Flags().Float64Var(&f.malformed, "malformed", d.MalformedRate, "Share of rows with a broken date or duration")
	cmd.Flags().Float64Var(&f.duplicates, "duplicates", d.DuplicateRate, "Share of duplicated rows")
}

func (f *generateFlags) config() (testkit.CaseGeneratorConfig, error) {
	cfg := testkit.DefaultCaseConfig()
	cfg.Seed, cfg.BusinessDayMean = f.seed, f.mean
	cfg.MalformedRate, cfg.DuplicateRate = f.malformed, f.duplicates
	if f.from != "" {
		d, err := calendar.ParseDate(f.from)
		if err != nil {
			return cfg, err
		}
		cfg.StartDate = d
	}
	if f.to != "" {
		d, err := calendar.ParseDate(f.to)
		if err != nil {
			return cfg, err
		}
		cfg.EndDate = d
	}
	if f.departments != "" {
		cfg.Departments = nil
		for _, dept := range strings.Split(f.departments, ",") {
			if dept = strings.TrimSpace(dept); dept != "" {
				cfg.Departments = append(cfg.Departments, dept)
			}
		}
	}
	if cfg.EndDate.Before(cfg.StartDate) {
		return cfg, fmt.Errorf("--to is before --from")
	}
	return cfg, nil
}

func newGenerateCmd() *cobra.Command {
	flags := &generateFlags{}
	var out string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic case file (.csv or .xlsx)",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := flags.config()
			if err != nil {
				return err
			}
			c, err := container.New(config.Default(), internal.Discard())
			if err != nil {
				return err
			}
			records := testkit.NewCaseGenerator(gen, c.Calendar).GenerateRecords()

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := excel.WriteCases(f, excel.FileType(out), records); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Printf("wrote %d rows to %s\n", len(records), out)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "cases.xlsx", "Output file")
	return cmd
}

func newSmokeTestCmd() *cobra.Command {
	flags := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the full pipeline on generated data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmokeTests(cmd.Context(), flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runSmokeTests(ctx context.Context, flags *generateFlags) error {
	gen, err := flags.config()
	if err != nil {
		return err
	}
	c, err := container.New(config.Default(), internal.NewLogger(internal.LogLevelInfo))
	if err != nil {
		return err
	}
	records := testkit.NewCaseGenerator(gen, c.Calendar).GenerateRecords()

	started := time.Now()
	s, err := c.Engine.Open("smoke", records, session.DefaultParams())
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	fmt.Printf("✓ ingest: %d cases, %d rejected\n", s.Table().Len(), s.Report.Count)

	analysis, err := c.Engine.Analyze(ctx, s)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	fmt.Printf("✓ aggregate: %d rows\n", len(analysis.Aggregates))
	fmt.Printf("✓ rank: %d entries\n", len(analysis.Ranking))
	if analysis.Forecast == nil {
		return fmt.Errorf("forecast: %s", analysis.ForecastError)
	}
	fmt.Printf("✓ forecast: %s selected, %d periods\n", analysis.Forecast.ModelName, analysis.Forecast.Horizon())

	// Replaying the same input must give the same forecast.
	again, err := c.Engine.Forecast(ctx, s)
	if err != nil {
		return fmt.Errorf("forecast replay: %w", err)
	}
	for i, v := range analysis.Forecast.PointForecast {
		if again.PointForecast[i] != v {
			return fmt.Errorf("forecast replay differs at period %d: %v != %v", i, again.PointForecast[i], v)
		}
	}
	fmt.Println("✓ determinism")

	fmt.Printf("smoke tests passed in %s\n", time.Since(started).Round(time.Millisecond))
	return nil
}
