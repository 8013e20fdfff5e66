package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal"
	"caseflow/internal/calendar"
	"caseflow/internal/config"
	"caseflow/internal/container"
	"caseflow/internal/report"
	"caseflow/internal/session"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// options are the flags shared by every analysis command.
type options struct {
	file         string
	sheet        string
	targets      string
	granularity  string
	groupBy      string
	from         string
	to           string
	preset       string
	completeOnly bool
	asJSON       bool
}

func main() {
	_ = godotenv.Load()

	opts := &options{}
	rootCmd := &cobra.Command{
		Use:          "caseflow-cli",
		Short:        "Surgical case aggregation, ranking and forecasting",
		SilenceUsage: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.file, "file", "f", os.Getenv("EXCEL_FILE"), "Case file (.xlsx or .csv)")
	flags.StringVar(&opts.sheet, "sheet", os.Getenv("EXCEL_SHEET"), "Worksheet name (default first sheet)")
	flags.StringVar(&opts.targets, "targets", os.Getenv("TARGET_FILE"), "Weekly target file (.xlsx or .csv)")
	flags.StringVarP(&opts.granularity, "granularity", "g", "week", "day, week, month or quarter")
	flags.StringVar(&opts.groupBy, "group-by", "department", "all, department or surgeon")
	flags.StringVar(&opts.from, "from", "", "Window start (YYYY-MM-DD)")
	flags.StringVar(&opts.to, "to", "", "Window end (YYYY-MM-DD)")
	flags.StringVar(&opts.preset, "preset", "", "Window preset, e.g. last_4_complete_weeks or this_fiscal_year")
	flags.BoolVar(&opts.completeOnly, "complete-only", false, "Drop partial leading and trailing periods")
	flags.BoolVar(&opts.asJSON, "json", false, "Print JSON instead of a table")

	rootCmd.AddCommand(
		newAggregateCmd(opts),
		newRankCmd(opts),
		newForecastCmd(opts),
		newPerformanceCmd(opts),
		newRejectsCmd(opts),
		newReportCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// open loads the case file into a session configured from the shared flags.
func (o *options) open(tweak func(*session.Params)) (*container.Container, *session.Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.file == "" {
		return nil, nil, fmt.Errorf("no case file given (use --file or EXCEL_FILE)")
	}
	cfg.Data.ExcelFile, cfg.Data.Sheet, cfg.Data.TargetFile = o.file, o.sheet, o.targets

	logger := internal.NewLoggerTo(os.Stderr, internal.ParseLogLevel(cfg.LogLevel))
	c, err := container.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	params, err := o.params()
	if err != nil {
		return nil, nil, err
	}
	if tweak != nil {
		tweak(&params)
	}
	s, err := c.LoadDataset(params)
	if err != nil {
		return nil, nil, err
	}
	return c, s, nil
}

func (o *options) params() (session.Params, error) {
	p := session.DefaultParams()
	p.Granularity = caseload.Granularity(o.granularity)
	p.GroupBy = caseload.GroupBy(o.groupBy)
	p.CompleteOnly = o.completeOnly
	p.Preset = calendar.Preset(o.preset)
	if o.from != "" || o.to != "" {
		if o.from == "" || o.to == "" {
			return p, fmt.Errorf("--from and --to must be given together")
		}
		start, err := calendar.ParseDate(o.from)
		if err != nil {
			return p, err
		}
		end, err := calendar.ParseDate(o.to)
		if err != nil {
			return p, err
		}
		p.Window = caseload.NewDateRange(start, end)
	}
	return p, nil
}

func (o *options) print(w io.Writer, v any, table func(*tabwriter.Writer)) error {
	if o.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func newAggregateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Roll cases up by period and grouping key",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := opts.open(nil)
			if err != nil {
				return err
			}
			aggs, err := c.Engine.Aggregates(s)
			if err != nil {
				return err
			}
			cal := c.Calendar
			return opts.print(cmd.OutOrStdout(), aggs, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "PERIOD\tKEY\tCASES\tMINUTES\tBUSINESS DAYS\tPER BUSINESS DAY\tCOMPLETE")
				for _, a := range aggs {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%.0f\t%d\t%.2f\t%t\n",
						cal.Label(a.PeriodStart, a.Granularity), a.GroupingKey, a.CaseCount, a.TotalDuration,
						a.BusinessDayCount, a.PerBusinessDay(), a.IsComplete)
				}
			})
		},
	}
}

func newRankCmd(opts *options) *cobra.Command {
	var metric string
	var topN int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank grouping keys by case count or total duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := opts.open(func(p *session.Params) {
				p.Metric = caseload.Metric(metric)
				p.TopN = topN
			})
			if err != nil {
				return err
			}
			ranking, err := c.Engine.Ranking(s)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), ranking, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "RANK\tKEY\t%s\n", strings.ToUpper(metric))
				for _, e := range ranking {
					fmt.Fprintf(tw, "%d\t%s\t%.0f\n", e.Rank, e.GroupingKey, e.MetricValue)
				}
			})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "case_count", "case_count or total_duration")
	cmd.Flags().IntVar(&topN, "top-n", 10, "Number of ranks to keep (0 keeps all); ties at the cut are kept")
	return cmd
}

func newForecastCmd(opts *options) *cobra.Command {
	var horizon int
	var key, until string
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Select the best model on held-out periods and forecast",
		Long: `Forecast case counts for the hospital or one department.

Example: caseflow-cli forecast -f cases.xlsx -g week --key 整形外科 --until fiscal_year_end`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := opts.open(func(p *session.Params) {
				p.ForecastKey = key
				p.Horizon = horizon
			})
			if err != nil {
				return err
			}
			if until != "" {
				if s, err = horizonUntil(c, s, calendar.HorizonPreset(until)); err != nil {
					return err
				}
			}
			result, err := c.Engine.Forecast(cmd.Context(), s)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), result, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "model: %s (%s %.2f, %.0f%% interval)\n\n", result.ModelName, result.Metric, result.ValidationScore, result.Confidence*100)
				fmt.Fprintln(tw, "PERIOD\tFORECAST\tLOWER\tUPPER")
				for i, start := range result.PeriodStarts {
					fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%.1f\n", c.Calendar.Label(start, s.Params().Granularity),
						result.PointForecast[i], result.LowerBound[i], result.UpperBound[i])
				}
				fmt.Fprintln(tw, "\nCANDIDATE\tSTATUS\tSCORE\tREASON")
				for _, cand := range result.Candidates {
					fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", cand.ModelName, cand.Status, cand.Score, cand.Reason)
				}
			})
		},
	}
	cmd.Flags().IntVar(&horizon, "horizon", 4, "Number of periods to forecast")
	cmd.Flags().StringVar(&key, "key", caseload.AllKey, "Department to forecast, or ALL")
	cmd.Flags().StringVar(&until, "until", "", "Forecast up to fiscal_year_end, calendar_year_end or six_months (overrides --horizon)")
	return cmd
}

// horizonUntil sets the session horizon so the forecast reaches the preset end date.
func horizonUntil(c *container.Container, s *session.Session, preset calendar.HorizonPreset) (*session.Session, error) {
	series, err := c.Engine.ForecastSeries(s)
	if err != nil {
		return nil, err
	}
	end, err := c.Calendar.HorizonEnd(s.Table().Coverage().End, preset)
	if err != nil {
		return nil, err
	}
	last := series.PeriodStarts[series.Len()-1]
	h := c.Calendar.HorizonUntil(last, end, s.Params().Granularity)
	if h < 1 {
		return nil, core.NewValidationError("until", fmt.Sprintf("%s is not after the last period %s", core.FormatDate(end), core.FormatDate(last)))
	}
	p := s.Params()
	p.Horizon = h
	return s.WithParams(p)
}

func newPerformanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "performance",
		Short: "Report KPIs and progress against weekly department targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := opts.open(nil)
			if err != nil {
				return err
			}
			perf, err := c.Engine.Performance(s)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), perf, func(tw *tabwriter.Writer) {
				k := perf.KPI
				fmt.Fprintf(tw, "window %s: %d cases, %.1f per business day, median %.0f min, %d departments\n\n",
					k.Window, k.TotalCases, k.CasesPerBusinessDay, k.MedianDuration, k.Departments)
				if len(perf.Departments) == 0 {
					fmt.Fprintln(tw, "no targets loaded (use --targets)")
					return
				}
				fmt.Fprintln(tw, "DEPARTMENT\tWEEKLY AVG\tLATEST WEEK\tTARGET\tACHIEVEMENT %")
				for _, d := range perf.Departments {
					fmt.Fprintf(tw, "%s\t%.1f\t%d\t%.1f\t%.1f\n", d.Department, d.WeeklyAverage, d.LatestWeekCases, d.WeeklyTarget, d.AchievementRate)
				}
				fmt.Fprintln(tw, "\nWEEK\tCASES\tCUMULATIVE\tCUMULATIVE TARGET")
				for _, w := range perf.Cumulative {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f\n", core.FormatDate(w.WeekStart), w.Actual, w.CumulativeActual, w.CumulativeTarget)
				}
			})
		},
	}
}

func newRejectsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rejects",
		Short: "Show rows excluded during preprocessing and why",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := opts.open(nil)
			if err != nil {
				return err
			}
			rejects := s.Report
			return opts.print(cmd.OutOrStdout(), rejects, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "%d of %d rows rejected\n\n", rejects.Count, rejects.Count+s.Table().Len())
				fmt.Fprintln(tw, "REASON\tROWS")
				for _, reason := range rejects.Reasons() {
					fmt.Fprintf(tw, "%s\t%d\n", reason, rejects.ByReason[reason])
				}
				if len(rejects.Samples) > 0 {
					fmt.Fprintln(tw, "\nROW\tREASON\tDETAIL")
					for _, r := range rejects.Samples {
						fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Row, r.Reason, r.Detail)
					}
				}
			})
		},
	}
}

func newReportCmd(opts *options) *cobra.Command {
	var out string
	var asHTML bool
	var horizon int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write ranking, forecast and performance as a Markdown or HTML document",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := opts.open(func(p *session.Params) { p.Horizon = horizon })
			if err != nil {
				return err
			}
			analysis, err := c.Engine.Analyze(cmd.Context(), s)
			if err != nil {
				return err
			}
			perf, err := c.Engine.Performance(s)
			if err != nil {
				c.Logger.Warn("performance section skipped: %v", err)
				perf = nil
			}

			doc := report.Markdown(c.Calendar, analysis, perf)
			if asHTML || strings.HasSuffix(strings.ToLower(out), ".html") {
				doc = report.HTML(doc)
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(doc)
				return err
			}
			return os.WriteFile(out, doc, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout; .html implies --html)")
	cmd.Flags().BoolVar(&asHTML, "html", false, "Render HTML instead of Markdown")
	cmd.Flags().IntVar(&horizon, "horizon", 4, "Number of periods to forecast")
	return cmd
}
