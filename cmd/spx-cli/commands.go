package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"spxlab/internal/domain"
	"spxlab/internal/export"
	"spxlab/internal/httpapi"
	"spxlab/internal/report"
	"spxlab/internal/strategy"
	"spxlab/internal/util"
	"spxlab/pkg/spxlab"
)

func backtestCmd() *cobra.Command {
	var (
		short, long, days int
		period, anchor    string
		cash              float64
		asJSON            bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run an SMA crossover backtest",
		Example: `  spx-cli backtest --short 50 --long 200 --period 5y
  spx-cli backtest --short 20 --long 100 --days 730 --cash 25000 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var anchorTime time.Time
			if anchor != "" {
				t, err := time.Parse(domain.DateLayout, anchor)
				if err != nil {
					return fmt.Errorf("--anchor must be YYYY-MM-DD: %w", err)
				}
				anchorTime = t
			}
			if period != "" {
				d, ok := util.PresetDays(period)
				if !ok {
					return fmt.Errorf("unknown period %q", period)
				}
				days = d
			}

			var resp *httpapi.BacktestResponse
			if serverURL != "" {
				r, err := spxlab.NewClient(serverURL).Backtest(ctx, spxlab.BacktestParams{
					ShortWindow:  short,
					LongWindow:   long,
					DurationDays: days,
					InitialCash:  cash,
					Anchor:       anchorTime,
				})
				if err != nil {
					return err
				}
				resp = r
			} else {
				a, err := openApp(ctx)
				if err != nil {
					return err
				}
				defer a.Close()
				svc, err := a.Service()
				if err != nil {
					return err
				}
				b := a.Config.Backtest
				cfg := strategy.RunConfig{
					ShortWindow:  pick(short, b.ShortWindow),
					LongWindow:   pick(long, b.LongWindow),
					DurationDays: pick(days, b.DurationDays),
					InitialCash:  decimal.NewFromFloat(b.InitialCash),
					Anchor:       anchorTime,
				}
				if cash != 0 {
					cfg.InitialCash = decimal.NewFromFloat(cash)
				}
				resp, err = svc.Backtest(ctx, cfg)
				if err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			printBacktest(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&short, "short", 0, "short SMA window (default from config)")
	cmd.Flags().IntVar(&long, "long", 0, "long SMA window (default from config)")
	cmd.Flags().IntVar(&days, "days", 0, "analysis duration in calendar days")
	cmd.Flags().StringVar(&period, "period", "", "duration preset: 1y, 3y, 5y or max")
	cmd.Flags().Float64Var(&cash, "cash", 0, "initial cash")
	cmd.Flags().StringVar(&anchor, "anchor", "", "analysis end date, YYYY-MM-DD (default latest trading day)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func pick(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func printBacktest(w io.Writer, resp *httpapi.BacktestResponse) {
	fmt.Fprintf(w, "%s %d/%d over %s (%s to %s), source: %s\n\n",
		resp.Strategy, resp.Config.ShortWindow, resp.Config.LongWindow, resp.Period,
		resp.Resolved.Start.Format(domain.DateLayout), resp.Resolved.End.Format(domain.DateLayout), resp.Source)

	if d := resp.Display; d != nil {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Total return\t%s\n", d.TotalReturn)
		switch d.Status {
		case report.StatusWinRate:
			fmt.Fprintf(tw, "Win rate\t%s\n", d.WinRate)
		case report.StatusHolding:
			fmt.Fprintf(tw, "Win rate\tholding\n")
		default:
			fmt.Fprintf(tw, "Win rate\tno trades\n")
		}
		fmt.Fprintf(tw, "Trades\t%s\n", d.Trades)
		fmt.Fprintf(tw, "Max drawdown\t%s\n", d.MaxDrawdown)
		fmt.Fprintf(tw, "Exposure\t%s\n", d.Exposure)
		fmt.Fprintf(tw, "Final equity\t%s\n", d.FinalEquity)
		fmt.Fprintf(tw, "Buy and hold\t%s\n", d.Benchmark)
		tw.Flush()
		fmt.Fprintln(w)
	}
	fmt.Fprint(w, resp.Summary)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which price source is active and its coverage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var st *httpapi.StatusResponse
			if serverURL != "" {
				s, err := spxlab.NewClient(serverURL).Status(ctx)
				if err != nil {
					return err
				}
				st = s
			} else {
				a, err := openApp(ctx)
				if err != nil {
					return err
				}
				defer a.Close()
				svc, err := a.Service()
				if err != nil {
					return err
				}
				if st, err = svc.Status(ctx); err != nil {
					return err
				}
			}
			if !st.Available {
				fmt.Fprintf(cmd.OutOrStdout(), "No price data available: %s\n", st.Message)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Source: %s\nSymbol: %s\nBars:   %d\nRange:  %s to %s\n",
				st.Source, st.Symbol, st.Bars, st.FirstDate, st.LastDate)
			return nil
		},
	}
}

func fetchCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run the price pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			p, err := a.Pipeline()
			if err != nil {
				return err
			}
			if force {
				if err := p.Force(); err != nil {
					return err
				}
			}
			rep, err := p.RunOnce(ctx)
			if err != nil {
				return err
			}
			if rep.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "Already up to date for %s\n", rep.Anchor.Format(domain.DateLayout))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d bars, dropped %d, stored %d new rows, exported %d to %s\n",
				rep.Fetched, rep.Clean.Dropped(), rep.Appended, rep.Exported, rep.ExportPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rerun even if today's anchor already completed")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		rows int
		out  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the most recent rows to a CSV or Parquet snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if out == "" {
				out = a.Config.Pipeline.ExportPath
			}
			if rows == 0 {
				rows = a.Config.Pipeline.ExportRows
			}
			n, err := export.Snapshot(ctx, a.Store, rows, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s (%s)\n", n, out, export.FormatFor(out))
			return nil
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 0, "number of most recent rows (default from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path; .parquet selects Parquet (default from config)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

