package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/okian/vidrank/internal/domain/matching"
	"github.com/okian/vidrank/internal/simulate"
	"github.com/okian/vidrank/pkg/logger"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func (c *cli) rankCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print the current ranking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			ranked, err := rt.svc.Rankings(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(ranked) > limit {
				ranked = ranked[:limit]
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "RANK\tRATING\tID\tTITLE\tDURATION")
			for _, r := range ranked {
				fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\t%s\n",
					humanize.Ordinal(r.Rank), r.Rating, r.Item.ID, r.Item.Title, r.Item.Duration)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "n", "n", 0, "print only the top n items (0 prints all)")
	return cmd
}

func (c *cli) recordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <id>",
		Short: "Show a stored choice record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			detail, err := rt.svc.Record(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rec := detail.Record
			fmt.Fprintf(out, "record %s (%s)\n", rec.ID, humanize.Time(rec.Created()))
			tw := newTable(out)
			fmt.Fprintln(tw, "ACTION\tID\tTITLE")
			for _, ch := range rec.ChoiceSet.Choices {
				title := "<unavailable>"
				if item, ok := detail.Items[ch.ItemID]; ok {
					title = item.Title
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ch.Action, ch.ItemID, title)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) analyzeCmd() *cobra.Command {
	var minSelects int
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Summarize per-item activity and the rating distribution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			a, err := rt.svc.Analyze(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			tw := newTable(out)
			fmt.Fprintln(tw, "RANK\tID\tRATING\tSELECTS\tNOTHINGS\tREMOVES")
			for _, it := range a.Items {
				if it.Selects < minSelects {
					continue
				}
				fmt.Fprintf(tw, "%d\t%s\t%.2f\t%d\t%d\t%d\n",
					it.Rank, it.ItemID, it.Rating, it.Selects, it.Nothings, it.Removes)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out)
			tw = newTable(out)
			fmt.Fprintln(tw, "RATING\tCOUNT")
			for _, b := range a.Histogram {
				fmt.Fprintf(tw, "[%.1f, %.1f)\t%d\n", b.Low, b.High, b.Count)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&minSelects, "min-selects", 0, "hide items selected fewer times")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print history and pool counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			st, err := rt.svc.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintf(tw, "records\t%s\n", humanize.Comma(int64(st.Records)))
			fmt.Fprintf(tw, "judged items\t%s\n", humanize.Comma(int64(st.JudgedItems)))
			fmt.Fprintf(tw, "excluded items\t%s\n", humanize.Comma(int64(st.ExcludedItems)))
			fmt.Fprintf(tw, "pool size\t%s\n", humanize.Comma(int64(st.PoolSize)))
			fmt.Fprintf(tw, "playlist\t%s\n", st.Playlist)
			fmt.Fprintf(tw, "batch size\t%d\n", st.BatchSize)
			fmt.Fprintf(tw, "default strategy\t%s\n", st.Strategy)
			return tw.Flush()
		},
	}
}

func (c *cli) matchCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Draw one batch of items to judge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st matching.Strategy
			if name != "" {
				var err error
				st, err = matching.FromName(name, matching.Params{
					FinetuneFraction:       c.cfg.FinetuneFraction,
					ByDateDays:             c.cfg.ByDateDays,
					BalancedRandomFraction: c.cfg.BalancedRandomFraction,
				})
				if err != nil {
					return err
				}
			}

			rt, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			items, err := rt.svc.Match(cmd.Context(), st)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tTITLE\tPUBLISHED")
			for _, it := range items {
				published := "-"
				if !it.PublishedAt.IsZero() {
					published = humanize.Time(it.PublishedAt)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ID, it.Title, published)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&name, "strategy", "", "strategy name (default: configured strategy)")
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load items and playlists from a YAML file into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			st, err := cat.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			logger.Get().Info(cmd.Context(), "catalog import finished",
				logger.String("file", args[0]),
				logger.Int("items", st.Items),
				logger.Int("playlists", st.Playlists),
				logger.Int("members", st.Members))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s items, %s playlists, %s memberships\n",
				humanize.Comma(int64(st.Items)), humanize.Comma(int64(st.Playlists)), humanize.Comma(int64(st.Members)))
			return nil
		},
	}
}

func (c *cli) simulateCmd() *cobra.Command {
	var (
		cfg      simulate.Config
		settings string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a running server with a synthetic judge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if settings != "" {
				cfg.Settings = []byte(settings)
			}
			report, err := simulate.Run(cmd.Context(), cfg, simulate.WithLogger(logger.Named("simulate")))
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintf(tw, "rounds\t%d\n", report.Rounds)
			fmt.Fprintf(tw, "records\t%d\n", report.Records)
			fmt.Fprintf(tw, "duplicates\t%d\n", report.Duplicates)
			fmt.Fprintf(tw, "ranked\t%d\n", report.Ranked)
			fmt.Fprintf(tw, "spearman\t%.3f\n", report.Spearman)
			fmt.Fprintf(tw, "duration\t%s\n", report.Duration.Round(time.Millisecond))
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:8000", "server base URL")
	f.IntVar(&cfg.Rounds, "rounds", simulate.DefaultRounds, "number of submissions")
	f.IntVar(&cfg.Selects, "selects", simulate.DefaultSelects, "items selected per batch")
	f.Float64Var(&cfg.Noise, "noise", simulate.DefaultNoise, "judge noise")
	f.Uint64Var(&cfg.Seed, "seed", 1, "judge seed")
	f.DurationVar(&cfg.Timeout, "timeout", simulate.DefaultTimeout, "per-request timeout")
	f.StringVar(&settings, "settings", "", "matching_settings JSON sent with every request")
	return cmd
}
