package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/workhuntr/internal/classify"
	"github.com/kiranshivaraju/workhuntr/internal/scheduler"
	"github.com/kiranshivaraju/workhuntr/internal/store"
	"github.com/kiranshivaraju/workhuntr/pkg/jobquery"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

func newDiscoverCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery pass for the user and print the run record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := opts.user()
			if err != nil {
				return err
			}
			if err := checkATS(opts.targetATS); err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			run, err := a.runner.RunDiscovery(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("discovery: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), run)
		},
	}
	addQueryFlags(cmd, opts)
	return cmd
}

// addQueryFlags registers the flags that replace the preference-built queries.
func addQueryFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringArrayVarP(&opts.queries, "query", "q", nil, "search query to run instead of the built ones (repeatable)")
	cmd.Flags().StringVar(&opts.targetATS, "ats", "", "only search this ATS board: "+strings.Join(jobquery.ATSTypes(), ", "))
}

func checkATS(ats string) error {
	if ats == "" || slices.Contains(jobquery.ATSTypes(), strings.ToLower(strings.TrimSpace(ats))) {
		return nil
	}
	return fmt.Errorf("--ats must be one of %s", strings.Join(jobquery.ATSTypes(), ", "))
}

func newEnrichCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich",
		Short: "Retry salary extraction for stored jobs that still have no salary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := opts.user()
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.coord.EnrichBacklog(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("enrich: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Classify and store jobs from a JSON array of search results; '-' reads stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := opts.user()
			if err != nil {
				return err
			}
			hits, err := readHits(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.coord.Import(cmd.Context(), userID, hits)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

// readHits decodes a JSON array of search results. Extra fields, such as a
// previous classification, are ignored.
func readHits(stdin io.Reader, path string) ([]models.RawSearchHit, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var hits []models.RawSearchHit
	if err := json.NewDecoder(r).Decode(&hits); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return hits, nil
}

func newScoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Score the user's unscored jobs against their resume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := opts.user()
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.runner.RunScoring(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("scoring: %w", err)
			}
			if res.RequiresUpgrade {
				slog.Warn("AI match scoring requires a paid plan", "user_id", userID)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newJobsCmd(opts *options) *cobra.Command {
	var (
		limit  int
		scored bool
		ats    string
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List the user's discovered jobs, best match first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := opts.user()
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			jobs, total, err := a.jobs.ListDiscoveredJobs(cmd.Context(), store.JobFilter{
				UserID:     userID,
				ATSType:    ats,
				OnlyScored: scored,
				Page:       1,
				Limit:      limit,
			})
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tATS\tCOMPANY\tTITLE\tURL")
			for _, j := range jobs {
				score := "-"
				if j.MatchScore != nil {
					score = fmt.Sprint(*j.MatchScore)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", score, j.ATSType, j.CompanySlug, j.Title, j.URL)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d jobs\n", len(jobs), total)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum jobs to list")
	cmd.Flags().BoolVar(&scored, "scored", false, "only list scored jobs")
	cmd.Flags().StringVar(&ats, "ats", "", "only list jobs on this ATS")
	return cmd
}

func newQueriesCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Print the search queries discover would run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queries, err := opts.searchQueries()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), queries)
			}
			for _, q := range queries {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", q.Kind, q.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print queries as JSON")
	addQueryFlags(cmd, opts)
	return cmd
}

// searchQueries resolves the query flags the same way a discovery run does.
func (o *options) searchQueries() ([]jobquery.SearchQuery, error) {
	if qs := jobquery.CustomQueries(o.queries); len(qs) > 0 {
		return qs, nil
	}
	if o.targetATS != "" {
		return jobquery.QueryBuilder{}.ATSQueries(o.targetATS, o.preferences())
	}
	return jobquery.QueryBuilder{}.BuildQueries(o.preferences()), nil
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [url...]",
		Short: "Classify posting URLs by ATS platform and company; reads stdin when no URLs are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := args
			if len(urls) == 0 {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					if line := strings.TrimSpace(sc.Text()); line != "" {
						urls = append(urls, line)
					}
				}
				if err := sc.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ATS\tCOMPANY\tURL")
			for _, u := range urls {
				if classify.IsExcluded(u) {
					fmt.Fprintf(tw, "excluded\t-\t%s\n", u)
					continue
				}
				c, ok := classify.Classify(u)
				if !ok {
					fmt.Fprintf(tw, "unknown\t-\t%s\n", u)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ATSType, c.CompanySlug, u)
			}
			return tw.Flush()
		},
	}
}

func newServeSweepCmd(opts *options) *cobra.Command {
	var (
		interval    time.Duration
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "serve-sweep",
		Short: "Run discovery for every auto-discovery user on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if interval <= 0 {
				interval = a.cfg.Scheduler.Interval
			}
			if concurrency <= 0 {
				concurrency = a.cfg.Scheduler.Concurrency
			}

			s := scheduler.New(a.users, a.runner, interval, concurrency, scheduler.WithBacklog(a.coord))
			if err := s.Start(cmd.Context()); err != nil {
				return err
			}
			slog.Info("sweep scheduler started", "interval", interval, "concurrency", concurrency)

			<-cmd.Context().Done()
			s.Stop()
			a.runner.Wait()
			slog.Info("sweep scheduler stopped", "sweeps", s.Sweeps())
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between sweeps (default SCHEDULER_INTERVAL)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "users processed in parallel (default SWEEP_CONCURRENCY)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
