package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hperssn/sages/internal/client"
	"github.com/hperssn/sages/internal/domain"
	"github.com/hperssn/sages/internal/observability"
	"github.com/hperssn/sages/internal/prefs"
	"github.com/hperssn/sages/internal/runner"
	"github.com/hperssn/sages/internal/tui"
)

type env struct {
	log       *zap.Logger
	prefs     *prefs.OnboardingState
	prefsPath string
	client    *client.Client
}

func setup(g *globalFlags) (*env, error) {
	log := zap.NewNop()
	if g.logFile != "" {
		l, err := observability.NewLogger(g.logLevel, false, g.logFile)
		if err != nil {
			return nil, err
		}
		log = l
	}

	path := g.prefs
	if path == "" {
		p, err := prefs.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("locate preferences: %w", err)
		}
		path = p
	}
	st, err := prefs.Load(path)
	if err != nil {
		return nil, err
	}

	if g.server != "" {
		st.ServerURL = g.server
	}
	if g.user != "" {
		st.User = g.user
	}

	return &env{
		log:       log,
		prefs:     st,
		prefsPath: path,
		client:    client.New(st.ServerURL, client.WithUser(st.User), client.WithLogger(log)),
	}, nil
}

func (e *env) savePrefs() {
	if err := e.prefs.Save(e.prefsPath); err != nil {
		e.log.Warn("save preferences failed", zap.String("path", e.prefsPath), zap.Error(err))
	}
}

func playCmd(g *globalFlags) *cobra.Command {
	var autoPlay bool

	cmd := &cobra.Command{
		Use:   "play <retreat-id>",
		Short: "Play a retreat step by step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid retreat id %q", args[0])
			}

			e, err := setup(g)
			if err != nil {
				return err
			}
			defer e.log.Sync() //nolint:errcheck

			if cmd.Flags().Changed("autoplay") {
				e.prefs.AutoPlay = autoPlay
				e.savePrefs()
			}

			out := cmd.OutOrStdout()
			if !e.prefs.Completed {
				fmt.Fprintln(out, "Each step has a short prompt. Timed steps count down once you press space; [n] moves on whenever you are ready.")
				e.prefs.Completed = true
				e.savePrefs()
			}

			retreat, err := e.client.GetRetreat(cmd.Context(), id)
			if err != nil {
				var loadErr *domain.LoadError
				if errors.As(err, &loadErr) && loadErr.IsNotFound() {
					return fmt.Errorf("retreat %d does not exist", id)
				}
				return err
			}

			r, err := runner.NewSessionRunner(uuid.NewString(), retreat, runner.Options{
				AutoPlay: e.prefs.AutoPlay,
				Logger:   e.log,
			})
			if err != nil {
				return err
			}
			defer r.Stop()

			rec := runner.NewRecorder(r.Store(), retreat.ID, e.client, func(*domain.CompletionRecord) {
				e.prefs.MarkSeen(retreat.ID)
				e.savePrefs()
			}, e.log)

			stored, err := tui.Run(r, rec)
			if err != nil {
				return err
			}
			if stored != nil {
				fmt.Fprintf(out, "Saved reflection %s.\n", stored.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoPlay, "autoplay", false, "Start each timed step automatically (saved for next time)")
	return cmd
}

func listCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available retreats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(g)
			if err != nil {
				return err
			}
			defer e.log.Sync() //nolint:errcheck

			retreats, err := e.client.ListRetreats(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tSTEPS\tLENGTH\t")
			for _, r := range retreats {
				seen := ""
				if e.prefs.Seen(r.ID) {
					seen = "done"
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%dm\t%s\n", r.ID, r.Title, r.StepCount, (r.TotalDuration+59)/60, seen)
			}
			return tw.Flush()
		},
	}
}
