package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"calmsession/internal/adapter/primary/web"
	"calmsession/internal/config"
	"calmsession/internal/domain"
	"calmsession/internal/logging"
	"calmsession/internal/usecase"
)

var (
	cfgPath   string
	verbosity int
)

// NewRootCmd creates the root CLI command.
// This is the primary adapter that translates CLI inputs to use case calls.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "calmsession",
		Short:         "Guided breathing and meditation sessions from the terminal",
		Long:          "Breathing exercises, synchronized voice/ambient meditations with a sleep timer, and ad-gated session admission.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "path to the config file")
	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log detail (-v, -vv, ... up to 4)")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.SetVerbosity(verbosity)
	}

	cmd.AddCommand(
		newBreatheCmd(),
		newPlayCmd(),
		newAdmitCmd(),
		newPremiumCmd(),
		newStatusCmd(),
		newHistoryCmd(),
		newServeCmd(),
		newConfigCmd(),
		newShellCmd(),
	)

	return cmd
}

// interruptContext is cancelled by Ctrl-C.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func newBreatheCmd() *cobra.Command {
	var (
		moodFlag     string
		durationFlag time.Duration
		countdown    int
		gated        bool
	)
	cmd := &cobra.Command{
		Use:   "breathe",
		Short: "Run a breathing exercise for a mood",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, release, err := acquireApp()
			if err != nil {
				return err
			}
			defer release()

			mood := a.cfg.Breathing.Mood
			if cmd.Flags().Changed("mood") {
				mood = moodFlag
			}
			m, err := domain.ParseMood(mood)
			if err != nil {
				return err
			}
			d := a.cfg.Breathing.Duration
			if cmd.Flags().Changed("duration") {
				d = durationFlag
			}
			if !cmd.Flags().Changed("countdown") {
				countdown = a.cfg.Breathing.Countdown
			}

			ctx, stop := interruptContext()
			defer stop()

			out := cmd.OutOrStdout()
			pattern, _ := domain.PatternForMood(m)
			fmt.Fprintf(out, "%s: inhale %ds, hold %ds, exhale %ds for %s\n", m, pattern.Inhale, pattern.Hold, pattern.Exhale, d)

			done := make(chan struct{})
			finished := closeOnce(done)
			sess, err := a.launcher.LaunchBreathing(ctx, usecase.LaunchRequest{
				Mood:      m,
				Duration:  d,
				Gated:     gated,
				Host:      "cli",
				Countdown: countdown,
				OnCountdown: func(left int) {
					if left > 0 {
						fmt.Fprintf(out, "Starting in %d...\n", left)
					}
				},
			}, func(c domain.SessionClock) {
				if c.Status == domain.StatusRunning || c.Finished {
					fmt.Fprintf(out, "%-7s %2ds %s  %ds left\n", c.Phase, c.PhaseRemaining, progressBar(c.PhaseProgress, 10), c.TotalRemaining)
				}
				if c.Finished {
					finished()
				}
			})
			if err != nil {
				return err
			}

			select {
			case <-done:
				fmt.Fprintln(out, "Session complete.")
			case <-ctx.Done():
				fmt.Fprintln(out, "\nSession stopped.")
			}
			sess.Close()
			return nil
		},
	}
	cmd.Flags().StringVar(&moodFlag, "mood", "calm", "calm, neutral, stressed or anxious")
	cmd.Flags().DurationVar(&durationFlag, "duration", 2*time.Minute, "session length, e.g. 90s, 5m")
	cmd.Flags().IntVar(&countdown, "countdown", 3, "seconds to count down before the first inhale")
	cmd.Flags().BoolVar(&gated, "gated", false, "require admission (rewarded ad unless premium)")
	return cmd
}

func newPlayCmd() *cobra.Command {
	var (
		voice, ambient string
		durationFlag   time.Duration
		moodFlag       string
		sleepFlag      time.Duration
		sleepAtEnd     bool
		gated          bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a guided meditation with voice and ambient tracks",
		Example: `  calmsession play --voice ./intro.m4a --ambient "virtual:rain?duration=90s" --duration 10m
  calmsession play --voice https://cdn.example.com/v.m4a?duration=4m --duration 8m --sleep-at-end`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if voice == "" && ambient == "" {
				return errors.New("at least one of --voice or --ambient is required")
			}
			if cmd.Flags().Changed("sleep") && sleepAtEnd {
				return errors.New("--sleep and --sleep-at-end are mutually exclusive")
			}
			a, release, err := acquireApp()
			if err != nil {
				return err
			}
			defer release()

			var mood domain.Mood
			if moodFlag != "" {
				if mood, err = domain.ParseMood(moodFlag); err != nil {
					return err
				}
			}

			ctx, stop := interruptContext()
			defer stop()

			out := cmd.OutOrStdout()
			done := make(chan struct{})
			ended := closeOnce(done)
			printer := &positionPrinter{out: out}
			sess, err := a.launcher.LaunchMeditation(ctx, usecase.LaunchRequest{
				Mood:         mood,
				Duration:     durationFlag,
				VoiceURL:     voice,
				AmbientURL:   ambient,
				Gated:        gated,
				Host:         "cli",
				SleepSeconds: int(sleepFlag / time.Second),
				SleepAtEnd:   sleepAtEnd,
			}, func(st domain.PlaybackState) {
				printer.print(st)
				if !st.Loaded || (!st.Playing && st.Position >= st.Duration) {
					ended()
				}
			})
			if err != nil {
				return err
			}

			select {
			case <-done:
				if sess.Player.State().Loaded {
					fmt.Fprintln(out, "Meditation complete.")
				} else {
					fmt.Fprintln(out, "Sleep timer stopped playback.")
				}
			case <-ctx.Done():
				fmt.Fprintln(out, "\nMeditation stopped.")
			}
			// Close waits for an in-flight outcome write before the database is released.
			sess.Close()
			return nil
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "voice track (path, file://, http(s):// or virtual:)")
	cmd.Flags().StringVar(&ambient, "ambient", "", "looping ambient track")
	cmd.Flags().DurationVar(&durationFlag, "duration", 10*time.Minute, "session length; may exceed the voice track")
	cmd.Flags().StringVar(&moodFlag, "mood", "", "mood recorded with the session")
	cmd.Flags().DurationVar(&sleepFlag, "sleep", 0, "stop playback after this much listening time")
	cmd.Flags().BoolVar(&sleepAtEnd, "sleep-at-end", false, "stop playback at the end of the session")
	cmd.Flags().BoolVar(&gated, "gated", true, "require admission (rewarded ad unless premium)")
	return cmd
}

func newAdmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "admit",
		Short: "Run the admission gate once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, release, err := acquireApp()
			if err != nil {
				return err
			}
			defer release()

			ctx, stop := interruptContext()
			defer stop()

			res, err := a.launcher.Admit(ctx, "cli")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted=%t reason=%s\n", res.Granted, res.Reason)
			return nil
		},
	}
}

func newPremiumCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "premium [on|off]",
		Short:     "Show or change the premium entitlement",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, release, err := acquireApp()
			if err != nil {
				return err
			}
			defer release()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintf(out, "premium=%t\n", a.premium.IsPremium())
				return nil
			}
			var on bool
			switch args[0] {
			case "on", "true":
				on = true
			case "off", "false":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			if err := a.SetPremium(on); err != nil {
				return err
			}
			fmt.Fprintf(out, "premium=%t\n", on)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show entitlement and ad inventory state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, release, err := acquireApp()
			if err != nil {
				return err
			}
			defer release()

			st := a.gate.Status()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "premium:  %t\n", a.premium.IsPremium())
			fmt.Fprintf(out, "ad ready: %t (loading=%t, showing=%t)\n", st.Ready, st.Loading, st.Pending)
			if st.LastError != nil {
				fmt.Fprintf(out, "last ad error: %v\n", st.LastError)
			}
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var (
		limit      int
		admissions bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, release, err := acquireApp()
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()
			if admissions {
				recs, err := a.history.Admissions(ctx, limit)
				if err != nil {
					return err
				}
				for _, r := range recs {
					fmt.Fprintf(out, "%s  granted=%-5t %s\n", r.CreatedAt.Format(time.DateTime), r.Granted, r.Reason)
				}
				return nil
			}
			recs, err := a.launcher.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "No sessions yet.")
				return nil
			}
			for _, r := range recs {
				fmt.Fprintf(out, "%s  %-10s %-8s %6s  %s\n",
					r.StartedAt.Format(time.DateTime), r.Kind, orDash(string(r.Mood)),
					time.Duration(r.TargetSeconds)*time.Second, r.Outcome)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().BoolVar(&admissions, "admissions", false, "list admission decisions instead")
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, release, err := acquireApp()
			if err != nil {
				return err
			}
			defer release()

			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Serve.Addr
			}

			ctx, stop := interruptContext()
			defer stop()

			srv := web.NewServer(a.launcher, a.gate, a, addr)
			fmt.Fprintf(cmd.OutOrStdout(), "calmsession API running at http://%s\n", addr)
			logging.Infof("HTTP API: http://%s", addr)

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7070", "HTTP listen address")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change settings",
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print the effective settings (YAML), or one key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.NewFileStore(cfgPath)
			if err != nil {
				return err
			}
			cfg, err := config.Resolve(store)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Fprint(cmd.OutOrStdout(), string(out))
				return nil
			}
			var tree map[string]any
			if err := yaml.Unmarshal(out, &tree); err != nil {
				return err
			}
			v, ok := lookup(tree, args[0])
			if !ok {
				return fmt.Errorf("unknown key %q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in the config file",
		Long:  "Keys: " + strings.Join(config.Keys(), ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.NewFileStore(cfgPath)
			if err != nil {
				return err
			}
			cfg, err := store.Load()
			if err != nil {
				return err
			}
			if err := config.Set(&cfg, args[0], args[1]); err != nil {
				return err
			}
			cfg, err = config.Normalize(cfg)
			if err != nil {
				return err
			}
			if err := store.Save(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s=%s\n", args[0], args[1])
			return nil
		},
	}
}

func newShellCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell that runs subcommands against one shared session engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cfgPath)
			if err != nil {
				return err
			}
			sh := newShell(a, cfgPath, cmd.OutOrStdout())
			defer sh.close()
			return sh.run(prompt)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "calm> ", "prompt string")
	return cmd
}
