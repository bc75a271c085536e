// Package cli implements versectl, which drives the orchestrator directly
// without the HTTP server.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/versekeeper/versekeeper/internal/config"
	"github.com/versekeeper/versekeeper/internal/orchestrator"
	"github.com/versekeeper/versekeeper/internal/verseref"
	"github.com/versekeeper/versekeeper/pkg/result"
	"github.com/versekeeper/versekeeper/pkg/server"
)

// ServiceFactory builds the facade a command runs against.
type ServiceFactory func() (*orchestrator.Service, error)

// FromEnv loads .env files and the environment, then builds the facade.
func FromEnv(envFiles ...string) ServiceFactory {
	return func() (*orchestrator.Service, error) {
		config.LoadDotEnv(envFiles...)
		return server.NewService(config.Load().AI)
	}
}

func Execute() error {
	return NewRoot(FromEnv()).Execute()
}

func NewRoot(newService ServiceFactory) *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)
	root := &cobra.Command{
		Use:           "versectl",
		Short:         "Query scripture and AI providers with automatic fallback",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall command timeout")

	env := &runEnv{newService: newService, asJSON: &asJSON, timeout: &timeout}
	root.AddCommand(
		fetchCmd(env),
		takeawayCmd(env),
		validateCmd(env),
		scoreCmd(env),
		searchCmd(env),
		providersCmd(env),
		testCmd(env),
	)
	return root
}

// runEnv is shared by every subcommand.
type runEnv struct {
	newService ServiceFactory
	asJSON     *bool
	timeout    *time.Duration
}

func (e *runEnv) service(cmd *cobra.Command) (*orchestrator.Service, context.Context, context.CancelFunc, error) {
	svc, err := e.newService()
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), *e.timeout)
	return svc, ctx, cancel, nil
}

// print writes v as JSON when --json is set, otherwise calls text.
func (e *runEnv) print(w io.Writer, v any, text func(io.Writer)) error {
	if *e.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// unwrap turns a failed result into a command error.
func unwrap[T any](r result.Result[T]) (T, error) {
	v, ok := r.Value()
	if !ok {
		return v, fmt.Errorf("%s", r.Message())
	}
	return v, nil
}

func fetchCmd(env *runEnv) *cobra.Command {
	var translation string
	cmd := &cobra.Command{
		Use:   "fetch <reference>",
		Short: "Fetch verse text, e.g. versectl fetch \"Romans 12:12-14\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := verseref.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}
			svc, ctx, cancel, err := env.service(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			verses, err := unwrap(svc.FetchScripture(ctx, ref, translation))
			if err != nil {
				return err
			}
			return env.print(cmd.OutOrStdout(), verses, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", ref, translation)
				for _, v := range verses {
					fmt.Fprintf(w, "%d\t%s\n", v.Number, v.Text)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&translation, "translation", "t", "ESV", "Bible translation")
	return cmd
}

func takeawayCmd(env *runEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "takeaway <reference>",
		Short: "Summarize the main point of a passage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := strings.Join(args, " ")
			svc, ctx, cancel, err := env.service(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			takeaway, err := unwrap(svc.GetKeyTakeaway(ctx, ref))
			if err != nil {
				return err
			}
			return env.print(cmd.OutOrStdout(), map[string]string{"reference": ref, "takeaway": takeaway}, func(w io.Writer) {
				fmt.Fprintln(w, takeaway)
			})
		},
	}
}

func validateCmd(env *runEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <reference> <takeaway>",
		Short: "Check a takeaway against a passage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, ctx, cancel, err := env.service(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			valid, err := unwrap(svc.ValidateKeyTakeaway(ctx, args[0], args[1]))
			if err != nil {
				return err
			}
			return env.print(cmd.OutOrStdout(), map[string]bool{"valid": valid}, func(w io.Writer) {
				if valid {
					fmt.Fprintln(w, "valid")
				} else {
					fmt.Fprintln(w, "not valid")
				}
			})
		},
	}
}

func scoreCmd(env *runEnv) *cobra.Command {
	var quote, application string
	cmd := &cobra.Command{
		Use:   "score <reference>",
		Short: "Score a direct quote and application",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := strings.Join(args, " ")
			svc, ctx, cancel, err := env.service(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			score, err := unwrap(svc.GetAIScore(ctx, ref, quote, application))
			if err != nil {
				return err
			}
			return env.print(cmd.OutOrStdout(), score, func(w io.Writer) {
				fmt.Fprintf(w, "Score: %d\n%s\n%s\n", score.ContextScore, score.Explanation, score.Feedback)
			})
		},
	}
	cmd.Flags().StringVarP(&quote, "quote", "q", "", "Direct quote as memorized")
	cmd.Flags().StringVarP(&application, "application", "a", "", "Personal application")
	return cmd
}

func searchCmd(env *runEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "search <description>",
		Short: "Find verses matching a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, ctx, cancel, err := env.service(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			refs, err := unwrap(svc.FindVersesByDescription(ctx, strings.Join(args, " ")))
			if err != nil {
				return err
			}
			names := make([]string, 0, len(refs))
			for _, r := range refs {
				names = append(names, r.String())
			}
			return env.print(cmd.OutOrStdout(), names, func(w io.Writer) {
				for _, n := range names {
					fmt.Fprintln(w, n)
				}
			})
		},
	}
}

func providersCmd(env *runEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List registered providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cancel, err := env.service(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			all := svc.Registry().All()
			descs := make([]any, 0, len(all))
			for _, p := range all {
				descs = append(descs, p.Descriptor())
			}
			return env.print(cmd.OutOrStdout(), descs, func(w io.Writer) {
				for _, p := range all {
					d := p.Descriptor()
					state := "unavailable"
					if d.Available {
						state = "available"
					}
					fmt.Fprintf(w, "%s\t%d\t%s\n", d.ID, d.Priority, state)
				}
			})
		},
	}
}

func testCmd(env *runEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check every provider with a minimal call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, ctx, cancel, err := env.service(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			report := svc.HealthCheck(ctx)
			return env.print(cmd.OutOrStdout(), report, func(w io.Writer) {
				for _, h := range report {
					if h.Healthy {
						fmt.Fprintf(w, "%s\tok\t%dms\n", h.ID, h.LatencyMs)
					} else {
						fmt.Fprintf(w, "%s\tfail\t%s\n", h.ID, h.Error)
					}
				}
			})
		},
	}
}
