package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"VelocityForecast/internal/app"
	"VelocityForecast/internal/config"
	"VelocityForecast/internal/inference"
	"VelocityForecast/internal/logging"
	"VelocityForecast/internal/usecase"
)

type cli struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "velocityforecast",
		Short:         "Forecast sprint velocity from issue tracker history",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if c.configPath != "" {
				c.cfg = config.LoadFrom(c.configPath)
			} else {
				c.cfg = config.Load()
			}
			c.logger = logging.NewWithWriter(cmd.ErrOrStderr(), c.cfg.Logging.Level, c.cfg.Logging.Format)
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to the YAML configuration (overrides VELOCITY_FORECAST_CONFIG)")

	root.AddCommand(
		c.stageCmd("seed", "Fetch raw tracker records and store them", func(cmd *cobra.Command, a *app.Application) error {
			records, err := a.Pipeline().Seed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d sprints, %d issues, %d transitions\n",
				len(records.Sprints), len(records.Issues), len(records.Transitions))
			return nil
		}),
		c.stageCmd("preprocess", "Normalize records into sprint, issue and velocity tables", func(cmd *cobra.Command, a *app.Application) error {
			res, err := a.Pipeline().Preprocess(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "preprocessed %d sprints, %d issues\n",
				len(res.Sprints.Sprints), len(res.Issues.Issues))
			return nil
		}),
		c.stageCmd("features", "Build the per-sprint feature table", func(cmd *cobra.Command, a *app.Application) error {
			table, err := a.Pipeline().BuildFeatures(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "built %d feature rows with %d columns\n", len(table.Rows), len(table.Columns))
			return nil
		}),
		c.stageCmd("train", "Fit the velocity model and save the artifact", func(cmd *cobra.Command, a *app.Application) error {
			art, err := a.Pipeline().Train(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trained run %s on %d rows\n", art.RunID, art.Rows)
			return nil
		}),
		c.stageCmd("pipeline", "Run preprocess, features and train once", func(cmd *cobra.Command, a *app.Application) error {
			return a.Run(cmd.Context())
		}),
		c.stageCmd("run", "Retrain on the configured schedule until interrupted", func(cmd *cobra.Command, a *app.Application) error {
			return a.Serve(cmd.Context())
		}),
		c.predictCmd(),
	)

	return root
}

func (c *cli) stageCmd(use, short string, run func(*cobra.Command, *app.Application) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, run)
		},
	}
}

func (c *cli) predictCmd() *cobra.Command {
	var (
		req    inference.Request
		notify bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the velocity of the next sprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(cmd *cobra.Command, a *app.Application) error {
				p := a.Pipeline()
				full, err := p.NextSprintRequest(cmd.Context(), req)
				if err != nil {
					return err
				}
				velocity, err := p.Forecast(cmd.Context(), full)
				if err != nil {
					return err
				}

				digest := usecase.ForecastDigest(full, velocity)
				fmt.Fprintln(cmd.OutOrStdout(), digest)
				if notify {
					return p.Announce(cmd.Context(), digest)
				}
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.StartDate, "start-date", "", "sprint start date (YYYY-MM-DD); derived from history when empty")
	flags.Float64Var(&req.PlannedStoryPoints, "planned-points", 0, "story points committed to the sprint")
	flags.IntVar(&req.PlannedIssueCount, "planned-issues", 0, "issues committed to the sprint")
	flags.BoolVar(&notify, "notify", false, "publish the forecast through the configured notifier")
	return cmd
}

func (c *cli) withApp(cmd *cobra.Command, run func(*cobra.Command, *app.Application) error) error {
	a, err := app.New(cmd.Context(), c.cfg, c.logger)
	if err != nil {
		c.logger.Error("startup failed", "error", err)
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			c.logger.Warn("close store", "error", cerr)
		}
	}()

	if err := run(cmd, a); err != nil {
		c.logger.Error("command failed", "command", cmd.Name(), "error", err)
		return err
	}
	return nil
}
