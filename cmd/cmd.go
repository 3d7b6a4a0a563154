// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// batchFlags are the overrides shared by commands that start a batch.
func batchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "concurrency",
			Aliases: []string{"j"},
			Usage:   "Jobs running at once (1-20), overrides engine.concurrency",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Directory for downloaded videos, overrides engine.output_dir",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Report format: json, csv, markdown or txt",
			Value: "json",
		},
		&cli.StringFlag{
			Name:  "report-path",
			Usage: "Report file path (default: <output>/report_<run>.<ext>)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the batch result as JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

// sourceFlags select the jobs of a new batch and its generation settings.
func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "prompt",
			Aliases: []string{"p"},
			Usage:   "Prompt to generate, repeated --count times",
		},
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Usage:   "Number of videos to generate from --prompt",
			Value:   1,
		},
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Prompt file: one prompt per line, or CSV with id,prompt[,asset_path]",
		},
		&cli.StringFlag{
			Name:    "asset",
			Aliases: []string{"a"},
			Usage:   "Start frame image used with --prompt",
		},
		&cli.BoolFlag{
			Name:  "upscale",
			Usage: "Chain an upscale job after generation (landscape only)",
		},
		&cli.BoolFlag{
			Name:  "portrait",
			Usage: "Generate portrait videos",
		},
		&cli.StringFlag{
			Name:  "quality",
			Usage: "Upscale quality: 720p or 1080p",
		},
		&cli.StringFlag{
			Name:  "rotation",
			Usage: "Account rotation: static or round_robin",
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write an example configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "path",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   r.configName(),
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "status",
				Usage: "Show applied and pending migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SetupStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// runCommand starts a new batch.
func runCommand(r *Runner) *cli.Command {
	flags := append(sourceFlags(), batchFlags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:  "tui",
		Usage: "Show the interactive batch view",
	})

	return &cli.Command{
		Name:   "run",
		Usage:  "Generate a batch of videos across the configured accounts",
		Flags:  flags,
		Action: r.Run,
	}
}

// retryCommand re-runs the jobs of a stored run that did not succeed.
func retryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "retry",
		Usage: "Re-run failed and cancelled jobs of a previous run (default: latest)",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "run"},
		},
		Flags: append(batchFlags(), &cli.BoolFlag{
			Name:  "tui",
			Usage: "Show the interactive batch view",
		}),
		Action: r.Retry,
	}
}

// runsCommand inspects stored runs.
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect previous batch runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List runs, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only runs with this status (running, completed, partial, failed, stopped)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to list",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.RunsList,
			},
			{
				Name:  "show",
				Usage: "Show the records of a run",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "failed",
						Usage: "Only show jobs that did not succeed",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.RunsShow,
			},
			{
				Name:  "report",
				Usage: "Write a report for a stored run",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Report format: json, csv, markdown or txt",
						Value: "markdown",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Report file path",
					},
				},
				Action: r.RunsReport,
			},
			{
				Name:  "open",
				Usage: "Open the output directory of a run",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.RunsOpen,
			},
			{
				Name:  "delete",
				Usage: "Hide a run from listings",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.RunsDelete,
			},
		},
	}
}

// accountsCommand manages the configured credentials.
func accountsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "accounts",
		Aliases: []string{"acct"},
		Usage:   "Manage generation accounts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List configured accounts",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AccountsList,
			},
			{
				Name:  "check",
				Usage: "Verify that each account's session yields a token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Only check this account",
					},
				},
				Action: r.AccountsCheck,
			},
			{
				Name:  "import",
				Usage: "Build an account entry from a browser cURL command (Copy as cURL)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Account name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "curl-file",
						Usage:    "Path to .sh file containing cURL command",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "cookie-file",
						Usage: "Write the cookie to this file and reference it instead of inlining it",
					},
					&cli.BoolFlag{
						Name:  "append",
						Usage: "Append the entry to the configuration file",
					},
				},
				Action: r.AccountsImport,
			},
		},
	}
}

// tuiCommand starts a new batch in the interactive view.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Generate a batch of videos in the interactive view",
		Flags:   append(sourceFlags(), batchFlags()...),
		Action:  r.TUI,
	}
}
