package commands

import (
	"github.com/urfave/cli/v3"
)

// Root builds the studioctl command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:  "studioctl",
		Usage: "catalogstudio administration and generation tool",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment file path",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "database schema migrations",
				Commands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply all pending migrations",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "dir",
								Usage: "migrations directory",
								Value: "migrations",
							},
						},
						Action: MigrateUpAction,
					},
					{
						Name:  "down",
						Usage: "roll back applied migrations",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "dir",
								Usage: "migrations directory",
								Value: "migrations",
							},
							&cli.IntFlag{
								Name:  "steps",
								Usage: "number of migrations to roll back",
								Value: 1,
							},
						},
						Action: MigrateDownAction,
					},
				},
			},
			{
				Name:  "catalog",
				Usage: "products, reference assets and rendering intents",
				Commands: []*cli.Command{
					{
						Name:  "load",
						Usage: "create or re-sync entries from a JSON or YAML file",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "file",
								Usage:    "catalog file (.json, .yaml, .yml)",
								Required: true,
							},
						},
						Action: CatalogLoadAction,
					},
				},
			},
			{
				Name:  "apikey",
				Usage: "API key management",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "mint a new API key",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "name",
								Usage:    "key name, recorded as the actor on everything it creates",
								Required: true,
							},
							&cli.StringSliceFlag{
								Name:  "scope",
								Usage: "scope to grant (generate, admin); repeatable",
							},
						},
						Action: APIKeyCreateAction,
					},
					{
						Name:   "list",
						Usage:  "list active API keys",
						Action: APIKeyListAction,
					},
					{
						Name:  "revoke",
						Usage: "revoke an API key",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "id",
								Usage:    "key ID",
								Required: true,
							},
						},
						Action: APIKeyRevokeAction,
					},
				},
			},
			{
				Name:  "job",
				Usage: "batch generation jobs",
				Commands: []*cli.Command{
					{
						Name:  "submit",
						Usage: "run a job over products x intents and wait for it to finish",
						Flags: append(actorFlags(),
							&cli.StringSliceFlag{
								Name:     "product",
								Usage:    "product ID; repeatable",
								Required: true,
							},
							&cli.StringSliceFlag{
								Name:     "intent",
								Usage:    "rendering intent ID; repeatable",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "variant",
								Usage: "only use catalog assets whose variant matches",
							},
						),
						Action: JobSubmitAction,
					},
					{
						Name:  "status",
						Usage: "show job progress",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "id",
								Usage:    "job ID",
								Required: true,
							},
						},
						Action: JobStatusAction,
					},
					{
						Name:  "halt",
						Usage: "stop dispatching further units of a job",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "id",
								Usage:    "job ID",
								Required: true,
							},
						},
						Action: JobHaltAction,
					},
				},
			},
			{
				Name:  "generate",
				Usage: "generate one artifact synchronously",
				Flags: append(actorFlags(),
					&cli.StringFlag{
						Name:     "product",
						Usage:    "product ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "intent",
						Usage:    "rendering intent ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "reference-asset",
						Usage: "catalog asset to use as the reference image",
					},
					&cli.StringFlag{
						Name:  "base",
						Usage: "completed artifact to use as the reference image",
					},
					&cli.StringFlag{
						Name:  "parent",
						Usage: "completed artifact this one regenerates",
					},
				),
				Action: GenerateAction,
			},
			{
				Name:  "artifacts",
				Usage: "generated artifacts",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list a product's artifacts",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "product",
								Usage:    "product ID",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "intent",
								Usage: "only this rendering intent",
							},
						},
						Action: ArtifactsListAction,
					},
				},
			},
		},
	}
}

func actorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "actor",
			Usage:   "identity recorded on the job and its artifacts",
			Sources: cli.EnvVars("USER"),
			Value:   "studioctl",
		},
		&cli.StringFlag{
			Name:  "instructions",
			Usage: "extra instructions appended to the rendered prompt",
		},
		&cli.StringSliceFlag{
			Name:  "var",
			Usage: "template variable as name=value; repeatable",
		},
	}
}
