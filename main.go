package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/airzone-integration/cmd"
)

func main() {
	app := &cli.App{
		Name:   "airzone-integration",
		Usage:  "mirrors airzone hvac systems into mqtt, postgres and an http api",
		Action: cmd.RunCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "poll airzone and serve the api (configured from the environment)",
				Action: cmd.RunCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "log-level",
						EnvVars: []string{"LOG_LEVEL"},
						Value:   "INFO",
					},
				},
			},
			{
				Name:   "hash-password",
				Usage:  "print a bcrypt hash for API_PASSWORD_HASH",
				Action: cmd.HashPasswordCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "password",
						EnvVars:  []string{"API_PASSWORD"},
						Required: true,
					},
				},
			},
			{
				Name:   "token",
				Usage:  "issue an api token signed with API_JWT_SECRET",
				Action: cmd.TokenCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "secret",
						EnvVars:  []string{"API_JWT_SECRET"},
						Required: true,
					},
					&cli.StringFlag{
						Name:    "subject",
						EnvVars: []string{"API_USERNAME"},
						Value:   "admin",
					},
					&cli.DurationFlag{
						Name:    "ttl",
						EnvVars: []string{"API_TOKEN_TTL"},
						Value:   24 * time.Hour,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
