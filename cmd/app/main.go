package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/nb2py/internal"
	"github.com/starford/nb2py/internal/transcoder"
	pkgconfig "github.com/starford/nb2py/pkg/config"
)

var version = "dev"

// loadConfig reads the config file (defaults when absent) and applies flag
// overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if p := cmd.String("policy"); p != "" {
		policy, err := transcoder.ParsePolicy(p)
		if err != nil {
			return nil, err
		}
		cfg.Convert.Policy = string(policy)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func convert(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	req := internal.ConvertRequest{
		Paths:  cmd.Args().Slice(),
		Output: cmd.String("output"),
		Stdout: cmd.Bool("stdout"),
	}
	return internal.Convert(ctx, req, internal.WithConfig(cfg))
}

func policyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "policy",
		Aliases: []string{"p"},
		Usage:   "Recovery policy for unanchored mutations and unterminated strings (drop, keep, fail)",
		Sources: cli.EnvVars("NB2PY_POLICY"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "nb2py",
		Usage:   "Convert Jupyter notebooks into runnable Python scripts",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Convert notebooks to scripts next to them",
				ArgsUsage: "NOTEBOOK.ipynb...",
				Flags: []cli.Flag{
					policyFlag(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Script path (single notebook only)",
					},
					&cli.BoolFlag{
						Name:  "stdout",
						Usage: "Print scripts instead of writing files",
					},
				},
				Action: convert,
			},
			{
				Name:   "serve",
				Usage:  "Watch the workspace and serve the HTTP API",
				Flags:  []cli.Flag{policyFlag()},
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve conversion tools over MCP stdio",
				Flags:  []cli.Flag{policyFlag()},
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
