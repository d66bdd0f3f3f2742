package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/utilitywarehouse/git-cache/repocache"
)

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	defaultCacheRoot = path.Join(os.TempDir(), "git-cache")

	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Sources: cli.EnvVars("GIT_CACHE_CONFIG"),
			Usage:   "Absolute path to the config file.",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Value:   "info",
			Usage:   "Log level",
		},
		&cli.StringFlag{
			Name:    "cache-dir",
			Sources: cli.EnvVars("GIT_CACHE_DIR"),
			Usage:   "Absolute path to the cache root, overrides the config file.",
		},
		&cli.StringFlag{
			Name:    "github-token",
			Sources: cli.EnvVars("GIT_CACHE_GITHUB_TOKEN", "GITHUB_TOKEN"),
			Usage:   "Personal access token for https remotes, overrides the config file.",
		},
	}
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

// setupManager builds the cache manager from the config file and cli
// overrides.
func setupManager(c *cli.Command) (*repocache.Manager, error) {
	// set log level according to argument
	if v, ok := levelStrings[strings.ToLower(c.String("log-level"))]; ok {
		loggerLevel.Set(v)
	}

	conf := &repocache.Config{}
	if p := c.String("config"); p != "" {
		var err error
		conf, err = parseConfigFile(p)
		if err != nil {
			return nil, fmt.Errorf("unable to parse config file err:%w", err)
		}
	}

	if v := c.String("cache-dir"); v != "" {
		conf.Root = v
	}
	if conf.Root == "" {
		conf.Root = defaultCacheRoot
	}
	if v := c.String("github-token"); v != "" {
		conf.Auth.Password = v
	}

	cache, err := repocache.New(*conf, logger.With("logger", "git-cache"))
	if err != nil {
		return nil, err
	}

	// remove leftovers of crashed clones before serving
	cache.CleanupOrphans()

	return cache, nil
}

func main() {
	cmd := &cli.Command{
		Name:  "git-cache",
		Usage: "git-cache prepares cached local working trees of remote git repositories.",
		Flags: flags,
		Commands: []*cli.Command{
			{
				Name:      "prepare",
				Usage:     "clone or refresh the referenced repository and print its working tree path",
				ArgsUsage: "<reference>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "ref",
						Usage: "branch, tag or commit hash to check out, defaults to the remote default branch",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("exactly one repository reference is required")
					}
					cache, err := setupManager(c)
					if err != nil {
						return err
					}
					handle, err := cache.Prepare(ctx, c.Args().First(), c.String("ref"))
					if err != nil {
						return err
					}
					fmt.Println(handle.Dir)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "list cached repositories",
				Action: func(ctx context.Context, c *cli.Command) error {
					cache, err := setupManager(c)
					if err != nil {
						return err
					}
					entries, err := cache.ListEntries()
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "KEY\tREF\tLAST FETCH\tLAST ACCESS\tSIZE\tDIR")
					for _, e := range entries {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
							e.Key, e.Ref,
							e.LastFetchedAt.Format("2006-01-02 15:04:05"),
							e.LastAccessedAt.Format("2006-01-02 15:04:05"),
							e.SizeBytes, e.Dir)
					}
					return w.Flush()
				},
			},
			{
				Name:      "refs",
				Usage:     "list branches and tags of the referenced repository",
				ArgsUsage: "<reference>",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("exactly one repository reference is required")
					}
					cache, err := setupManager(c)
					if err != nil {
						return err
					}
					refs, err := cache.ListRefs(ctx, c.Args().First())
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "TYPE\tNAME\tHASH")
					for _, r := range refs {
						fmt.Fprintf(w, "%s\t%s\t%s\n", r.Type, r.Name, r.Hash)
					}
					return w.Flush()
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("failed to run app", "err", err)
		os.Exit(1)
	}
}
