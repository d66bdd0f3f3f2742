// Package repocache maintains a disk cache of shallow git clones keyed
// by repository identity. Prepare turns a repository reference string
// into a validated, up to date working tree, reusing a prior clone when
// it is fresh enough and re-syncing or re-cloning it when it is not.
// Work on one repository is serialised, different repositories are
// prepared in parallel. Disk usage is bounded by an idle ttl and a size
// budget, enforced opportunistically after successful prepares.
//
// # Logging:
//
// package takes slog reference for logging and prints logs up to 'trace' level
//
// Example:
//
//	loggerLevel  = new(slog.LevelVar)
//	levelStrings = map[string]slog.Level{
//		"trace": slog.Level(-8),
//		"debug": slog.LevelDebug,
//		"info":  slog.LevelInfo,
//		"warn":  slog.LevelWarn,
//		"error": slog.LevelError,
//	}
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//		Level: loggerLevel,
//	}))
//	loggerLevel.Set(levelStrings["trace"])
//
//	cache, err := New(conf, logger.With("logger", "git-cache"))
//	if err != nil {
//		panic(err)
//	}
package repocache
