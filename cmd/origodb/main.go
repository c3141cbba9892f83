// Command origodb is a CLI harness around the examples/counter Model,
// following the flag-parsing and graceful-shutdown shape of the teacher's
// infra/server/runner.go: a top-level app with subcommands, each opening the
// engine at --dir, doing one thing, and closing it again.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	origodb "github.com/anthrax3/OrigoDB"
	"github.com/anthrax3/OrigoDB/examples/counter"
	"github.com/anthrax3/OrigoDB/journal"
	"github.com/anthrax3/OrigoDB/serializer"
	"github.com/anthrax3/OrigoDB/storage"
)

const defaultSegmentSize = 64 * 1024 * 1024 // 64MB

func main() {
	app := &cli.App{
		Name:  "origodb",
		Usage: "drive an example origodb counter engine from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Usage:    "engine storage/journal directory",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "journal-segment-size",
				Value: "64MB",
				Usage: "journal segment size (e.g. 64MB, 128MB)",
			},
			&cli.BoolFlag{
				Name:  "journal-mmap",
				Usage: "back journal segments with mmap instead of plain file I/O",
			},
			&cli.BoolFlag{
				Name:  "badger",
				Usage: "use badger instead of the default file-based snapshot storage",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "log output file (defaults to stderr)",
			},
		},
		Commands: []*cli.Command{
			createCommand,
			addCommand,
			setCommand,
			getCommand,
			inspectCommand,
			snapshotCommand,
			serveCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var createCommand = &cli.Command{
	Name:  "create",
	Usage: "initialize a new counter at --dir",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Value: "default", Usage: "counter name"},
	},
	Action: func(c *cli.Context) error {
		config, err := buildConfig(c)
		if err != nil {
			return err
		}
		e, err := origodb.Create(config, counter.New(c.String("name")))
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}
		return e.Close()
	},
}

var addCommand = &cli.Command{
	Name:      "increment",
	Usage:     "add a delta to the counter",
	ArgsUsage: "<delta>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("increment requires exactly one argument: <delta>")
		}
		delta, err := strconv.Atoi(c.Args().Get(0))
		if err != nil {
			return fmt.Errorf("parsing delta: %w", err)
		}

		return withEngine(c, func(e *origodb.Engine) error {
			result, err := e.ExecuteCommand(&counter.Adjust{Type: counter.AdjustAdd, By: delta}, "cli")
			if err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		})
	},
}

var setCommand = &cli.Command{
	Name:      "set",
	Usage:     "set the counter to an exact value",
	ArgsUsage: "<value>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("set requires exactly one argument: <value>")
		}
		to, err := strconv.Atoi(c.Args().Get(0))
		if err != nil {
			return fmt.Errorf("parsing value: %w", err)
		}

		return withEngine(c, func(e *origodb.Engine) error {
			result, err := e.ExecuteCommand(&counter.Adjust{Type: counter.AdjustSet, To: to}, "cli")
			if err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		})
	},
}

var getCommand = &cli.Command{
	Name:  "get",
	Usage: "print the current counter value",
	Action: func(c *cli.Context) error {
		return withEngine(c, func(e *origodb.Engine) error {
			result, err := e.ExecuteQuery(counter.GetValue{}, "cli")
			if err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		})
	},
}

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "print the effective configuration and current counter value",
	Action: func(c *cli.Context) error {
		config, err := buildConfig(c)
		if err != nil {
			return err
		}
		fmt.Println(config.String())

		return withEngine(c, func(e *origodb.Engine) error {
			result, err := e.ExecuteQuery(counter.GetValue{}, "cli")
			if err != nil {
				return err
			}
			fmt.Println("value:", result)
			return nil
		})
	},
}

var snapshotCommand = &cli.Command{
	Name:  "snapshot",
	Usage: "take a named snapshot and rotate the journal",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Value: "manual", Usage: "snapshot name"},
	},
	Action: func(c *cli.Context) error {
		return withEngine(c, func(e *origodb.Engine) error {
			return e.CreateSnapshot(c.String("name"))
		})
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "open the engine and idle until interrupted, taking a snapshot on shutdown",
	Action: func(c *cli.Context) error {
		config, err := buildConfig(c)
		if err != nil {
			return err
		}
		config.SnapshotBehavior = origodb.SnapshotOnShutdown

		e, err := origodb.LoadOrCreate(config, func() origodb.Model { return counter.New("default") })
		if err != nil {
			return fmt.Errorf("opening engine: %w", err)
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		config.LoggerOrNoop().Info("shutting down")
		return e.Close()
	},
}

// withEngine opens the engine at --dir, runs fn, then closes it regardless
// of fn's outcome, surfacing whichever error came first.
func withEngine(c *cli.Context, fn func(e *origodb.Engine) error) error {
	config, err := buildConfig(c)
	if err != nil {
		return err
	}

	e, err := origodb.Load(config, func() origodb.Model { return counter.New("default") })
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}

	runErr := fn(e)
	closeErr := e.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func buildConfig(c *cli.Context) (origodb.Config, error) {
	segmentSize, err := parseSize(c.String("journal-segment-size"), defaultSegmentSize)
	if err != nil {
		return origodb.Config{}, fmt.Errorf("invalid journal-segment-size: %w", err)
	}

	logger, err := buildLogger(c.String("log-file"))
	if err != nil {
		return origodb.Config{}, fmt.Errorf("creating logger: %w", err)
	}

	config := origodb.Config{
		Location: c.String("dir"),
		Logger:   logger,
		JournalFactory: func(location string, s serializer.Serializer) (journal.CommandJournal, error) {
			return journal.NewFileJournal(journal.Options{
				Dir:          location,
				Serializer:   s,
				SegmentSize:  segmentSize,
				MemoryMapped: c.Bool("journal-mmap"),
			}), nil
		},
	}

	if c.Bool("badger") {
		config.StorageFactory = func(location string, s serializer.Serializer) (storage.Storage, error) {
			return storage.OpenBadgerStorage(location, s)
		}
	}

	return config, nil
}

func buildLogger(logFile string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if logFile != "" {
		cfg.OutputPaths = []string{logFile}
		cfg.ErrorOutputPaths = []string{logFile}
	}
	return cfg.Build()
}

// parseSize parses a size string like "64MB", "1GB", or a plain number
// (bytes), returning defaultVal for an empty string, following the same
// suffix table the teacher's runner uses for its own WAL flags.
func parseSize(s string, defaultVal int64) (int64, error) {
	if s == "" {
		return defaultVal, nil
	}

	s = strings.TrimSpace(strings.ToUpper(s))

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "KB"):
		multiplier, s = 1024, strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "MB"):
		multiplier, s = 1024*1024, strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "GB"):
		multiplier, s = 1024*1024*1024, strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "K"):
		multiplier, s = 1024, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier, s = 1024*1024, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier, s = 1024*1024*1024, strings.TrimSuffix(s, "G")
	}

	val, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return val * multiplier, nil
}
