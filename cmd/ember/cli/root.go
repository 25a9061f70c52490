package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mwantia/ember/pkg/alloc"
	"github.com/mwantia/ember/pkg/config"
	"github.com/mwantia/ember/pkg/hotreload"
	"github.com/mwantia/ember/pkg/repl"
	"github.com/mwantia/ember/pkg/runtime"
	"github.com/mwantia/ember/pkg/watcher"
)

func NewRootCommand(info VersionInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ember [script]",
		Short: "Ember - embedded scripting runtime",
		Long: `Ember hosts a JavaScript engine with pluggable memory allocation,
hot reload of scripts with protected-global rollback, and file-change
monitoring that drives automatic reload.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			log, closeLog, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			mgr := runtime.NewWithAllocator(newAllocator(cfg.Allocator, log))
			mgr.SetLogger(log)
			defer mgr.Close()

			for _, name := range cfg.Protected {
				mgr.AddProtectedTable(name)
			}
			for _, s := range cfg.Scripts {
				if r := mgr.RegisterHotReloadScript(s.Name, s.Path); r.IsError() {
					return fmt.Errorf("failed to register '%s': %s", s.Name, r.Err())
				}
			}

			watch, _ := cmd.Flags().GetBool("watch")
			interactive, _ := cmd.Flags().GetBool("interactive")

			if len(args) == 1 {
				path := args[0]
				if watch {
					name := filepath.Base(path)
					if r := mgr.RegisterHotReloadScript(name, path); r.IsError() {
						return fmt.Errorf("failed to register '%s': %s", name, r.Err())
					}
				} else {
					result := mgr.ExecuteFile(path)
					if result.IsError() {
						return fmt.Errorf("%s", result.Err())
					}
				}
			}

			if command, _ := cmd.Flags().GetString("command"); command != "" {
				result := mgr.ExecuteScript(command)
				if result.IsError() {
					return fmt.Errorf("%s", result.Err())
				}
			}

			switch {
			case interactive:
				return repl.RunTUI(mgr)
			case watch:
				return watchLoop(mgr, cfg.Watcher, log)
			default:
				return nil
			}
		},
	}

	cmd.Flags().BoolP("interactive", "i", false, "Start the interactive REPL")
	cmd.Flags().BoolP("watch", "w", false, "Watch registered scripts and hot-reload on change")
	cmd.Flags().StringP("command", "c", "", "Execute a single expression")
	cmd.Flags().String("config", "", "Path to the runtime configuration file")
	cmd.Version = fmt.Sprintf("%s.%s", info.Version, info.Commit)

	return cmd
}

// newLogger builds the zerolog sink: console on stderr, plus a rotated log
// file when one is configured.
func newLogger(cfg config.LogConfig) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr}
	closeLog := func() {}

	var sink io.Writer = console
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // MiB
			MaxBackups: 3,
		}
		closeLog = func() { rotated.Close() }
		sink = zerolog.MultiLevelWriter(console, rotated)
	}

	return zerolog.New(sink).Level(level).With().Timestamp().Logger(), closeLog, nil
}

func newAllocator(cfg config.AllocConfig, log zerolog.Logger) alloc.Allocator {
	switch cfg.Strategy {
	case "stack":
		s := alloc.NewStack(cfg.StackSize)
		s.SetLogger(log)
		return s
	case "pool":
		p, err := alloc.NewPool(cfg.BlockSize, cfg.BlockCount)
		if err != nil {
			log.Warn().Err(err).Msg("pool allocator unavailable, using default")
			return alloc.NewDefault()
		}
		p.SetLogger(log)
		return p
	case "virtual":
		v := alloc.NewVirtual()
		v.SetLogger(log)
		return v
	default:
		return alloc.NewDefault()
	}
}

// watchLoop wires the file watcher to the manager. Watcher callbacks run on
// the watcher's worker goroutine; they are marshalled through a channel and
// drained here, on the goroutine that owns the manager, before any reload
// runs.
func watchLoop(mgr *runtime.Manager, cfg config.WatcherConfig, log zerolog.Logger) error {
	var w watcher.Watcher
	if cfg.Backend == "polling" {
		w = watcher.NewPolling(cfg.PollInterval.Std(), log)
	} else {
		w = watcher.New(log)
	}
	defer w.Close()

	changes := make(chan string, 16)
	for _, s := range mgr.RegisteredScripts() {
		if s.Path == "" {
			continue
		}
		path := s.Path
		err := w.WatchFile(path, func(p string) {
			select {
			case changes <- p:
			default:
			}
		})
		if err != nil {
			return fmt.Errorf("failed to watch '%s': %w", path, err)
		}
		log.Info().Str("path", path).Msg("watching")
	}

	if err := w.Start(); err != nil {
		return err
	}

	// Apply everything once before waiting for changes.
	logEvents(mgr.CheckAndReloadScripts(), log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-stop:
			log.Info().Msg("shutting down")
			return w.Stop()
		case <-changes:
			drain(changes)
			logEvents(mgr.CheckAndReloadScripts(), log)
		}
	}
}

func drain(ch chan string) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func logEvents(events []hotreload.Event, log zerolog.Logger) {
	for _, e := range events {
		entry := log.Info()
		if e.Result != hotreload.Success && e.Result != hotreload.NoChanges {
			entry = log.Error().Str("error", e.Error)
		}
		entry.Str("script", e.Script).Str("result", string(e.Result)).Msg("reload")
	}
}
