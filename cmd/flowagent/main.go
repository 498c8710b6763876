package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
	"github.com/Aladin147/FlowCode-sub002/internal/config"
	"github.com/Aladin147/FlowCode-sub002/internal/coordinator"
	"github.com/Aladin147/FlowCode-sub002/internal/executor"
	"github.com/Aladin147/FlowCode-sub002/internal/goal"
	"github.com/Aladin147/FlowCode-sub002/internal/llm"
	"github.com/Aladin147/FlowCode-sub002/internal/logger"
	"github.com/Aladin147/FlowCode-sub002/internal/planner"
	"github.com/Aladin147/FlowCode-sub002/internal/server"
	"github.com/Aladin147/FlowCode-sub002/internal/state"
)

type options struct {
	configPath string
	goalText   string
	run        bool
	serve      bool
	status     bool
	logLevel   string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("flowagent", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", config.GetConfigPath(), "path to the configuration file")
	fs.StringVar(&opts.goalText, "goal", "", "goal to decompose into a task plan")
	fs.BoolVar(&opts.run, "run", false, "execute the planned task instead of only printing the plan")
	fs.BoolVar(&opts.serve, "serve", false, "start the HTTP API and process the task queue")
	fs.BoolVar(&opts.status, "status", false, "print execution statistics and exit")
	fs.StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.goalText == "" && !opts.serve && !opts.status {
		fs.Usage()
		return nil, errors.New("nothing to do: pass -goal, -serve or -status")
	}
	return opts, nil
}

func run() (err error) {
	opts, parseErr := parseArgs(os.Args[1:])
	if parseErr != nil {
		if errors.Is(parseErr, flag.ErrHelp) {
			return nil
		}
		return parseErr
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := state.New(
		cfg.StatePath,
		cfg.UserPreferences(),
		time.Duration(cfg.Execution.AutosaveIntervalSec)*time.Second,
		logger.Global(),
	)
	if err := store.Initialize(); err != nil {
		return fmt.Errorf("initializing state store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("closing state store: %v", closeErr)
		}
	}()

	watcher, err := config.Watch(opts.configPath, func(updated *config.Config) {
		if err := store.UpdatePreferences(updated.UserPreferences()); err != nil {
			logger.Error("applying updated preferences: %v", err)
		}
		logger.Global().SetLevel(logger.ParseLevel(updated.LogLevel))
	})
	if err != nil {
		logger.Warn("config watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	pl := planner.New(
		buildAnalyzer(cfg),
		planner.StaticContext{Context: agent.TaskContext{WorkspaceRoot: cfg.WorkingDir}},
		logger.Global(),
	)

	if opts.status {
		return printStatus(store)
	}

	broker := server.NewApprovalBroker(logger.Global())
	var approver coordinator.Approver = broker
	if opts.goalText != "" && opts.run {
		// Direct runs have no API client to answer approvals; ask on stdin.
		approver = consoleApprover(os.Stdin)
	}
	coord := coordinator.New(store, executor.NewSimulated(logger.Global()), approver, coordinator.Config{
		MaxConcurrentSteps: cfg.Execution.MaxConcurrentSteps,
		MaxStepRetries:     cfg.Execution.MaxStepRetries,
		StepTimeoutFactor:  cfg.Execution.StepTimeoutFactor,
	}, logger.Global())

	if opts.goalText != "" {
		task, err := pl.DecomposeGoal(ctx, opts.goalText)
		if err != nil {
			return fmt.Errorf("decomposing goal: %w", err)
		}
		if !opts.run {
			return printJSON(task)
		}
		done, err := coord.ExecuteTask(ctx, task)
		if err != nil {
			return fmt.Errorf("executing task %s: %w", task.ID, err)
		}
		return printJSON(done)
	}

	srv := server.New(cfg.ListenAddr, store, pl, coord, broker, logger.Global())
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	runErr := coord.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("stopping server: %v", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// buildAnalyzer prefers the configured LLM classifier and falls back to
// the keyword rules when no provider is configured or usable.
func buildAnalyzer(cfg *config.Config) goal.Analyzer {
	if cfg.Classifier.Provider == "" {
		return goal.RuleAnalyzer{}
	}
	client, err := llm.New(cfg.Classifier.Provider, cfg.Classifier.APIKey, cfg.Classifier.Model)
	if err != nil {
		logger.Warn("classifier unavailable (%v), using keyword rules", err)
		return goal.RuleAnalyzer{}
	}
	return goal.NewLLMAnalyzer(client, logger.Global())
}

// consoleApprover asks on stdin before gated work proceeds. Anything other
// than an explicit yes, including EOF or a read error, is a rejection.
func consoleApprover(in io.Reader) coordinator.ApproverFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, req coordinator.ApprovalRequest) (coordinator.ApprovalDecision, error) {
		subject := "task " + req.TaskID
		if req.StepID != "" {
			subject = "step " + req.StepID
		}
		fmt.Printf("Approval required for %s (risk: %s): %s\nProceed? [y/N] ", subject, req.RiskLevel, req.Description)

		type answer struct {
			line string
			err  error
		}
		ch := make(chan answer, 1)
		go func() {
			line, err := reader.ReadString('\n')
			ch <- answer{line, err}
		}()

		select {
		case <-ctx.Done():
			fmt.Println()
			return coordinator.ApprovalDecision{}, ctx.Err()
		case a := <-ch:
			if a.err != nil {
				return coordinator.ApprovalDecision{}, nil
			}
			switch strings.ToLower(strings.TrimSpace(a.line)) {
			case "y", "yes":
				return coordinator.ApprovalDecision{Approved: true}, nil
			default:
				return coordinator.ApprovalDecision{}, nil
			}
		}
	}
}

func printStatus(store *state.Store) error {
	return printJSON(store.GetStatistics())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
