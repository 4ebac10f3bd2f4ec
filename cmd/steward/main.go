// Package main is the entry point for the Steward CLI. Steward is the
// decision-making core of a community assistant: it routes inbound
// messages, runs the tool-calling conversation loop, and replays
// historical interactions to evaluate proposed behavior rules.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/config"
	"github.com/stewardhq/steward/internal/data"
	"github.com/stewardhq/steward/internal/eval"
	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/logging"
	"github.com/stewardhq/steward/internal/orchestrator"
	"github.com/stewardhq/steward/internal/prompt"
	"github.com/stewardhq/steward/internal/router"
	"github.com/stewardhq/steward/internal/tools"
	"github.com/stewardhq/steward/internal/toolset"
	"github.com/stewardhq/steward/internal/track"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	log     zerolog.Logger
)

func main() {
	// A .env file is a dev convenience; production sets real env vars.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "steward",
		Short: "Steward - community assistant decision core",
		Long: `Steward routes inbound community messages and orchestrates responses:
  • Two-stage routing: deterministic quick-match, then LLM classification
  • Bounded tool-use conversation loop with containment of tool failures
  • Behavior rules assembled into a cached system prompt
  • Replay harness for evaluating proposed rules against real history

Route a message:        steward route "when is the next meetup?"
Ask for a full answer:  steward ask "what did I miss this week?"
Evaluate a rule change: steward eval start --rule <id>`,
		PersistentPreRunE: initLogging,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.steward/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Steward v%s\n", version)
		},
	})

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(evalCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	log = logging.Setup(level, cfg.Logging.Console)
	return nil
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ═══════════════════════════════════════════════════════════════════════════════

// app holds the wired component graph for one command invocation.
type app struct {
	cfg     *config.Config
	store   *data.Store
	catalog *toolset.Catalog
	router  *router.Router
	loop    *orchestrator.Loop
	prompts *prompt.Cache
	tracker *track.Queue
}

func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := data.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open data store: %w", err)
	}

	client := llmClient(cfg)
	tracker := track.NewQueue(track.LogSink{Log: logging.Component(log, "track")}, log)
	catalog := toolset.Default()

	classifier := router.NewClassifier(
		client, catalog, localRegistry(store), tracker,
		cfg.Router.Model, logging.Component(log, "router"),
	)
	rtr := router.New(router.NewPatternMatcher(), classifier)

	prompts := prompt.NewCache(store, logging.Component(log, "prompt"),
		prompt.WithTTL(cfg.PromptCacheTTL()))

	loop := orchestrator.NewLoop(client, prompts, localRegistry(store), orchestrator.Config{
		Model:         cfg.Orchestrator.Model,
		MaxIterations: cfg.Orchestrator.MaxIterations,
		MaxTokens:     cfg.Orchestrator.MaxTokens,
		Tracker:       tracker,
	}, logging.Component(log, "orchestrator"))

	return &app{
		cfg:     cfg,
		store:   store,
		catalog: catalog,
		router:  rtr,
		loop:    loop,
		prompts: prompts,
		tracker: tracker,
	}, nil
}

func (a *app) close() {
	a.tracker.Close()
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close data store")
	}
}

func llmClient(cfg *config.Config) llm.Client {
	return llm.NewAnthropicClient(&llm.Config{
		Endpoint: cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  cfg.LLMTimeout(),
	})
}

// replayHarness wires the eval harness. The replay loop gets its own
// registry, assembled from the catalog's replay-safe sets, so replayed
// history can never reach user-scoped tools or the live web.
func (a *app) replayHarness() *eval.Harness {
	replayLoop := orchestrator.NewLoop(llmClient(a.cfg), a.prompts, a.replayRegistry(), orchestrator.Config{
		Model:         a.cfg.Eval.Model,
		MaxIterations: a.cfg.Orchestrator.MaxIterations,
		MaxTokens:     a.cfg.Orchestrator.MaxTokens,
		Tracker:       a.tracker,
	}, logging.Component(log, "eval"))
	return eval.NewHarness(a.store, replayLoop, logging.Component(log, "eval"))
}

// replayRegistry builds the replay tool surface from the catalog's
// replay-safe sets. The CLI can only serve the knowledge set; billing
// needs a live platform backend, so its builder is absent and the set
// is simply empty here.
func (a *app) replayRegistry() *tools.Registry {
	registry, err := a.catalog.BuildReplayRegistry(map[string]toolset.SetBuilder{
		"knowledge": func() []tools.Tool { return tools.KnowledgeTools(a.store) },
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to build replay tool registry")
		return tools.NewRegistry()
	}
	return registry
}

// localRegistry builds the tool registry this binary can serve without
// a platform backend: the knowledge set, backed by conversation
// history. Member, billing, and admin sets need live platform
// connections and are registered by the hosting service, not the CLI.
func localRegistry(store *data.Store) *tools.Registry {
	registry := tools.NewRegistry()
	if err := registry.RegisterAll(tools.KnowledgeTools(store)); err != nil {
		log.Warn().Err(err).Msg("failed to register knowledge tools")
	}
	return registry
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func routeCmd() *cobra.Command {
	var (
		channel  string
		memberID string
		admin    bool
		threaded bool
		insights []string
	)
	cmd := &cobra.Command{
		Use:   "route <message>",
		Short: "Classify a message into an execution plan without responding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			ctx, cancel := signalContext()
			defer cancel()

			plan := app.router.Route(ctx, buildRoutingContext(args[0], channel, memberID, admin, threaded, insights))
			return printJSON(plan)
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "chat", "source channel (chat or email)")
	cmd.Flags().StringVar(&memberID, "member-id", "", "sender's member id")
	cmd.Flags().BoolVar(&admin, "admin", false, "sender is an admin")
	cmd.Flags().BoolVar(&threaded, "threaded", false, "message is part of a thread")
	cmd.Flags().StringSliceVar(&insights, "insight", nil, "known insight about the sender (repeatable)")
	return cmd
}

func buildRoutingContext(message, channel, memberID string, admin, threaded bool, insights []string) router.RoutingContext {
	rc := router.RoutingContext{
		Message:  message,
		Channel:  router.ChannelKind(channel),
		Threaded: threaded,
	}
	if memberID != "" || admin || len(insights) > 0 {
		rc.Member = &router.MemberContext{
			MemberID: memberID,
			IsMember: memberID != "",
			IsAdmin:  admin,
			Insights: insights,
		}
	}
	return rc
}

// ═══════════════════════════════════════════════════════════════════════════════
// ASK COMMAND (full pipeline)
// ═══════════════════════════════════════════════════════════════════════════════

func askCmd() *cobra.Command {
	var (
		channel  string
		memberID string
		admin    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Route a message and, when warranted, produce a full response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			ctx, cancel := signalContext()
			defer cancel()

			message := args[0]
			plan := app.router.Route(ctx, buildRoutingContext(message, channel, memberID, admin, false, nil))

			switch plan.Action {
			case router.ActionIgnore:
				fmt.Printf("(no response: %s)\n", plan.Reason)
				return nil
			case router.ActionReact:
				fmt.Printf(":%s:\n", plan.Emoji)
				return nil
			case router.ActionClarify:
				fmt.Println(plan.Question)
				return nil
			}

			start := time.Now()
			result, err := app.loop.ProcessMessage(ctx, message, nil, nil)
			if err != nil {
				return fmt.Errorf("conversation failed: %w", err)
			}
			latency := time.Since(start).Milliseconds()

			fmt.Println(result.Text)
			if result.Flagged {
				fmt.Fprintf(os.Stderr, "(flagged: %s)\n", result.FlagReason)
			}

			interaction := &eval.HistoricalInteraction{
				MessageID: uuid.NewString(),
				Channel:   channel,
				UserInput: message,
				Response:  result.Text,
				ToolsUsed: result.ToolsUsed,
				Flagged:   result.Flagged,
				LatencyMs: latency,
			}
			if err := app.store.RecordInteraction(ctx, interaction); err != nil {
				log.Warn().Err(err).Msg("failed to record interaction")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "chat", "source channel (chat or email)")
	cmd.Flags().StringVar(&memberID, "member-id", "", "sender's member id")
	cmd.Flags().BoolVar(&admin, "admin", false, "sender is an admin")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// RULES COMMAND GROUP
// ═══════════════════════════════════════════════════════════════════════════════

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage behavior rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all behavior rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			rules, err := app.store.ListRules(cmd.Context())
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				fmt.Println("No rules defined.")
				return nil
			}
			for _, rule := range rules {
				state := " "
				if rule.Active {
					state = "*"
				}
				fmt.Printf("[%s] %-20s %s\n", state, rule.ID, rule.Title)
			}
			return nil
		},
	})

	var (
		title   string
		content string
		active  bool
	)
	addCmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a behavior rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if content == "" {
				return fmt.Errorf("--content is required")
			}
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			rule := &prompt.Rule{ID: args[0], Title: title, Content: content, Active: active}
			if err := app.store.CreateRule(cmd.Context(), rule); err != nil {
				return err
			}
			app.prompts.Invalidate()
			fmt.Printf("Rule %s created.\n", rule.ID)
			return nil
		},
	}
	addCmd.Flags().StringVar(&title, "title", "", "short rule title")
	addCmd.Flags().StringVar(&content, "content", "", "rule content (required)")
	addCmd.Flags().BoolVar(&active, "active", false, "activate the rule immediately")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(setRuleActiveCmd("enable", true))
	cmd.AddCommand(setRuleActiveCmd("disable", false))

	return cmd
}

func setRuleActiveCmd(use string, active bool) *cobra.Command {
	short := "Enable a behavior rule"
	if !active {
		short = "Disable a behavior rule"
	}
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.store.SetRuleActive(cmd.Context(), args[0], active); err != nil {
				return err
			}
			app.prompts.Invalidate()
			fmt.Printf("Rule %s %sd.\n", args[0], use)
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// EVAL COMMAND GROUP
// ═══════════════════════════════════════════════════════════════════════════════

func evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate proposed rules against historical interactions",
	}

	cmd.AddCommand(evalStartCmd())
	cmd.AddCommand(evalStatusCmd())
	cmd.AddCommand(evalListCmd())
	cmd.AddCommand(evalResultsCmd())
	cmd.AddCommand(evalReviewCmd())

	return cmd
}

func evalStartCmd() *cobra.Command {
	var (
		ruleIDs   []string
		channel   string
		flagged   bool
		minRating int
		maxRating int
		sample    int
		seed      int64
		createdBy string
		wait      bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a replay run for proposed rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(ruleIDs) == 0 {
				return fmt.Errorf("at least one --rule is required")
			}
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			ctx, cancel := signalContext()
			defer cancel()

			criteria := eval.SelectionCriteria{
				Channel:     channel,
				FlaggedOnly: flagged,
				SampleSize:  sample,
			}
			if cmd.Flags().Changed("min-rating") {
				criteria.MinRating = &minRating
			}
			if cmd.Flags().Changed("max-rating") {
				criteria.MaxRating = &maxRating
			}
			if cmd.Flags().Changed("seed") {
				criteria.Seed = &seed
			}

			harness := app.replayHarness()
			// The store closes when this command returns; hold the
			// process until the run reaches a terminal state.
			defer harness.Wait()
			run, err := harness.CreateAndStartRun(ctx, ruleIDs, criteria, createdBy)
			if err != nil {
				return err
			}
			fmt.Printf("Run %s started.\n", run.ID)

			if !wait {
				// The deferred Wait still drains the run before the
				// store is torn down; only the progress report is
				// skipped.
				return nil
			}
			return waitForRun(ctx, harness, run.ID)
		},
	}
	cmd.Flags().StringSliceVar(&ruleIDs, "rule", nil, "rule id to evaluate (repeatable, required)")
	cmd.Flags().StringVar(&channel, "channel", "", "only replay interactions from this channel")
	cmd.Flags().BoolVar(&flagged, "flagged", false, "only replay flagged interactions")
	cmd.Flags().IntVar(&minRating, "min-rating", 0, "minimum user rating")
	cmd.Flags().IntVar(&maxRating, "max-rating", 0, "maximum user rating")
	cmd.Flags().IntVar(&sample, "sample", 0, "sample size (capped at 100)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed for reproducible replay ordering")
	cmd.Flags().StringVar(&createdBy, "by", "cli", "who is starting the run")
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for the run to finish")
	return cmd
}

func waitForRun(ctx context.Context, harness *eval.Harness, runID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("Interrupted while waiting for run %s.\n", runID)
			return ctx.Err()
		case <-ticker.C:
		}

		run, err := harness.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if !run.Status.IsTerminal() {
			continue
		}

		if run.Status == eval.RunFailed {
			return fmt.Errorf("run failed: %s", run.ErrorMessage)
		}
		fmt.Printf("Run %s completed: %d/%d evaluated, %d affected.\n",
			run.ID, run.Evaluated, run.TotalInteractions, run.Affected)
		if run.Metrics != nil {
			fmt.Printf("  responses changed: %.1f%%\n", run.Metrics.ResponseChangedPct)
			fmt.Printf("  tools changed:     %.1f%%\n", run.Metrics.ToolsChangedPct)
			fmt.Printf("  routing changed:   %.1f%%\n", run.Metrics.RoutingChangedPct)
			fmt.Printf("  avg latency:       %.0fms\n", run.Metrics.AvgNewLatencyMs)
		}
		return nil
	}
}

func evalStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run's status and metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			run, err := app.store.GetEvalRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(run)
		},
	}
}

func evalListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List replay runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			runs, err := app.store.ListEvalRuns(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs.")
				return nil
			}
			for _, run := range runs {
				fmt.Printf("%s  %-9s  evaluated=%d affected=%d  %s\n",
					run.ID, run.Status, run.Evaluated, run.Affected,
					run.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func evalResultsCmd() *cobra.Command {
	var (
		changed bool
		limit   int
		offset  int
	)
	cmd := &cobra.Command{
		Use:   "results <run-id>",
		Short: "Show a run's per-interaction results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			results, err := app.store.ListEvalResults(cmd.Context(), args[0], changed, limit, offset)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
	cmd.Flags().BoolVar(&changed, "changed", false, "only results where behavior changed")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	return cmd
}

func evalReviewCmd() *cobra.Command {
	var (
		verdict  string
		reviewer string
		notes    string
	)
	cmd := &cobra.Command{
		Use:   "review <result-id>",
		Short: "Attach a human verdict to a replayed result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			harness := app.replayHarness()
			err = harness.SubmitReview(cmd.Context(), args[0], eval.ReviewVerdict(verdict), reviewer, notes)
			if err != nil {
				return err
			}
			fmt.Println("Review recorded.")
			return nil
		},
	}
	cmd.Flags().StringVar(&verdict, "verdict", "", "improved, same, worse, or uncertain (required)")
	cmd.Flags().StringVar(&reviewer, "by", "cli", "who is reviewing")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form review notes")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMAND GROUP
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Println("Steward Configuration:")
			fmt.Println("──────────────────────")
			fmt.Printf("Endpoint:           %s\n", cfg.LLM.Endpoint)
			fmt.Printf("Router model:       %s\n", cfg.Router.Model)
			fmt.Printf("Conversation model: %s\n", cfg.Orchestrator.Model)
			fmt.Printf("Max iterations:     %d\n", cfg.Orchestrator.MaxIterations)
			fmt.Printf("Prompt cache TTL:   %s\n", cfg.PromptCacheTTL())
			fmt.Printf("Data dir:           %s\n", cfg.Storage.DataDir)
			fmt.Printf("Log level:          %s\n", cfg.Logging.Level)
			return nil
		},
	})

	return cmd
}
