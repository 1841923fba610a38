// Package cli implements the engram CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rcliao/engram/internal/config"
	"github.com/rcliao/engram/internal/engine"
	"github.com/rcliao/engram/internal/llm"
	"github.com/rcliao/engram/internal/metrics"
	"github.com/rcliao/engram/internal/store"
)

var (
	cfgFile    string
	formatFlag string
	noAuto     bool

	v = viper.New()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Salience-scored memory with decay and consolidation",
	Long: "A CLI for long-lived conversational memory. Text goes in, atomic memories come out, " +
		"scored for salience, decaying with age and periodically consolidated. SQLite-backed, single binary.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine.
		_ = godotenv.Load()
		return config.ReadFile(v, cfgFile, cmd.Flags().Changed("config"))
	},
}

func init() {
	config.Defaults(v)

	pf := RootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ~/.engram/config.yaml)")
	pf.StringP("db", "d", "", "Database path (default: $ENGRAM_DB or ~/.engram/engram.db)")
	pf.String("provider", "", "Language model provider: anthropic, openai, ollama, or empty for local only")
	pf.String("model", "", "Model name (provider default if empty)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	pf.BoolVar(&noAuto, "no-auto", false, "Skip the automatic consolidation check")

	for key, flag := range map[string]string{
		"db":        "db",
		"provider":  "provider",
		"model":     "model",
		"log.level": "log-level",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	config.BindEnv(v)
}

// app is everything one command invocation needs.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	kv      *store.SQLiteKV
	metrics *metrics.Metrics
	eng     *engine.Engine
}

// openApp wires config, logging, storage and the engine. When auto is set
// the boot-time consolidation check runs before returning.
func openApp(ctx context.Context, auto bool) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	log, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}

	kv, err := store.NewSQLiteKV(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	st, err := store.Open(ctx, kv)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("load store: %w", err)
	}

	c, err := llm.New(cfg.LLM())
	if err != nil {
		kv.Close()
		return nil, err
	}
	log.Debug("store opened", zap.String("db", cfg.DBPath), zap.Int("memories", st.Len()), zap.String("llm", c.Name()))

	m := metrics.New()
	a := &app{
		cfg:     cfg,
		log:     log,
		kv:      kv,
		metrics: m,
		eng:     engine.New(st, c, engine.WithLogger(log), engine.WithMetrics(m), engine.WithMaxTokens(cfg.MaxTokens)),
	}

	if auto && cfg.AutoConsolidate && !noAuto {
		a.boot(ctx)
	}
	return a, nil
}

func (a *app) boot(ctx context.Context) *engine.BootReport {
	rep, err := a.eng.Boot(ctx)
	if err != nil {
		a.log.Warn("auto-consolidation failed", zap.Error(err))
		return rep
	}
	if rep.Triggered {
		fields := []zap.Field{zap.Int("loaded", rep.Loaded), zap.Int("remaining", a.eng.Store().Len())}
		if rep.Consolidation != nil {
			fields = append(fields, zap.Int("pruned", rep.Consolidation.AutoPruned+rep.Consolidation.Pruned))
		}
		if rep.ConsolidationError != "" {
			fields = append(fields, zap.String("consolidation_error", rep.ConsolidationError))
		}
		a.log.Info("auto-consolidation complete", fields...)
	}
	return rep
}

func (a *app) Close() {
	a.log.Sync()
	a.kv.Close()
}

// mustOpen opens the app or exits.
func mustOpen(cmd *cobra.Command, auto bool) *app {
	a, err := openApp(cmd.Context(), auto)
	if err != nil {
		exitErr("open", err)
	}
	return a
}

// readInput returns args joined, or stdin when it is piped.
func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return "", nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func printJSON(cmd *cobra.Command, val any) {
	b, _ := json.MarshalIndent(val, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
