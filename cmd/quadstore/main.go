// Package main provides the quadstore CLI entry point.
//
// The store is in-memory, so every command first loads the quad files given
// with --file and then runs against the freshly built store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Vanaheimr/Balder-sub010/pkg/config"
	"github.com/Vanaheimr/Balder-sub010/pkg/logging"
	"github.com/Vanaheimr/Balder-sub010/pkg/quadfile"
	"github.com/Vanaheimr/Balder-sub010/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// quadStore is the concrete store type the CLI works with: string IDs and
// string values.
type quadStore = storage.Store[string, string]

type globalFlags struct {
	configPath string
	files      []string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "quadstore",
		Short: "quadstore - in-memory quad store",
		Long: `quadstore loads Subject -Predicate-> Object [Context] quads from
YAML, TSV or JSON-lines files into an in-memory store and queries them.

Every command loads the files given with --file first.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file")
	pf.StringArrayVarP(&flags.files, "file", "f", nil, "quad file to load (repeatable)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format (console, json)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quadstore v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(newStatsCmd(flags))
	rootCmd.AddCommand(newGetCmd(flags))
	rootCmd.AddCommand(newQueryCmd(flags))
	rootCmd.AddCommand(newTraverseCmd(flags))
	rootCmd.AddCommand(newNextCmd(flags))

	return rootCmd
}

// session is a loaded store plus the logger it was built with.
type session struct {
	store *quadStore
	log   *zap.Logger
}

func (s *session) close() {
	_ = s.log.Sync()
}

func openSession(cmd *cobra.Command, flags *globalFlags) (*session, error) {
	cfg := config.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := config.LoadFile(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.Memory.ApplyRuntimeMemory()

	log, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	defaultContext := cfg.Store.DefaultContext
	store, err := storage.NewStore(uuid.NewString(),
		func(n int64) string { return strconv.FormatInt(n, 10) },
		func() string { return defaultContext },
		storage.WithLogger(log),
		storage.WithConfig(cfg.Store),
	)
	if err != nil {
		return nil, err
	}

	if len(flags.files) > 0 {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		tx, txCtx, err := store.BeginTransaction(ctx, storage.TxName("load"))
		if err != nil {
			return nil, err
		}
		result, err := quadfile.LoadFiles[string](txCtx, store, flags.files...)
		if err != nil {
			return nil, fmt.Errorf("loading quads: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		log.Info("quads loaded", zap.Int("files", result.Files), zap.Int("quads", result.Quads))
	}

	log.Debug("config", zap.Stringer("config", cfg))
	return &session{store: store, log: log}, nil
}

func newStatsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show quad and index counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer sess.close()

			st := sess.store.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "quads:      %d\n", st.Quads)
			fmt.Fprintf(out, "subjects:   %d\n", st.Subjects)
			fmt.Fprintf(out, "predicates: %d\n", st.Predicates)
			fmt.Fprintf(out, "objects:    %d\n", st.Objects)
			fmt.Fprintf(out, "contexts:   %d\n", st.Contexts)
			return nil
		},
	}
}

func newGetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get [quad-id]",
		Short: "Print one quad by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer sess.close()

			q, ok := sess.store.GetQuad(args[0])
			if !ok {
				return fmt.Errorf("quad %s not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), q)
			return nil
		},
	}
}

func newQueryCmd(flags *globalFlags) *cobra.Command {
	var pattern storage.Pattern[string]
	var format string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print quads matching a pattern (unset fields match anything)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer sess.close()

			quads := sess.store.GetQuads(pattern)
			if format == "" {
				for q := range quads {
					fmt.Fprintln(cmd.OutOrStdout(), q)
				}
				return nil
			}
			return quadfile.Encode(cmd.OutOrStdout(), quadfile.Format(format), quadfile.Records(quads))
		},
	}
	cmd.Flags().StringVarP(&pattern.Subject, "subject", "s", "", "subject to match")
	cmd.Flags().StringVarP(&pattern.Predicate, "predicate", "p", "", "predicate to match")
	cmd.Flags().StringVarP(&pattern.Object, "object", "o", "", "object to match")
	cmd.Flags().StringVarP(&pattern.Context, "context", "c", "", "context to match")
	cmd.Flags().StringVar(&format, "format", "", "output format (yaml, tsv, jsonl); default one quad per line")
	return cmd
}

func newTraverseCmd(flags *globalFlags) *cobra.Command {
	var skipFirst bool
	var limit int

	cmd := &cobra.Command{
		Use:   "traverse [subject] [predicate]",
		Short: "Depth-first walk from subject along predicate",
		Long: `Depth-first walk from subject along predicate.

Cyclic predicate chains never end; use --limit to bound the output.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer sess.close()

			n := 0
			for v := range sess.store.Traverse(args[0], args[1], !skipFirst) {
				if limit > 0 && n >= limit {
					sess.log.Warn("traversal stopped at limit", zap.Int("limit", limit))
					break
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				n++
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipFirst, "skip-first", false, "do not print the start subject")
	cmd.Flags().IntVar(&limit, "limit", 10000, "stop after this many values (0 = no limit)")
	return cmd
}

func newNextCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "next [quad-id]",
		Short: "Print the quads that follow a quad (its object is their subject)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer sess.close()

			if _, ok := sess.store.GetQuad(args[0]); !ok {
				return fmt.Errorf("quad %s not found", args[0])
			}
			for q := range sess.store.Successors(args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), q)
			}
			return nil
		},
	}
}
