package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/docingest/internal/config"
	"github.com/JonMunkholm/docingest/internal/format"
	"github.com/JonMunkholm/docingest/internal/ingest"
	"github.com/JonMunkholm/docingest/internal/logging"
	"github.com/JonMunkholm/docingest/internal/store"
)

// stdinName selects standard input as a file argument.
const stdinName = "-"

type rootOptions struct {
	logLevel  string
	logFormat string
	envFile   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "docingest",
		Short: "Load structured data files into a search index",
		Long: `docingest parses JSON, CSV and XML input into flat documents with
sanitized field names and typed values, and loads them into Solr,
PostgreSQL or DynamoDB in batches with a single commit per run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat))
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Load environment variables from this file")

	rootCmd.AddCommand(newLoadCmd(opts))
	rootCmd.AddCommand(newFlattenCmd())
	rootCmd.AddCommand(newCollectionsCmd(opts))
	return rootCmd
}

type loadOptions struct {
	collection string
	format     string
	batchSize  int
	backend    string
}

func newLoadCmd(root *rootOptions) *cobra.Command {
	opts := &loadOptions{}

	cmd := &cobra.Command{
		Use:   "load [file...]",
		Short: "Load files into a collection",
		Long: `Load parses each file and indexes its documents into the collection.
Use "-" or no arguments to read standard input. The store is configured
from the environment, exactly as for the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.envFile != "" {
				if err := godotenv.Overload(root.envFile); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
			}
			return runLoad(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.collection, "collection", "c", "", "Target collection (required)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Input format: "+format.Names()+" (default: from file extension)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Documents per batch (default: INGEST_BATCH_SIZE)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Store backend (default: STORE_BACKEND)")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func runLoad(cmd *cobra.Command, opts *loadOptions, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.backend != "" {
		cfg.Store.Backend = opts.backend
	}
	if opts.batchSize > 0 {
		cfg.Ingest.BatchSize = opts.batchSize
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(context.Background()); err != nil {
			slog.Warn("store close error", "error", err)
		}
	}()

	var svcOpts []ingest.Option
	if backend.Solr != nil {
		svcOpts = append(svcOpts, ingest.WithSearcher(backend.Solr), ingest.WithCollectionLister(backend.Solr))
	}
	service := ingest.NewService(backend.Store, ingest.ConfigFrom(cfg.Ingest, backend.Name), svcOpts...)

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, name := range inputs(args) {
		res, err := loadFile(ctx, cmd, service, opts, name)
		if err != nil {
			return fmt.Errorf("%s: %s", name, describe(err))
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}

func loadFile(ctx context.Context, cmd *cobra.Command, service *ingest.Service, opts *loadOptions, name string) (*ingest.Result, error) {
	f, err := detect(opts.format, name)
	if err != nil {
		return nil, err
	}

	r, closeFn, err := open(cmd, name)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return service.Index(ctx, opts.collection, f, r)
}

// describe keeps the technical error and appends the mapped guidance.
func describe(err error) string {
	if !ingest.IsUserFacing(err) {
		return err.Error()
	}
	return err.Error() + ": " + ingest.FormatUserError(err)
}

func newCollectionsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the store's collections permitted by ALLOWED_COLLECTIONS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.envFile != "" {
				if err := godotenv.Overload(root.envFile); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			backend, err := store.Open(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer backend.Close(context.Background())

			var opts []ingest.Option
			if backend.Solr != nil {
				opts = append(opts, ingest.WithCollectionLister(backend.Solr))
			}
			service := ingest.NewService(backend.Store, ingest.ConfigFrom(cfg.Ingest, backend.Name), opts...)

			names, err := service.Collections(cmd.Context())
			if err != nil {
				return errors.New(describe(err))
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newFlattenCmd() *cobra.Command {
	var (
		formatName string
		maxBytes   int64
	)

	cmd := &cobra.Command{
		Use:   "flatten [file...]",
		Short: "Print files as flattened documents, one JSON object per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, name := range inputs(args) {
				if err := flattenFile(cmd, enc, formatName, maxBytes, name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatName, "format", "f", "", "Input format: "+format.Names()+" (default: from file extension)")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "Reject inputs larger than this many bytes (0: unlimited)")
	return cmd
}

func flattenFile(cmd *cobra.Command, enc *json.Encoder, formatName string, maxBytes int64, name string) error {
	f, err := detect(formatName, name)
	if err != nil {
		return err
	}

	r, closeFn, err := open(cmd, name)
	if err != nil {
		return err
	}
	defer closeFn()

	docs, err := format.Parse(f, r, maxBytes)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	slog.Debug("flattened file", "file", name, "format", f, "documents", len(docs))
	return nil
}

func inputs(args []string) []string {
	if len(args) == 0 {
		return []string{stdinName}
	}
	return args
}

// detect uses the explicit format, else the file extension.
func detect(explicit, name string) (format.Format, error) {
	if name == stdinName {
		name = ""
	}
	return format.Detect(explicit, "", filepath.Base(name))
}

func open(cmd *cobra.Command, name string) (io.Reader, func(), error) {
	if name == stdinName {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
