package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/royen99/clip-manager/internal/config"
	"github.com/royen99/clip-manager/internal/logging"
	"github.com/royen99/clip-manager/internal/server"
	"github.com/royen99/clip-manager/internal/store"
	"github.com/royen99/clip-manager/internal/workflow"
)

var (
	cfgFile string
	verbose bool
	logJSON bool
	rawOut  bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clipmanager",
	Short: "clipmanager - catalog for AI-generated video clips",
	Long: "Ingests generated video clips: recovers the embedded generation workflow, " +
		"rates content with a vision model, tags and stores the result.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(logging.Options{Verbose: verbose, JSON: logJSON})

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON lines")

	inspectCmd.Flags().BoolVar(&rawOut, "raw", false, "print the embedded workflow verbatim")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [video files...]",
	Short: "Ingest videos into the catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, config.FromContext(ctx))
		if err != nil {
			return err
		}
		defer a.Close()

		results := a.pipeline(ctx).IngestAll(ctx, args)

		var failed int
		for _, r := range results {
			if r.Err != nil {
				failed++
				log.Error().Err(r.Err).Str("file", r.Path).Msg("ingest failed")
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.Video.ID, r.Video.Verdict.Rating, r.Video.Filename)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d videos failed", failed, len(results))
		}
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [video file]",
	Short: "Print the generation parameters embedded in a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)

		exec, err := newExecutor(cfg)
		if err != nil {
			return err
		}
		info, err := exec.ProbeVideo(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to probe video: %w", err)
		}

		raw, ok := workflow.FromContainerTags(info.Tags)
		if !ok {
			return errors.New("no embedded workflow found")
		}
		if rawOut {
			_, err := cmd.OutOrStdout().Write(raw)
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(newExtractor(cfg).ExtractJSON(raw))
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close store")
			}
		}()

		return server.New(log.Logger, st).Run(ctx, cfg.Server.Addr)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *config.FromContext(cmd.Context())
		if cfg.Moderation.APIKey != "" {
			cfg.Moderation.APIKey = "********"
		}
		out, err := yaml.Marshal(&cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
