package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/billbuster/billpoints/internal/extract"
	"github.com/billbuster/billpoints/internal/pipeline"
	"github.com/billbuster/billpoints/internal/queue"
)

var (
	flagOut          string
	flagModel        string
	flagChunkSize    int
	flagOverlap      int
	flagMemoryWindow int
	flagMaxRetries   int
	flagTimeout      time.Duration
	flagSummary      bool
	flagVerbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "billpoints",
	Short: "Extract structured points from legislative documents",
}

var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Process one document and export its points",
	Long:  `Chunks a text or PDF document, extracts typed legislative points per chunk via the model service, and writes the points plus run stats as JSON.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&flagOut, "out", "o", "", "output path (default: <file>.points.json)")
	processCmd.Flags().StringVar(&flagModel, "model", "", "model name (default: $ANTHROPIC_MODEL)")
	processCmd.Flags().IntVar(&flagChunkSize, "chunk-size", 4000, "chunk size in characters")
	processCmd.Flags().IntVar(&flagOverlap, "overlap", 500, "overlap between chunks in characters")
	processCmd.Flags().IntVar(&flagMemoryWindow, "memory-window", 5, "point digests carried across chunks")
	processCmd.Flags().IntVar(&flagMaxRetries, "max-retries", 3, "attempts per chunk for transient failures")
	processCmd.Flags().DurationVar(&flagTimeout, "timeout", 120*time.Second, "per-request model timeout")
	processCmd.Flags().BoolVar(&flagSummary, "summary", false, "generate a document summary and tags")
	processCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	model := flagModel
	if model == "" {
		model = os.Getenv("ANTHROPIC_MODEL")
	}
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}

	client := extract.NewClient(os.Getenv("ANTHROPIC_API_KEY"), model, flagTimeout, 0)
	defer client.Close()

	q := queue.NewManager(nil, 0)
	processor := pipeline.NewProcessor(client, q, log, pipeline.Options{
		ChunkSize:       flagChunkSize,
		Overlap:         flagOverlap,
		MemoryWindow:    flagMemoryWindow,
		MaxRetries:      flagMaxRetries,
		RequestTimeout:  flagTimeout,
		GenerateSummary: flagSummary,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := args[0]
	res, err := processor.ProcessDocument(ctx, path, nil)
	if err != nil {
		return err
	}

	out := flagOut
	if out == "" {
		out = path + ".points.json"
	}
	if err := pipeline.WriteExport(res, out); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "processed %s: %d/%d chunks succeeded, %d points -> %s\n",
		path, res.Stats.ChunksSucceeded, res.Stats.ChunksAttempted, res.Stats.PointsEmitted, out)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
