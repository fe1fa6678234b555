package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/billbuster/billpoints/internal/chunker"
	"github.com/billbuster/billpoints/internal/document"
	"github.com/billbuster/billpoints/internal/extract"
	"github.com/billbuster/billpoints/internal/memory"
	"github.com/billbuster/billpoints/internal/point"
	"github.com/billbuster/billpoints/internal/queue"
)

// Extractor is the model-backed point extractor the processor drives. The
// production implementation is *extract.Client.
type Extractor interface {
	CheckCredentials() error
	ExtractPoints(ctx context.Context, prompt string) ([]extract.RawPoint, error)
	SummarizePoints(ctx context.Context, pts []point.Point) (string, error)
	GenerateTags(ctx context.Context, pts []point.Point) ([]string, error)
}

// AnalysisSink persists a run's summary and tags against the bill record.
// The production implementation is *billstore.Client.
type AnalysisSink interface {
	UpdateAnalysis(ctx context.Context, documentName, summary string, tags []string) error
}

// Options configures a document run.
type Options struct {
	ChunkSize       int
	Overlap         int
	MemoryWindow    int
	MaxRetries      int // Total attempts per chunk for retryable failures.
	RequestTimeout  time.Duration
	GenerateSummary bool
}

// DefaultOptions mirrors the defaults used for legislative documents.
func DefaultOptions() Options {
	return Options{
		ChunkSize:      4000,
		Overlap:        500,
		MemoryWindow:   5,
		MaxRetries:     3,
		RequestTimeout: 120 * time.Second,
	}
}

// RunStats accounts for every chunk's fate in one document run.
type RunStats struct {
	ChunksAttempted int     `json:"chunksAttempted"`
	ChunksSucceeded int     `json:"chunksSucceeded"`
	ChunksFailed    int     `json:"chunksFailed"`
	PointsEmitted   int     `json:"pointsEmitted"`
	ElapsedSeconds  float64 `json:"elapsedSeconds"`
	FailedChunks    []int   `json:"failedChunks,omitempty"`
}

// Result is the outcome of one document run.
type Result struct {
	Points   []point.Point
	Summary  string
	Tags     []string
	Stats    RunStats
	Warnings []string
}

// Processor orchestrates load -> chunk -> extract -> deliver for one
// document at a time. Chunks are processed strictly sequentially because
// each extraction consumes the memory state produced by the previous one.
// A single Processor may serve concurrent document runs: the extractor is
// shared read-only and the queue manager is thread-safe, while memory
// state and stats are local to each call.
type Processor struct {
	extractor Extractor
	queue     *queue.Manager
	analysis  AnalysisSink
	log       *slog.Logger
	opts      Options
}

func NewProcessor(ex Extractor, q *queue.Manager, log *slog.Logger, opts Options) *Processor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 4000
	}
	if opts.Overlap <= 0 {
		opts.Overlap = 500
	}
	if opts.MemoryWindow <= 0 {
		opts.MemoryWindow = 5
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 120 * time.Second
	}
	return &Processor{
		extractor: ex,
		queue:     q,
		log:       log,
		opts:      opts,
	}
}

// SetAnalysisSink attaches an optional store for generated summaries and
// tags. nil disables persistence; the summary still lands in the Result.
func (p *Processor) SetAnalysisSink(s AnalysisSink) {
	p.analysis = s
}

// ProcessDocument runs the full pipeline for one file. It returns an error
// only for fatal conditions (bad config, missing credentials, empty or
// unreadable document, cancellation); per-chunk failures degrade to partial
// results reported through RunStats. tr may be nil.
func (p *Processor) ProcessDocument(ctx context.Context, path string, tr Tracker) (*Result, error) {
	if tr == nil {
		tr = noopTracker{}
	}
	start := time.Now()
	log := p.log.With("document", path)
	res := &Result{}

	// Credentials are checked up front so a misconfigured run aborts
	// before any chunk is attempted.
	if err := p.extractor.CheckCredentials(); err != nil {
		return nil, err
	}

	tr.SetPhase(PhaseLoading)
	doc, err := document.Load(path)
	if err != nil {
		return nil, err
	}

	tr.SetPhase(PhaseChunking)
	chunks, err := chunker.Split(doc.Text, chunker.Config{ChunkSize: p.opts.ChunkSize, Overlap: p.opts.Overlap})
	if err != nil {
		var emptyErr *point.EmptyDocumentError
		if errors.As(err, &emptyErr) {
			return nil, &point.EmptyDocumentError{Path: path}
		}
		return nil, err
	}
	tr.SetTotalChunks(len(chunks))
	log.Info("chunked document", "chunks", len(chunks), "chars", len(doc.Text))

	window := memory.New(p.opts.MemoryWindow)
	state := window.Initial()

	tr.SetPhase(PhaseExtracting)
	for _, ch := range chunks {
		// Cancellation is observed between chunks; points already
		// delivered stay valid.
		if err := ctx.Err(); err != nil {
			res.Stats.ElapsedSeconds = time.Since(start).Seconds()
			return res, err
		}

		res.Stats.ChunksAttempted++

		memoryContext := ""
		if ch.Index > 0 {
			memoryContext = window.Context(state)
		}
		prompt := extract.BuildChunkPrompt(doc.Name, memoryContext, ch.Text)

		raws, err := p.extractChunk(ctx, prompt, ch.Index, log)
		if err == nil {
			var pts []point.Point
			var dropped int
			pts, dropped, err = extract.ValidatePoints(raws)
			if dropped > 0 {
				log.Warn("dropped suspicious points", "chunk", ch.Index, "dropped", dropped)
			}
			if err == nil {
				for i := range pts {
					pts[i].DocumentPath = doc.Path
					pts[i].DocumentName = doc.Name
					pts[i].ChunkIndex = ch.Index
				}
				accepted := p.queue.Enqueue(pts)
				res.Points = append(res.Points, accepted...)
				res.Stats.PointsEmitted += len(accepted)
				state = window.Update(state, accepted)
				res.Stats.ChunksSucceeded++
				tr.ChunkDone(false)
				tr.AddPoints(len(accepted))
				continue
			}
		}

		var cfgErr *point.ConfigError
		if errors.As(err, &cfgErr) {
			res.Stats.ElapsedSeconds = time.Since(start).Seconds()
			return res, err
		}

		log.Error("chunk failed", "chunk", ch.Index, "error", err)
		res.Stats.ChunksFailed++
		res.Stats.FailedChunks = append(res.Stats.FailedChunks, ch.Index)
		tr.ChunkDone(true)
	}

	tr.SetPhase(PhaseFinalizing)
	if err := p.queue.Flush(ctx); err != nil {
		// Delivery failure does not invalidate the run; points already
		// delivered stand and the rest stay queued.
		log.Warn("sink delivery failed", "error", err)
		res.Warnings = append(res.Warnings, err.Error())
	}

	if p.opts.GenerateSummary && len(res.Points) > 0 {
		p.summarize(ctx, doc.Name, res, log)
	}

	res.Stats.ElapsedSeconds = time.Since(start).Seconds()
	tr.SetPhase(PhaseDone)
	log.Info("document processed",
		"chunks", res.Stats.ChunksAttempted,
		"succeeded", res.Stats.ChunksSucceeded,
		"failed", res.Stats.ChunksFailed,
		"points", res.Stats.PointsEmitted,
	)
	return res, nil
}

// extractChunk calls the model with a bounded retry loop. Only
// ServiceErrors are retried; a ParseError is never re-sent with the same
// prompt.
func (p *Processor) extractChunk(ctx context.Context, prompt string, idx int, log *slog.Logger) ([]extract.RawPoint, error) {
	var lastErr error
	for attempt := 0; attempt < p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(Backoff(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
		raws, err := p.extractor.ExtractPoints(callCtx, prompt)
		cancel()
		if err == nil {
			return raws, nil
		}
		lastErr = err
		if !extract.IsRetryable(err) {
			break
		}
		log.Warn("retryable extraction error", "chunk", idx, "attempt", attempt, "error", err)
	}
	return nil, lastErr
}

func (p *Processor) summarize(ctx context.Context, docName string, res *Result, log *slog.Logger) {
	summary, err := p.extractor.SummarizePoints(ctx, res.Points)
	if err != nil {
		log.Warn("summary generation failed", "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("summary: %s", err))
	} else {
		res.Summary = summary
	}

	tags, err := p.extractor.GenerateTags(ctx, res.Points)
	if err != nil {
		log.Warn("tag generation failed", "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("tags: %s", err))
	} else {
		res.Tags = tags
	}

	if p.analysis == nil || res.Summary == "" {
		return
	}
	if err := p.analysis.UpdateAnalysis(ctx, docName, res.Summary, res.Tags); err != nil {
		log.Warn("analysis persistence failed", "document", docName, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("analysis: %s", err))
	}
}
