package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/billbuster/billpoints/internal/extract"
	"github.com/billbuster/billpoints/internal/point"
	"github.com/billbuster/billpoints/internal/queue"
)

// scriptedExtractor replays one response per model call, in order.
type scriptedExtractor struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	script  []func() ([]extract.RawPoint, error)
	credErr error
}

func (s *scriptedExtractor) CheckCredentials() error { return s.credErr }

func (s *scriptedExtractor) ExtractPoints(ctx context.Context, prompt string) ([]extract.RawPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	i := s.calls
	s.calls++
	if i >= len(s.script) {
		return nil, fmt.Errorf("unexpected call %d", i)
	}
	return s.script[i]()
}

func (s *scriptedExtractor) SummarizePoints(ctx context.Context, pts []point.Point) (string, error) {
	return "a summary", nil
}

func (s *scriptedExtractor) GenerateTags(ctx context.Context, pts []point.Point) ([]string, error) {
	return []string{"appropriations"}, nil
}

func respond(raws ...extract.RawPoint) func() ([]extract.RawPoint, error) {
	return func() ([]extract.RawPoint, error) { return raws, nil }
}

func fail(err error) func() ([]extract.RawPoint, error) {
	return func() ([]extract.RawPoint, error) { return nil, err }
}

func raw(desc string) extract.RawPoint {
	return extract.RawPoint{
		PointType:   "requirement",
		Description: desc,
		Entities:    []string{"EPA"},
		Reference:   "Sec. 1",
		Confidence:  "high",
	}
}

func writeDoc(t *testing.T, chars int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bill.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("a", chars)), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// threeChunkOpts splits a 300-char document into chunks [0,120), [100,220),
// [200,300).
func threeChunkOpts() Options {
	return Options{
		ChunkSize:      120,
		Overlap:        20,
		MemoryWindow:   5,
		MaxRetries:     1,
		RequestTimeout: time.Second,
	}
}

func TestProcessDocumentPartialFailure(t *testing.T) {
	path := writeDoc(t, 300)
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){
		respond(raw("first chunk point one"), raw("first chunk point two")),
		fail(&point.ParseError{Reason: "not a json list"}),
		respond(raw("third chunk point")),
	}}
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), threeChunkOpts())

	res, err := p.ProcessDocument(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}

	if res.Stats.ChunksAttempted != 3 || res.Stats.ChunksSucceeded != 2 || res.Stats.ChunksFailed != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if res.Stats.PointsEmitted != 3 || len(res.Points) != 3 {
		t.Errorf("points emitted = %d, len = %d", res.Stats.PointsEmitted, len(res.Points))
	}
	if len(res.Stats.FailedChunks) != 1 || res.Stats.FailedChunks[0] != 1 {
		t.Errorf("failed chunks = %v", res.Stats.FailedChunks)
	}
	if res.Stats.ElapsedSeconds < 0 {
		t.Errorf("elapsed = %f", res.Stats.ElapsedSeconds)
	}

	for _, p := range res.Points {
		if p.ChunkIndex == 1 {
			t.Errorf("point attributed to failed chunk: %+v", p)
		}
		if p.DocumentPath != path || p.DocumentName != "bill.txt" {
			t.Errorf("missing provenance: %+v", p)
		}
	}
}

func TestProcessDocumentMemoryContext(t *testing.T) {
	path := writeDoc(t, 300)
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){
		respond(raw("agencies must report annually")),
		respond(raw("another point entirely")),
		respond(raw("a third point")),
	}}
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), threeChunkOpts())

	if _, err := p.ProcessDocument(context.Background(), path, nil); err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}

	if len(ex.prompts) != 3 {
		t.Fatalf("prompts = %d, want 3", len(ex.prompts))
	}
	// The first chunk has no prior context; later chunks carry it.
	if strings.Contains(ex.prompts[0], "CONTEXT FROM PREVIOUS SECTIONS") {
		t.Error("first chunk prompt carries context")
	}
	if !strings.Contains(ex.prompts[1], "agencies must report annually") {
		t.Error("second chunk prompt missing prior point digest")
	}
}

func TestProcessDocumentAllChunksFailedIsStillDone(t *testing.T) {
	path := writeDoc(t, 300)
	parseFail := fail(&point.ParseError{Reason: "garbage"})
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){parseFail, parseFail, parseFail}}
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), threeChunkOpts())

	job := &Job{ID: "j1", Phase: PhaseQueued}
	res, err := p.ProcessDocument(context.Background(), path, job)
	if err != nil {
		t.Fatalf("run with zero successes must not error: %v", err)
	}
	if res.Stats.ChunksFailed != 3 || res.Stats.PointsEmitted != 0 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if job.Snapshot().Phase != PhaseDone {
		t.Errorf("phase = %s, want %s", job.Snapshot().Phase, PhaseDone)
	}
}

func TestProcessDocumentRetriesServiceErrors(t *testing.T) {
	path := writeDoc(t, 100) // single chunk
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){
		fail(&point.ServiceError{StatusCode: 503}),
		respond(raw("recovered after retry")),
	}}
	opts := threeChunkOpts()
	opts.MaxRetries = 2
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), opts)

	res, err := p.ProcessDocument(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}
	if ex.calls != 2 {
		t.Errorf("calls = %d, want 2", ex.calls)
	}
	if res.Stats.ChunksSucceeded != 1 || res.Stats.PointsEmitted != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestProcessDocumentRetryExhaustion(t *testing.T) {
	path := writeDoc(t, 100)
	svcFail := fail(&point.ServiceError{StatusCode: 429})
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){svcFail, svcFail}}
	opts := threeChunkOpts()
	opts.MaxRetries = 2
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), opts)

	res, err := p.ProcessDocument(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("exhausted retries must degrade, not abort: %v", err)
	}
	if ex.calls != 2 {
		t.Errorf("calls = %d, want 2", ex.calls)
	}
	if res.Stats.ChunksFailed != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestProcessDocumentParseErrorNotRetried(t *testing.T) {
	path := writeDoc(t, 100)
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){
		fail(&point.ParseError{Reason: "not json"}),
	}}
	opts := threeChunkOpts()
	opts.MaxRetries = 3
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), opts)

	if _, err := p.ProcessDocument(context.Background(), path, nil); err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}
	if ex.calls != 1 {
		t.Errorf("parse error retried: calls = %d", ex.calls)
	}
}

func TestProcessDocumentCredentialsFatal(t *testing.T) {
	path := writeDoc(t, 100)
	ex := &scriptedExtractor{credErr: &point.ConfigError{Field: "credentials", Reason: "missing API key"}}
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), threeChunkOpts())

	_, err := p.ProcessDocument(context.Background(), path, nil)
	var cfgErr *point.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if ex.calls != 0 {
		t.Errorf("extraction attempted with bad credentials")
	}
}

func TestProcessDocumentEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("   \n\n  "), 0o644); err != nil {
		t.Fatal(err)
	}
	ex := &scriptedExtractor{}
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), threeChunkOpts())

	_, err := p.ProcessDocument(context.Background(), path, nil)
	var emptyErr *point.EmptyDocumentError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected EmptyDocumentError, got %v", err)
	}
	if ex.calls != 0 {
		t.Errorf("extraction attempted on empty document")
	}
}

func TestProcessDocumentCancellation(t *testing.T) {
	path := writeDoc(t, 300)
	ctx, cancel := context.WithCancel(context.Background())
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){
		func() ([]extract.RawPoint, error) {
			cancel() // observed before the next chunk starts
			return []extract.RawPoint{raw("point before cancel")}, nil
		},
	}}
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), threeChunkOpts())

	res, err := p.ProcessDocument(ctx, path, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ex.calls != 1 {
		t.Errorf("calls = %d, want 1", ex.calls)
	}
	// The partial result keeps what completed before cancellation.
	if res == nil || res.Stats.ChunksSucceeded != 1 || len(res.Points) != 1 {
		t.Errorf("partial result = %+v", res)
	}
}

func TestProcessDocumentRerunDedup(t *testing.T) {
	path := writeDoc(t, 300)
	same := []func() ([]extract.RawPoint, error){
		respond(raw("first chunk point")),
		respond(raw("second chunk point")),
		respond(raw("third chunk point")),
	}
	ex := &scriptedExtractor{script: append(append([]func() ([]extract.RawPoint, error){}, same...), same...)}
	q := queue.NewManager(nil, 0)
	p := NewProcessor(ex, q, testLogger(), threeChunkOpts())

	first, err := p.ProcessDocument(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.Stats.PointsEmitted != 3 {
		t.Fatalf("first run emitted %d points", first.Stats.PointsEmitted)
	}

	second, err := p.ProcessDocument(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Stats.PointsEmitted != 0 {
		t.Errorf("second run emitted %d points, want 0", second.Stats.PointsEmitted)
	}
	if second.Stats.ChunksSucceeded != 3 {
		t.Errorf("second run stats = %+v", second.Stats)
	}
}

func TestProcessDocumentSinkFailureIsWarning(t *testing.T) {
	path := writeDoc(t, 100)
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){
		respond(raw("the only point")),
	}}
	sink := failingSink{err: errors.New("sink down")}
	q := queue.NewManager(sink, 1)
	p := NewProcessor(ex, q, testLogger(), threeChunkOpts())

	res, err := p.ProcessDocument(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("sink failure must not fail the run: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Error("sink failure not surfaced as a warning")
	}
	if res.Stats.PointsEmitted != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestProcessDocumentSummary(t *testing.T) {
	path := writeDoc(t, 100)
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){
		respond(raw("the only point")),
	}}
	opts := threeChunkOpts()
	opts.GenerateSummary = true
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), opts)

	res, err := p.ProcessDocument(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}
	if res.Summary != "a summary" {
		t.Errorf("summary = %q", res.Summary)
	}
	if len(res.Tags) != 1 || res.Tags[0] != "appropriations" {
		t.Errorf("tags = %v", res.Tags)
	}
}

type failingSink struct{ err error }

func (s failingSink) Deliver(ctx context.Context, pts []point.Point) error { return s.err }

type recordingAnalysisSink struct {
	mu      sync.Mutex
	calls   int
	docName string
	summary string
	tags    []string
	err     error
}

func (s *recordingAnalysisSink) UpdateAnalysis(ctx context.Context, documentName, summary string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.docName = documentName
	s.summary = summary
	s.tags = tags
	return s.err
}

func TestProcessDocumentPersistsAnalysis(t *testing.T) {
	path := writeDoc(t, 100)
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){
		respond(raw("the only point")),
	}}
	opts := threeChunkOpts()
	opts.GenerateSummary = true
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), opts)
	sink := &recordingAnalysisSink{}
	p.SetAnalysisSink(sink)

	res, err := p.ProcessDocument(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}
	if sink.calls != 1 {
		t.Fatalf("analysis sink calls = %d, want 1", sink.calls)
	}
	if sink.docName != "bill.txt" || sink.summary != res.Summary {
		t.Errorf("persisted %q/%q, want %q/%q", sink.docName, sink.summary, "bill.txt", res.Summary)
	}
	if len(sink.tags) != 1 || sink.tags[0] != "appropriations" {
		t.Errorf("tags = %v", sink.tags)
	}
}

func TestProcessDocumentAnalysisFailureIsWarning(t *testing.T) {
	path := writeDoc(t, 100)
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){
		respond(raw("the only point")),
	}}
	opts := threeChunkOpts()
	opts.GenerateSummary = true
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), opts)
	p.SetAnalysisSink(&recordingAnalysisSink{err: errors.New("repository down")})

	res, err := p.ProcessDocument(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("analysis failure must not fail the run: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Error("analysis failure not surfaced as a warning")
	}
	if res.Summary == "" {
		t.Error("summary lost on persistence failure")
	}
}

func TestProcessDocumentNoAnalysisWithoutSummary(t *testing.T) {
	path := writeDoc(t, 100)
	ex := &scriptedExtractor{script: []func() ([]extract.RawPoint, error){
		respond(raw("the only point")),
	}}
	p := NewProcessor(ex, queue.NewManager(nil, 0), testLogger(), threeChunkOpts())
	sink := &recordingAnalysisSink{}
	p.SetAnalysisSink(sink)

	if _, err := p.ProcessDocument(context.Background(), path, nil); err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}
	if sink.calls != 0 {
		t.Errorf("analysis persisted without summary generation: calls = %d", sink.calls)
	}
}
