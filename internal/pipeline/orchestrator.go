package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/leadguard/scan-engine/internal/evidence"
	"github.com/leadguard/scan-engine/internal/extractor"
	"github.com/leadguard/scan-engine/internal/gemini"
	"github.com/leadguard/scan-engine/internal/ledger"
	"github.com/leadguard/scan-engine/internal/metrics"
	"github.com/leadguard/scan-engine/internal/rdap"
	"github.com/leadguard/scan-engine/internal/verdict"
)

// ErrEmptyContent rejects a scan with nothing to analyze. No downstream call
// is made once this fires.
var ErrEmptyContent = errors.New("scan content is required")

// ScanRequest is one inbound lead to analyze. Immutable for the life of the
// request.
type ScanRequest struct {
	Content          string
	BrandName        string
	UserID           string
	DocumentMetadata map[string]string
}

// Prober gathers registry evidence for candidate domains
type Prober interface {
	ProbeAll(ctx context.Context, domains []string) []rdap.ProbeResult
}

// Analyzer invokes the LLM analyst and returns its raw output
type Analyzer interface {
	Analyze(ctx context.Context, req gemini.AnalysisRequest) (string, error)
}

// Recorder persists qualifying verdicts to the shared ledger, best-effort
type Recorder interface {
	Record(v *verdict.Verdict, req ledger.Request)
}

// Orchestrator sequences the forensic verdict pipeline: extract candidate
// domains, probe the registry, synthesize evidence, invoke the analyst,
// parse the verdict, then dispatch the ledger write without letting it touch
// the response.
type Orchestrator struct {
	prober    Prober
	analyzer  Analyzer
	recorder  Recorder
	logger    *slog.Logger
	metrics   *metrics.Collector
	maxProbes int
}

// NewOrchestrator wires the pipeline stages together
func NewOrchestrator(
	prober Prober,
	analyzer Analyzer,
	recorder Recorder,
	logger *slog.Logger,
	collector *metrics.Collector,
	maxProbes int,
) *Orchestrator {
	return &Orchestrator{
		prober:    prober,
		analyzer:  analyzer,
		recorder:  recorder,
		logger:    logger,
		metrics:   collector,
		maxProbes: maxProbes,
	}
}

// Scan runs the pipeline for one request. Failures in any stage before the
// verdict are terminal and typed; no partial verdict is ever returned. A
// degraded registry probe is not a failure.
func (o *Orchestrator) Scan(ctx context.Context, req ScanRequest) (*verdict.Verdict, error) {
	start := time.Now()

	if strings.TrimSpace(req.Content) == "" {
		o.observe("input_error", start)
		return nil, ErrEmptyContent
	}

	// Extracting
	domains := extractor.Domains(req.Content)
	probed := domains
	if len(probed) > o.maxProbes {
		probed = probed[:o.maxProbes]
	}
	o.logger.Debug("extracted candidate domains",
		"found", len(domains), "probing", len(probed))

	// Probing: concurrent fan-out, joined before the next stage
	probes := o.prober.ProbeAll(ctx, probed)
	if o.metrics != nil {
		for _, p := range probes {
			o.metrics.ObserveProbe(p.ProbeFailed)
		}
	}

	// Synthesizing
	bundle := evidence.Synthesize(probes, req.DocumentMetadata)

	// Analyzing
	raw, err := o.analyzer.Analyze(ctx, gemini.AnalysisRequest{
		Content:      req.Content,
		ForensicText: bundle.ForensicText,
		MetadataText: bundle.MetadataText,
	})
	if err != nil {
		o.observe(outcomeFor(err), start)
		return nil, err
	}

	// Parsing
	v, err := verdict.Parse(raw, bundle.ForensicText)
	if err != nil {
		o.observe(outcomeFor(err), start)
		return nil, err
	}

	o.observe(v.Verdict, start)
	o.logger.Info("scan completed",
		"verdict", v.Verdict,
		"trust_score", v.TrustScore,
		"domains_probed", len(probed),
		"duration", time.Since(start))

	// Responding: the verdict above is the caller's payload. The ledger write
	// is dispatched detached so its outcome can only ever reach the logs.
	recordReq := ledger.Request{
		BrandName: req.BrandName,
		UserID:    req.UserID,
	}
	if len(domains) > 0 {
		recordReq.Domain = domains[0]
	}
	go o.recorder.Record(v, recordReq)

	return v, nil
}

func (o *Orchestrator) observe(outcome string, start time.Time) {
	if o.metrics != nil {
		o.metrics.ObserveScan(outcome, time.Since(start))
	}
}

func outcomeFor(err error) string {
	var exhausted *gemini.ExhaustedError
	if errors.As(err, &exhausted) {
		return "upstream_exhausted"
	}
	var malformed *verdict.ParseError
	if errors.As(err, &malformed) {
		return "malformed_analysis"
	}
	return "error"
}
