package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadguard/scan-engine/internal/gemini"
	"github.com/leadguard/scan-engine/internal/ledger"
	"github.com/leadguard/scan-engine/internal/rdap"
	"github.com/leadguard/scan-engine/internal/verdict"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProber struct {
	probed  [][]string
	results []rdap.ProbeResult
}

func (f *fakeProber) ProbeAll(ctx context.Context, domains []string) []rdap.ProbeResult {
	f.probed = append(f.probed, domains)
	if f.results != nil {
		return f.results
	}
	results := make([]rdap.ProbeResult, len(domains))
	for i, d := range domains {
		results[i] = rdap.ProbeResult{Domain: d, Note: "Domain " + d + " was registered long ago."}
	}
	return results
}

type fakeAnalyzer struct {
	requests []gemini.AnalysisRequest
	output   string
	err      error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req gemini.AnalysisRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

type fakeRecorder struct {
	calls chan recordedCall
}

type recordedCall struct {
	verdict *verdict.Verdict
	req     ledger.Request
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{calls: make(chan recordedCall, 4)}
}

func (f *fakeRecorder) Record(v *verdict.Verdict, req ledger.Request) {
	f.calls <- recordedCall{verdict: v, req: req}
}

func newTestOrchestrator(prober Prober, analyzer Analyzer, recorder Recorder) *Orchestrator {
	return NewOrchestrator(prober, analyzer, recorder, testLogger(), nil, 2)
}

const scamOutput = `{"verdict":"SCAM","trust_score":8,"red_flags":["upfront fee"],"analysis":"bad","recommendation":"avoid","category":"advance-fee"}`

func TestScan_EmptyContentMakesNoDownstreamCalls(t *testing.T) {
	prober := &fakeProber{}
	analyzer := &fakeAnalyzer{output: scamOutput}
	recorder := newFakeRecorder()
	o := newTestOrchestrator(prober, analyzer, recorder)

	for _, content := range []string{"", "   \n\t "} {
		result, err := o.Scan(context.Background(), ScanRequest{Content: content})
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrEmptyContent)
	}
	assert.Empty(t, prober.probed)
	assert.Empty(t, analyzer.requests)
}

func TestScan_ProbesAtMostTwoDomains(t *testing.T) {
	prober := &fakeProber{}
	analyzer := &fakeAnalyzer{output: `{"verdict":"CLEAR","confidence":90}`}
	o := newTestOrchestrator(prober, analyzer, newFakeRecorder())

	_, err := o.Scan(context.Background(), ScanRequest{
		Content: "Check one.example.com and two.example.org and three.example.net today",
	})
	require.NoError(t, err)

	require.Len(t, prober.probed, 1)
	assert.Equal(t, []string{"one.example.com", "two.example.org"}, prober.probed[0])
}

func TestScan_NoDomainsStillTellsTheModel(t *testing.T) {
	prober := &fakeProber{}
	analyzer := &fakeAnalyzer{output: `{"verdict":"CLEAR","confidence":90}`}
	o := newTestOrchestrator(prober, analyzer, newFakeRecorder())

	_, err := o.Scan(context.Background(), ScanRequest{
		Content: "Congratulations, you are hired! Send your details now.",
	})
	require.NoError(t, err)

	require.Len(t, analyzer.requests, 1)
	assert.Contains(t, analyzer.requests[0].ForensicText, "No domains were detected")
}

func TestScan_YoungDomainSignalReachesTheModel(t *testing.T) {
	prober := &fakeProber{results: []rdap.ProbeResult{{
		Domain:  "newcorp-jobs.net",
		AgeDays: 12,
		Note:    "Domain newcorp-jobs.net was registered on 2026-08-19 and is only 12 days old. WARNING: domains younger than 180 days are a strong recruitment-fraud signal.",
	}}}
	analyzer := &fakeAnalyzer{output: scamOutput}
	o := newTestOrchestrator(prober, analyzer, newFakeRecorder())

	result, err := o.Scan(context.Background(), ScanRequest{
		Content: "Join now! Email hr@newcorp-jobs.net for a paid internship.",
	})
	require.NoError(t, err)

	require.Len(t, analyzer.requests, 1)
	assert.Contains(t, analyzer.requests[0].ForensicText, "only 12 days old")
	assert.Contains(t, analyzer.requests[0].ForensicText, "WARNING")
	assert.Contains(t, result.ForensicText, "only 12 days old")
}

func TestScan_ScamDispatchesExactlyOneLedgerWrite(t *testing.T) {
	prober := &fakeProber{}
	analyzer := &fakeAnalyzer{output: scamOutput}
	recorder := newFakeRecorder()
	o := newTestOrchestrator(prober, analyzer, recorder)

	result, err := o.Scan(context.Background(), ScanRequest{
		Content:   "Apply via hr@newcorp-jobs.net immediately",
		BrandName: "NewCorp",
		UserID:    "user-7",
	})
	require.NoError(t, err)
	assert.Equal(t, verdict.Scam, result.Verdict)

	select {
	case call := <-recorder.calls:
		assert.Equal(t, verdict.Scam, call.verdict.Verdict)
		assert.Equal(t, "NewCorp", call.req.BrandName)
		assert.Equal(t, "newcorp-jobs.net", call.req.Domain)
		assert.Equal(t, "user-7", call.req.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected a ledger dispatch for a SCAM verdict")
	}

	select {
	case <-recorder.calls:
		t.Fatal("expected exactly one ledger dispatch")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScan_VerdictReturnedBeforeLedgerSettles(t *testing.T) {
	// A recorder that blocks forever must not delay the response.
	blocked := make(chan struct{})
	recorder := &blockingRecorder{release: blocked}
	analyzer := &fakeAnalyzer{output: scamOutput}
	o := newTestOrchestrator(&fakeProber{}, analyzer, recorder)

	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err := o.Scan(context.Background(), ScanRequest{Content: "wire money to hr@bad.example"})
		assert.NoError(t, err)
		assert.NotNil(t, result)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scan response blocked on ledger sync")
	}
	close(blocked)
}

type blockingRecorder struct {
	release chan struct{}
}

func (b *blockingRecorder) Record(v *verdict.Verdict, req ledger.Request) {
	<-b.release
}

func TestScan_UpstreamExhaustedPropagates(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &gemini.ExhaustedError{Attempts: 3, Last: errors.New("429")}}
	o := newTestOrchestrator(&fakeProber{}, analyzer, newFakeRecorder())

	result, err := o.Scan(context.Background(), ScanRequest{Content: "hello world.example"})

	assert.Nil(t, result)
	var exhausted *gemini.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestScan_MalformedAnalysisPropagates(t *testing.T) {
	analyzer := &fakeAnalyzer{output: "I will not answer in JSON today."}
	recorder := newFakeRecorder()
	o := newTestOrchestrator(&fakeProber{}, analyzer, recorder)

	result, err := o.Scan(context.Background(), ScanRequest{Content: "offer from jobs.example"})

	assert.Nil(t, result, "no partial verdict may be returned")
	var parseErr *verdict.ParseError
	assert.ErrorAs(t, err, &parseErr)

	select {
	case <-recorder.calls:
		t.Fatal("failed scans must not write to the ledger")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScan_ClearVerdictStillDispatched(t *testing.T) {
	analyzer := &fakeAnalyzer{output: `{"verdict":"CLEAR","confidence":95}`}
	recorder := newFakeRecorder()
	o := newTestOrchestrator(&fakeProber{}, analyzer, recorder)

	result, err := o.Scan(context.Background(), ScanRequest{Content: "normal offer, careers.acme.com"})
	require.NoError(t, err)
	assert.Equal(t, verdict.Clear, result.Verdict)

	// The orchestrator still dispatches; filtering on the verdict belongs to
	// the ledger sync itself. Here the recorder sees the dispatch.
	select {
	case call := <-recorder.calls:
		assert.Equal(t, verdict.Clear, call.verdict.Verdict)
	case <-time.After(time.Second):
		t.Fatal("expected dispatch")
	}
}
