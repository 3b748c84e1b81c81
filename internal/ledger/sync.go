package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/leadguard/scan-engine/internal/database"
	"github.com/leadguard/scan-engine/internal/metrics"
	"github.com/leadguard/scan-engine/internal/verdict"
)

// Sentinel values for fields the caller did not provide
const (
	NoDomainSentinel = "no domain detected"
	AnonymousUser    = "anonymous"
	UnknownBrandName = "Unknown Company"
)

// ThreatWriter is the slice of the ledger repository the sync needs
type ThreatWriter interface {
	Create(ctx context.Context, record *database.ThreatRecord) error
}

// ThreatPublisher pushes a freshly written record to event consumers
type ThreatPublisher interface {
	PublishThreat(ctx context.Context, record *database.ThreatRecord) error
}

// ThreatBroadcaster pushes a freshly written record to live feed clients
type ThreatBroadcaster interface {
	BroadcastThreat(record *database.ThreatRecord)
}

// Request is the scan context a ledger record is built from
type Request struct {
	BrandName string
	Domain    string
	UserID    string
}

// Sync performs the best-effort, at-most-once write of confirmed SCAM
// verdicts into the shared community ledger. Nothing here ever propagates an
// error: a ledger outage degrades shared threat intelligence, not the
// caller's scan.
type Sync struct {
	writer      ThreatWriter
	publisher   ThreatPublisher
	broadcaster ThreatBroadcaster
	logger      *slog.Logger
	metrics     *metrics.Collector
	timeout     time.Duration
}

// NewSync creates a ledger sync. publisher and broadcaster may be nil.
func NewSync(
	writer ThreatWriter,
	publisher ThreatPublisher,
	broadcaster ThreatBroadcaster,
	logger *slog.Logger,
	collector *metrics.Collector,
	timeout time.Duration,
) *Sync {
	return &Sync{
		writer:      writer,
		publisher:   publisher,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     collector,
		timeout:     timeout,
	}
}

// Record writes a threat record for the given verdict if, and only if, it is
// a SCAM. It runs on its own deadline, detached from the request that
// produced the verdict, and absorbs every failure.
func (s *Sync) Record(v *verdict.Verdict, req Request) {
	if v == nil || v.Verdict != verdict.Scam {
		return
	}

	record := &database.ThreatRecord{
		BrandName: orSentinel(req.BrandName, UnknownBrandName),
		Domain:    orSentinel(req.Domain, NoDomainSentinel),
		Category:  orSentinel(v.Category, "uncategorized"),
		Verdict:   v.Verdict,
		UserID:    orSentinel(req.UserID, AnonymousUser),
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.writer.Create(ctx, record)
	if s.metrics != nil {
		s.metrics.ObserveLedgerWrite(err)
	}
	if err != nil {
		s.logger.Error("ledger write failed; threat record dropped",
			"brand_name", record.BrandName,
			"domain", record.Domain,
			"error", err)
		return
	}

	if s.publisher != nil {
		if err := s.publisher.PublishThreat(ctx, record); err != nil {
			s.logger.Warn("threat event publish failed", "record_id", record.ID, "error", err)
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastThreat(record)
	}
}

func orSentinel(value, sentinel string) string {
	if value == "" {
		return sentinel
	}
	return value
}
