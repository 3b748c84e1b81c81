package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadguard/scan-engine/internal/database"
	"github.com/leadguard/scan-engine/internal/verdict"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWriter struct {
	records []*database.ThreatRecord
	err     error
}

func (f *fakeWriter) Create(ctx context.Context, record *database.ThreatRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

type fakePublisher struct {
	published []*database.ThreatRecord
	err       error
}

func (f *fakePublisher) PublishThreat(ctx context.Context, record *database.ThreatRecord) error {
	f.published = append(f.published, record)
	return f.err
}

type fakeBroadcaster struct {
	broadcast []*database.ThreatRecord
}

func (f *fakeBroadcaster) BroadcastThreat(record *database.ThreatRecord) {
	f.broadcast = append(f.broadcast, record)
}

func scamVerdict() *verdict.Verdict {
	return &verdict.Verdict{
		Verdict:    verdict.Scam,
		TrustScore: 5,
		Category:   "fake-recruiter",
	}
}

func TestRecord_ScamWritesOnce(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &fakePublisher{}
	broadcaster := &fakeBroadcaster{}
	s := NewSync(writer, publisher, broadcaster, testLogger(), nil, time.Second)

	s.Record(scamVerdict(), Request{
		BrandName: "NewCorp",
		Domain:    "newcorp-jobs.net",
		UserID:    "user-1",
	})

	require.Len(t, writer.records, 1)
	record := writer.records[0]
	assert.Equal(t, "NewCorp", record.BrandName)
	assert.Equal(t, "newcorp-jobs.net", record.Domain)
	assert.Equal(t, "fake-recruiter", record.Category)
	assert.Equal(t, verdict.Scam, record.Verdict)
	assert.Equal(t, "user-1", record.UserID)

	require.Len(t, publisher.published, 1)
	require.Len(t, broadcaster.broadcast, 1)
}

func TestRecord_NonScamVerdictsWriteNothing(t *testing.T) {
	writer := &fakeWriter{}
	s := NewSync(writer, nil, nil, testLogger(), nil, time.Second)

	for _, label := range []string{verdict.Clear, verdict.Caution} {
		s.Record(&verdict.Verdict{Verdict: label, TrustScore: 80}, Request{BrandName: "Acme"})
	}
	s.Record(nil, Request{BrandName: "Acme"})

	assert.Empty(t, writer.records)
}

func TestRecord_SentinelsForMissingFields(t *testing.T) {
	writer := &fakeWriter{}
	s := NewSync(writer, nil, nil, testLogger(), nil, time.Second)

	s.Record(&verdict.Verdict{Verdict: verdict.Scam}, Request{})

	require.Len(t, writer.records, 1)
	record := writer.records[0]
	assert.Equal(t, UnknownBrandName, record.BrandName)
	assert.Equal(t, NoDomainSentinel, record.Domain)
	assert.Equal(t, AnonymousUser, record.UserID)
	assert.Equal(t, "uncategorized", record.Category)
}

func TestRecord_WriteFailureIsAbsorbed(t *testing.T) {
	writer := &fakeWriter{err: errors.New("ledger unreachable")}
	publisher := &fakePublisher{}
	s := NewSync(writer, publisher, nil, testLogger(), nil, time.Second)

	assert.NotPanics(t, func() {
		s.Record(scamVerdict(), Request{BrandName: "NewCorp"})
	})
	assert.Empty(t, publisher.published, "no event for a record that was never written")
}

func TestRecord_PublishFailureIsAbsorbed(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &fakePublisher{err: errors.New("brokers down")}
	broadcaster := &fakeBroadcaster{}
	s := NewSync(writer, publisher, broadcaster, testLogger(), nil, time.Second)

	assert.NotPanics(t, func() {
		s.Record(scamVerdict(), Request{BrandName: "NewCorp"})
	})
	require.Len(t, writer.records, 1)
	assert.Len(t, broadcaster.broadcast, 1, "feed broadcast still happens when kafka is down")
}
