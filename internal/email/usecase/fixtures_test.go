package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mailmind/internal/email/domain"
	"mailmind/pkg/ai"
	"mailmind/pkg/retry"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, db.AutoMigrate(&domain.Message{}, &domain.Attachment{}, &domain.Analysis{}, &domain.SyncState{}))
	return db
}

func testRetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func rawMessage(remoteID, body string, labels []string, isRead bool) *domain.RawMessage {
	return &domain.RawMessage{
		RemoteID:   remoteID,
		Sender:     "Alice <alice@example.com>",
		SenderName: "Alice",
		Recipients: []string{"bob@example.com"},
		Subject:    "Quarterly report",
		BodyText:   body,
		Labels:     labels,
		IsRead:     isRead,
		ReceivedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

// fakeProvider serves canned messages, with optional injected failures
type fakeProvider struct {
	order       []string
	raws        map[string]*domain.RawMessage
	pageSize    int
	listErr     error
	fetchErrs   map[string]error
	attachments map[string][]byte

	listCalls  int
	fetchCalls int
}

func newFakeProvider(raws ...*domain.RawMessage) *fakeProvider {
	p := &fakeProvider{
		raws:        make(map[string]*domain.RawMessage),
		fetchErrs:   make(map[string]error),
		attachments: make(map[string][]byte),
		pageSize:    2,
	}
	for _, raw := range raws {
		p.add(raw)
	}
	return p
}

func (p *fakeProvider) add(raw *domain.RawMessage) {
	if _, ok := p.raws[raw.RemoteID]; !ok {
		p.order = append(p.order, raw.RemoteID)
	}
	p.raws[raw.RemoteID] = raw
}

func (p *fakeProvider) ListRefs(ctx context.Context, window domain.SyncWindow, pageToken string) (*domain.RefPage, error) {
	p.listCalls++
	if p.listErr != nil {
		return nil, p.listErr
	}

	offset := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "%d", &offset)
	}
	end := offset + p.pageSize
	if end > len(p.order) {
		end = len(p.order)
	}

	page := &domain.RefPage{}
	for _, id := range p.order[offset:end] {
		page.Refs = append(page.Refs, domain.MessageRef{RemoteID: id})
	}
	if end < len(p.order) {
		page.NextToken = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func (p *fakeProvider) FetchMessage(ctx context.Context, ref domain.MessageRef) (*domain.RawMessage, error) {
	p.fetchCalls++
	if err := p.fetchErrs[ref.RemoteID]; err != nil {
		return nil, err
	}
	raw, ok := p.raws[ref.RemoteID]
	if !ok {
		return nil, fmt.Errorf("no such message %s", ref.RemoteID)
	}
	return raw, nil
}

func (p *fakeProvider) FetchAttachment(ctx context.Context, messageRemoteID, attachmentRemoteID string) ([]byte, error) {
	data, ok := p.attachments[attachmentRemoteID]
	if !ok {
		return nil, fmt.Errorf("no such attachment %s: %w", attachmentRemoteID, domain.ErrTransient)
	}
	return data, nil
}

// fakeChangeProvider adds the change-lister capability on top of fakeProvider
type fakeChangeProvider struct {
	*fakeProvider
	changed     []string
	latestToken string
}

func (p *fakeChangeProvider) ListChangedRefs(ctx context.Context, sinceToken, pageToken string) (*domain.RefPage, string, error) {
	page := &domain.RefPage{}
	for _, id := range p.changed {
		page.Refs = append(page.Refs, domain.MessageRef{RemoteID: id})
	}
	return page, p.latestToken, nil
}

func (p *fakeChangeProvider) LatestChangeToken(ctx context.Context) (string, error) {
	return p.latestToken, nil
}

// fakeAnalyzer answers every request with a canned verdict, minus the IDs
// listed in omit, and can fail a fixed number of leading calls
type fakeAnalyzer struct {
	omit      map[string]bool
	failFirst int
	failWith  error

	calls      int
	batchSizes []int
}

func (a *fakeAnalyzer) AnalyzeBatch(ctx context.Context, requests []ai.AnalysisRequest) ([]ai.AnalysisResult, error) {
	a.calls++
	a.batchSizes = append(a.batchSizes, len(requests))
	if a.calls <= a.failFirstCount() {
		return nil, a.failWith
	}

	var results []ai.AnalysisResult
	for _, req := range requests {
		if a.omit[req.ID] {
			continue
		}
		results = append(results, ai.AnalysisResult{
			ID: req.ID,
			Summaries: map[string]string{
				domain.SummaryBrief:     "summary of " + req.Subject,
				domain.SummaryDetailed:  "detailed summary of " + req.Subject,
				domain.SummaryBullet:    "- " + req.Subject,
				domain.SummaryExecutive: "executive take on " + req.Subject,
			},
			Sentiment: domain.SentimentNeutral,
			PriorityScore:  55,
			PriorityReason: "routine",
			KeyTopics:      []string{"report"},
		})
	}
	return results, nil
}

func (a *fakeAnalyzer) failFirstCount() int {
	if a.failWith == nil {
		return 0
	}
	return a.failFirst
}

// analyzerFunc lets a test intercept analyzer calls inline
type analyzerFunc func(ctx context.Context, requests []ai.AnalysisRequest) ([]ai.AnalysisResult, error)

func (f analyzerFunc) AnalyzeBatch(ctx context.Context, requests []ai.AnalysisRequest) ([]ai.AnalysisResult, error) {
	return f(ctx, requests)
}
