package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"mailmind/internal/email/domain"
	"mailmind/internal/email/repository"
	"mailmind/pkg/extract"
	"mailmind/pkg/retry"

	"golang.org/x/sync/errgroup"
)

// SyncUsecase drives one mailbox synchronization pass
type SyncUsecase interface {
	// Sync fetches the window from the provider and reconciles it into
	// the store. Safe to re-run: unchanged messages are skipped, changed
	// ones updated in place. Per-item failures are counted, not fatal.
	Sync(ctx context.Context, window domain.SyncWindow) (*domain.RunStats, error)
}

type syncUsecase struct {
	provider    domain.MailboxProvider
	messageRepo repository.MessageRepository
	attachRepo  repository.AttachmentRepository
	syncRepo    repository.SyncStateRepository
	extractor   *extract.Extractor
	retryPolicy retry.Policy

	fetchParallelism int
	overlapDays      int
}

// NewSyncUsecase creates a new instance of syncUsecase
func NewSyncUsecase(
	provider domain.MailboxProvider,
	messageRepo repository.MessageRepository,
	attachRepo repository.AttachmentRepository,
	syncRepo repository.SyncStateRepository,
	extractor *extract.Extractor,
	retryPolicy retry.Policy,
	fetchParallelism int,
	overlapDays int,
) SyncUsecase {
	if fetchParallelism <= 0 {
		fetchParallelism = 5
	}
	if overlapDays <= 0 {
		overlapDays = 2
	}
	return &syncUsecase{
		provider:         provider,
		messageRepo:      messageRepo,
		attachRepo:       attachRepo,
		syncRepo:         syncRepo,
		extractor:        extractor,
		retryPolicy:      retryPolicy,
		fetchParallelism: fetchParallelism,
		overlapDays:      overlapDays,
	}
}

func (u *syncUsecase) Sync(ctx context.Context, window domain.SyncWindow) (*domain.RunStats, error) {
	stats := domain.NewRunStats()
	defer func() { stats.FinishedAt = time.Now() }()

	var err error
	if window.Mode == domain.WindowIncremental {
		err = u.syncIncremental(ctx, window, stats)
	} else {
		err = u.syncFull(ctx, window, stats)
	}
	if err != nil {
		return stats, err
	}

	if err := u.syncRepo.Set(domain.SyncKeyLastSyncAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return stats, fmt.Errorf("record sync time: %w", err)
	}
	log.Printf("[Sync] Done: fetched=%d new=%d updated=%d skipped=%d errors=%d",
		stats.Fetched, stats.New, stats.Updated, stats.Skipped, stats.Errors)
	return stats, nil
}

func (u *syncUsecase) syncFull(ctx context.Context, window domain.SyncWindow, stats *domain.RunStats) error {
	pageToken := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var page *domain.RefPage
		err := retry.Do(ctx, u.retryPolicy, func() error {
			var listErr error
			page, listErr = u.provider.ListRefs(ctx, window, pageToken)
			return listErr
		})
		if err != nil {
			if errors.Is(err, domain.ErrAuthExpired) || errors.Is(err, context.Canceled) {
				return err
			}
			// listing retries exhausted: the rest of the window is
			// unreachable this run
			log.Printf("[Sync] Page listing failed after retries: %v", err)
			stats.RecordError("exhausted")
			return nil
		}

		u.processRefs(ctx, page.Refs, stats)

		if page.NextToken == "" {
			break
		}
		pageToken = page.NextToken
	}

	// remember the provider's change cursor so the next run can be
	// incremental
	if lister, ok := u.provider.(domain.ChangeLister); ok {
		if token, err := lister.LatestChangeToken(ctx); err == nil {
			if err := u.syncRepo.Set(domain.SyncKeyChangeToken, token); err != nil {
				return fmt.Errorf("record change token: %w", err)
			}
		}
	}
	return nil
}

func (u *syncUsecase) syncIncremental(ctx context.Context, window domain.SyncWindow, stats *domain.RunStats) error {
	lister, ok := u.provider.(domain.ChangeLister)
	token := window.SinceToken
	if token == "" {
		stored, err := u.syncRepo.Get(domain.SyncKeyChangeToken)
		if err != nil {
			return fmt.Errorf("load change token: %w", err)
		}
		token = stored
	}

	if !ok || token == "" {
		// no change feed available: a recent window with overlap gives
		// the same convergence, just less cheaply
		log.Printf("[Sync] No change token available, falling back to recent window")
		return u.syncFull(ctx, domain.Recent(u.overlapDays), stats)
	}

	pageToken := ""
	nextToken := token
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var page *domain.RefPage
		err := retry.Do(ctx, u.retryPolicy, func() error {
			var listErr error
			page, nextToken, listErr = lister.ListChangedRefs(ctx, token, pageToken)
			return listErr
		})
		if err != nil {
			if errors.Is(err, domain.ErrAuthExpired) || errors.Is(err, context.Canceled) {
				return err
			}
			log.Printf("[Sync] Change listing failed after retries: %v", err)
			stats.RecordError("exhausted")
			return nil
		}

		u.processRefs(ctx, page.Refs, stats)

		if page.NextToken == "" {
			break
		}
		pageToken = page.NextToken
	}

	if err := u.syncRepo.Set(domain.SyncKeyChangeToken, nextToken); err != nil {
		return fmt.Errorf("record change token: %w", err)
	}
	return nil
}

// processRefs fetches, normalizes and stores one page of messages. Failures
// are isolated per message.
func (u *syncUsecase) processRefs(ctx context.Context, refs []domain.MessageRef, stats *domain.RunStats) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.fetchParallelism)

	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			var raw *domain.RawMessage
			err := retry.Do(gctx, u.retryPolicy, func() error {
				var fetchErr error
				raw, fetchErr = u.provider.FetchMessage(gctx, ref)
				return fetchErr
			})

			count := func(fn func()) {
				mu.Lock()
				fn()
				mu.Unlock()
			}
			count(func() { stats.Fetched++ })

			if err != nil {
				log.Printf("[Sync] Fetch %s failed: %v", ref.RemoteID, err)
				count(func() { stats.RecordError("fetch") })
				return nil
			}

			msg, err := Normalize(raw)
			if err != nil {
				log.Printf("[Sync] Skipping malformed message %s: %v", ref.RemoteID, err)
				count(func() { stats.RecordError("malformed") })
				return nil
			}

			created, changed, err := u.messageRepo.Upsert(msg)
			if err != nil {
				log.Printf("[Sync] Upsert %s failed: %v", ref.RemoteID, err)
				count(func() { stats.RecordError("store") })
				return nil
			}
			count(func() {
				switch {
				case created:
					stats.New++
				case changed:
					stats.Updated++
				default:
					stats.Skipped++
				}
			})

			if created || changed {
				u.processAttachments(gctx, msg, raw.Attachments, stats, &mu)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// processAttachments extracts and stores a message's attachments. The store
// keeps one immutable row per content version, so re-running is harmless.
func (u *syncUsecase) processAttachments(ctx context.Context, msg *domain.Message, raws []domain.RawAttachment, stats *domain.RunStats, mu *sync.Mutex) {
	for _, rawAtt := range raws {
		data := rawAtt.Data
		var downloadErr error
		if data == nil && rawAtt.RemoteID != "" {
			downloadErr = retry.Do(ctx, u.retryPolicy, func() error {
				var fetchErr error
				data, fetchErr = u.provider.FetchAttachment(ctx, msg.RemoteID, rawAtt.RemoteID)
				return fetchErr
			})
		}

		sum := sha256.Sum256(data)
		att := &domain.Attachment{
			MessageID:   msg.ID,
			Filename:    rawAtt.Filename,
			ContentHash: hex.EncodeToString(sum[:]),
			ContentType: rawAtt.ContentType,
			SizeBytes:   rawAtt.Size,
		}

		if downloadErr != nil {
			// keep the descriptor so the failed download is visible
			log.Printf("[Sync] Attachment %s/%s download failed: %v", msg.RemoteID, rawAtt.Filename, downloadErr)
			att.Status = domain.AttachmentFailed
			att.FailReason = fmt.Sprintf("download failed: %v", downloadErr)
			mu.Lock()
			stats.RecordError("attachment")
			mu.Unlock()
		} else if result, err := u.extractor.Extract(data, rawAtt.ContentType); err != nil {
			att.Status = domain.AttachmentFailed
			att.FailReason = err.Error()
		} else {
			att.Status = domain.AttachmentExtracted
			att.ExtractedText = result.Text
			att.Preview = result.Preview
			att.Metadata = domain.StringMap(result.Metadata)
		}

		inserted, err := u.attachRepo.InsertIfAbsent(att)
		if err != nil {
			log.Printf("[Sync] Store attachment %s/%s failed: %v", msg.RemoteID, rawAtt.Filename, err)
			mu.Lock()
			stats.RecordError("attachment")
			mu.Unlock()
			continue
		}
		if inserted && att.Status == domain.AttachmentExtracted {
			mu.Lock()
			stats.AttachmentsExtracted++
			mu.Unlock()
		}
	}
}
