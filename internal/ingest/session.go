// Package ingest accumulates sanitized, dimension-resolved billing facts and
// persists them in bounded batches.
package ingest

import (
	"context"

	"github.com/costlens/costlens/internal/dimension"
	"github.com/costlens/costlens/internal/domain/billing"
	ierr "github.com/costlens/costlens/internal/errors"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/types"
)

// DefaultBatchSize bounds peak buffered rows per session.
const DefaultBatchSize = 500

// Summary reports what one ingestion session did with its rows.
type Summary struct {
	UploadID     string `json:"upload_id"`
	RowsAppended int    `json:"rows_appended"`
	RowsFlushed  int    `json:"rows_flushed"`
	RowsDropped  int    `json:"rows_dropped"`
	BatchesSent  int    `json:"batches_sent"`
	BatchesLost  int    `json:"batches_lost"`
}

// Session is the fact buffer of one ingestion run. It is owned exclusively
// by the run that created it and must not be shared across uploads; one
// session accumulates rows for exactly one upload id. Append is memory-only
// except when the buffer reaches the batch size and forces a flush.
type Session struct {
	uploadID  string
	batchSize int

	repo     billing.FactRepository
	resolver *dimension.Resolver
	logger   *logger.Logger

	buffer  []*billing.BillingUsageFact
	summary Summary
}

func NewSession(uploadID string, batchSize int, repo billing.FactRepository, resolver *dimension.Resolver, logger *logger.Logger) (*Session, error) {
	if uploadID == "" {
		return nil, ierr.NewError("upload id is required").
			WithHint("Upload ID is required").
			Mark(ierr.ErrValidation)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &Session{
		uploadID:  uploadID,
		batchSize: batchSize,
		repo:      repo,
		resolver:  resolver,
		logger:    logger.With("upload_id", uploadID),
		buffer:    make([]*billing.BillingUsageFact, 0, batchSize),
		summary:   Summary{UploadID: uploadID},
	}, nil
}

// Append sanitizes the row, resolves its dimension references and buffers
// the resulting fact. When the buffer is full it flushes before accepting
// the row, so memory stays bounded at one batch.
func (s *Session) Append(ctx context.Context, raw *billing.RawBillingRow) error {
	if len(s.buffer) >= s.batchSize {
		if err := s.Flush(ctx); err != nil {
			return err
		}
	}

	fact, err := billing.FromRaw(s.uploadID, raw, s.resolveDimensions(ctx, raw))
	if err != nil {
		return err
	}

	s.buffer = append(s.buffer, fact)
	s.summary.RowsAppended++
	return nil
}

// Flush persists the pending batch in one bulk write and clears the buffer.
// A persistence failure is logged and the batch dropped; ingestion of later
// batches continues. Re-flushing rows already persisted is safe: the store
// dedup constraint collapses them.
func (s *Session) Flush(ctx context.Context) error {
	if len(s.buffer) == 0 {
		return nil
	}

	batch := s.buffer
	s.buffer = make([]*billing.BillingUsageFact, 0, s.batchSize)

	if err := s.repo.BulkInsertFacts(ctx, batch); err != nil {
		// Known trade-off: the batch is lost rather than retried. Gaps are
		// tolerable in this append-only analytics store; an exactly-once
		// requirement would need a durable retry queue keyed by upload id
		// and batch sequence.
		s.logger.Errorw("dropping batch after persistence failure",
			"batch_size", len(batch),
			"error", err,
		)
		s.summary.RowsDropped += len(batch)
		s.summary.BatchesLost++
		return nil
	}

	s.summary.RowsFlushed += len(batch)
	s.summary.BatchesSent++
	return nil
}

// Summary returns the session counters collected so far.
func (s *Session) Summary() Summary {
	return s.summary
}

// resolveDimensions resolves all seven dimension references. A resolution
// failure degrades that dimension to the null reference; the row still
// ingests.
func (s *Session) resolveDimensions(ctx context.Context, raw *billing.RawBillingRow) billing.DimensionRefs {
	return billing.DimensionRefs{
		Account:            s.resolve(ctx, types.DimensionCloudAccount, raw.BillingAccountID, raw.BillingAccountName),
		Service:            s.resolve(ctx, types.DimensionService, raw.ServiceName, raw.ServiceName),
		Sku:                s.resolve(ctx, types.DimensionSku, raw.SkuID, raw.SkuID),
		Resource:           s.resolve(ctx, types.DimensionResource, raw.ResourceID, raw.ResourceName),
		Region:             s.resolve(ctx, types.DimensionRegion, raw.Region, raw.Region),
		SubAccount:         s.resolve(ctx, types.DimensionSubAccount, raw.SubAccountID, raw.SubAccountName),
		CommitmentDiscount: s.resolve(ctx, types.DimensionCommitmentDiscount, raw.CommitmentDiscountID, raw.CommitmentDiscountName),
	}
}

func (s *Session) resolve(ctx context.Context, family types.DimensionFamily, naturalKey, displayName string) billing.DimensionRef {
	ref, err := s.resolver.Resolve(ctx, family, naturalKey, displayName)
	if err != nil {
		s.logger.Warnw("dimension resolution failed, using null reference",
			"dimension", family,
			"natural_key", naturalKey,
			"error", err,
		)
		return billing.DimensionRef{}
	}
	return ref
}
