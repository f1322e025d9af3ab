// Package ingestion runs the contract change-event pipeline: validate the
// inbound document, resolve the organization identity, ensure a membership
// exists, fetch and validate the attachment, check the aggregator flag and
// persist the normalized contract.
package ingestion

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/quadrel/pecbridge/internal/contract/domain"
	"github.com/quadrel/pecbridge/internal/identity"
	memberships "github.com/quadrel/pecbridge/internal/membership/domain"
	"github.com/quadrel/pecbridge/internal/observability/metrics"
	"github.com/quadrel/pecbridge/internal/refdata"
	"github.com/quadrel/pecbridge/internal/store"
	"go.uber.org/zap"
)

// DatasetSource yields the reference dataset for one batch. Loader
// implements it; tests substitute a fixed dataset.
type DatasetSource interface {
	Load(ctx context.Context) (*refdata.Dataset, error)
}

type Service struct {
	store   store.Store
	source  DatasetSource
	metrics *metrics.Metrics
	log     *zap.Logger
}

func New(st store.Store, source DatasetSource, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		store:   st,
		source:  source,
		metrics: m,
		log:     log.Named("ingestion.service"),
	}
}

// ProcessBatch runs every document of the batch concurrently; one
// document's failure never blocks the others. The returned error is the
// first failure in input order, after all documents have settled, so the
// caller can signal the invocation failed while the successful documents
// keep their writes.
func (s *Service) ProcessBatch(ctx context.Context, docs []domain.SourceDocument) error {
	if len(docs) == 0 {
		return nil
	}

	dataset, err := s.source.Load(ctx)
	if err != nil {
		return err
	}

	results := make([]error, len(docs))
	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		go func(i int, doc domain.SourceDocument) {
			defer wg.Done()
			results[i] = s.ProcessDocument(ctx, dataset, doc)
		}(i, doc)
	}
	wg.Wait()

	for _, err := range results {
		if err != nil {
			return err
		}
	}
	return nil
}

// ProcessDocument runs the stage chain for a single document, terminal on
// the first failure. Skippable documents return nil without touching the
// store.
func (s *Service) ProcessDocument(ctx context.Context, dataset *refdata.Dataset, doc domain.SourceDocument) error {
	if doc.Skippable() {
		s.log.Info("contract version not applicable, skipping document",
			zap.String("document_id", doc.ID),
			zap.String("version", doc.Version),
		)
		return nil
	}

	if err := doc.Validate(); err != nil {
		return s.fail(ctx, doc, domain.NewStageError(domain.KindValidation, err))
	}
	doc.OrganizationCode = strings.ToLower(strings.TrimSpace(doc.OrganizationCode))

	email, err := s.fetchEmail(ctx, doc)
	if err != nil {
		return s.fail(ctx, doc, err)
	}

	resolved, err := identity.Resolve(identity.Hints{
		OrganizationCode:          doc.OrganizationCode,
		AlternateOrganizationCode: email.AlternateOrganizationCode,
		FiscalCode:                email.FiscalCode,
		AlternateFiscalCode:       email.AlternateFiscalCode,
	}, dataset)
	if err != nil {
		return s.fail(ctx, doc, domain.NewStageError(domain.KindFiscalCodeNotFound, err))
	}

	alreadyInserted, err := s.membershipExists(ctx, resolved.OrganizationCode)
	if err != nil {
		return s.fail(ctx, doc, err)
	}
	if !alreadyInserted {
		if err := s.saveMembership(ctx, resolved); err != nil {
			return s.fail(ctx, doc, err)
		}
	}

	attachment, err := s.fetchAttachment(ctx, doc)
	if err != nil {
		return s.fail(ctx, doc, err)
	}

	isAggregator, err := s.checkAggregator(ctx, doc)
	if err != nil {
		return s.fail(ctx, doc, err)
	}

	contract := domain.Contract{
		ID:               doc.ID,
		OrganizationCode: resolved.OrganizationCode,
		Version:          doc.Version,
		EmailDate:        email.ReceivedAt,
		Attachment: domain.AttachmentSummary{
			ID:   attachment.ID,
			Kind: attachment.Kind,
			Name: attachment.EffectiveName(),
			Path: attachment.Path,
		},
		IsAggregator: isAggregator,
	}
	if err := s.saveContract(ctx, contract); err != nil {
		return s.fail(ctx, doc, err)
	}

	s.metrics.RecordDocumentProcessed(ctx)
	s.log.Info("contract document processed",
		zap.String("document_id", doc.ID),
		zap.String("organization_code", resolved.OrganizationCode),
		zap.Bool("main_institution", resolved.IsMainInstitution),
	)
	return nil
}

func (s *Service) fetchEmail(ctx context.Context, doc domain.SourceDocument) (domain.EmailRecord, error) {
	id := strconv.FormatInt(doc.EmailID, 10)
	item, err := s.store.ReadByID(ctx, store.CollectionEmails, id, id)
	if err != nil {
		return domain.EmailRecord{}, domain.Errorf(domain.KindFetchEmail,
			"read email record %s: %w", id, err)
	}

	var email domain.EmailRecord
	if err := item.Decode(&email); err != nil {
		return domain.EmailRecord{}, domain.Errorf(domain.KindValidation,
			"decode email record %s: %w", id, err)
	}
	if err := email.Validate(); err != nil {
		return domain.EmailRecord{}, domain.Errorf(domain.KindValidation,
			"invalid email record %s: %w", id, err)
	}
	return email, nil
}

func (s *Service) membershipExists(ctx context.Context, organizationCode string) (bool, error) {
	_, err := s.store.ReadByID(ctx, store.CollectionMemberships, organizationCode, organizationCode)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, domain.Errorf(domain.KindFetchMembership,
			"read membership %s: %w", organizationCode, err)
	}
}

func (s *Service) saveMembership(ctx context.Context, resolved identity.Identity) error {
	membership := memberships.Membership{
		ID:                resolved.OrganizationCode,
		OrganizationCode:  resolved.OrganizationCode,
		FiscalCode:        resolved.FiscalCode,
		IsMainInstitution: resolved.IsMainInstitution,
		Status:            memberships.StatusInitial,
	}
	outcome, err := s.store.Upsert(ctx, store.CollectionMemberships, membership.ID, membership.ID, membership)
	if err != nil {
		return domain.Errorf(domain.KindUpsert,
			"upsert membership %s: %w", membership.ID, err)
	}
	if !outcome.OK() {
		return domain.Errorf(domain.KindUpsert,
			"upsert membership %s: status %d", membership.ID, outcome.Status)
	}
	return nil
}

func (s *Service) fetchAttachment(ctx context.Context, doc domain.SourceDocument) (domain.Attachment, error) {
	id := strconv.FormatInt(doc.AttachmentID, 10)
	item, err := s.store.ReadByID(ctx, store.CollectionAttachments, id, id)
	if err != nil {
		return domain.Attachment{}, domain.Errorf(domain.KindFetchAttachment,
			"read attachment %s: %w", id, err)
	}

	var attachment domain.Attachment
	if err := item.Decode(&attachment); err != nil {
		return domain.Attachment{}, domain.Errorf(domain.KindValidation,
			"decode attachment %s: %w", id, err)
	}
	if err := attachment.Validate(); err != nil {
		return domain.Attachment{}, domain.Errorf(domain.KindValidation,
			"invalid attachment %s: %w", id, err)
	}
	return attachment, nil
}

// checkAggregator reports whether any aggregator-flag record exists for
// the document's attachment. An empty result set means false; only a
// transport failure is an error.
func (s *Service) checkAggregator(ctx context.Context, doc domain.SourceDocument) (bool, error) {
	items, err := s.store.QueryAll(ctx, store.CollectionAggregators, store.Query{
		Field: "IDALLEGATO",
		Value: doc.AttachmentID,
	})
	if err != nil {
		return false, domain.Errorf(domain.KindFetchAggregator,
			"query aggregator records for attachment %d: %w", doc.AttachmentID, err)
	}
	return len(items) > 0, nil
}

func (s *Service) saveContract(ctx context.Context, contract domain.Contract) error {
	outcome, err := s.store.Upsert(ctx, store.CollectionContracts, contract.ID, contract.OrganizationCode, contract)
	if err != nil {
		return domain.Errorf(domain.KindSaveContract,
			"upsert contract %s: %w", contract.ID, err)
	}
	if !outcome.OK() {
		return domain.Errorf(domain.KindSaveContract,
			"upsert contract %s: status %d", contract.ID, outcome.Status)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, doc domain.SourceDocument, err error) error {
	s.metrics.RecordDocumentFailed(ctx, string(domain.KindOf(err)))
	s.log.Error("contract document failed",
		zap.String("document_id", doc.ID),
		zap.String("organization_code", doc.OrganizationCode),
		zap.Int64("attachment_id", doc.AttachmentID),
		zap.Error(err),
	)
	return err
}
