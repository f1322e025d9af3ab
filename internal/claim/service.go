package claim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quadrel/pecbridge/internal/contract/domain"
	memberships "github.com/quadrel/pecbridge/internal/membership/domain"
	"github.com/quadrel/pecbridge/internal/observability/metrics"
	"github.com/quadrel/pecbridge/internal/selfcare"
	"github.com/quadrel/pecbridge/internal/store"
	"go.uber.org/zap"
)

// QueueItem is one claim dispatch: the organization to submit and the
// fiscal code the onboarding service knows it by.
type QueueItem struct {
	FiscalCode       string `json:"fiscalCode"`
	OrganizationCode string `json:"ipaCode"`
}

func (q QueueItem) Validate() error {
	if strings.TrimSpace(q.FiscalCode) == "" || strings.TrimSpace(q.OrganizationCode) == "" {
		return domain.Errorf(domain.KindValidation,
			"queue item needs both fiscalCode and ipaCode, got %+v", q)
	}
	return nil
}

// Service drives one membership claim end to end.
type Service struct {
	store      store.Store
	reconciler *Reconciler
	client     selfcare.Client
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewService(st store.Store, reconciler *Reconciler, client selfcare.Client, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		store:      st,
		reconciler: reconciler,
		client:     client,
		metrics:    m,
		log:        log.Named("claim.service"),
	}
}

// Process runs the full claim workflow for one queue item. Terminal
// business outcomes (discard, submission failure) are finalized on the
// membership and return nil; only technical failures propagate so the
// caller can retry the item.
func (s *Service) Process(ctx context.Context, item QueueItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	contracts, err := s.fetchContracts(ctx, item.OrganizationCode)
	if err != nil {
		return err
	}
	if len(contracts) == 0 {
		return fmt.Errorf("no contracts found for organization %s", item.OrganizationCode)
	}

	selected := SelectContract(contracts)
	version, err := CheckVersion(selected)
	if err != nil {
		if domain.KindOf(err) == domain.KindProcessedMembership {
			note := failureNote(selected, "Unsupported contract version")
			return s.finalize(ctx, item.OrganizationCode, memberships.StatusDiscarded, note)
		}
		return err
	}
	selected.Version = version

	raw, err := s.reconciler.FetchRaw(ctx, selected)
	if err != nil {
		return err
	}

	delegates, reason := Parse(Repair(raw))
	if reason != "" {
		s.log.Warn("claim discarded",
			zap.String("organization_code", item.OrganizationCode),
			zap.String("contract_id", selected.ID),
			zap.String("reason", string(reason)),
		)
		return s.finalize(ctx, item.OrganizationCode, memberships.StatusDiscarded,
			failureNote(selected, reason.Text()))
	}

	payload := ComposeClaim(item.FiscalCode, selected, delegates)
	resp, err := s.client.Submit(ctx, payload)
	switch {
	case err != nil:
		return s.finalize(ctx, item.OrganizationCode, memberships.StatusFailed,
			fmt.Sprintf("%s | contract id#%s", err.Error(), selected.ID))
	case !resp.Accepted():
		return s.finalize(ctx, item.OrganizationCode, memberships.StatusFailed,
			fmt.Sprintf("Selfcare responded %d | contract id#%s", resp.Status, selected.ID))
	}

	return s.finalize(ctx, item.OrganizationCode, memberships.StatusProcessed,
		fmt.Sprintf("Imported with contract id#%s", selected.ID))
}

// MarkFailed finalizes the membership as Failed; the queue worker calls
// it when an item exhausts its attempts.
func (s *Service) MarkFailed(ctx context.Context, organizationCode, note string) error {
	return s.finalize(ctx, organizationCode, memberships.StatusFailed, note)
}

// Dispatchable returns the queue items for memberships ready to be
// claimed: main institutions in the given status that carry a fiscal
// code. When ipas is non-empty only those organizations are considered;
// otherwise the first limit matches are returned.
func (s *Service) Dispatchable(ctx context.Context, ipas []string, limit int, status memberships.Status) ([]QueueItem, error) {
	items, err := s.store.QueryAll(ctx, store.CollectionMemberships, store.Query{
		Field: "status",
		Value: string(status),
	})
	if err != nil {
		return nil, fmt.Errorf("query memberships by status %s: %w", status, err)
	}

	wanted := make(map[string]bool, len(ipas))
	for _, ipa := range ipas {
		wanted[strings.ToLower(strings.TrimSpace(ipa))] = true
	}

	var out []QueueItem
	for _, item := range items {
		var m memberships.Membership
		if err := item.Decode(&m); err != nil || m.Validate() != nil {
			continue
		}
		if !m.IsMainInstitution || m.FiscalCode == "" {
			continue
		}
		if len(wanted) > 0 {
			if !wanted[m.OrganizationCode] {
				continue
			}
		} else if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, QueueItem{
			FiscalCode:       m.FiscalCode,
			OrganizationCode: m.OrganizationCode,
		})
	}
	return out, nil
}

func (s *Service) fetchContracts(ctx context.Context, organizationCode string) ([]domain.Contract, error) {
	items, err := s.store.QueryAll(ctx, store.CollectionContracts, store.Query{
		Field: "ipaCode",
		Value: organizationCode,
	})
	if err != nil {
		return nil, fmt.Errorf("query contracts for %s: %w", organizationCode, err)
	}

	contracts := make([]domain.Contract, 0, len(items))
	for _, item := range items {
		var c domain.Contract
		if err := json.Unmarshal(item.Data, &c); err != nil {
			return nil, fmt.Errorf("decode contract %s: %w", item.ID, err)
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}

// finalize re-reads the stored membership, validates it and upserts it
// with the new status and note. It never blind-writes a fresh record.
func (s *Service) finalize(ctx context.Context, organizationCode string, status memberships.Status, note string) error {
	item, err := s.store.ReadByID(ctx, store.CollectionMemberships, organizationCode, organizationCode)
	if err != nil {
		return fmt.Errorf("read membership %s: %w", organizationCode, err)
	}

	var m memberships.Membership
	if err := item.Decode(&m); err != nil {
		return fmt.Errorf("decode membership %s: %w", organizationCode, err)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid stored membership %s: %w", organizationCode, err)
	}

	m.Status = status
	m.Note = note
	outcome, err := s.store.Upsert(ctx, store.CollectionMemberships, m.ID, m.ID, m)
	if err != nil {
		return fmt.Errorf("upsert membership %s: %w", organizationCode, err)
	}
	if !outcome.OK() {
		return fmt.Errorf("upsert membership %s: status %d", organizationCode, outcome.Status)
	}

	s.metrics.RecordClaimFinalized(ctx, string(status))
	s.log.Info("membership finalized",
		zap.String("organization_code", organizationCode),
		zap.String("status", string(status)),
	)
	return nil
}

func failureNote(contract domain.Contract, text string) string {
	return fmt.Sprintf("%s | contract#%s attachment#%s", text, contract.ID, contract.Attachment.ID)
}
