package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/quadrel/pecbridge/internal/contract/domain"
	memberships "github.com/quadrel/pecbridge/internal/membership/domain"
	"github.com/quadrel/pecbridge/internal/refdata"
	"github.com/quadrel/pecbridge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const ingestionFeed = `Codice_ente,Codice_IPA,Denominazione,Codice_fiscale,Comune
1,c_a123,Comune di Esempio,00111230945,Esempio
`

type staticSource struct {
	ds *refdata.Dataset
}

func (s staticSource) Load(ctx context.Context) (*refdata.Dataset, error) {
	return s.ds, nil
}

func newService(t *testing.T, st store.Store) *Service {
	t.Helper()
	ds, err := refdata.Parse(ingestionFeed)
	require.NoError(t, err)
	return New(st, staticSource{ds: ds}, nil, zap.NewNop())
}

func seedSources(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	require.NoError(t, st.Seed(store.CollectionEmails, "2", "2", domain.EmailRecord{
		ID:         "2",
		ReceivedAt: "2021-12-06T17:33:40.000000000+00:00",
	}))
	require.NoError(t, st.Seed(store.CollectionAttachments, "1", "1", domain.Attachment{
		ID:   "1",
		Name: "contratto.pdf.p7m",
		Path: "/contracts/contratto.pdf.p7m",
		Kind: domain.AttachmentKindContract,
	}))
}

func validDocument() domain.SourceDocument {
	return domain.SourceDocument{
		ID:               "doc-1",
		OrganizationCode: "C_A123",
		AttachmentID:     1,
		EmailID:          2,
		Version:          domain.VersionV1,
	}
}

func readMembership(t *testing.T, st *store.MemoryStore, id string) memberships.Membership {
	t.Helper()
	item, err := st.ReadByID(context.Background(), store.CollectionMemberships, id, id)
	require.NoError(t, err)
	var m memberships.Membership
	require.NoError(t, item.Decode(&m))
	return m
}

func readContract(t *testing.T, st *store.MemoryStore, id string) domain.Contract {
	t.Helper()
	item, err := st.ReadByID(context.Background(), store.CollectionContracts, id, id)
	require.NoError(t, err)
	var c domain.Contract
	require.NoError(t, item.Decode(&c))
	return c
}

func TestProcessDocument_HappyPath(t *testing.T) {
	st := store.NewMemoryStore()
	seedSources(t, st)
	svc := newService(t, st)

	err := svc.ProcessBatch(context.Background(), []domain.SourceDocument{validDocument()})
	require.NoError(t, err)

	m := readMembership(t, st, "c_a123")
	assert.Equal(t, memberships.StatusInitial, m.Status)
	assert.True(t, m.IsMainInstitution)
	assert.Equal(t, "00111230945", m.FiscalCode)

	c := readContract(t, st, "doc-1")
	assert.Equal(t, "c_a123", c.OrganizationCode)
	assert.Equal(t, domain.VersionV1, c.Version)
	assert.Equal(t, "2021-12-06T17:33:40.000000000+00:00", c.EmailDate)
	assert.Equal(t, "contratto.pdf.p7m", c.Attachment.Name)
	assert.False(t, c.IsAggregator)
}

func TestProcessDocument_SkipsManualEntry(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newService(t, st)

	doc := validDocument()
	doc.Version = "Ins. Manuale"
	err := svc.ProcessBatch(context.Background(), []domain.SourceDocument{doc})
	require.NoError(t, err)

	_, err = st.ReadByID(context.Background(), store.CollectionContracts, doc.ID, doc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessDocument_SkipsEmptyVersion(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newService(t, st)

	doc := validDocument()
	doc.Version = ""
	require.NoError(t, svc.ProcessBatch(context.Background(), []domain.SourceDocument{doc}))
}

func TestProcessDocument_UnknownVersionIsValidationError(t *testing.T) {
	st := store.NewMemoryStore()
	seedSources(t, st)
	svc := newService(t, st)

	doc := validDocument()
	doc.Version = "V9.9"
	err := svc.ProcessBatch(context.Background(), []domain.SourceDocument{doc})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestProcessDocument_UnknownOrganizationStillGetsMembership(t *testing.T) {
	st := store.NewMemoryStore()
	seedSources(t, st)
	svc := newService(t, st)

	doc := validDocument()
	doc.OrganizationCode = "CODICEIPA"
	err := svc.ProcessBatch(context.Background(), []domain.SourceDocument{doc})
	require.NoError(t, err)

	m := readMembership(t, st, "codiceipa")
	assert.Equal(t, memberships.StatusInitial, m.Status)
	assert.False(t, m.IsMainInstitution)
	assert.Empty(t, m.FiscalCode)
}

func TestProcessDocument_EmailFiscalHintResolvesOrganization(t *testing.T) {
	st := store.NewMemoryStore()
	seedSources(t, st)
	require.NoError(t, st.Seed(store.CollectionEmails, "2", "2", domain.EmailRecord{
		ID:         "2",
		FiscalCode: "Cf e p.iva 00111230945",
		ReceivedAt: "2021-12-06T17:33:40.000000000+00:00",
	}))
	svc := newService(t, st)

	doc := validDocument()
	doc.OrganizationCode = "SCONOSCIUTO"
	err := svc.ProcessBatch(context.Background(), []domain.SourceDocument{doc})
	require.NoError(t, err)

	m := readMembership(t, st, "c_a123")
	assert.True(t, m.IsMainInstitution)
	assert.Equal(t, "00111230945", m.FiscalCode)

	_, err = st.ReadByID(context.Background(), store.CollectionMemberships, "sconosciuto", "sconosciuto")
	assert.ErrorIs(t, err, store.ErrNotFound, "membership must not be keyed to the unresolved hint")
}

func TestProcessDocument_ExistingMembershipNotOverwritten(t *testing.T) {
	st := store.NewMemoryStore()
	seedSources(t, st)
	require.NoError(t, st.Seed(store.CollectionMemberships, "c_a123", "c_a123", memberships.Membership{
		ID:                "c_a123",
		OrganizationCode:  "c_a123",
		FiscalCode:        "00111230945",
		IsMainInstitution: true,
		Status:            memberships.StatusProcessed,
		Note:              "Imported with contract id#doc-0",
	}))
	svc := newService(t, st)

	err := svc.ProcessBatch(context.Background(), []domain.SourceDocument{validDocument()})
	require.NoError(t, err)

	m := readMembership(t, st, "c_a123")
	assert.Equal(t, memberships.StatusProcessed, m.Status, "existing membership must be left alone")
}

func TestProcessDocument_MissingEmail(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newService(t, st)

	err := svc.ProcessBatch(context.Background(), []domain.SourceDocument{validDocument()})
	assert.Equal(t, domain.KindFetchEmail, domain.KindOf(err))
}

func TestProcessDocument_MembershipReadFailure(t *testing.T) {
	st := store.NewMemoryStore()
	seedSources(t, st)
	st.Intercept = func(op, collection, id string) error {
		if op == "read" && collection == store.CollectionMemberships {
			return errors.New("boom")
		}
		return nil
	}
	svc := newService(t, st)

	err := svc.ProcessBatch(context.Background(), []domain.SourceDocument{validDocument()})
	assert.Equal(t, domain.KindFetchMembership, domain.KindOf(err))
}

func TestProcessDocument_WrongAttachmentKind(t *testing.T) {
	st := store.NewMemoryStore()
	seedSources(t, st)
	require.NoError(t, st.Seed(store.CollectionAttachments, "1", "1", domain.Attachment{
		ID:   "1",
		Name: "scan.pdf",
		Path: "/contracts/scan.pdf",
		Kind: "Altro",
	}))
	svc := newService(t, st)

	err := svc.ProcessBatch(context.Background(), []domain.SourceDocument{validDocument()})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestProcessDocument_AggregatorFlag(t *testing.T) {
	st := store.NewMemoryStore()
	seedSources(t, st)
	require.NoError(t, st.Seed(store.CollectionAggregators, "agg-1", "agg-1", map[string]any{
		"id":         "agg-1",
		"IDALLEGATO": 1,
	}))
	svc := newService(t, st)

	err := svc.ProcessBatch(context.Background(), []domain.SourceDocument{validDocument()})
	require.NoError(t, err)

	c := readContract(t, st, "doc-1")
	assert.True(t, c.IsAggregator)
}

func TestProcessBatch_FailureIsolation(t *testing.T) {
	st := store.NewMemoryStore()
	seedSources(t, st)
	svc := newService(t, st)

	good1 := validDocument()
	bad := validDocument()
	bad.ID = "doc-2"
	bad.Version = "V9.9"
	good2 := validDocument()
	good2.ID = "doc-3"

	err := svc.ProcessBatch(context.Background(), []domain.SourceDocument{good1, bad, good2})
	require.Error(t, err, "batch outcome reports the failed document")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	// the failing document does not block its siblings
	readContract(t, st, "doc-1")
	readContract(t, st, "doc-3")
	_, err = st.ReadByID(context.Background(), store.CollectionContracts, "doc-2", "doc-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
