package claim

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/quadrel/pecbridge/internal/contract/domain"
	memberships "github.com/quadrel/pecbridge/internal/membership/domain"
	"github.com/quadrel/pecbridge/internal/selfcare"
	"github.com/quadrel/pecbridge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSelfcare struct {
	status int
	err    error
	got    []selfcare.Claim
}

func (f *fakeSelfcare) Submit(ctx context.Context, claim selfcare.Claim) (selfcare.Response, error) {
	f.got = append(f.got, claim)
	if f.err != nil {
		return selfcare.Response{}, f.err
	}
	return selfcare.Response{Status: f.status}, nil
}

func newClaimService(st store.Store, client selfcare.Client) *Service {
	log := zap.NewNop()
	return NewService(st, NewReconciler(st, log), client, nil, log)
}

func seedMembership(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	require.NoError(t, st.Seed(store.CollectionMemberships, "c_a123", "c_a123", memberships.Membership{
		ID:                "c_a123",
		OrganizationCode:  "c_a123",
		FiscalCode:        "00111230945",
		IsMainInstitution: true,
		Status:            memberships.StatusInitial,
	}))
}

func seedContract(t *testing.T, st *store.MemoryStore, version string) {
	t.Helper()
	require.NoError(t, st.Seed(store.CollectionContracts, "doc-1", "c_a123", domain.Contract{
		ID:               "doc-1",
		OrganizationCode: "c_a123",
		Version:          version,
		EmailDate:        "2021-12-06T17:33:40.000000000+00:00",
		Attachment: domain.AttachmentSummary{
			ID:   "1",
			Kind: domain.AttachmentKindContract,
			Name: "contratto.pdf.p7m",
			Path: "/contracts/contratto.pdf.p7m",
		},
	}))
}

func seedManager(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	require.NoError(t, st.Seed(store.CollectionDelegates, "d-1", "d-1", map[string]any{
		"id":            "d-1",
		"IDALLEGATO":    1,
		"NOMINATIVO":    "Mario Rossi",
		"CODICEFISCALE": "RSSMRA80A01H501U",
		"EMAIL":         "mario.rossi@example.org",
		"TIPODELEGATO":  domain.RoleManager,
	}))
}

func membershipState(t *testing.T, st *store.MemoryStore) memberships.Membership {
	t.Helper()
	item, err := st.ReadByID(context.Background(), store.CollectionMemberships, "c_a123", "c_a123")
	require.NoError(t, err)
	var m memberships.Membership
	require.NoError(t, item.Decode(&m))
	return m
}

func queueItem() QueueItem {
	return QueueItem{FiscalCode: "00111230945", OrganizationCode: "c_a123"}
}

func TestProcess_SubmitsAndMarksProcessed(t *testing.T) {
	st := store.NewMemoryStore()
	seedMembership(t, st)
	seedContract(t, st, domain.VersionV2_3)
	seedManager(t, st)
	client := &fakeSelfcare{status: http.StatusCreated}
	svc := newClaimService(st, client)

	require.NoError(t, svc.Process(context.Background(), queueItem()))

	m := membershipState(t, st)
	assert.Equal(t, memberships.StatusProcessed, m.Status)
	assert.Equal(t, "Imported with contract id#doc-1", m.Note)

	require.Len(t, client.got, 1)
	claim := client.got[0]
	assert.Equal(t, "00111230945", claim.ExternalInstitutionID)
	assert.Equal(t, domain.VersionV2_3, claim.ImportContract.ContractType)
	require.Len(t, claim.Users, 1)
	assert.Equal(t, selfcare.RoleManager, claim.Users[0].Role)
	assert.Equal(t, "Mario", claim.Users[0].Name)
	assert.Equal(t, "Rossi", claim.Users[0].Surname)
}

func TestProcess_RejectedSubmissionMarksFailed(t *testing.T) {
	st := store.NewMemoryStore()
	seedMembership(t, st)
	seedContract(t, st, domain.VersionV2_3)
	seedManager(t, st)
	svc := newClaimService(st, &fakeSelfcare{status: http.StatusConflict})

	require.NoError(t, svc.Process(context.Background(), queueItem()))

	m := membershipState(t, st)
	assert.Equal(t, memberships.StatusFailed, m.Status)
	assert.Equal(t, "Selfcare responded 409 | contract id#doc-1", m.Note)
}

func TestProcess_TransportFailureMarksFailed(t *testing.T) {
	st := store.NewMemoryStore()
	seedMembership(t, st)
	seedContract(t, st, domain.VersionV2_3)
	seedManager(t, st)
	svc := newClaimService(st, &fakeSelfcare{err: errors.New("connection refused")})

	require.NoError(t, svc.Process(context.Background(), queueItem()))

	m := membershipState(t, st)
	assert.Equal(t, memberships.StatusFailed, m.Status)
	assert.Contains(t, m.Note, "connection refused | contract id#doc-1")
}

func TestProcess_NoManagerMarksDiscarded(t *testing.T) {
	st := store.NewMemoryStore()
	seedMembership(t, st)
	seedContract(t, st, domain.VersionV2_3)
	client := &fakeSelfcare{status: http.StatusCreated}
	svc := newClaimService(st, client)

	require.NoError(t, svc.Process(context.Background(), queueItem()))

	m := membershipState(t, st)
	assert.Equal(t, memberships.StatusDiscarded, m.Status)
	assert.Equal(t, "No manager found | contract#doc-1 attachment#1", m.Note)
	assert.Empty(t, client.got, "nothing must be submitted on discard")
}

func TestProcess_PreLaunchContractMarksDiscarded(t *testing.T) {
	st := store.NewMemoryStore()
	seedMembership(t, st)
	require.NoError(t, st.Seed(store.CollectionContracts, "doc-1", "c_a123", domain.Contract{
		ID:               "doc-1",
		OrganizationCode: "c_a123",
		EmailDate:        "2019-01-01T00:00:00+00:00",
		Attachment: domain.AttachmentSummary{
			ID:   "1",
			Kind: domain.AttachmentKindContract,
			Name: "accordo.pdf",
			Path: "/contracts/accordo.pdf",
		},
	}))
	svc := newClaimService(st, &fakeSelfcare{status: http.StatusCreated})

	require.NoError(t, svc.Process(context.Background(), queueItem()))

	m := membershipState(t, st)
	assert.Equal(t, memberships.StatusDiscarded, m.Status)
	assert.Equal(t, "Unsupported contract version | contract#doc-1 attachment#1", m.Note)
}

func TestProcess_MissingVersionInferredFromDate(t *testing.T) {
	st := store.NewMemoryStore()
	seedMembership(t, st)
	seedContract(t, st, "")
	seedManager(t, st)
	client := &fakeSelfcare{status: http.StatusCreated}
	svc := newClaimService(st, client)

	require.NoError(t, svc.Process(context.Background(), queueItem()))

	require.Len(t, client.got, 1)
	assert.Equal(t, domain.VersionV2_2July, client.got[0].ImportContract.ContractType)
}

func TestProcess_MalformedEmailDateFailsValidation(t *testing.T) {
	st := store.NewMemoryStore()
	seedMembership(t, st)
	require.NoError(t, st.Seed(store.CollectionContracts, "doc-1", "c_a123", domain.Contract{
		ID:               "doc-1",
		OrganizationCode: "c_a123",
		EmailDate:        "06/12/2021",
		Attachment: domain.AttachmentSummary{
			ID:   "1",
			Kind: domain.AttachmentKindContract,
			Name: "accordo.pdf",
			Path: "/contracts/accordo.pdf",
		},
	}))
	svc := newClaimService(st, &fakeSelfcare{status: http.StatusCreated})

	err := svc.Process(context.Background(), queueItem())
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	m := membershipState(t, st)
	assert.Equal(t, memberships.StatusInitial, m.Status, "membership must stay untouched")
}

func TestFetchContracts_KeepsDelegateSnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Seed(store.CollectionContracts, "doc-1", "c_a123", domain.Contract{
		ID:               "doc-1",
		OrganizationCode: "c_a123",
		Version:          domain.VersionV1,
		EmailDate:        "2021-12-06T17:33:40.000000000+00:00",
		Attachment: domain.AttachmentSummary{
			ID:   "1",
			Kind: domain.AttachmentKindContract,
			Name: "contratto.pdf.p7m",
			Path: "/contracts/contratto.pdf.p7m",
		},
		Delegates: []domain.Delegate{{
			ID:           "d-1",
			AttachmentID: 1,
			FullName:     "Mario Rossi",
			FiscalCode:   "RSSMRA80A01H501U",
			Email:        "mario.rossi@example.org",
			Role:         domain.RoleManager,
		}},
	}))
	svc := newClaimService(st, &fakeSelfcare{})

	contracts, err := svc.fetchContracts(context.Background(), "c_a123")
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	require.Len(t, contracts[0].Delegates, 1)
	assert.Equal(t, "RSSMRA80A01H501U", contracts[0].Delegates[0].FiscalCode)
}

func TestProcess_NoContractsIsRetryable(t *testing.T) {
	st := store.NewMemoryStore()
	seedMembership(t, st)
	svc := newClaimService(st, &fakeSelfcare{status: http.StatusCreated})

	err := svc.Process(context.Background(), queueItem())
	assert.Error(t, err)

	m := membershipState(t, st)
	assert.Equal(t, memberships.StatusInitial, m.Status, "membership must stay untouched")
}

func TestProcess_InvalidQueueItem(t *testing.T) {
	svc := newClaimService(store.NewMemoryStore(), &fakeSelfcare{})
	err := svc.Process(context.Background(), QueueItem{OrganizationCode: "c_a123"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestMarkFailed(t *testing.T) {
	st := store.NewMemoryStore()
	seedMembership(t, st)
	svc := newClaimService(st, &fakeSelfcare{})

	require.NoError(t, svc.MarkFailed(context.Background(), "c_a123", "gave up after 3 attempts"))

	m := membershipState(t, st)
	assert.Equal(t, memberships.StatusFailed, m.Status)
	assert.Equal(t, "gave up after 3 attempts", m.Note)
}

func TestDispatchable_FiltersAndLimits(t *testing.T) {
	st := store.NewMemoryStore()
	seed := func(id, fiscal string, main bool, status memberships.Status) {
		require.NoError(t, st.Seed(store.CollectionMemberships, id, id, memberships.Membership{
			ID:                id,
			OrganizationCode:  id,
			FiscalCode:        fiscal,
			IsMainInstitution: main,
			Status:            status,
		}))
	}
	seed("c_a", "00000000001", true, memberships.StatusInitial)
	seed("c_b", "00000000002", true, memberships.StatusInitial)
	seed("c_c", "", false, memberships.StatusInitial)             // no fiscal code
	seed("c_d", "00000000004", true, memberships.StatusProcessed) // wrong status
	svc := newClaimService(st, &fakeSelfcare{})

	items, err := svc.Dispatchable(context.Background(), nil, 10, memberships.StatusInitial)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	limited, err := svc.Dispatchable(context.Background(), nil, 1, memberships.StatusInitial)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	byIPA, err := svc.Dispatchable(context.Background(), []string{"C_B"}, 10, memberships.StatusInitial)
	require.NoError(t, err)
	require.Len(t, byIPA, 1)
	assert.Equal(t, "c_b", byIPA[0].OrganizationCode)
}
