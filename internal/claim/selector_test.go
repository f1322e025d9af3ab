package claim

import (
	"testing"

	"github.com/quadrel/pecbridge/internal/contract/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractWith(id, emailDate, kind, name string) domain.Contract {
	return domain.Contract{
		ID:               id,
		OrganizationCode: "c_a123",
		EmailDate:        emailDate,
		Attachment: domain.AttachmentSummary{
			ID:   "1",
			Kind: kind,
			Name: name,
			Path: "/contracts/" + name,
		},
	}
}

func TestSelectContract_MostRecentWins(t *testing.T) {
	older := contractWith("old", "2021-01-01T10:00:00+00:00", domain.AttachmentKindContract, "a.pdf")
	newer := contractWith("new", "2021-06-01T10:00:00+00:00", "Altro", "b.pdf")

	assert.Equal(t, "new", SelectContract([]domain.Contract{older, newer}).ID)
	assert.Equal(t, "new", SelectContract([]domain.Contract{newer, older}).ID)
}

func TestSelectContract_ContractKindBreaksDateTie(t *testing.T) {
	date := "2021-06-01T10:00:00+00:00"
	plain := contractWith("plain", date, "Altro", "a.pdf")
	agreement := contractWith("agreement", date, domain.AttachmentKindContract, "b.pdf")

	// deterministic regardless of input order
	assert.Equal(t, "agreement", SelectContract([]domain.Contract{plain, agreement}).ID)
	assert.Equal(t, "agreement", SelectContract([]domain.Contract{agreement, plain}).ID)
}

func TestSelectContract_SignedFileBreaksKindTie(t *testing.T) {
	date := "2021-06-01T10:00:00+00:00"
	unsigned := contractWith("unsigned", date, domain.AttachmentKindContract, "a.pdf")
	signed := contractWith("signed", date, domain.AttachmentKindContract, "a.pdf.p7m")

	assert.Equal(t, "signed", SelectContract([]domain.Contract{unsigned, signed}).ID)
	assert.Equal(t, "signed", SelectContract([]domain.Contract{signed, unsigned}).ID)
}

func TestSelectContract_RemainingTiesKeepInputOrder(t *testing.T) {
	date := "2021-06-01T10:00:00+00:00"
	first := contractWith("first", date, domain.AttachmentKindContract, "a.pdf.p7m")
	second := contractWith("second", date, domain.AttachmentKindContract, "b.pdf.p7m")

	assert.Equal(t, "first", SelectContract([]domain.Contract{first, second}).ID)
}

func TestCheckVersion_KnownLabelPassesThrough(t *testing.T) {
	c := contractWith("c", "2021-06-01T10:00:00+00:00", domain.AttachmentKindContract, "a.pdf")
	c.Version = domain.VersionV2_2June

	version, err := CheckVersion(c)
	require.NoError(t, err)
	assert.Equal(t, domain.VersionV2_2June, version)
}

func TestCheckVersion_InfersFromFilename(t *testing.T) {
	cases := []struct {
		name     string
		expected string
	}{
		{"accordo V2.3 firmato.pdf.p7m", domain.VersionV2_3},
		{"accordo V2.2(17 giugno).pdf", domain.VersionV2_2June},
		{"accordo V2.2 firmato.pdf", domain.VersionV2_2July},
		{"accordo V1.0.pdf", domain.VersionV1},
	}
	for _, tc := range cases {
		c := contractWith("c", "2021-06-01T10:00:00+00:00", domain.AttachmentKindContract, tc.name)
		version, err := CheckVersion(c)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.expected, version, tc.name)
	}
}

func TestCheckVersion_InfersFromEmailDate(t *testing.T) {
	cases := []struct {
		date     string
		expected string
	}{
		{"2019-09-02T00:00:00+00:00", domain.VersionV1},
		{"2020-12-01T00:00:00+00:00", domain.VersionV2},
		{"2021-07-01T00:00:00+00:00", domain.VersionV2_2June},
		{"2021-12-06T17:33:40.000000000+00:00", domain.VersionV2_2July},
		{"2022-03-01T00:00:00+00:00", domain.VersionV2_3},
	}
	for _, tc := range cases {
		c := contractWith("c", tc.date, domain.AttachmentKindContract, "accordo.pdf")
		version, err := CheckVersion(c)
		require.NoError(t, err, tc.date)
		assert.Equal(t, tc.expected, version, tc.date)
	}
}

func TestCheckVersion_PreLaunchDateIsTerminalDiscard(t *testing.T) {
	c := contractWith("c", "2019-01-01T00:00:00+00:00", domain.AttachmentKindContract, "accordo.pdf")

	_, err := CheckVersion(c)
	assert.Equal(t, domain.KindProcessedMembership, domain.KindOf(err))
}

func TestCheckVersion_MalformedEmailDateFailsValidation(t *testing.T) {
	c := contractWith("c", "06/12/2021", domain.AttachmentKindContract, "accordo.pdf")

	_, err := CheckVersion(c)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}
