// Package claim implements the asynchronous membership submission
// workflow: select the authoritative contract for an organization,
// reconcile its delegates, submit the claim to the onboarding service and
// finalize the membership status.
package claim

import (
	"sort"
	"strings"
	"time"

	"github.com/quadrel/pecbridge/internal/contract/domain"
)

const signedExtension = ".p7m"

// Version inference cutoffs: contracts whose email predates the first
// cutoff belong to a decommissioned onboarding flow and are discarded.
var versionCutoffs = []struct {
	from    time.Time
	version string
}{
	{time.Date(2019, 9, 2, 0, 0, 0, 0, time.UTC), domain.VersionV1},
	{time.Date(2020, 10, 15, 0, 0, 0, 0, time.UTC), domain.VersionV2},
	{time.Date(2021, 6, 17, 0, 0, 0, 0, time.UTC), domain.VersionV2_2June},
	{time.Date(2021, 7, 29, 0, 0, 0, 0, time.UTC), domain.VersionV2_2July},
	{time.Date(2022, 2, 15, 0, 0, 0, 0, time.UTC), domain.VersionV2_3},
}

// Filename tokens checked in order; a bare "V2.2" resolves to the latest
// revision of that label.
var filenameTokens = []struct {
	token   string
	version string
}{
	{domain.VersionV2_3, domain.VersionV2_3},
	{domain.VersionV2_2July, domain.VersionV2_2July},
	{domain.VersionV2_2June, domain.VersionV2_2June},
	{"V2.2", domain.VersionV2_2July},
	{domain.VersionV2, domain.VersionV2},
	{domain.VersionV1, domain.VersionV1},
}

// SelectContract picks the single authoritative contract among the
// candidates. Most recent email date wins; on equal dates a "Contratto"
// attachment wins over any other kind; then a digitally signed file wins.
// Remaining ties keep the input order.
func SelectContract(contracts []domain.Contract) domain.Contract {
	sorted := make([]domain.Contract, len(contracts))
	copy(sorted, contracts)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		at, bt := parseEmailDate(a.EmailDate), parseEmailDate(b.EmailDate)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		aContract := a.Attachment.Kind == domain.AttachmentKindContract
		bContract := b.Attachment.Kind == domain.AttachmentKindContract
		if aContract != bContract {
			return aContract
		}
		aSigned := strings.HasSuffix(a.Attachment.Name, signedExtension)
		bSigned := strings.HasSuffix(b.Attachment.Name, signedExtension)
		if aSigned != bSigned {
			return aSigned
		}
		return false
	})
	return sorted[0]
}

// CheckVersion returns the contract's version label, inferring one from
// the attachment filename or the email date when the stored label is
// missing or unknown. A date older than the first supported cutoff is a
// terminal business outcome, not a technical error; an unparseable date
// is a data-quality problem and fails validation instead.
func CheckVersion(contract domain.Contract) (string, error) {
	if domain.IsKnownVersion(contract.Version) {
		return contract.Version, nil
	}

	for _, entry := range filenameTokens {
		if strings.Contains(contract.Attachment.Name, entry.token) {
			return entry.version, nil
		}
	}

	emailDate, err := time.Parse(time.RFC3339Nano, contract.EmailDate)
	if err != nil {
		return "", domain.Errorf(domain.KindValidation,
			"contract %s has unparseable email date %q", contract.ID, contract.EmailDate)
	}
	inferred := ""
	for _, cutoff := range versionCutoffs {
		if !emailDate.Before(cutoff.from) {
			inferred = cutoff.version
		}
	}
	if inferred == "" {
		return "", domain.Errorf(domain.KindProcessedMembership,
			"contract %s for %s predates the first supported onboarding flow",
			contract.ID, contract.OrganizationCode)
	}
	return inferred, nil
}

func parseEmailDate(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
