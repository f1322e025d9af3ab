// Package identity resolves an organization's canonical identity against
// the reference dataset.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/quadrel/pecbridge/internal/refdata"
)

// ErrFiscalCodeNotFound reports a reference-set inconsistency: the resolved
// code names a central institution but carries no fiscal code. Hard
// validation failure, not retryable.
var ErrFiscalCodeNotFound = errors.New("fiscal_code_not_found")

// Identity is the canonical resolution result.
type Identity struct {
	OrganizationCode  string
	IsMainInstitution bool
	FiscalCode        string
}

// Hints carries the raw lookup inputs taken from the source email record.
type Hints struct {
	OrganizationCode          string
	AlternateOrganizationCode string
	FiscalCode                string
	AlternateFiscalCode       string
}

var digitRunPattern = regexp.MustCompile(`[0-9]+`)

// Resolve applies the cascading lookup, first success wins:
//  1. the organization code hint as-is
//  2. the alternate organization code hint
//  3. an 11-digit fiscal code extracted from the free-text fiscal hint
//  4. same extraction against the alternate fiscal hint
//  5. the organization code hint with hyphens replaced by underscores
//  6. fall back to the folded organization code hint, unresolved
//
// Inputs are case-folded and trimmed at every step.
func Resolve(hints Hints, dataset *refdata.Dataset) (Identity, error) {
	orgHint := fold(hints.OrganizationCode)
	altHint := fold(hints.AlternateOrganizationCode)

	code := orgHint
	switch {
	case dataset.HasCode(orgHint):
	case dataset.HasCode(altHint):
		code = altHint
	default:
		if fromFiscal, ok := resolveByFiscalHint(hints.FiscalCode, dataset); ok {
			code = fromFiscal
			break
		}
		if fromFiscal, ok := resolveByFiscalHint(hints.AlternateFiscalCode, dataset); ok {
			code = fromFiscal
			break
		}
		if normalized := strings.ReplaceAll(orgHint, "-", "_"); dataset.HasCode(normalized) {
			code = normalized
		}
	}

	identity := Identity{OrganizationCode: code}
	identity.IsMainInstitution = dataset.HasCode(code)
	if fc, ok := dataset.FiscalCodeOf(code); ok {
		identity.FiscalCode = fc
	}

	if identity.IsMainInstitution && identity.FiscalCode == "" {
		return Identity{}, fmt.Errorf("%w: organization code %q", ErrFiscalCodeNotFound, code)
	}
	return identity, nil
}

// resolveByFiscalHint extracts runs of exactly 11 digits (not adjacent to
// other digits) from the free-text hint and resolves the first one known to
// the dataset.
func resolveByFiscalHint(hint string, dataset *refdata.Dataset) (string, bool) {
	hint = fold(hint)
	if hint == "" {
		return "", false
	}
	for _, run := range digitRunPattern.FindAllString(hint, -1) {
		if len(run) != 11 {
			continue
		}
		if !dataset.HasFiscalCode(run) {
			continue
		}
		if code, ok := dataset.CodeOf(run); ok {
			return code, true
		}
	}
	return "", false
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
