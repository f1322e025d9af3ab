package claim

import (
	"strings"

	"github.com/quadrel/pecbridge/internal/contract/domain"
	"github.com/quadrel/pecbridge/internal/selfcare"
)

// ComposeClaim maps the selected contract and its delegates to the
// onboarding payload. The manager role maps to MANAGER, every other role
// to DELEGATE.
func ComposeClaim(fiscalCode string, contract domain.Contract, delegates []domain.Delegate) selfcare.Claim {
	users := make([]selfcare.User, 0, len(delegates))
	for _, d := range delegates {
		name, surname := delegateName(d)
		users = append(users, selfcare.User{
			Email:   d.Email,
			Role:    toSelfcareRole(d.Role),
			TaxCode: d.FiscalCode,
			Name:    name,
			Surname: surname,
		})
	}
	return selfcare.Claim{
		ExternalInstitutionID: fiscalCode,
		ImportContract: selfcare.ImportContract{
			ContractType: contract.Version,
			FileName:     contract.Attachment.Name,
			FilePath:     contract.Attachment.Path,
		},
		Users: users,
	}
}

func toSelfcareRole(role string) string {
	if role == domain.RoleManager {
		return selfcare.RoleManager
	}
	return selfcare.RoleDelegate
}

// delegateName splits the full name on the first word boundary. Absent a
// full name, a pseudo name is derived from the first two fiscal code
// triplets (surname, then name).
func delegateName(d domain.Delegate) (name, surname string) {
	words := strings.Fields(d.FullName)
	if len(words) > 0 {
		return words[0], strings.Join(words[1:], " ")
	}
	if len(d.FiscalCode) >= 6 {
		return d.FiscalCode[3:6], d.FiscalCode[0:3]
	}
	return "", ""
}
