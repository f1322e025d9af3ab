package claim

import (
	"context"
	"encoding/json"
	"net/mail"
	"regexp"
	"strconv"
	"strings"

	"github.com/quadrel/pecbridge/internal/contract/domain"
	"github.com/quadrel/pecbridge/internal/store"
	"go.uber.org/zap"
)

// FailureReason classifies why a contract's delegates cannot back a claim.
type FailureReason string

const (
	ReasonNoManager            FailureReason = "no-manager"
	ReasonNoFiscalCode         FailureReason = "no-cf"
	ReasonOrganizationCode     FailureReason = "organization-cf"
	ReasonFiscalCodeWhitespace FailureReason = "wrong-cf-with-spaces"
	ReasonFiscalCodeLowercase  FailureReason = "wrong-cf-lowercase"
	ReasonFiscalCodeBadPattern FailureReason = "wrong-cf"
	ReasonEmailInvalid         FailureReason = "wrong-email"
	ReasonOther                FailureReason = "other"
)

// Text returns the human-readable audit form of the reason.
func (r FailureReason) Text() string {
	switch r {
	case ReasonNoManager:
		return "No manager found"
	case ReasonNoFiscalCode:
		return "Manager has empty CODICEFISCALE"
	case ReasonOrganizationCode:
		return "Wrong CODICEFISCALE (organization pattern)"
	case ReasonFiscalCodeWhitespace:
		return "Wrong CODICEFISCALE (has spaces)"
	case ReasonFiscalCodeLowercase:
		return "Wrong CODICEFISCALE (lowercase)"
	case ReasonFiscalCodeBadPattern:
		return "Wrong CODICEFISCALE (bad pattern)"
	case ReasonEmailInvalid:
		return "Wrong EMAIL"
	default:
		return "Unknown error"
	}
}

var (
	personalFiscalCodePattern = regexp.MustCompile(
		`^[A-Z]{6}[0-9LMNPQRSTUV]{2}[ABCDEHLMPRST][0-9LMNPQRSTUV]{2}[A-Z][0-9LMNPQRSTUV]{3}[A-Z]$`)
	organizationFiscalCodePattern = regexp.MustCompile(`^[0-9]{11}$`)
	whitespacePattern             = regexp.MustCompile(`\s`)
	lowercasePattern              = regexp.MustCompile(`[a-z]`)
)

// RawDelegate is an undecoded delegate record straight from the store.
type RawDelegate map[string]any

// Reconciler fetches, repairs and validates delegate records.
type Reconciler struct {
	store store.Store
	log   *zap.Logger
}

func NewReconciler(st store.Store, log *zap.Logger) *Reconciler {
	return &Reconciler{store: st, log: log.Named("claim.reconciler")}
}

// FetchRaw drains every page of delegate records for the contract's
// attachment before returning.
func (r *Reconciler) FetchRaw(ctx context.Context, contract domain.Contract) ([]RawDelegate, error) {
	items, err := r.store.QueryAll(ctx, store.CollectionDelegates, store.Query{
		Field: "IDALLEGATO",
		Value: attachmentQueryValue(contract.Attachment.ID),
	})
	if err != nil {
		return nil, domain.Errorf(domain.KindFetchDelegates,
			"query delegates for attachment %s: %w", contract.Attachment.ID, err)
	}

	records := make([]RawDelegate, 0, len(items))
	for _, item := range items {
		var rec RawDelegate
		if err := json.Unmarshal(item.Data, &rec); err != nil {
			return nil, domain.Errorf(domain.KindFetchDelegates,
				"decode delegate %s: %w", item.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Repair applies the known data patches unconditionally before
// validation: fiscal codes are uppercased and stripped of whitespace,
// email addresses are stripped of whitespace.
func Repair(records []RawDelegate) []RawDelegate {
	repaired := make([]RawDelegate, 0, len(records))
	for _, rec := range records {
		fixed := make(RawDelegate, len(rec))
		for k, v := range rec {
			fixed[k] = v
		}
		if cf, ok := fixed["CODICEFISCALE"].(string); ok {
			fixed["CODICEFISCALE"] = whitespacePattern.ReplaceAllString(strings.ToUpper(cf), "")
		}
		if email, ok := fixed["EMAIL"].(string); ok {
			fixed["EMAIL"] = whitespacePattern.ReplaceAllString(email, "")
		}
		repaired = append(repaired, fixed)
	}
	return repaired
}

// Parse keeps the well-formed delegates and succeeds when at least one of
// them holds the manager role. On failure it classifies the first
// manager-role record (by declared role, however malformed the rest of it
// is) into a single ordered reason.
func Parse(records []RawDelegate) ([]domain.Delegate, FailureReason) {
	var parsed []domain.Delegate
	for _, rec := range records {
		d, err := decodeDelegate(rec)
		if err != nil {
			continue
		}
		parsed = append(parsed, d)
	}

	for _, d := range parsed {
		if d.Role == domain.RoleManager {
			return parsed, ""
		}
	}

	manager := firstDeclaredManager(records)
	if manager == nil {
		return nil, ReasonNoManager
	}
	return nil, classifyManager(manager)
}

func decodeDelegate(rec RawDelegate) (domain.Delegate, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return domain.Delegate{}, err
	}
	var d domain.Delegate
	if err := json.Unmarshal(payload, &d); err != nil {
		return domain.Delegate{}, err
	}
	if err := validateDelegate(d); err != nil {
		return domain.Delegate{}, err
	}
	return d, nil
}

func validateDelegate(d domain.Delegate) error {
	switch {
	case d.ID == "":
		return errMissingField("id")
	case !personalFiscalCodePattern.MatchString(d.FiscalCode):
		return errMissingField("CODICEFISCALE")
	case !validEmail(d.Email):
		return errMissingField("EMAIL")
	case d.Role != domain.RoleManager && d.Role != domain.RoleSecondary && d.Role != domain.RoleOther:
		return errMissingField("TIPODELEGATO")
	}
	return nil
}

type fieldError string

func (e fieldError) Error() string { return "invalid delegate field " + string(e) }

func errMissingField(name string) error { return fieldError(name) }

func firstDeclaredManager(records []RawDelegate) RawDelegate {
	for _, rec := range records {
		if role, ok := rec["TIPODELEGATO"].(string); ok && role == domain.RoleManager {
			return rec
		}
	}
	return nil
}

// classifyManager walks the checks in fixed order; the first match wins.
func classifyManager(rec RawDelegate) FailureReason {
	cf, hasCF := rec["CODICEFISCALE"].(string)
	switch {
	case !hasCF || cf == "":
		return ReasonNoFiscalCode
	case organizationFiscalCodePattern.MatchString(cf):
		return ReasonOrganizationCode
	case whitespacePattern.MatchString(cf):
		return ReasonFiscalCodeWhitespace
	case lowercasePattern.MatchString(cf):
		return ReasonFiscalCodeLowercase
	case !personalFiscalCodePattern.MatchString(cf):
		return ReasonFiscalCodeBadPattern
	}

	if email, ok := rec["EMAIL"].(string); !ok || !validEmail(email) {
		return ReasonEmailInvalid
	}
	return ReasonOther
}

func validEmail(addr string) bool {
	if addr == "" {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}

// attachmentQueryValue keeps numeric attachment ids numeric so the JSON
// field match works against records storing IDALLEGATO as a number.
func attachmentQueryValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
