// Package domain defines the per-organization membership record that
// tracks onboarding progress.
package domain

import (
	"errors"
	"strings"
)

// Status is the membership processing state.
type Status string

const (
	StatusInitial   Status = "Initial"
	StatusProcessed Status = "Processed"
	StatusDiscarded Status = "Discarded"
	StatusFailed    Status = "Failed"
)

// ParseStatus validates a status string, defaulting to Initial when empty.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusInitial, nil
	}
	switch st := Status(s); st {
	case StatusInitial, StatusProcessed, StatusDiscarded, StatusFailed:
		return st, nil
	}
	return "", errors.New("unknown membership status: " + s)
}

// Membership is keyed by organization code; one exists per organization,
// created on the first contract referencing it and never deleted.
type Membership struct {
	ID                string `json:"id"`
	OrganizationCode  string `json:"ipaCode"`
	FiscalCode        string `json:"fiscalCode,omitempty"`
	IsMainInstitution bool   `json:"mainInstitution"`
	Status            Status `json:"status"`
	Note              string `json:"note,omitempty"`
}

// Validate enforces the structural invariants of a stored membership.
func (m Membership) Validate() error {
	var problems []error
	if strings.TrimSpace(m.ID) == "" {
		problems = append(problems, errors.New("missing membership id"))
	}
	if strings.TrimSpace(m.OrganizationCode) == "" {
		problems = append(problems, errors.New("missing organization code"))
	}
	if _, err := ParseStatus(string(m.Status)); err != nil {
		problems = append(problems, err)
	}
	if m.IsMainInstitution && m.FiscalCode == "" {
		problems = append(problems, errors.New("main institution without fiscal code"))
	}
	return errors.Join(problems...)
}
