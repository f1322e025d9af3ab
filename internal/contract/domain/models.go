// Package domain holds the contract ingestion data model: the inbound
// change-event document, its source facts (email, attachment, delegates)
// and the normalized Contract written at the end of the pipeline.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Contract version labels as they appear in the upstream documents.
const (
	VersionV1       = "V1.0"
	VersionV2       = "V2.0"
	VersionV2_2June = "V2.2(17 giugno)"
	VersionV2_2July = "V2.2(29 luglio)"
	VersionV2_3     = "V2.3"
	versionManual   = "Ins. Manuale"
)

// KnownVersions lists the accepted labels, newest first.
var KnownVersions = []string{
	VersionV2_3,
	VersionV2_2July,
	VersionV2_2June,
	VersionV2,
	VersionV1,
}

// IsKnownVersion reports whether v is one of the accepted labels.
func IsKnownVersion(v string) bool {
	for _, known := range KnownVersions {
		if v == known {
			return true
		}
	}
	return false
}

// Delegate roles as declared in the source records.
const (
	RoleManager   = "Principale"
	RoleSecondary = "Secondario"
	RoleOther     = "Altro"
)

// AttachmentKindContract marks the scanned agreement itself; any other
// kind is auxiliary material.
const AttachmentKindContract = "Contratto"

// SourceDocument is the inbound change-event payload. Field names follow
// the upstream column naming and must not be renamed.
type SourceDocument struct {
	ID               string `json:"id"`
	OrganizationCode string `json:"CODICEIPA"`
	AttachmentID     int64  `json:"IDALLEGATO"`
	EmailID          int64  `json:"IDEMAIL"`
	Version          string `json:"TIPOCONTRATTO"`
}

// Skippable reports whether the document should be filtered out before
// entering the pipeline: no version at all, or the manual-entry marker.
func (d SourceDocument) Skippable() bool {
	v := strings.TrimSpace(d.Version)
	return v == "" || v == versionManual
}

// Validate checks the schema constraints, accumulating every violation
// instead of stopping at the first.
func (d SourceDocument) Validate() error {
	var problems []error
	if d.ID == "" {
		problems = append(problems, errors.New("missing document id"))
	}
	if strings.TrimSpace(d.OrganizationCode) == "" {
		problems = append(problems, errors.New("missing organization code"))
	}
	if d.AttachmentID < 0 {
		problems = append(problems, fmt.Errorf("negative attachment id %d", d.AttachmentID))
	}
	if d.EmailID < 0 {
		problems = append(problems, fmt.Errorf("negative email id %d", d.EmailID))
	}
	if !IsKnownVersion(d.Version) {
		problems = append(problems, fmt.Errorf("unknown contract version %q", d.Version))
	}
	return errors.Join(problems...)
}

// EmailRecord is the read-only source fact about the message that carried
// the contract.
type EmailRecord struct {
	ID                        string `json:"id"`
	AlternateOrganizationCode string `json:"COMUNECODICEIPA"`
	// FiscalCode is free text and may embed the code among other words.
	FiscalCode          string `json:"CODICEFISCALE,omitempty"`
	AlternateFiscalCode string `json:"COMUNECODICEFISCALE"`
	ReceivedAt          string `json:"DATAEMAIL"`
}

func (e EmailRecord) Validate() error {
	if strings.TrimSpace(e.ReceivedAt) == "" {
		return errors.New("missing email date")
	}
	return nil
}

// Attachment is the stored record of a scanned file.
type Attachment struct {
	ID            string `json:"id"`
	Name          string `json:"NOMEALLEGATO"`
	AlternateName string `json:"NOMEALLEGATONUOVO,omitempty"`
	Path          string `json:"PATHALLEGATO"`
	Kind          string `json:"TIPOALLEGATO"`
}

// EffectiveName prefers the renamed file when one was recorded.
func (a Attachment) EffectiveName() string {
	if a.AlternateName != "" {
		return a.AlternateName
	}
	return a.Name
}

func (a Attachment) Validate() error {
	var problems []error
	if a.Name == "" {
		problems = append(problems, errors.New("missing attachment name"))
	}
	if a.Path == "" {
		problems = append(problems, errors.New("missing attachment path"))
	}
	if a.Kind != AttachmentKindContract {
		problems = append(problems, fmt.Errorf("unexpected attachment kind %q", a.Kind))
	}
	return errors.Join(problems...)
}

// Delegate is a natural person named in a contract as signatory or
// contact. Source-facing field names again follow the upstream columns.
type Delegate struct {
	ID           string `json:"id"`
	AttachmentID int64  `json:"IDALLEGATO"`
	FullName     string `json:"NOMINATIVO"`
	FiscalCode   string `json:"CODICEFISCALE"`
	Email        string `json:"EMAIL"`
	Role         string `json:"TIPODELEGATO"`
	Title        string `json:"QUALIFICA,omitempty"`
}

// AttachmentSummary is the slice of attachment data embedded in a
// persisted Contract.
type AttachmentSummary struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Contract is the normalized record produced by the ingestion pipeline.
// Immutable once written; the claim stage only reads it.
type Contract struct {
	ID               string            `json:"id"`
	OrganizationCode string            `json:"ipaCode"`
	Version          string            `json:"version"`
	EmailDate        string            `json:"emailDate"`
	Attachment       AttachmentSummary `json:"attachment"`
	IsAggregator     bool              `json:"isAggregator"`
	// Delegates is the snapshot some producer revisions embed at save
	// time; the claim stage still queries the live delegate records.
	Delegates []Delegate `json:"delegates,omitempty"`
}
