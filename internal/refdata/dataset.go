// Package refdata loads the public-administration reference feed and
// answers organization code / fiscal code lookups against it.
package refdata

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// Fixed column positions in the reference feed. A contract with the feed
// producer; do not reorder.
const (
	columnOrganizationCode = 1
	columnFiscalCode       = 3
	minColumns             = 4
)

var ErrFeedUnreadable = errors.New("reference_feed_unreadable")

// Dataset is the immutable in-memory index over the reference feed.
// Safe for concurrent use after Parse.
type Dataset struct {
	codeToFiscal map[string]string
	fiscalToCode map[string]string
	skipped      int
}

// Parse builds the dataset from the raw comma-delimited feed text. The
// header row is skipped; rows with too few columns are dropped and counted
// in Skipped rather than failing the load.
func Parse(raw string) (*Dataset, error) {
	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1

	ds := &Dataset{
		codeToFiscal: make(map[string]string),
		fiscalToCode: make(map[string]string),
	}

	header := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) || errors.Is(err, csv.ErrQuote) || errors.Is(err, csv.ErrBareQuote) {
				ds.skipped++
				continue
			}
			return nil, errors.Join(ErrFeedUnreadable, err)
		}
		if header {
			header = false
			continue
		}
		if len(row) < minColumns {
			ds.skipped++
			continue
		}
		code := foldKey(row[columnOrganizationCode])
		fiscal := strings.TrimSpace(row[columnFiscalCode])
		if code == "" {
			ds.skipped++
			continue
		}
		// lookup keys are case-folded, stored values keep the feed casing
		ds.codeToFiscal[code] = fiscal
		if fiscal != "" {
			ds.fiscalToCode[foldKey(fiscal)] = code
		}
	}

	return ds, nil
}

// HasCode reports whether code identifies a central/main institution.
func (d *Dataset) HasCode(code string) bool {
	_, ok := d.codeToFiscal[foldKey(code)]
	return ok
}

// HasFiscalCode reports whether fc is a known organization fiscal code.
func (d *Dataset) HasFiscalCode(fc string) bool {
	_, ok := d.fiscalToCode[foldKey(fc)]
	return ok
}

// FiscalCodeOf returns the fiscal code registered for code.
func (d *Dataset) FiscalCodeOf(code string) (string, bool) {
	fc, ok := d.codeToFiscal[foldKey(code)]
	if !ok || fc == "" {
		return "", false
	}
	return fc, true
}

// CodeOf returns the organization code registered for fc.
func (d *Dataset) CodeOf(fc string) (string, bool) {
	code, ok := d.fiscalToCode[foldKey(fc)]
	return code, ok
}

// Len returns the number of indexed organizations.
func (d *Dataset) Len() int { return len(d.codeToFiscal) }

// Skipped returns the number of feed rows dropped during parse.
func (d *Dataset) Skipped() int { return d.skipped }

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
