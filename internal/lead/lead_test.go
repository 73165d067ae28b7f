package lead

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromCompany(t *testing.T) {
	assert.Equal(t, "fiori_bruno_pasta", IDFromCompany("Fiori Bruno Pasta"))
	assert.Equal(t, "a_b_co", IDFromCompany(" A/B Co "))
	assert.Equal(t, "kariout", IDFromCompany("Kariout"))
}

func TestIDFromEmail(t *testing.T) {
	assert.Equal(t, "jane_doe", IDFromEmail("Jane.Doe@acme.com"))
	assert.Equal(t, "sales_team", IDFromEmail("Sales Team <sales-team@beta.io>"))
	assert.Equal(t, "bob", IDFromEmail("bob"))
}

func TestSubjectTagRoundTrip(t *testing.T) {
	l := Lead{CompanyName: "Acme Co"}
	subj := OutreachSubject(l)
	assert.Equal(t, "Packaging Solutions for Acme Co [LeadID: acme_co]", subj)

	id, ok := IDFromSubject("RE: " + subj)
	require.True(t, ok)
	assert.Equal(t, "acme_co", id)

	id, ok = IDFromSubject(ReplySubject("beta_corp"))
	require.True(t, ok)
	assert.Equal(t, "beta_corp", id)

	_, ok = IDFromSubject("Quick question")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads_parsed.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"company_name": " Kariout ", "website": "kariout.com", "contact_name": "Ann", "contact_email": "ann@kariout.com ", "notes": ""},
  {"company_name": "Fiori Bruno Pasta", "contact_email": "info@fiori.it"}
]`), 0o644))

	leads, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "Kariout", leads[0].CompanyName)
	assert.Equal(t, "ann@kariout.com", leads[0].ContactEmail)

	idx := Index(leads)
	assert.Equal(t, "info@fiori.it", idx["fiori_bruno_pasta"].ContactEmail)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
