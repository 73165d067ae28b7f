// Package lead holds prospect records and the id conventions that tie
// emails back to a conversation.
package lead

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

type Lead struct {
	CompanyName  string `json:"company_name"`
	Website      string `json:"website"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	Notes        string `json:"notes"`
}

// ID is the conversation key of the lead, derived from its company name.
func (l Lead) ID() string { return IDFromCompany(l.CompanyName) }

// IDFromCompany lowercases name and replaces spaces and slashes with "_".
func IDFromCompany(name string) string {
	r := strings.NewReplacer(" ", "_", "/", "_")
	return r.Replace(strings.ToLower(strings.TrimSpace(name)))
}

// IDFromEmail derives a lead id from the local part of an address, for
// replies that arrive without a tagged subject.
func IDFromEmail(addr string) string {
	addr = strings.TrimSpace(addr)
	// "Jane Doe <jane.doe@acme.com>"
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	local, _, _ := strings.Cut(addr, "@")
	r := strings.NewReplacer(".", "_", "-", "_")
	return r.Replace(strings.ToLower(strings.TrimSpace(local)))
}

var subjectTag = regexp.MustCompile(`\[LeadID:\s*([^\]\s]+)\s*\]`)

// TagSubject appends the lead id tag to subject.
func TagSubject(subject, leadID string) string {
	return fmt.Sprintf("%s [LeadID: %s]", strings.TrimSpace(subject), leadID)
}

// IDFromSubject returns the tagged lead id of a (possibly "Re:") subject.
func IDFromSubject(subject string) (string, bool) {
	m := subjectTag.FindStringSubmatch(subject)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// OutreachSubject is the subject of the first email sent to l.
func OutreachSubject(l Lead) string {
	return TagSubject("Packaging Solutions for "+l.CompanyName, l.ID())
}

// ReplySubject is the subject used for follow-ups in an existing thread.
func ReplySubject(leadID string) string {
	return TagSubject("Re: Packaging Solutions", leadID)
}

// LoadFile reads the parsed-leads JSON array at path. Fields are trimmed.
func LoadFile(path string) ([]Lead, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lead: read %s: %w", path, err)
	}
	var leads []Lead
	if err := json.Unmarshal(b, &leads); err != nil {
		return nil, fmt.Errorf("lead: decode %s: %w", path, err)
	}
	for i := range leads {
		l := &leads[i]
		l.CompanyName = strings.TrimSpace(l.CompanyName)
		l.Website = strings.TrimSpace(l.Website)
		l.ContactName = strings.TrimSpace(l.ContactName)
		l.ContactEmail = strings.TrimSpace(l.ContactEmail)
		l.Notes = strings.TrimSpace(l.Notes)
	}
	return leads, nil
}

// Index maps lead ids to leads. Later duplicates win.
func Index(leads []Lead) map[string]Lead {
	out := make(map[string]Lead, len(leads))
	for _, l := range leads {
		out[l.ID()] = l
	}
	return out
}
