package matcher

import (
	"testing"

	"cdpjobstats/internal/identity"
)

const apiPath = "/voyager/api/jobs/"

func newMatcher(href string) *Matcher {
	return New(identity.NewResolver(identity.NewAddress(href), "currentJobId"), apiPath)
}

func TestMatch(t *testing.T) {
	m := newMatcher("https://www.linkedin.com/jobs/search/?currentJobId=42")

	tests := []struct {
		name    string
		url     string
		matched bool
		norm    string
	}{
		{"absolute", "https://www.linkedin.com/voyager/api/jobs/jobPostings/42?decorationId=x", true, "https://www.linkedin.com/voyager/api/jobs/jobPostings/42?decorationId=x"},
		{"relative", "/voyager/api/jobs/jobPostings/42", true, "https://www.linkedin.com/voyager/api/jobs/jobPostings/42"},
		{"id mid path", "/voyager/api/jobs/42/applicants", true, "https://www.linkedin.com/voyager/api/jobs/42/applicants"},
		{"no marker", "/voyager/api/feed/42", false, ""},
		{"no id segment", "/voyager/api/jobs/jobPostings/43", false, ""},
		{"id only in query", "/voyager/api/jobs/jobPostings?id=42", false, ""},
		{"bad url", "http://[::1/voyager/api/jobs/42", false, ""},
		{"empty", "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(tt.url)
			if got.Matched != tt.matched {
				t.Fatalf("Match(%q).Matched = %v, want %v", tt.url, got.Matched, tt.matched)
			}
			if !tt.matched {
				if got.EntityID != "" || got.URL != "" {
					t.Fatalf("unmatched result carries data: %+v", got)
				}
				return
			}
			if got.EntityID != "42" {
				t.Fatalf("EntityID = %q, want 42", got.EntityID)
			}
			if got.URL != tt.norm {
				t.Fatalf("URL = %q, want %q", got.URL, tt.norm)
			}
		})
	}
}

func TestMatchWithoutCurrentEntity(t *testing.T) {
	m := newMatcher("https://www.linkedin.com/feed/")
	for _, u := range []string{
		"https://www.linkedin.com/voyager/api/jobs/jobPostings/42",
		"/voyager/api/jobs/",
		"/voyager/api/jobs//",
	} {
		if got := m.Match(u); got.Matched {
			t.Fatalf("Match(%q) matched with no current entity", u)
		}
	}
}

func TestMatchUsesCurrentEntityAtCallTime(t *testing.T) {
	addr := identity.NewAddress("https://www.linkedin.com/jobs/?currentJobId=1")
	m := New(identity.NewResolver(addr, "currentJobId"), apiPath)
	u := "/voyager/api/jobs/jobPostings/2"
	if m.Match(u).Matched {
		t.Fatal("matched entity 2 while current is 1")
	}
	addr.Set("https://www.linkedin.com/jobs/?currentJobId=2")
	if got := m.Match(u); !got.Matched || got.EntityID != "2" {
		t.Fatalf("Match after navigation = %+v, want matched entity 2", got)
	}
}
