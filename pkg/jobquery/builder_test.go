package jobquery

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

func strPtr(s string) *string { return &s }

func texts(qs []SearchQuery) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Text
	}
	return out
}

func TestBuildQueries_RemoteSingleRole(t *testing.T) {
	b := QueryBuilder{}
	got := texts(b.BuildQueries(models.UserPreferences{
		TargetRoles: []string{"Product Manager"},
		WorkTypes:   models.WorkTypes{"remote"},
		LocationZip: strPtr("30301"),
	}))

	expected := []string{
		`site:boards.greenhouse.io remote "Product Manager"`,
		`site:jobs.lever.co remote "Product Manager"`,
		`remote "Product Manager" jobs hiring`,
		`site:apply.workable.com remote`,
		`site:jobs.ashbyhq.com remote`,
	}
	if len(got) != len(expected) {
		t.Fatalf("got %d queries, want %d: %v", len(got), len(expected), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("query %d:\n  got:  %s\n  want: %s", i, got[i], expected[i])
		}
	}
	for _, q := range got {
		if strings.Contains(q, "Atlanta") {
			t.Errorf("remote query must not carry a location: %s", q)
		}
	}
}

func TestBuildQueries_HybridWithZip(t *testing.T) {
	b := QueryBuilder{}
	qs := b.BuildQueries(models.UserPreferences{
		TargetRoles: []string{"Project Manager"},
		WorkTypes:   models.WorkTypes{"hybrid"},
		LocationZip: strPtr("30301"),
	})

	expected := []string{
		`"Project Manager" jobs Georgia Atlanta`,
		`site:boards.greenhouse.io "Project Manager" Georgia Atlanta`,
		`hybrid "Project Manager" jobs Georgia Atlanta`,
		`site:apply.workable.com hybrid Georgia Atlanta`,
		`site:jobs.ashbyhq.com hybrid Georgia Atlanta`,
	}
	got := texts(qs)
	if len(got) != len(expected) {
		t.Fatalf("got %d queries, want %d: %v", len(got), len(expected), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("query %d:\n  got:  %s\n  want: %s", i, got[i], expected[i])
		}
		if qs[i].Region != "Georgia Atlanta" {
			t.Errorf("query %d: region = %q", i, qs[i].Region)
		}
	}
}

func TestBuildQueries_InPersonUsesOnsiteTerm(t *testing.T) {
	b := QueryBuilder{}
	got := texts(b.BuildQueries(models.UserPreferences{
		TargetRoles: []string{"Operations Manager"},
		WorkTypes:   models.WorkTypes{"remote", "On-Site"},
		LocationZip: strPtr("60601"),
	}))
	want := `onsite "Operations Manager" jobs Illinois Chicago`
	if got[2] != want {
		t.Errorf("got %q, want %q", got[2], want)
	}
}

func TestBuildQueries_EmptyPreferencesUseDefaults(t *testing.T) {
	b := QueryBuilder{}
	qs := b.BuildQueries(models.UserPreferences{})
	if len(qs) == 0 {
		t.Fatal("empty preferences must still produce queries")
	}
	roles := make(map[string]bool)
	for _, q := range qs {
		if q.Role != "" {
			roles[q.Role] = true
		}
	}
	for _, r := range DefaultRoles {
		if !roles[r] {
			t.Errorf("default role %q not searched", r)
		}
	}
}

func TestBuildQueries_UnknownZipDegradesToRoleOnly(t *testing.T) {
	b := QueryBuilder{}
	for _, zip := range []string{"99999", "ab123", "3", ""} {
		qs := b.BuildQueries(models.UserPreferences{
			TargetRoles: []string{"Analyst"},
			WorkTypes:   models.WorkTypes{"hybrid"},
			LocationZip: strPtr(zip),
		})
		if qs[0].Text != `"Analyst" jobs` {
			t.Errorf("zip %q: got %q", zip, qs[0].Text)
		}
		if qs[0].Region != "" {
			t.Errorf("zip %q: region should be empty, got %q", zip, qs[0].Region)
		}
	}
}

func TestBuildQueries_TruncatesRolesAndBoundsLength(t *testing.T) {
	b := QueryBuilder{}
	qs := b.BuildQueries(models.UserPreferences{
		TargetRoles: []string{"A", "B", "C", "D", "E"},
		TargetCompanyURLs: []string{
			"https://a.com", "b.com/careers", "www.c.com", "d.io", "e.co", "f.dev", "g.ai",
		},
	})
	if len(qs) > MaxQueries {
		t.Fatalf("got %d queries, max is %d", len(qs), MaxQueries)
	}
	for _, q := range qs {
		if q.Role == "D" || q.Role == "E" {
			t.Errorf("role beyond the first %d was searched: %s", MaxRoles, q.Text)
		}
	}
}

func TestBuildQueries_SearchModes(t *testing.T) {
	b := QueryBuilder{}
	base := models.UserPreferences{
		TargetRoles:       []string{"Product Manager"},
		TargetCompanyURLs: []string{"https://www.Acme.com/careers", "acme.com", "not a url"},
	}

	tests := []struct {
		name         string
		mode         string
		wantCompany  int
		wantRoleless bool
	}{
		{name: "combined adds company sites", mode: models.SearchModeCombined, wantCompany: 1},
		{name: "default mode is combined", mode: "", wantCompany: 1},
		{name: "urls only", mode: models.SearchModeURLsOnly, wantCompany: 1, wantRoleless: true},
		{name: "search only ignores urls", mode: models.SearchModeSearchOnly, wantCompany: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			p.SearchMode = tt.mode
			qs := b.BuildQueries(p)

			company := 0
			for _, q := range qs {
				if q.Kind == KindCompany {
					company++
					if q.Text != "site:acme.com jobs" {
						t.Errorf("unexpected company query %q", q.Text)
					}
				}
			}
			if company != tt.wantCompany {
				t.Errorf("company queries = %d, want %d", company, tt.wantCompany)
			}
			if tt.wantRoleless && len(qs) != company {
				t.Errorf("urls_only should emit only company queries, got %v", texts(qs))
			}
		})
	}
}

func TestBuildQueries_URLsOnlyWithoutURLsFallsBack(t *testing.T) {
	b := QueryBuilder{}
	qs := b.BuildQueries(models.UserPreferences{SearchMode: models.SearchModeURLsOnly})
	if len(qs) == 0 {
		t.Fatal("urls_only with no urls must fall back to role queries")
	}
}

func TestRegionForZip(t *testing.T) {
	tests := []struct {
		zip    string
		region string
		ok     bool
	}{
		{"30301", "Georgia Atlanta", true},
		{" 94105 ", "California San Francisco", true},
		{"00501", "", false},
		{"x0301", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		region, ok := RegionForZip(tt.zip)
		if region != tt.region || ok != tt.ok {
			t.Errorf("RegionForZip(%q) = (%q, %v), want (%q, %v)", tt.zip, region, ok, tt.region, tt.ok)
		}
	}
}
