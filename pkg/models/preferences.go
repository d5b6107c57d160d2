package models

import (
	"encoding/json"
	"strings"
)

const (
	WorkTypeRemote   = "remote"
	WorkTypeHybrid   = "hybrid"
	WorkTypeInPerson = "in-person"
)

const (
	SearchModeCombined   = "combined"
	SearchModeURLsOnly   = "urls_only"
	SearchModeSearchOnly = "search_only"
)

// UserPreferences are the search preferences owned by the profile service.
type UserPreferences struct {
	TargetRoles       []string  `json:"target_roles"`
	WorkTypes         WorkTypes `json:"work_type"`
	LocationZip       *string   `json:"location_zip,omitempty"`
	TargetCompanyURLs []string  `json:"target_company_urls,omitempty"`
	SearchMode        string    `json:"search_mode,omitempty"`
	AutoDiscovery     bool      `json:"auto_discovery"`
}

// WorkTypes accepts either a single string or a list of strings when decoded
// from JSON. Values are lower-cased and trimmed; blanks are dropped.
type WorkTypes []string

func (w *WorkTypes) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*w = NormalizeWorkTypes([]string{one})
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*w = NormalizeWorkTypes(many)
	return nil
}

// NormalizeWorkTypes lower-cases and trims work types and folds the common
// spellings of in-person ("onsite", "on-site", "in person") together.
func NormalizeWorkTypes(in []string) WorkTypes {
	out := make(WorkTypes, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		switch v {
		case "":
			continue
		case "onsite", "on-site", "in person", "in_person", "office":
			v = WorkTypeInPerson
		}
		out = append(out, v)
	}
	return out
}

// RemoteOnly reports whether the preferences call for a remote-only search.
// An empty list means the user did not say, which is treated as remote.
func (w WorkTypes) RemoteOnly() bool {
	for _, v := range w {
		if v != WorkTypeRemote {
			return false
		}
	}
	return true
}
