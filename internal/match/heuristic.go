package match

import (
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
)

const (
	roleMatchBase = 70
	roleMatchSpan = 20
	noMatchBase   = 40
	noMatchSpan   = 25
)

// Heuristic scores jobs without a model. The score depends only on Seed, the
// job id and whether the title contains a target role, so reruns are stable.
type Heuristic struct {
	Seed string
}

// Score returns 70-89 when title contains any target role (case-insensitive), else 40-64.
func (h Heuristic) Score(jobID uuid.UUID, title string, targetRoles []string) int {
	f := fnv.New32a()
	f.Write([]byte(h.Seed))
	f.Write(jobID[:])
	v := int(f.Sum32() & 0x7fffffff)

	if titleMatchesRole(title, targetRoles) {
		return roleMatchBase + v%roleMatchSpan
	}
	return noMatchBase + v%noMatchSpan
}

func titleMatchesRole(title string, roles []string) bool {
	t := strings.ToLower(title)
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" && strings.Contains(t, r) {
			return true
		}
	}
	return false
}
