package renewals

import (
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/money"
)

// Unassigned groups clients without a recognisable staff owner.
const Unassigned = "Unassigned"

// minPartialMatch is the shortest reference allowed to match by substring.
const minPartialMatch = 3

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// MatchesStaff reports whether idOrName (a client's coach_id or property_coach)
// refers to the staff member for display purposes. Matching ignores accents
// and case; references of three or more characters also match the name by
// substring in either direction. The id only ever matches exactly.
func MatchesStaff(staffID, staffName, idOrName string) bool {
	if sameStaff(staffID, staffName, idOrName) {
		return true
	}
	ref, name := fold(idOrName), fold(staffName)
	if ref == "" || name == "" || len([]rune(ref)) < minPartialMatch {
		return false
	}
	return strings.Contains(name, ref) || strings.Contains(ref, name)
}

// sameStaff is the exact folded match on id or name.
func sameStaff(staffID, staffName, idOrName string) bool {
	ref := fold(idOrName)
	if ref == "" {
		return false
	}
	return ref == fold(staffID) || ref == fold(staffName)
}

// BelongsTo reports whether the client is assigned to the staff member through
// coach_id or property_coach. Only exact id or name matches count.
func BelongsTo(staff *models.User, c *models.Client) bool {
	if staff == nil {
		return false
	}
	id := staff.ID.String()
	return sameStaff(id, staff.Name, c.CoachID) || sameStaff(id, staff.Name, c.PropertyCoach)
}

// OwnerOf picks the staff member a client belongs to, by exact id or name.
// coach_id wins over property_coach.
func OwnerOf(c *models.Client, staff []models.User) *models.User {
	for _, ref := range []string{c.CoachID, c.PropertyCoach} {
		for i := range staff {
			if sameStaff(staff[i].ID.String(), staff[i].Name, ref) {
				return &staff[i]
			}
		}
	}
	return nil
}

// StaffName resolves a coach_id to a display name. Unknown UUIDs resolve to
// "", anything else is taken as a denormalised name.
func StaffName(idOrName string, staff []models.User) string {
	ref := strings.TrimSpace(idOrName)
	if ref == "" || ref == Unassigned {
		return ""
	}
	for _, s := range staff {
		if strings.EqualFold(s.ID.String(), ref) {
			return s.Name
		}
	}
	if _, err := uuid.Parse(ref); err == nil {
		return ""
	}
	return ref
}

// GroupKey is the staff name a client is listed under. Denormalised names
// are shown as the staff member they unambiguously refer to.
func GroupKey(c *models.Client, staff []models.User) string {
	if name := StaffName(c.CoachID, staff); name != "" {
		return displayName(name, staff)
	}
	if pc := strings.TrimSpace(c.PropertyCoach); pc != "" {
		return displayName(pc, staff)
	}
	return Unassigned
}

func displayName(ref string, staff []models.User) string {
	for i := range staff {
		if sameStaff("", staff[i].Name, ref) {
			return staff[i].Name
		}
	}
	var hit *models.User
	for i := range staff {
		if MatchesStaff("", staff[i].Name, ref) {
			if hit != nil {
				return ref
			}
			hit = &staff[i]
		}
	}
	if hit != nil {
		return hit.Name
	}
	return ref
}

// Group is one staff member's share of the monthly renewals.
type Group struct {
	Staff      string      `json:"staff"`
	Records    []Record    `json:"records"`
	Gross      money.Cents `json:"gross_cents"`
	Net        money.Cents `json:"net_cents"`
	Commission money.Cents `json:"commission_cents"`
	Renewed    int         `json:"renewed"`
}

// GroupByStaff buckets records by GroupKey. Groups are ordered by name with
// Unassigned last.
func GroupByStaff(records []Record, staff []models.User) []Group {
	idx := map[string]int{}
	var groups []Group
	for _, r := range records {
		key := GroupKey(r.Client, staff)
		i, ok := idx[key]
		if !ok {
			i = len(groups)
			idx[key] = i
			groups = append(groups, Group{Staff: key})
		}
		g := &groups[i]
		g.Records = append(g.Records, r)
		g.Gross += r.Amount
		if r.Breakdown != nil {
			g.Net += r.Breakdown.Net
			g.Commission += r.Breakdown.Commission
		}
		if r.Status == StatusRenewed {
			g.Renewed++
		}
	}
	sortGroups(groups, func(i int) string { return groups[i].Staff })
	return groups
}

// ChurnGroup lists the clients a staff member lost in the month.
type ChurnGroup struct {
	Staff    string           `json:"staff"`
	Clients  []*models.Client `json:"clients"`
	Dropouts int              `json:"dropouts"`
	Inactive int              `json:"inactive"`
}

func GroupChurnByStaff(clients []*models.Client, staff []models.User) []ChurnGroup {
	idx := map[string]int{}
	var groups []ChurnGroup
	for _, c := range clients {
		key := GroupKey(c, staff)
		i, ok := idx[key]
		if !ok {
			i = len(groups)
			idx[key] = i
			groups = append(groups, ChurnGroup{Staff: key})
		}
		g := &groups[i]
		g.Clients = append(g.Clients, c)
		switch c.Status {
		case models.CLIENT_STATUS_DROPOUT:
			g.Dropouts++
		case models.CLIENT_STATUS_INACTIVE:
			g.Inactive++
		}
	}
	sortGroups(groups, func(i int) string { return groups[i].Staff })
	return groups
}

func sortGroups[T any](groups []T, name func(int) string) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := name(i), name(j)
		if (a == Unassigned) != (b == Unassigned) {
			return b == Unassigned
		}
		return fold(a) < fold(b)
	})
}
