package service

import (
	"sort"

	"github.com/drawdash/api/internal/model"
)

// Drawer rotation. Everyone draws once per cycle, tracked by the room's
// drawn-user set; the set resets when exhausted. In team mode the turn
// alternates between teams, falling back to a flat rotation when one team
// has nobody left to draw.

// NextDrawer picks the next drawer among the active participants and
// returns the updated drawn set. Departed users are pruned from the set so
// a shrinking room cannot stall the cycle. Returns an empty drawer ID when
// there is nobody eligible.
func NextDrawer(active []*model.Participant, drawn []string, gameMode, lastDrawerID string) (string, []string) {
	if len(active) == 0 {
		return "", nil
	}

	members := make(map[string]*model.Participant, len(active))
	ids := make([]string, 0, len(active))
	for _, p := range active {
		members[p.UserID] = p
		ids = append(ids, p.UserID)
	}
	sort.Strings(ids)

	// Prune departed users from the cycle set.
	var pruned []string
	drawnSet := make(map[string]bool)
	for _, id := range drawn {
		if members[id] != nil {
			pruned = append(pruned, id)
			drawnSet[id] = true
		}
	}

	undrawn := undrawnIDs(ids, drawnSet)
	if len(undrawn) == 0 {
		// Cycle complete. Start fresh, avoiding an immediate repeat when
		// more than one player is present.
		pruned = nil
		drawnSet = map[string]bool{}
		undrawn = ids
		if len(ids) > 1 && lastDrawerID != "" {
			undrawn = without(ids, lastDrawerID)
		}
	}

	candidates := undrawn
	if gameMode == model.ModeTeam {
		if teamPicks := oppositeTeamIDs(undrawn, members, lastDrawerID); len(teamPicks) > 0 {
			candidates = teamPicks
		}
	}

	picked := pickAfter(candidates, lastDrawerID)
	return picked, append(pruned, picked)
}

func undrawnIDs(sorted []string, drawnSet map[string]bool) []string {
	var out []string
	for _, id := range sorted {
		if !drawnSet[id] {
			out = append(out, id)
		}
	}
	return out
}

func without(ids []string, exclude string) []string {
	var out []string
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

// oppositeTeamIDs filters candidates to the team the last drawer was not
// on. When the last drawer is unknown the orange team goes first, so blue
// receives the opening turn's alternation.
func oppositeTeamIDs(candidates []string, members map[string]*model.Participant, lastDrawerID string) []string {
	lastTeam := model.TeamOrange
	if p := members[lastDrawerID]; p != nil && p.Team != "" {
		lastTeam = p.Team
	}
	target := model.TeamBlue
	if lastTeam == model.TeamBlue {
		target = model.TeamOrange
	}
	var out []string
	for _, id := range candidates {
		if members[id].Team == target {
			out = append(out, id)
		}
	}
	return out
}

// pickAfter returns the first candidate ordered after lastDrawerID,
// wrapping to the start. Candidates are already sorted.
func pickAfter(candidates []string, lastDrawerID string) string {
	for _, id := range candidates {
		if id > lastDrawerID {
			return id
		}
	}
	return candidates[0]
}
