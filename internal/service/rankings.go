package service

import (
	"sort"

	"github.com/drawdash/api/internal/model"
)

// ComputeRankings builds the final leaderboard: score descending, earlier
// pointsUpdatedAt winning ties. Any two players differ in one of the two
// coordinates after an awarding write, so ranks come out strictly 1..N.
func ComputeRankings(participants []*model.Participant, gameMode string, entryPoints int) []model.Ranking {
	sorted := make([]*model.Participant, len(participants))
	copy(sorted, participants)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].PointsUpdatedAt.Before(sorted[j].PointsUpdatedAt)
	})

	rankings := make([]model.Ranking, len(sorted))
	for i, p := range sorted {
		rankings[i] = model.Ranking{
			UserID: p.UserID,
			Rank:   i + 1,
			Score:  p.Score,
			Team:   p.Team,
		}
	}

	if gameMode == model.ModeTeam {
		winner := winningTeam(sorted)
		for i := range rankings {
			if rankings[i].Team == winner {
				rankings[i].Reward = 2 * entryPoints
			}
		}
		return rankings
	}

	// Solo payouts: head-to-head pays the winner double; three or more
	// players pay the podium 3x / 2x / 1x the entry.
	switch {
	case len(rankings) == 2:
		rankings[0].Reward = 2 * entryPoints
	case len(rankings) >= 3:
		multipliers := []int{3, 2, 1}
		for i := 0; i < 3; i++ {
			rankings[i].Reward = multipliers[i] * entryPoints
		}
	}
	return rankings
}

func winningTeam(participants []*model.Participant) string {
	totals := map[string]int{}
	for _, p := range participants {
		if p.Team != "" {
			totals[p.Team] += p.Score
		}
	}
	if totals[model.TeamOrange] > totals[model.TeamBlue] {
		return model.TeamOrange
	}
	return model.TeamBlue
}

// TeamScores sums scores per team over the active participants.
func TeamScores(participants []*model.Participant) map[string]int {
	totals := map[string]int{}
	for _, p := range participants {
		if p.Team != "" {
			totals[p.Team] += p.Score
		}
	}
	return totals
}
