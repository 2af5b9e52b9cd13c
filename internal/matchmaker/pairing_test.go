package matchmaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiiXo/nomercy-sub000/internal/models"
)

func entry(userID string, points int, joinedAt time.Time) models.QueueEntry {
	return models.QueueEntry{UserID: userID, Points: points, JoinedAt: joinedAt}
}

func squadEntry(userID, squadID string, points int, joinedAt time.Time) models.QueueEntry {
	e := entry(userID, points, joinedAt)
	e.SquadID = squadID
	return e
}

func TestFormGroupNeedsEnoughPlayers(t *testing.T) {
	now := time.Now()
	group := FormGroup([]models.QueueEntry{entry("u1", 1000, now)}, 2, 300, 100, 30*time.Second, now)
	assert.Nil(t, group)
}

func TestFormGroupPairsWithinTolerance(t *testing.T) {
	now := time.Now()
	entries := []models.QueueEntry{
		entry("anchor", 1000, now.Add(-5*time.Second)),
		entry("close", 1250, now),
	}
	group := FormGroup(entries, 2, 300, 100, 30*time.Second, now)
	require.Len(t, group, 2)
	assert.Equal(t, "anchor", group[0].UserID)
	assert.Equal(t, "close", group[1].UserID)
}

func TestFormGroupSkipsPlayersOutsideWindow(t *testing.T) {
	now := time.Now()
	entries := []models.QueueEntry{
		entry("anchor", 1000, now.Add(-5*time.Second)),
		entry("far", 2000, now.Add(-4*time.Second)),
		entry("close", 1100, now),
	}
	group := FormGroup(entries, 2, 300, 100, 30*time.Second, now)
	require.Len(t, group, 2)
	assert.Equal(t, "anchor", group[0].UserID)
	assert.Equal(t, "close", group[1].UserID)
}

func TestFormGroupWindowWidensWithWait(t *testing.T) {
	now := time.Now()
	entries := []models.QueueEntry{
		entry("anchor", 1000, now.Add(-95*time.Second)),
		entry("far", 1600, now),
	}
	// waited 95s -> 3 widen steps -> window 300 + 300 = 600
	group := FormGroup(entries, 2, 300, 100, 30*time.Second, now)
	require.Len(t, group, 2)

	// a fresh anchor gets no widening and cannot reach 600 away
	entries[0].JoinedAt = now
	assert.Nil(t, FormGroup(entries, 2, 300, 100, 30*time.Second, now))
}

func TestFormGroupOldestPlayerAnchors(t *testing.T) {
	now := time.Now()
	entries := []models.QueueEntry{
		entry("oldest", 500, now.Add(-time.Minute)),
		entry("a", 520, now.Add(-30*time.Second)),
		entry("b", 2500, now.Add(-20*time.Second)),
		entry("c", 480, now),
	}
	group := FormGroup(entries, 2, 300, 100, 30*time.Second, now)
	require.Len(t, group, 2)
	assert.Equal(t, "oldest", group[0].UserID)
	assert.Equal(t, "a", group[1].UserID)
}

func teamTotal(team []models.QueueEntry) int {
	total := 0
	for _, e := range team {
		total += e.Points
	}
	return total
}

func TestSplitTeamsBalancesSkill(t *testing.T) {
	now := time.Now()
	group := []models.QueueEntry{
		entry("a", 2000, now), entry("b", 1800, now),
		entry("c", 1600, now), entry("d", 1400, now),
		entry("e", 1200, now), entry("f", 1000, now),
		entry("g", 800, now), entry("h", 600, now),
	}
	team1, team2 := SplitTeams(group)
	require.Len(t, team1, 4)
	require.Len(t, team2, 4)

	diff := teamTotal(team1) - teamTotal(team2)
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, 400, "teams should end up close in total skill")
}

func TestSplitTeamsKeepsSquadsTogether(t *testing.T) {
	now := time.Now()
	group := []models.QueueEntry{
		squadEntry("s1", "squad-a", 1500, now),
		squadEntry("s2", "squad-a", 1400, now),
		entry("a", 1600, now), entry("b", 1300, now),
		entry("c", 1200, now), entry("d", 1100, now),
		entry("e", 1000, now), entry("f", 900, now),
	}
	team1, team2 := SplitTeams(group)
	require.Len(t, team1, 4)
	require.Len(t, team2, 4)

	side := map[string]int{}
	for _, e := range team1 {
		side[e.UserID] = 1
	}
	for _, e := range team2 {
		side[e.UserID] = 2
	}
	assert.Equal(t, side["s1"], side["s2"], "squad-mates must land on the same team")
}

func TestSplitTeamsBreaksOversizedSquad(t *testing.T) {
	now := time.Now()
	group := []models.QueueEntry{
		squadEntry("s1", "big", 1000, now),
		squadEntry("s2", "big", 1000, now),
		entry("a", 1000, now),
		entry("b", 1000, now),
	}
	// teamSize 2 fits the squad; shrink to duel where it cannot
	team1, team2 := SplitTeams(group[:2])
	assert.Len(t, team1, 1)
	assert.Len(t, team2, 1)

	team1, team2 = SplitTeams(group)
	assert.Len(t, team1, 2)
	assert.Len(t, team2, 2)
}
