package matchmaker

import (
	"sort"
	"time"

	"github.com/LiiXo/nomercy-sub000/internal/models"
)

// FormGroup selects players for one match. The oldest waiter anchors the
// group; its skill window starts at tolerance points and widens by widenStep
// for every widenEvery the anchor has waited. Candidates are taken in
// enqueue order so nobody is skipped in favour of a newer, closer match.
// Returns nil when the queue cannot fill a match yet.
func FormGroup(entries []models.QueueEntry, required, tolerance, widenStep int, widenEvery time.Duration, now time.Time) []models.QueueEntry {
	if len(entries) < required {
		return nil
	}
	anchor := entries[0]
	window := tolerance
	if widenEvery > 0 {
		window += widenStep * int(now.Sub(anchor.JoinedAt)/widenEvery)
	}

	group := make([]models.QueueEntry, 0, required)
	for _, e := range entries {
		diff := e.Points - anchor.Points
		if diff < 0 {
			diff = -diff
		}
		if diff > window {
			continue
		}
		group = append(group, e)
		if len(group) == required {
			return group
		}
	}
	return nil
}

type block struct {
	entries []models.QueueEntry
	total   int
}

func (b block) avg() float64 { return float64(b.total) / float64(len(b.entries)) }

// SplitTeams divides a full group into two teams of equal size, keeping
// squad-mates together when a team has room for the whole squad and
// balancing total skill greedily from the strongest block down.
func SplitTeams(group []models.QueueEntry) (team1, team2 []models.QueueEntry) {
	teamSize := len(group) / 2

	bySquad := make(map[string]*block)
	var blocks []*block
	for _, e := range group {
		if e.SquadID != "" {
			if b, ok := bySquad[e.SquadID]; ok {
				b.entries = append(b.entries, e)
				b.total += e.Points
				continue
			}
			b := &block{entries: []models.QueueEntry{e}, total: e.Points}
			bySquad[e.SquadID] = b
			blocks = append(blocks, b)
			continue
		}
		blocks = append(blocks, &block{entries: []models.QueueEntry{e}, total: e.Points})
	}

	// A squad larger than a team cannot stay together; break it up.
	var split []*block
	for _, b := range blocks {
		if len(b.entries) > teamSize {
			for _, e := range b.entries {
				split = append(split, &block{entries: []models.QueueEntry{e}, total: e.Points})
			}
			continue
		}
		split = append(split, b)
	}
	blocks = split

	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].avg() != blocks[j].avg() {
			return blocks[i].avg() > blocks[j].avg()
		}
		return blocks[i].entries[0].JoinedAt.Before(blocks[j].entries[0].JoinedAt)
	})

	var total1, total2 int
	for _, b := range blocks {
		fits1 := len(team1)+len(b.entries) <= teamSize
		fits2 := len(team2)+len(b.entries) <= teamSize
		switch {
		case fits1 && (!fits2 || total1 <= total2):
			team1 = append(team1, b.entries...)
			total1 += b.total
		case fits2:
			team2 = append(team2, b.entries...)
			total2 += b.total
		default:
			// Only reachable if squad capacities collide; place one by one.
			for _, e := range b.entries {
				if len(team1) < teamSize {
					team1 = append(team1, e)
					total1 += e.Points
				} else {
					team2 = append(team2, e)
					total2 += e.Points
				}
			}
		}
	}
	return team1, team2
}
