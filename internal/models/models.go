package models

import (
	"time"
)

// Modes (ranked ladders)
const (
	ModeHardcore = "hardcore"
	ModeCDL      = "cdl"
)

// Game modes
const (
	GameModeDuel       = "Duel"
	GameModeTDM        = "Team Deathmatch"
	GameModeDomination = "Domination"
	GameModeSND        = "Search & Destroy"
)

// Match statuses
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusDisputed   = "disputed"
)

// ValidMode reports whether mode is a known ranked ladder.
func ValidMode(mode string) bool {
	return mode == ModeHardcore || mode == ModeCDL
}

// ValidGameMode reports whether gameMode is a known ranked format.
func ValidGameMode(gameMode string) bool {
	switch gameMode {
	case GameModeDuel, GameModeTDM, GameModeDomination, GameModeSND:
		return true
	}
	return false
}

// RequiredPlayers returns the total player count a game mode needs.
// Duel is 1v1; every team mode plays 4v4.
func RequiredPlayers(gameMode string) int {
	if gameMode == GameModeDuel {
		return 2
	}
	return 8
}

// QueueEntry is one waiting player in a (gameMode, mode) queue.
type QueueEntry struct {
	UserID   string    `json:"userId"`
	GameMode string    `json:"gameMode"`
	Mode     string    `json:"mode"`
	Points   int       `json:"points"` // skill snapshot at enqueue time
	SquadID  string    `json:"squadId,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// RankingEntry is a user's permanent per-mode ladder record. Division is
// derived from points and never stored (see DivisionFor).
type RankingEntry struct {
	UserID        string    `json:"userId" bson:"userId"`
	Mode          string    `json:"mode" bson:"mode"`
	Points        int       `json:"points" bson:"points"`
	Wins          int       `json:"wins" bson:"wins"`
	Losses        int       `json:"losses" bson:"losses"`
	Kills         int       `json:"kills" bson:"kills"`
	Deaths        int       `json:"deaths" bson:"deaths"`
	CurrentStreak int       `json:"currentStreak" bson:"currentStreak"`
	BestStreak    int       `json:"bestStreak" bson:"bestStreak"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Division thresholds, aligned with the ladder UI.
const (
	DivisionBronze      = "bronze"
	DivisionSilver      = "silver"
	DivisionGold        = "gold"
	DivisionPlatinum    = "platinum"
	DivisionDiamond     = "diamond"
	DivisionMaster      = "master"
	DivisionGrandmaster = "grandmaster"
	DivisionChampion    = "champion"
)

// DivisionFor maps points to a division label.
func DivisionFor(points int) string {
	switch {
	case points >= 3500:
		return DivisionChampion
	case points >= 3000:
		return DivisionGrandmaster
	case points >= 2500:
		return DivisionMaster
	case points >= 2000:
		return DivisionDiamond
	case points >= 1500:
		return DivisionPlatinum
	case points >= 1000:
		return DivisionGold
	case points >= 500:
		return DivisionSilver
	default:
		return DivisionBronze
	}
}

// MatchPlayer is a participant snapshot taken at match creation.
type MatchPlayer struct {
	UserID        string       `json:"userId" bson:"userId"`
	Team          int          `json:"team" bson:"team"` // 1 or 2
	Points        int          `json:"points" bson:"points"`
	Division      string       `json:"division" bson:"division"`
	SquadID       string       `json:"squadId,omitempty" bson:"squadId,omitempty"`
	QueueJoinedAt time.Time    `json:"queueJoinedAt" bson:"queueJoinedAt"`
	Rewards       *RewardGrant `json:"rewards,omitempty" bson:"rewards,omitempty"`
}

// ChatMessage is an append-only match chat entry. Ordering is the insertion
// order in Match.Chat, stamped with the server receive time.
type ChatMessage struct {
	SenderID string    `json:"senderId,omitempty" bson:"senderId,omitempty"`
	System   bool      `json:"system,omitempty" bson:"system,omitempty"`
	Text     string    `json:"text" bson:"text"`
	SentAt   time.Time `json:"sentAt" bson:"sentAt"`
}

// ResultReport is one side's declared winner.
type ResultReport struct {
	Winner     int       `json:"winner" bson:"winner"` // team 1 or 2
	ReportedBy string    `json:"reportedBy" bson:"reportedBy"`
	ReportedAt time.Time `json:"reportedAt" bson:"reportedAt"`
}

// MatchResult accumulates per-team reports until confirmation.
type MatchResult struct {
	Winner      int           `json:"winner,omitempty" bson:"winner,omitempty"`
	Team1Report *ResultReport `json:"team1Report,omitempty" bson:"team1Report,omitempty"`
	Team2Report *ResultReport `json:"team2Report,omitempty" bson:"team2Report,omitempty"`
	ConfirmedAt *time.Time    `json:"confirmedAt,omitempty" bson:"confirmedAt,omitempty"`
}

// Dispute is a contested match awaiting staff resolution.
type Dispute struct {
	Reason     string     `json:"reason" bson:"reason"`
	ReportedBy string     `json:"reportedBy" bson:"reportedBy"`
	ReportedAt time.Time  `json:"reportedAt" bson:"reportedAt"`
	ResolvedBy string     `json:"resolvedBy,omitempty" bson:"resolvedBy,omitempty"`
	Resolution string     `json:"resolution,omitempty" bson:"resolution,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
}

// Match is a ranked match document. Players are fixed at creation; HostID
// identifies the single player responsible for the game code.
type Match struct {
	ID             string        `json:"id" bson:"_id"`
	GameMode       string        `json:"gameMode" bson:"gameMode"`
	Mode           string        `json:"mode" bson:"mode"`
	TeamSize       int           `json:"teamSize" bson:"teamSize"`
	Players        []MatchPlayer `json:"players" bson:"players"`
	HostID         string        `json:"hostId" bson:"hostId"`
	GameCode       string        `json:"gameCode,omitempty" bson:"gameCode,omitempty"`
	Status         string        `json:"status" bson:"status"`
	Revision       int64         `json:"-" bson:"revision"` // bumped on every write, guards concurrent saves
	Chat           []ChatMessage `json:"chat" bson:"chat"`
	Result         *MatchResult  `json:"result,omitempty" bson:"result,omitempty"`
	Dispute        *Dispute      `json:"dispute,omitempty" bson:"dispute,omitempty"`
	CreatedAt      time.Time     `json:"createdAt" bson:"createdAt"`
	StartedAt      time.Time     `json:"startedAt" bson:"startedAt"`
	LastActivityAt time.Time     `json:"lastActivityAt" bson:"lastActivityAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	SettledAt      *time.Time    `json:"settledAt,omitempty" bson:"settledAt,omitempty"`
}

// Player returns the participant entry for userID, or nil.
func (m *Match) Player(userID string) *MatchPlayer {
	for i := range m.Players {
		if m.Players[i].UserID == userID {
			return &m.Players[i]
		}
	}
	return nil
}

// HasPlayer reports whether userID participates in the match.
func (m *Match) HasPlayer(userID string) bool {
	return m.Player(userID) != nil
}

// TeamMembers returns the user ids on the given team.
func (m *Match) TeamMembers(team int) []string {
	var ids []string
	for _, p := range m.Players {
		if p.Team == team {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// Terminal reports whether the match can no longer change state.
func (m *Match) Terminal() bool {
	return m.Status == StatusCompleted || m.Status == StatusCancelled
}

// RewardGrant is what one participant earned from a settled match.
type RewardGrant struct {
	UserID      string `json:"userId" bson:"userId"`
	XP          int    `json:"xp" bson:"xp"`
	Gold        int    `json:"gold" bson:"gold"`
	PointsDelta int    `json:"pointsDelta" bson:"pointsDelta"`
}

// BattleReport is the post-settlement summary pushed to the match room.
type BattleReport struct {
	MatchID    string        `json:"matchId"`
	WinnerTeam int           `json:"winnerTeam"`
	WinnerIDs  []string      `json:"winnerIds"`
	LoserIDs   []string      `json:"loserIds"`
	Grants     []RewardGrant `json:"grants"`
}
