package models

// Request/response shapes for the REST boundary. Payloads are explicit
// structs validated at the edge; nothing downstream trusts raw JSON shapes.

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	MatchID string `json:"matchId,omitempty"`
}

type QueueRequest struct {
	GameMode string `json:"gameMode"`
	Mode     string `json:"mode"`
	SquadID  string `json:"squadId,omitempty"`
}

type JoinQueueResponse struct {
	Queued        bool   `json:"queued"`
	MatchFound    bool   `json:"matchFound"`
	MatchID       string `json:"matchId,omitempty"`
	Position      int    `json:"position,omitempty"`
	QueueSize     int    `json:"queueSize,omitempty"`
	EstimatedWait int    `json:"estimatedWait,omitempty"` // seconds
}

type LeaveQueueResponse struct {
	Left bool `json:"left"`
}

type QueueStatus struct {
	GameMode        string `json:"gameMode"`
	PlayersInQueue  int    `json:"playersInQueue"`
	RequiredPlayers int    `json:"requiredPlayers"`
	EstimatedWait   int    `json:"estimatedWait"` // seconds
}

type MyQueueStatusResponse struct {
	InQueue       bool `json:"inQueue"`
	Position      int  `json:"position,omitempty"`
	QueueSize     int  `json:"queueSize"`
	EstimatedWait int  `json:"estimatedWait"`
}

type SubmitCodeRequest struct {
	GameCode string `json:"gameCode"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ReportResultRequest struct {
	Winner int `json:"winner"` // team 1 or 2
}

type DisputeRequest struct {
	Reason string `json:"reason"`
}

type ResolveDisputeRequest struct {
	Winner     int    `json:"winner"` // team 1 or 2
	Resolution string `json:"resolution"`
}

type CancelMatchRequest struct {
	Reason string `json:"reason"`
}

type MatchResponse struct {
	Match        *Match        `json:"match"`
	BattleReport *BattleReport `json:"battleReport,omitempty"`
}

type ActiveMatchResponse struct {
	HasActiveMatch bool   `json:"hasActiveMatch"`
	Match          *Match `json:"match,omitempty"`
}

type HistoryMatch struct {
	Match
	PlayerResult string `json:"playerResult"` // "win" or "loss"
}

type HistoryResponse struct {
	Matches []HistoryMatch `json:"matches"`
	Wins    int            `json:"wins"`
	Losses  int            `json:"losses"`
}

type LeaderboardEntry struct {
	RankingEntry
	Division string `json:"division"`
	Rank     int    `json:"rank"`
}

type LeaderboardResponse struct {
	Mode    string             `json:"mode"`
	Entries []LeaderboardEntry `json:"entries"`
}

// Realtime event names pushed over the websocket channel.
const (
	EventQueueUpdate  = "queueUpdate"
	EventQueueEvicted = "queueEvicted"
	EventMatchFound   = "rankedMatchFound"
	EventNewMessage   = "newRankedMessage"
	EventMatchUpdate  = "rankedMatchUpdate"
	EventBattleReport = "rankedBattleReport"
)

// QueueUpdatePayload accompanies EventQueueUpdate.
type QueueUpdatePayload struct {
	GameMode      string `json:"gameMode"`
	Mode          string `json:"mode"`
	Position      int    `json:"position"`
	QueueSize     int    `json:"queueSize"`
	EstimatedWait int    `json:"estimatedWait"`
}

// MatchFoundPayload accompanies EventMatchFound.
type MatchFoundPayload struct {
	MatchID  string `json:"matchId"`
	GameMode string `json:"gameMode"`
	Mode     string `json:"mode"`
	YourTeam int    `json:"yourTeam"`
	IsHost   bool   `json:"isHost"`
}
