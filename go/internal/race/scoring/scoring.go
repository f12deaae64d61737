package scoring

import (
	"math"
	"time"
)

// Rules holds the constants that turn completion times into scores.
type Rules struct {
	Base         float64
	Rate         float64 // points lost per elapsed second
	RaceDuration time.Duration
}

// DefaultRules returns the 1000 - 10/s scoring over a 60 second race.
func DefaultRules() Rules {
	return Rules{
		Base:         1000,
		Rate:         10,
		RaceDuration: 60 * time.Second,
	}
}

// Completion is what the evaluator needs to know about one player.
type Completion struct {
	UserID    string
	Completed bool
	Forfeited bool
	Elapsed   time.Duration // from race start to the completion report
}

// PlayerResult is one player's line in a MatchResult.
type PlayerResult struct {
	UserID           string  `json:"userId"`
	Score            int     `json:"score"`
	TimeTakenSeconds float64 `json:"timeTakenSeconds"`
	Completed        bool    `json:"completed"`
}

// MatchResult is the immutable outcome of a race. A nil WinnerUserID is a tie.
type MatchResult struct {
	RoomID       string         `json:"roomId"`
	WinnerUserID *string        `json:"winnerUserId"`
	Players      []PlayerResult `json:"players"`
}

// IsTie reports whether no player was credited the win.
func (m MatchResult) IsTie() bool {
	return m.WinnerUserID == nil
}

// ScoreFor returns the score recorded for userID, or 0 if absent.
func (m MatchResult) ScoreFor(userID string) int {
	for _, p := range m.Players {
		if p.UserID == userID {
			return p.Score
		}
	}
	return 0
}

// Score converts an elapsed completion time into points. Elapsed time is
// capped at the race duration and the result never drops below zero.
func (r Rules) Score(elapsed time.Duration) int {
	elapsed = r.clamp(elapsed)
	s := math.Round(r.Base - elapsed.Seconds()*r.Rate)
	if s < 0 {
		return 0
	}
	return int(s)
}

func (r Rules) clamp(elapsed time.Duration) time.Duration {
	if elapsed < 0 {
		return 0
	}
	if r.RaceDuration > 0 && elapsed > r.RaceDuration {
		return r.RaceDuration
	}
	return elapsed
}

// Evaluate scores every player and picks the winner. Only a strictly higher
// score wins; equal top scores (including a double timeout) yield a tie.
func Evaluate(roomID string, rules Rules, completions []Completion) MatchResult {
	result := MatchResult{
		RoomID:  roomID,
		Players: make([]PlayerResult, 0, len(completions)),
	}

	best, bestCount := -1, 0
	var bestUser string

	for _, c := range completions {
		pr := PlayerResult{
			UserID:    c.UserID,
			Completed: c.Completed,
		}
		switch {
		case !c.Completed:
			pr.Score = 0
			pr.TimeTakenSeconds = rules.RaceDuration.Seconds()
		case c.Forfeited:
			pr.Score = 0
			pr.TimeTakenSeconds = rules.clamp(c.Elapsed).Seconds()
		default:
			pr.Score = rules.Score(c.Elapsed)
			pr.TimeTakenSeconds = rules.clamp(c.Elapsed).Seconds()
		}
		result.Players = append(result.Players, pr)

		switch {
		case pr.Score > best:
			best, bestCount, bestUser = pr.Score, 1, pr.UserID
		case pr.Score == best:
			bestCount++
		}
	}

	if bestCount == 1 {
		winner := bestUser
		result.WinnerUserID = &winner
	}
	return result
}
