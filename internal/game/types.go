package game

import (
	"time"
)

// Phase is the stage a session is in. The numeric values are what clients
// receive in stageChanged events.
type Phase int

const (
	PhasePromptWriting Phase = iota
	PhaseAnswerWriting
	PhaseVoting
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhasePromptWriting:
		return "PromptWriting"
	case PhaseAnswerWriting:
		return "AnswerWriting"
	case PhaseVoting:
		return "Voting"
	case PhaseFinished:
		return "Finished"
	}
	return "Unknown"
}

// Rules toggles checks the classic game never made. The zero value keeps
// the permissive behavior.
type Rules struct {
	GuardPhases     bool `json:"guardPhases"`
	SingleVote      bool `json:"singleVote"`
	RequireVIPStart bool `json:"requireVipStart"`
	MinPlayers      int  `json:"minPlayers"`
}

type Player struct {
	ID     string `json:"id"`
	Name   string `json:"username"`
	IsVIP  bool   `json:"isVip"`
	Points int    `json:"points"`
}

func (p *Player) addPoint() { p.Points++ }

type Answer struct {
	ID          int     `json:"id"`
	Value       string  `json:"value"`
	Player      *Player `json:"player"`
	PromptIndex int     `json:"promptIndex"`
	Votes       int     `json:"votes"`
}

// addVote is the only place votes turn into points.
func (a *Answer) addVote() {
	a.Votes++
	if a.Player != nil {
		a.Player.addPoint()
	}
}

// Prompt is one of the two questions in play. Player stays nil: prompts are
// drawn from the pool without attribution.
type Prompt struct {
	Value   string    `json:"value"`
	Player  *Player   `json:"player"`
	Answers []*Answer `json:"answers"`
}

func (p *Prompt) NumAnswers() int { return len(p.Answers) }

func (p *Prompt) addAnswer(a *Answer) { p.Answers = append(p.Answers, a) }

func (p *Prompt) answer(id int) *Answer {
	for _, a := range p.Answers {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Prompts is the pair handed out after the draw and again once everyone answered.
type Prompts struct {
	PromptOne *Prompt `json:"promptOne"`
	PromptTwo *Prompt `json:"promptTwo"`
}

type VoteResult struct {
	VoteComplete bool `json:"voteComplete"`
	GameOver     bool `json:"gameOver,omitempty"`
	PromptIndex  int  `json:"promptIndex"`
}

// Results is the final projection: players with scores and both prompts.
type Results struct {
	Players   []*Player `json:"players"`
	PromptOne *Prompt   `json:"promptOne"`
	PromptTwo *Prompt   `json:"promptTwo"`
}

// Summary is a lightweight view of a session for the HTTP API.
type Summary struct {
	Code        string    `json:"sessionCode"`
	Phase       Phase     `json:"stage"`
	PhaseName   string    `json:"phase"`
	InProgress  bool      `json:"inProgress"`
	PlayerCount int       `json:"playerCount"`
	PoolSize    int       `json:"poolSize"`
	CreatedAt   time.Time `json:"createdAt"`
}
