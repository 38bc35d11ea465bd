package game

import (
	"math/rand"
	"sync"
	"time"
)

// Session is one room: roster, phase, prompt pool, the two prompts in play
// and the vote bookkeeping. All methods are safe for concurrent use; every
// mutation runs under the session lock so the counters stay consistent.
type Session struct {
	Code      string
	Host      string
	CreatedAt time.Time

	rules Rules
	rng   *rand.Rand
	now   func() time.Time

	mu         sync.Mutex
	vip        *Player
	players    map[string]*Player
	order      []string // join order
	inProgress bool
	pool       []string
	promptOne  *Prompt
	promptTwo  *Prompt
	phase      Phase
	// promptIndex selects the prompt being voted on; it passes 1 once both
	// voting rounds are done.
	promptIndex int
	answerSeq   int
	totalVotes  int
	voted       map[string]bool
	lastActive  time.Time
}

func newSession(code, host string, rules Rules, rng *rand.Rand, now func() time.Time) *Session {
	t := now().UTC()
	return &Session{
		Code:       code,
		Host:       host,
		CreatedAt:  t,
		rules:      rules,
		rng:        rng,
		now:        now,
		players:    make(map[string]*Player),
		phase:      PhasePromptWriting,
		answerSeq:  1,
		voted:      make(map[string]bool),
		lastActive: t,
	}
}

func (s *Session) touch() { s.lastActive = s.now().UTC() }

// Join adds a player. The first player ever to join becomes VIP and keeps
// it for the life of the session. Joining again with a known id only
// updates the display name.
func (s *Session) Join(id, name string) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if p, ok := s.players[id]; ok {
		p.Name = name
		c := *p
		return &c
	}
	p := &Player{ID: id, Name: name, IsVIP: s.vip == nil}
	s.players[id] = p
	s.order = append(s.order, id)
	if p.IsVIP {
		s.vip = p
	}
	c := *p
	return &c
}

// StartGame begins a new round of prompt writing. Without rules this never
// fails, matching the classic game which checked neither caller nor headcount.
func (s *Session) StartGame(callerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rules.RequireVIPStart && (s.vip == nil || s.vip.ID != callerID) {
		return ErrNotVIP
	}
	if s.rules.MinPlayers > 0 && len(s.players) < s.rules.MinPlayers {
		return ErrNotEnoughPlayers
	}
	s.touch()
	s.inProgress = true
	s.phase = PhasePromptWriting
	s.pool = nil
	s.promptOne, s.promptTwo = nil, nil
	s.resetVoting()
	return nil
}

// SubmitPrompt adds text to the pool and returns the new pool size.
func (s *Session) SubmitPrompt(text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rules.GuardPhases && s.phase != PhasePromptWriting {
		return 0, ErrInvalidPhase
	}
	s.touch()
	s.pool = append(s.pool, text)
	return len(s.pool), nil
}

// DrawPrompts picks two prompts from the pool uniformly at random, discards
// the rest and moves the session to AnswerWriting.
func (s *Session) DrawPrompts() (Prompts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rules.GuardPhases && s.phase != PhasePromptWriting {
		return Prompts{}, ErrInvalidPhase
	}
	if len(s.pool) < 2 {
		return Prompts{}, ErrPromptPoolExhausted
	}
	s.touch()
	one := s.takeFromPool()
	two := s.takeFromPool()
	s.pool = nil
	s.promptOne = &Prompt{Value: one, Answers: []*Answer{}}
	s.promptTwo = &Prompt{Value: two, Answers: []*Answer{}}
	s.phase = PhaseAnswerWriting
	s.resetVoting()
	_, p1, p2 := s.snapshot()
	return Prompts{PromptOne: p1, PromptTwo: p2}, nil
}

func (s *Session) takeFromPool() string {
	i := s.rng.Intn(len(s.pool))
	v := s.pool[i]
	s.pool = append(s.pool[:i], s.pool[i+1:]...)
	return v
}

// SubmitAnswer attaches an answer by playerID to prompt 0 or 1. It reports
// true once the second prompt holds one answer per player, which is the
// point the session moves to Voting. The first prompt's count is not
// consulted.
func (s *Session) SubmitAnswer(promptIndex int, playerID, text string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.promptOne == nil || s.promptTwo == nil {
		return false, ErrNoActivePrompts
	}
	if promptIndex != 0 && promptIndex != 1 {
		return false, ErrInvalidPromptIndex
	}
	if s.rules.GuardPhases && s.phase != PhaseAnswerWriting {
		return false, ErrInvalidPhase
	}
	p := s.players[playerID]
	if p == nil {
		return false, ErrPlayerNotFound
	}
	s.touch()
	target := s.promptOne
	if promptIndex == 1 {
		target = s.promptTwo
	}
	target.addAnswer(&Answer{ID: s.answerSeq, Value: text, Player: p, PromptIndex: promptIndex})
	s.answerSeq++

	allAnswered := s.promptTwo.NumAnswers() == len(s.players)
	if allAnswered {
		s.phase = PhaseVoting
	}
	return allAnswered, nil
}

// Vote adds one vote to answerID on the prompt currently being voted on.
// A round completes when the number of votes equals the number of players;
// the second completed round ends the game. voterID is only checked when
// the single-vote rule is on.
func (s *Session) Vote(voterID string, answerID int) (VoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.promptOne == nil || s.promptTwo == nil {
		return VoteResult{}, ErrNoActivePrompts
	}
	if s.rules.GuardPhases && s.phase != PhaseVoting {
		return VoteResult{}, ErrInvalidPhase
	}
	if s.rules.SingleVote {
		if s.players[voterID] == nil {
			return VoteResult{}, ErrPlayerNotFound
		}
		if s.voted[voterID] {
			return VoteResult{}, ErrAlreadyVoted
		}
	}
	a := s.currentPrompt().answer(answerID)
	if a == nil {
		return VoteResult{}, ErrAnswerNotFound
	}
	s.touch()
	a.addVote()
	s.totalVotes++
	if s.rules.SingleVote {
		s.voted[voterID] = true
	}

	if s.totalVotes == len(s.players) {
		s.totalVotes = 0
		s.voted = make(map[string]bool)
		s.promptIndex++
		over := s.promptIndex > 1
		if over {
			s.phase = PhaseFinished
		}
		return VoteResult{VoteComplete: true, GameOver: over, PromptIndex: s.promptIndex}, nil
	}
	return VoteResult{PromptIndex: s.promptIndex}, nil
}

func (s *Session) currentPrompt() *Prompt {
	if s.promptIndex == 0 {
		return s.promptOne
	}
	return s.promptTwo
}

func (s *Session) resetVoting() {
	s.promptIndex = 0
	s.totalVotes = 0
	s.voted = make(map[string]bool)
}

// Prompts returns a copy of both prompts with their answers.
func (s *Session) Prompts() Prompts {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p1, p2 := s.snapshot()
	return Prompts{PromptOne: p1, PromptTwo: p2}
}

// Results returns a copy of the players and both prompts. It never mutates.
func (s *Session) Results() Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	players, p1, p2 := s.snapshot()
	return Results{Players: players, PromptOne: p1, PromptTwo: p2}
}

// Players returns copies of all players in join order.
func (s *Session) Players() []*Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	players, _, _ := s.snapshot()
	return players
}

func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) CurrentPromptIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promptIndex
}

func (s *Session) VIP() *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vip == nil {
		return nil
	}
	c := *s.vip
	return &c
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		Code:        s.Code,
		Phase:       s.phase,
		PhaseName:   s.phase.String(),
		InProgress:  s.inProgress,
		PlayerCount: len(s.players),
		PoolSize:    len(s.pool),
		CreatedAt:   s.CreatedAt,
	}
}

// snapshot deep-copies players and prompts. Answers point at the copied
// players so a copy is self-consistent. Caller must hold the lock.
func (s *Session) snapshot() ([]*Player, *Prompt, *Prompt) {
	copies := make(map[string]*Player, len(s.players))
	players := make([]*Player, 0, len(s.order))
	for _, id := range s.order {
		c := *s.players[id]
		copies[id] = &c
		players = append(players, &c)
	}
	clonePrompt := func(p *Prompt) *Prompt {
		if p == nil {
			return nil
		}
		out := &Prompt{Value: p.Value, Answers: make([]*Answer, 0, len(p.Answers))}
		if p.Player != nil {
			out.Player = copies[p.Player.ID]
		}
		for _, a := range p.Answers {
			ca := *a
			if a.Player != nil {
				ca.Player = copies[a.Player.ID]
			}
			out.Answers = append(out.Answers, &ca)
		}
		return out
	}
	return players, clonePrompt(s.promptOne), clonePrompt(s.promptTwo)
}
