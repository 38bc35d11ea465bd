package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"
)

const (
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	CodeLength   = 4
)

// RoomManager owns every live session, keyed by room code.
type RoomManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	active   string // most recently created session
	rules    Rules
	rng      *rand.Rand
	now      func() time.Time
}

type Option func(*RoomManager)

// WithRules applies rules to every session created afterwards.
func WithRules(r Rules) Option {
	return func(rm *RoomManager) { rm.rules = r }
}

// WithRand makes code generation and prompt draws reproducible.
func WithRand(r *rand.Rand) Option {
	return func(rm *RoomManager) { rm.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(rm *RoomManager) { rm.now = now }
}

func NewRoomManager(opts ...Option) *RoomManager {
	rm := &RoomManager{sessions: make(map[string]*Session), now: time.Now}
	for _, o := range opts {
		o(rm)
	}
	if rm.rng == nil {
		rm.rng = rand.New(rand.NewSource(newSeed()))
	}
	return rm
}

// CreateSession stores a new session under a fresh code and returns the code.
// The draw is retried until it misses every live code; there is no retry
// cap, which is fine for 26^4 codes and a handful of rooms.
func (rm *RoomManager) CreateSession(host string) string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	code := randomCode(rm.rng, CodeLength)
	for rm.sessions[code] != nil {
		code = randomCode(rm.rng, CodeLength)
	}
	srng := rand.New(rand.NewSource(rm.rng.Int63()))
	rm.sessions[code] = newSession(code, host, rm.rules, srng, rm.now)
	rm.active = code
	return code
}

// HasSession is false for the empty code and for codes with no live session.
func (rm *RoomManager) HasSession(code string) bool {
	if code == "" {
		return false
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.sessions[code] != nil
}

func (rm *RoomManager) Get(code string) (*Session, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	s := rm.sessions[code]
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (rm *RoomManager) Active() (string, *Session) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if rm.active == "" {
		return "", nil
	}
	return rm.active, rm.sessions[rm.active]
}

func (rm *RoomManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.sessions)
}

// Reap drops sessions idle for longer than maxIdle and returns their codes.
func (rm *RoomManager) Reap(maxIdle time.Duration) []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	cutoff := rm.now().UTC().Add(-maxIdle)
	var reaped []string
	for code, s := range rm.sessions {
		if s.LastActive().Before(cutoff) {
			delete(rm.sessions, code)
			reaped = append(reaped, code)
			if rm.active == code {
				rm.active = ""
			}
		}
	}
	return reaped
}

// JoinSession returns ErrSessionNotFound for an unknown code, otherwise the
// joined player.
func (rm *RoomManager) JoinSession(code, playerID, name string) (*Player, error) {
	s, err := rm.Get(code)
	if err != nil {
		return nil, err
	}
	return s.Join(playerID, name), nil
}

func (rm *RoomManager) StartGame(code, callerID string) error {
	s, err := rm.Get(code)
	if err != nil {
		return err
	}
	return s.StartGame(callerID)
}

func (rm *RoomManager) SubmitPrompt(code, text string) (int, error) {
	s, err := rm.Get(code)
	if err != nil {
		return 0, err
	}
	return s.SubmitPrompt(text)
}

func (rm *RoomManager) DrawPrompts(code string) (Prompts, error) {
	s, err := rm.Get(code)
	if err != nil {
		return Prompts{}, err
	}
	return s.DrawPrompts()
}

func (rm *RoomManager) SubmitAnswer(code string, promptIndex int, playerID, text string) (bool, error) {
	s, err := rm.Get(code)
	if err != nil {
		return false, err
	}
	return s.SubmitAnswer(promptIndex, playerID, text)
}

func (rm *RoomManager) Answers(code string) (Prompts, error) {
	s, err := rm.Get(code)
	if err != nil {
		return Prompts{}, err
	}
	return s.Prompts(), nil
}

func (rm *RoomManager) Vote(code, voterID string, answerID int) (VoteResult, error) {
	s, err := rm.Get(code)
	if err != nil {
		return VoteResult{}, err
	}
	return s.Vote(voterID, answerID)
}

func (rm *RoomManager) Results(code string) (Results, error) {
	s, err := rm.Get(code)
	if err != nil {
		return Results{}, err
	}
	return s.Results(), nil
}

func (rm *RoomManager) Players(code string) ([]*Player, error) {
	s, err := rm.Get(code)
	if err != nil {
		return nil, err
	}
	return s.Players(), nil
}

func randomCode(r *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = CodeAlphabet[r.Intn(len(CodeAlphabet))]
	}
	return string(b)
}

func newSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
