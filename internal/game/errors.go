package game

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrPromptPoolExhausted = errors.New("fewer than two prompts in pool")
	ErrNoActivePrompts     = errors.New("prompts have not been drawn")
	ErrInvalidPromptIndex  = errors.New("prompt index must be 0 or 1")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrAnswerNotFound      = errors.New("answer not found on current prompt")
	ErrInvalidPhase        = errors.New("invalid phase for action")
	ErrNotVIP              = errors.New("only the vip can start the game")
	ErrNotEnoughPlayers    = errors.New("not enough players to start")
	ErrAlreadyVoted        = errors.New("already voted this round")
)
