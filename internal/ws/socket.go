package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/quipdash/internal/config"
	"github.com/kiliankoe/quipdash/internal/game"
	"github.com/kiliankoe/quipdash/internal/telemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "/"

type ConnCtx struct {
	Code string
	Role string // "host" | "player"
}

// peer is the part of socketio.Conn the handlers use.
type peer interface {
	ID() string
	Emit(event string, v ...interface{})
	Join(room string)
	Context() interface{}
	SetContext(ctx interface{})
}

type broadcaster interface {
	BroadcastToRoom(namespace string, room, event string, args ...interface{}) bool
}

// ResultSink receives the results of every finished game.
type ResultSink interface {
	SaveResults(ctx context.Context, code string, r game.Results) error
}

type Server struct {
	RM     *game.RoomManager
	config config.Config
	bc     broadcaster
	sinks  []ResultSink
	tracer trace.Tracer
}

func New(rm *game.RoomManager, cfg config.Config) *Server {
	return &Server{RM: rm, config: cfg, tracer: telemetry.Tracer()}
}

func (srv *Server) AddSink(s ResultSink) { srv.sinks = append(srv.sinks, s) }

type roomRequest struct {
	RoomCode string `json:"roomCode"`
}

type joinRequest struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

type promptRequest struct {
	RoomCode string `json:"roomCode"`
	Prompt   string `json:"prompt"`
}

type answerRequest struct {
	RoomCode    string `json:"roomCode"`
	PromptIndex int    `json:"promptIndex"`
	Answer      string `json:"answer"`
}

type voteRequest struct {
	RoomCode string `json:"roomCode"`
	Answer   struct {
		ID int `json:"id"`
	} `json:"answer"`
}

// Mount attaches the Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)
	srv.bc = io

	io.OnConnect(namespace, func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	io.OnEvent(namespace, "createRoom", func(s socketio.Conn) map[string]any {
		return srv.createRoom(s)
	})
	io.OnEvent(namespace, "joinRoom", func(s socketio.Conn, req joinRequest) map[string]any {
		return srv.joinRoom(s, req)
	})
	io.OnEvent(namespace, "startGame", func(s socketio.Conn, req roomRequest) map[string]any {
		return srv.startGame(s, req)
	})
	io.OnEvent(namespace, "submitPrompt", func(s socketio.Conn, req promptRequest) map[string]any {
		return srv.submitPrompt(s, req)
	})
	io.OnEvent(namespace, "submitAnswer", func(s socketio.Conn, req answerRequest) map[string]any {
		return srv.submitAnswer(s, req)
	})
	io.OnEvent(namespace, "vote", func(s socketio.Conn, req voteRequest) map[string]any {
		return srv.vote(s, req)
	})
	io.OnEvent(namespace, "getResults", func(s socketio.Conn, req roomRequest) map[string]any {
		return srv.results(s, req)
	})

	io.OnError(namespace, func(s socketio.Conn, e error) {
		if s == nil {
			log.Error().Err(e).Msg("socket error")
			return
		}
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect(namespace, func(s socketio.Conn, reason string) {
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io serve")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

func (srv *Server) createRoom(s peer) map[string]any {
	code := srv.RM.CreateSession(s.ID())
	_, span := srv.span("createRoom", code)
	defer span.End()

	s.SetContext(&ConnCtx{Code: code, Role: "host"})
	s.Join(code)
	log.Info().Str("sid", s.ID()).Str("code", code).Msg("createRoom")
	s.Emit("createdRoom", map[string]any{"roomCode": code})
	return map[string]any{"roomCode": code}
}

func (srv *Server) joinRoom(s peer, req joinRequest) map[string]any {
	_, span := srv.span("joinRoom", req.RoomCode)
	defer span.End()

	player, err := srv.RM.JoinSession(req.RoomCode, s.ID(), req.Username)
	if err != nil {
		fail(span, err)
		log.Warn().Str("sid", s.ID()).Str("code", req.RoomCode).Err(err).Msg("joining room failed")
		s.Emit("joinRoomFailed")
		return map[string]any{"error": err.Error()}
	}
	s.SetContext(&ConnCtx{Code: req.RoomCode, Role: "player"})
	s.Join(req.RoomCode)
	log.Info().Str("sid", s.ID()).Str("code", req.RoomCode).Str("playerId", player.ID).Bool("vip", player.IsVIP).Msg("joinRoom")
	s.Emit("joinedRoom", map[string]any{"player": player})

	players, err := srv.RM.Players(req.RoomCode)
	if err == nil {
		srv.broadcast(req.RoomCode, "playerList", map[string]any{"players": players})
	}
	return map[string]any{"player": player}
}

func (srv *Server) startGame(s peer, req roomRequest) map[string]any {
	code := roomCode(s, req.RoomCode)
	_, span := srv.span("startGame", code)
	defer span.End()

	if err := srv.RM.StartGame(code, s.ID()); err != nil {
		fail(span, err)
		return srv.err(s, err)
	}
	log.Info().Str("sid", s.ID()).Str("code", code).Msg("startGame")
	srv.broadcast(code, "startedGame")
	srv.broadcast(code, "stageChanged", map[string]any{"stage": game.PhasePromptWriting})
	return map[string]any{"ok": true}
}

// submitPrompt draws the two prompts once the pool reaches the cap.
func (srv *Server) submitPrompt(s peer, req promptRequest) map[string]any {
	code := roomCode(s, req.RoomCode)
	_, span := srv.span("submitPrompt", code)
	defer span.End()

	n, err := srv.RM.SubmitPrompt(code, req.Prompt)
	if err != nil {
		fail(span, err)
		return srv.err(s, err)
	}
	log.Info().Str("sid", s.ID()).Str("code", code).Int("count", n).Msg("submitPrompt")
	if n < srv.config.PromptCap {
		return map[string]any{"count": n}
	}

	prompts, err := srv.RM.DrawPrompts(code)
	if err != nil {
		// another submission already triggered the draw
		log.Debug().Str("code", code).Err(err).Msg("draw skipped")
		return map[string]any{"count": n}
	}
	log.Info().Str("code", code).Str("from", game.PhasePromptWriting.String()).Str("to", game.PhaseAnswerWriting.String()).Msg("phase transition")
	srv.broadcast(code, "stageChanged", map[string]any{"stage": game.PhaseAnswerWriting})
	srv.broadcast(code, "prompts", prompts)
	return map[string]any{"count": n}
}

// submitAnswer attributes the answer to the connection's own player.
func (srv *Server) submitAnswer(s peer, req answerRequest) map[string]any {
	code := roomCode(s, req.RoomCode)
	_, span := srv.span("submitAnswer", code)
	defer span.End()

	allAnswered, err := srv.RM.SubmitAnswer(code, req.PromptIndex, s.ID(), req.Answer)
	if err != nil {
		fail(span, err)
		return srv.err(s, err)
	}
	log.Info().Str("sid", s.ID()).Str("code", code).Int("promptIndex", req.PromptIndex).Msg("submitAnswer")
	if allAnswered {
		log.Info().Str("code", code).Str("from", game.PhaseAnswerWriting.String()).Str("to", game.PhaseVoting.String()).Msg("phase transition")
		srv.broadcast(code, "stageChanged", map[string]any{"stage": game.PhaseVoting})
		if answers, err := srv.RM.Answers(code); err == nil {
			srv.broadcast(code, "answers", answers)
		}
	}
	return map[string]any{"allAnswered": allAnswered}
}

func (srv *Server) vote(s peer, req voteRequest) map[string]any {
	code := roomCode(s, req.RoomCode)
	ctx, span := srv.span("vote", code)
	defer span.End()

	res, err := srv.RM.Vote(code, s.ID(), req.Answer.ID)
	if err != nil {
		fail(span, err)
		return srv.err(s, err)
	}
	log.Info().Str("sid", s.ID()).Str("code", code).Int("answerId", req.Answer.ID).Bool("complete", res.VoteComplete).Msg("vote")
	if !res.VoteComplete {
		return map[string]any{"voteComplete": false}
	}
	if !res.GameOver {
		srv.broadcast(code, "promptChange", map[string]any{"promptIndex": res.PromptIndex})
		return map[string]any{"voteComplete": true, "gameOver": false}
	}

	results, err := srv.RM.Results(code)
	if err != nil {
		fail(span, err)
		return srv.err(s, err)
	}
	log.Info().Str("code", code).Str("from", game.PhaseVoting.String()).Str("to", game.PhaseFinished.String()).Msg("phase transition")
	srv.broadcast(code, "gameOver", results)
	srv.record(ctx, code, results)
	return map[string]any{"voteComplete": true, "gameOver": true}
}

func (srv *Server) results(s peer, req roomRequest) map[string]any {
	code := roomCode(s, req.RoomCode)
	_, span := srv.span("getResults", code)
	defer span.End()

	results, err := srv.RM.Results(code)
	if err != nil {
		fail(span, err)
		return srv.err(s, err)
	}
	return map[string]any{"players": results.Players, "promptOne": results.PromptOne, "promptTwo": results.PromptTwo}
}

func (srv *Server) record(ctx context.Context, code string, r game.Results) {
	for _, sink := range srv.sinks {
		if err := sink.SaveResults(ctx, code, r); err != nil {
			log.Error().Err(err).Str("code", code).Msg("failed to record results")
			continue
		}
		log.Info().Str("code", code).Msg("recorded results")
	}
}

func (srv *Server) broadcast(code, event string, args ...interface{}) {
	if srv.bc == nil {
		return
	}
	srv.bc.BroadcastToRoom(namespace, code, event, args...)
}

func (srv *Server) span(event, code string) (context.Context, trace.Span) {
	return srv.tracer.Start(context.Background(), "socket."+event,
		trace.WithAttributes(attribute.String("session.code", code)))
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (srv *Server) err(s peer, err error) map[string]any {
	code := errorCode(err)
	log.Warn().Str("sid", s.ID()).Str("error_code", code).Err(err).Msg("rejected")
	s.Emit("error", map[string]any{"code": code, "message": err.Error()})
	return map[string]any{"error": err.Error()}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, game.ErrInvalidPhase):
		return "invalid_phase"
	case errors.Is(err, game.ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, game.ErrNotVIP):
		return "not_vip"
	case errors.Is(err, game.ErrNotEnoughPlayers):
		return "not_enough_players"
	case errors.Is(err, game.ErrPromptPoolExhausted):
		return "prompt_pool_exhausted"
	case errors.Is(err, game.ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, game.ErrAnswerNotFound):
		return "answer_not_found"
	}
	return "bad_request"
}

// roomCode prefers the code sent with the request and falls back to the
// room the connection joined.
func roomCode(s peer, requested string) string {
	if requested != "" {
		return requested
	}
	if ctx, ok := s.Context().(*ConnCtx); ok {
		return ctx.Code
	}
	return ""
}
