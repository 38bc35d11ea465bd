package ws

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/kiliankoe/quipdash/internal/config"
	"github.com/kiliankoe/quipdash/internal/game"
)

type emitted struct {
	event string
	args  []interface{}
}

type fakePeer struct {
	id    string
	ctx   interface{}
	rooms []string
	out   []emitted
}

func (p *fakePeer) ID() string { return p.id }
func (p *fakePeer) Join(room string) { p.rooms = append(p.rooms, room) }
func (p *fakePeer) Context() interface{} { return p.ctx }
func (p *fakePeer) SetContext(ctx interface{}) { p.ctx = ctx }
func (p *fakePeer) Emit(e string, v ...interface{}) { p.out = append(p.out, emitted{e, v}) }

func (p *fakePeer) last() emitted {
	if len(p.out) == 0 {
		return emitted{}
	}
	return p.out[len(p.out)-1]
}

type fakeBroadcaster struct {
	out map[string][]emitted // room -> events
}

func (b *fakeBroadcaster) BroadcastToRoom(ns string, room, event string, args ...interface{}) bool {
	if b.out == nil {
		b.out = make(map[string][]emitted)
	}
	b.out[room] = append(b.out[room], emitted{event, args})
	return true
}

func (b *fakeBroadcaster) events(room string) []string {
	var names []string
	for _, e := range b.out[room] {
		names = append(names, e.event)
	}
	return names
}

func (b *fakeBroadcaster) find(room, event string) (emitted, bool) {
	for i := len(b.out[room]) - 1; i >= 0; i-- {
		if b.out[room][i].event == event {
			return b.out[room][i], true
		}
	}
	return emitted{}, false
}

type memorySink struct {
	saved map[string]game.Results
	err   error
}

func (m *memorySink) SaveResults(ctx context.Context, code string, r game.Results) error {
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = make(map[string]game.Results)
	}
	m.saved[code] = r
	return nil
}

func newTestServer(rules game.Rules) (*Server, *fakeBroadcaster) {
	rm := game.NewRoomManager(game.WithRand(rand.New(rand.NewSource(5))), game.WithRules(rules))
	srv := New(rm, config.Config{PromptCap: 4})
	bc := &fakeBroadcaster{}
	srv.bc = bc
	return srv, bc
}

// setupRoom creates a room and joins the given player ids.
func setupRoom(t *testing.T, srv *Server, ids ...string) (string, []*fakePeer) {
	t.Helper()
	host := &fakePeer{id: "host"}
	srv.createRoom(host)
	created := host.last()
	if created.event != "createdRoom" {
		t.Fatalf("expected createdRoom, got %q", created.event)
	}
	code := created.args[0].(map[string]any)["roomCode"].(string)

	peers := make([]*fakePeer, 0, len(ids))
	for _, id := range ids {
		p := &fakePeer{id: id}
		ack := srv.joinRoom(p, joinRequest{RoomCode: code, Username: "user-" + id})
		if _, failed := ack["error"]; failed {
			t.Fatalf("should be able to join: %v", ack["error"])
		}
		peers = append(peers, p)
	}
	return code, peers
}

func TestCreateRoomJoinsHost(t *testing.T) {
	srv, _ := newTestServer(game.Rules{})
	host := &fakePeer{id: "host"}
	ack := srv.createRoom(host)

	code, _ := ack["roomCode"].(string)
	if len(code) != game.CodeLength {
		t.Fatalf("expected room code, got %v", ack)
	}
	if len(host.rooms) != 1 || host.rooms[0] != code {
		t.Fatalf("host should be in room %s, got %v", code, host.rooms)
	}
	ctx, ok := host.ctx.(*ConnCtx)
	if !ok || ctx.Role != "host" || ctx.Code != code {
		t.Fatalf("unexpected connection context %+v", host.ctx)
	}
	s, err := srv.RM.Get(code)
	if err != nil {
		t.Fatalf("session should exist: %v", err)
	}
	if s.Host != "host" {
		t.Fatalf("expected host socket id as owner, got %s", s.Host)
	}
}

func TestJoinRoomBroadcastsPlayerList(t *testing.T) {
	srv, bc := newTestServer(game.Rules{})
	code, peers := setupRoom(t, srv, "A", "B")

	joined := peers[0].out[0]
	if joined.event != "joinedRoom" {
		t.Fatalf("expected joinedRoom, got %q", joined.event)
	}
	player := joined.args[0].(map[string]any)["player"].(*game.Player)
	if !player.IsVIP || player.ID != "A" {
		t.Fatalf("first joiner should be VIP, got %+v", player)
	}

	list, ok := bc.find(code, "playerList")
	if !ok {
		t.Fatal("expected playerList broadcast")
	}
	players := list.args[0].(map[string]any)["players"].([]*game.Player)
	if len(players) != 2 {
		t.Fatalf("expected 2 players in list, got %d", len(players))
	}
}

func TestJoinRoomFailed(t *testing.T) {
	srv, bc := newTestServer(game.Rules{})
	p := &fakePeer{id: "A"}
	srv.joinRoom(p, joinRequest{RoomCode: "NOPE", Username: "Alice"})

	if p.last().event != "joinRoomFailed" {
		t.Fatalf("expected joinRoomFailed, got %q", p.last().event)
	}
	if len(p.rooms) != 0 {
		t.Fatal("failed join should not enter a room")
	}
	if len(bc.out) != 0 {
		t.Fatal("failed join should not broadcast")
	}
}

func TestFullGameOverSocket(t *testing.T) {
	srv, bc := newTestServer(game.Rules{SingleVote: true})
	sink := &memorySink{}
	srv.AddSink(sink)
	code, peers := setupRoom(t, srv, "A", "B")
	a, b := peers[0], peers[1]

	srv.startGame(a, roomRequest{RoomCode: code})
	if _, ok := bc.find(code, "startedGame"); !ok {
		t.Fatal("expected startedGame broadcast")
	}

	for i, p := range []*fakePeer{a, b, a, b} {
		ack := srv.submitPrompt(p, promptRequest{RoomCode: code, Prompt: string(rune('w' + i))})
		if ack["count"] != i+1 {
			t.Fatalf("expected count %d, got %v", i+1, ack)
		}
	}
	ev, ok := bc.find(code, "prompts")
	if !ok {
		t.Fatal("expected prompts broadcast once the cap is reached")
	}
	prompts := ev.args[0].(game.Prompts)
	if prompts.PromptOne.NumAnswers() != 0 || prompts.PromptTwo.NumAnswers() != 0 {
		t.Fatal("drawn prompts should have no answers")
	}
	stage, _ := bc.find(code, "stageChanged")
	if stage.args[0].(map[string]any)["stage"] != game.PhaseAnswerWriting {
		t.Fatalf("expected stage AnswerWriting, got %v", stage.args[0])
	}

	srv.submitAnswer(a, answerRequest{RoomCode: code, PromptIndex: 0, Answer: "a0"})
	srv.submitAnswer(b, answerRequest{RoomCode: code, PromptIndex: 0, Answer: "b0"})
	srv.submitAnswer(a, answerRequest{RoomCode: code, PromptIndex: 1, Answer: "a1"})
	if _, ok := bc.find(code, "answers"); ok {
		t.Fatal("answers should not be broadcast before everyone answered prompt two")
	}
	ack := srv.submitAnswer(b, answerRequest{RoomCode: code, PromptIndex: 1, Answer: "b1"})
	if ack["allAnswered"] != true {
		t.Fatalf("expected allAnswered, got %v", ack)
	}
	ev, ok = bc.find(code, "answers")
	if !ok {
		t.Fatal("expected answers broadcast")
	}
	answers := ev.args[0].(game.Prompts)

	vote := func(p *fakePeer, id int) map[string]any {
		req := voteRequest{RoomCode: code}
		req.Answer.ID = id
		return srv.vote(p, req)
	}
	// both pick b0
	vote(a, answers.PromptOne.Answers[1].ID)
	ack = vote(b, answers.PromptOne.Answers[1].ID)
	if ack["voteComplete"] != true || ack["gameOver"] != false {
		t.Fatalf("expected first round complete, got %v", ack)
	}
	change, ok := bc.find(code, "promptChange")
	if !ok || change.args[0].(map[string]any)["promptIndex"] != 1 {
		t.Fatalf("expected promptChange to 1, got %+v", change)
	}

	vote(a, answers.PromptTwo.Answers[0].ID)
	ack = vote(b, answers.PromptTwo.Answers[1].ID)
	if ack["gameOver"] != true {
		t.Fatalf("expected game over, got %v", ack)
	}
	over, ok := bc.find(code, "gameOver")
	if !ok {
		t.Fatal("expected gameOver broadcast")
	}
	results := over.args[0].(game.Results)
	if results.Players[0].Points != 1 || results.Players[1].Points != 3 {
		t.Fatalf("expected A=1 B=3, got A=%d B=%d", results.Players[0].Points, results.Players[1].Points)
	}
	if _, ok := sink.saved[code]; !ok {
		t.Fatal("finished game should reach the result sink")
	}

	got := srv.results(a, roomRequest{RoomCode: code})
	if got["players"].([]*game.Player)[1].Points != 3 {
		t.Fatalf("getResults should report final scores, got %v", got)
	}
}

func TestSubmitAnswerUsesConnectionPlayer(t *testing.T) {
	srv, _ := newTestServer(game.Rules{})
	code, peers := setupRoom(t, srv, "A")
	for _, text := range []string{"1", "2", "3", "4"} {
		srv.submitPrompt(peers[0], promptRequest{RoomCode: code, Prompt: text})
	}

	stranger := &fakePeer{id: "not-joined"}
	srv.submitAnswer(stranger, answerRequest{RoomCode: code, PromptIndex: 0, Answer: "sneaky"})
	errEv := stranger.last()
	if errEv.event != "error" || errEv.args[0].(map[string]any)["code"] != "player_not_found" {
		t.Fatalf("expected player_not_found error, got %+v", errEv)
	}
}

func TestVoteErrorsAreEmitted(t *testing.T) {
	srv, bc := newTestServer(game.Rules{})
	code, peers := setupRoom(t, srv, "A")
	before := len(bc.out[code])

	req := voteRequest{RoomCode: code}
	req.Answer.ID = 42
	srv.vote(peers[0], req)

	e := peers[0].last()
	if e.event != "error" {
		t.Fatalf("expected error event, got %q", e.event)
	}
	if len(bc.out[code]) != before {
		t.Fatalf("rejected vote should not broadcast, got %v", bc.events(code))
	}
}

func TestRoomCodeFallsBackToConnection(t *testing.T) {
	srv, bc := newTestServer(game.Rules{})
	code, peers := setupRoom(t, srv, "A")

	srv.startGame(peers[0], roomRequest{})
	if _, ok := bc.find(code, "startedGame"); !ok {
		t.Fatal("start without roomCode should use the joined room")
	}
}

func TestRecordContinuesAfterSinkError(t *testing.T) {
	srv, _ := newTestServer(game.Rules{})
	broken := &memorySink{err: errors.New("disk full")}
	ok := &memorySink{}
	srv.AddSink(broken)
	srv.AddSink(ok)

	srv.record(context.Background(), "ABCD", game.Results{})
	if _, saved := ok.saved["ABCD"]; !saved {
		t.Fatal("later sinks should still receive results")
	}
}

func TestErrorCode(t *testing.T) {
	cases := map[error]string{
		game.ErrSessionNotFound:     "session_not_found",
		game.ErrInvalidPhase:        "invalid_phase",
		game.ErrAlreadyVoted:        "already_voted",
		game.ErrNotVIP:              "not_vip",
		game.ErrPromptPoolExhausted: "prompt_pool_exhausted",
		errors.New("other"):         "bad_request",
	}
	for err, want := range cases {
		if got := errorCode(err); got != want {
			t.Fatalf("errorCode(%v) = %q, want %q", err, got, want)
		}
	}
}
