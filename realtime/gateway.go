// Package realtime connects websocket clients to the match engine. It owns
// the connection registry and the match rooms; the engine only hands back
// broadcasts to relay.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"trivia-duel/events"
	"trivia-duel/models"
	"trivia-duel/services"

	"github.com/gofiber/contrib/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Conn is the part of a websocket connection the gateway uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Engine is the match state machine as seen by the gateway.
type Engine interface {
	SubmitAnswer(ctx context.Context, matchID, userID, text string) (*services.AnswerOutcome, error)
	ActivateRound(ctx context.Context, matchID string) ([]events.Broadcast, error)
	ForfeitOnDisconnect(ctx context.Context, userID string) ([]events.Broadcast, error)
	RunningMatches(ctx context.Context, userID string) ([]string, error)
	Score(ctx context.Context, matchID string) (map[string]int, error)
}

type Gateway struct {
	engine Engine
	rooms  *Rooms
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

func NewGateway(engine Engine, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		engine:  engine,
		rooms:   NewRooms(),
		logger:  logger.With("component", "gateway"),
		clients: make(map[string]map[*client]struct{}),
	}
}

// Connected reports whether userID has at least one open connection.
func (g *Gateway) Connected(userID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients[userID]) > 0
}

// Serve runs the connection of an authenticated user until it closes. When
// the user's last connection goes away their queue entry is dropped and any
// running match is forfeited.
func (g *Gateway) Serve(ctx context.Context, userID string, conn Conn) {
	c := newClient(userID, conn, g.logger)
	matchIDs := g.register(ctx, c)
	g.logger.Info("client connected", "user_id", userID, "running_matches", len(matchIDs))

	go c.writePump()
	g.resume(ctx, c, matchIDs)
	g.readLoop(ctx, c)

	c.close()
	g.rooms.LeaveAll(c)
	last := g.unregister(c)
	g.logger.Info("client disconnected", "user_id", userID)
	if !last {
		return
	}

	bs, err := g.engine.ForfeitOnDisconnect(context.WithoutCancel(ctx), userID)
	if err != nil {
		g.logger.Error("forfeit on disconnect failed", "user_id", userID, "error", err)
	}
	g.Deliver(bs)
}

// resume sends a connection that joined running matches their current
// score and round, so a reconnecting client picks up where it was.
func (g *Gateway) resume(ctx context.Context, c *client, matchIDs []string) {
	for _, matchID := range matchIDs {
		score, err := g.engine.Score(ctx, matchID)
		if err != nil {
			g.logger.Error("load score failed", "match_id", matchID, "error", err)
			continue
		}
		c.send(events.ScoreUpdate{MatchID: matchID, Score: score})

		bs, err := g.engine.ActivateRound(ctx, matchID)
		if err != nil {
			g.logger.Error("load active round failed", "match_id", matchID, "error", err)
			continue
		}
		for _, b := range bs {
			c.send(b.Event)
		}
		g.logger.Info("client resumed match", "match_id", matchID, "user_id", c.userID)
	}
}

func (g *Gateway) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			g.logger.Debug("read ended", "user_id", c.userID, "error", err)
			return
		}

		ev, err := events.Decode(payload)
		if err != nil {
			c.send(events.Error{Message: err.Error()})
			continue
		}

		switch ev := ev.(type) {
		case events.AnswerQuestion:
			g.handleAnswer(ctx, c, ev)
		default:
			c.send(events.Error{Message: "unsupported event " + string(ev.Kind())})
		}
	}
}

func (g *Gateway) handleAnswer(ctx context.Context, c *client, req events.AnswerQuestion) {
	reply := events.AnswerResult{RequestID: req.RequestID, MatchID: req.MatchID}

	outcome, err := g.engine.SubmitAnswer(ctx, req.MatchID, c.userID, req.Answer)
	switch {
	case err == nil:
		reply.Correct = outcome.Correct
		if outcome.Correct == nil {
			reply.Reason = "already answered"
		}
		g.Deliver(outcome.Broadcasts)
	case errors.Is(err, services.ErrMatchNotFound):
		reply.Reason = "match not found"
	case errors.Is(err, services.ErrNotParticipant):
		reply.Reason = "not a participant"
	case errors.Is(err, services.ErrNoActiveRound):
		reply.Reason = "no active round"
	default:
		g.logger.Error("submit answer failed", "match_id", req.MatchID, "user_id", c.userID, "error", err)
		reply.Reason = "internal error"
	}
	c.send(reply)
}

// OnMatchCreated puts the matched users' connections into the match room and
// starts the first round. It is the matchmaker's match-created callback.
func (g *Gateway) OnMatchCreated(ctx context.Context, setup models.MatchSetup) {
	matchID := setup.Match.ID
	score := make(map[string]int, len(setup.Participants))

	g.mu.RLock()
	for _, userID := range setup.UserIDs() {
		score[userID] = 0
		for c := range g.clients[userID] {
			g.rooms.Join(matchID, c)
		}
	}
	g.mu.RUnlock()

	for _, userID := range setup.UserIDs() {
		if !g.Connected(userID) {
			g.logger.Warn("matched user has no open connection", "match_id", matchID, "user_id", userID)
		}
	}

	g.Deliver([]events.Broadcast{
		{MatchID: matchID, Event: events.MatchCreated{MatchID: matchID}},
		{MatchID: matchID, Event: events.ScoreUpdate{MatchID: matchID, Score: score}},
	})

	bs, err := g.engine.ActivateRound(ctx, matchID)
	if err != nil {
		g.logger.Error("activate first round failed", "match_id", matchID, "error", err)
		return
	}
	g.Deliver(bs)
}

// Deliver relays engine broadcasts to their rooms, in order. A match-ended
// event is the last one a room sees: the room is closed after it.
func (g *Gateway) Deliver(bs []events.Broadcast) {
	for _, b := range bs {
		msg, err := events.Encode(b.Event)
		if err != nil {
			g.logger.Error("encode event failed", "kind", b.Event.Kind(), "error", err)
			continue
		}
		g.rooms.Broadcast(b.MatchID, msg, b.ExcludeUser)

		if _, ok := b.Event.(events.MatchEnded); ok {
			g.rooms.Close(b.MatchID)
		}
	}
}

// register adds c to the registry and to the rooms of the user's running
// matches. Both happen under the registry lock, so a match created meanwhile
// is either found here or joined by OnMatchCreated.
func (g *Gateway) register(ctx context.Context, c *client) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.clients[c.userID] == nil {
		g.clients[c.userID] = make(map[*client]struct{})
	}
	g.clients[c.userID][c] = struct{}{}

	matchIDs, err := g.engine.RunningMatches(ctx, c.userID)
	if err != nil {
		g.logger.Error("lookup running matches failed", "user_id", c.userID, "error", err)
		return nil
	}
	for _, matchID := range matchIDs {
		g.rooms.Join(matchID, c)
	}
	return matchIDs
}

// unregister reports whether c was the user's last connection.
func (g *Gateway) unregister(c *client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := g.clients[c.userID]
	delete(set, c)
	if len(set) == 0 {
		delete(g.clients, c.userID)
		return true
	}
	return false
}

type client struct {
	userID    string
	conn      Conn
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func newClient(userID string, conn Conn, logger *slog.Logger) *client {
	return &client{
		userID: userID,
		conn:   conn,
		out:    make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
		logger: logger,
	}
}

func (c *client) UserID() string { return c.userID }

func (c *client) Deliver(msg []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.out <- msg:
		return true
	default:
		c.logger.Warn("dropping message for slow client", "user_id", c.userID)
		return false
	}
}

func (c *client) send(ev events.Event) {
	msg, err := events.Encode(ev)
	if err != nil {
		c.logger.Error("encode event failed", "kind", ev.Kind(), "error", err)
		return
	}
	c.Deliver(msg)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}
