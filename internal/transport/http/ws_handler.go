package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"quiz-nexus-service/internal/app"
	"quiz-nexus-service/internal/domain"
	"quiz-nexus-service/internal/metrics"
)

const (
	writeWait     = 10 * time.Second
	sendBuffer    = 16
	inboundRate   = 30
	inboundBurst  = 50
	defaultTick   = time.Second
	viewCatalog   = "catalog"
	viewAttempt   = "attempt"
	msgError      = "error"
	msgQuizzes    = "quizzes"
	msgResults    = "results"
	msgState      = "state"
	msgResult     = "result"
	errRateLimit  = "rate limit exceeded"
	errBadPayload = "invalid payload"
)

// WSHandler serves the realtime views. Every connection owns its own Catalog or
// AttemptSession and discards it on disconnect.
type WSHandler struct {
	quizzes  *app.QuizService
	feed     app.Subscriber
	attempts *app.AttemptService
	tick     time.Duration
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(quizzes *app.QuizService, feed app.Subscriber, attempts *app.AttemptService, tick time.Duration, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if tick <= 0 {
		tick = defaultTick
	}
	return &WSHandler{
		quizzes:  quizzes,
		feed:     feed,
		attempts: attempts,
		tick:     tick,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

type quizMutation struct {
	ID    string           `json:"id"`
	Patch domain.QuizPatch `json:"patch"`
}

// peer serialises writes to one websocket connection.
type peer struct {
	conn *websocket.Conn
	log  *zap.Logger
	send chan outboundMessage
	quit chan struct{}
	done chan struct{}
}

func newPeer(conn *websocket.Conn, log *zap.Logger) *peer {
	p := &peer{
		conn: conn,
		log:  log,
		send: make(chan outboundMessage, sendBuffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

func (p *peer) writeLoop() {
	defer close(p.done)
	for {
		select {
		case msg := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(msg); err != nil {
				p.log.Debug("ws write error", zap.Error(err))
				return
			}
		case <-p.quit:
			return
		}
	}
}

// push queues a message; it gives up once the connection is closing.
func (p *peer) push(typ string, payload any) {
	select {
	case p.send <- outboundMessage{Type: typ, Payload: payload}:
	case <-p.done:
	case <-p.quit:
	}
}

func (p *peer) pushError(err error) {
	p.push(msgError, errorBody(err))
}

func (p *peer) close() {
	close(p.quit)
	<-p.done
}

// ServeQuizzes streams the viewer's live quiz and result lists and accepts admin writes.
func (h *WSHandler) ServeQuizzes(w http.ResponseWriter, r *http.Request) {
	viewer, ok := ViewerFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.ActiveViews.WithLabelValues(viewCatalog).Inc()
	defer metrics.ActiveViews.WithLabelValues(viewCatalog).Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := h.log.With(zap.String("view", viewCatalog), zap.String("user_id", viewer.UserID))
	p := newPeer(conn, log)
	defer p.close()

	catalog := app.NewCatalog(h.quizzes, h.feed, viewer, log)
	detach, err := catalog.Attach(ctx)
	if err != nil {
		log.Warn("catalog attach failed", zap.Error(err))
		p.pushError(err)
		return
	}
	defer detach()

	pushDone := make(chan struct{})
	go func() {
		defer close(pushDone)
		for {
			select {
			case <-catalog.Changes():
				p.push(msgQuizzes, quizzesFor(viewer, catalog.Quizzes()))
				p.push(msgResults, catalog.Results())
			case <-ctx.Done():
				return
			}
		}
	}()
	defer func() {
		cancel()
		<-pushDone
	}()

	limiter := rate.NewLimiter(rate.Limit(inboundRate), inboundBurst)
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		if !limiter.Allow() {
			p.push(msgError, errorPayload{Message: errRateLimit})
			continue
		}
		if err := h.handleCatalogMessage(ctx, catalog, inbound); err != nil {
			p.pushError(err)
		}
	}
}

func (h *WSHandler) handleCatalogMessage(ctx context.Context, catalog *app.Catalog, inbound inboundMessage) error {
	switch inbound.Type {
	case "create":
		var draft domain.QuizDraft
		if err := json.Unmarshal(inbound.Payload, &draft); err != nil {
			return &domain.ValidationError{Field: "payload", Reason: errBadPayload}
		}
		_, err := catalog.CreateQuiz(ctx, draft)
		return err
	case "update":
		var m quizMutation
		if err := json.Unmarshal(inbound.Payload, &m); err != nil || m.ID == "" {
			return &domain.ValidationError{Field: "payload", Reason: errBadPayload}
		}
		_, err := catalog.UpdateQuiz(ctx, m.ID, m.Patch)
		return err
	case "delete":
		var m quizMutation
		if err := json.Unmarshal(inbound.Payload, &m); err != nil || m.ID == "" {
			return &domain.ValidationError{Field: "payload", Reason: errBadPayload}
		}
		return catalog.DeleteQuiz(ctx, m.ID)
	}
	return &domain.ValidationError{Field: "type", Reason: "unsupported message type"}
}

// ServeAttempt runs one attempt of a quiz for the viewer: it resumes persisted progress,
// streams the countdown and submits the result exactly once.
func (h *WSHandler) ServeAttempt(w http.ResponseWriter, r *http.Request) {
	viewer, ok := ViewerFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated)
		return
	}
	quizID := chi.URLParam(r, "quizID")

	session, err := h.attempts.Open(r.Context(), viewer, quizID)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.ActiveViews.WithLabelValues(viewAttempt).Inc()
	defer metrics.ActiveViews.WithLabelValues(viewAttempt).Dec()

	ctx, cancel := context.WithCancel(r.Context())
	log := h.log.With(zap.String("view", viewAttempt), zap.String("user_id", viewer.UserID), zap.String("quiz_id", quizID))
	p := newPeer(conn, log)
	defer p.close()

	out := &attemptOutput{peer: p}
	out.quiz(session.Quiz())

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = session.Run(ctx, h.tick, func(snap app.AttemptSnapshot, err error) {
			if err != nil {
				p.pushError(err)
			}
			out.state(snap)
		})
	}()
	defer func() {
		cancel()
		<-runDone
	}()

	limiter := rate.NewLimiter(rate.Limit(inboundRate), inboundBurst)
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		if !limiter.Allow() {
			p.push(msgError, errorPayload{Message: errRateLimit})
			continue
		}
		if err := handleAttemptMessage(ctx, session, inbound); err != nil {
			p.pushError(err)
		}
		out.state(session.Snapshot())
	}
}

func handleAttemptMessage(ctx context.Context, session *app.AttemptSession, inbound inboundMessage) error {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return &domain.ValidationError{Field: "payload", Reason: errBadPayload}
		}
		return session.SelectAnswer(ctx, payload.QuestionIndex, payload.OptionIndex)
	case "next":
		_, err := session.Advance(ctx)
		return err
	case "finish":
		_, err := session.Finish(ctx)
		return err
	case "restart":
		return session.Restart(ctx)
	}
	return &domain.ValidationError{Field: "type", Reason: "unsupported message type"}
}

// attemptOutput pushes attempt snapshots and emits each result once, no matter whether the
// user or the timer finished the attempt.
type attemptOutput struct {
	peer *peer

	mu         sync.Mutex
	lastResult string
}

func (o *attemptOutput) quiz(q domain.Quiz) {
	o.peer.push("quiz", newQuizView(q))
}

func (o *attemptOutput) state(snap app.AttemptSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.peer.push(msgState, snap)
	if snap.Result != nil && snap.Result.ID != o.lastResult {
		o.lastResult = snap.Result.ID
		o.peer.push(msgResult, snap.Result)
	}
}
