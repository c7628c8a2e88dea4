// Package dialog advances each user's conversation through its
// lifecycle: matchmaking, the active dialog, and termination.
package dialog

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"anonchat/internal/audit"
	"anonchat/internal/models"
	"anonchat/internal/ratelimit"
	"anonchat/internal/store"

	"go.uber.org/zap"
)

// State of one user's conversation.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateInDialog
)

// Event is one inbound message from the transport.
type Event struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
}

// Gateway produces a reply for a capped dialog history.
type Gateway interface {
	GenerateReply(ctx context.Context, history []models.Turn) (string, error)
}

// Transport delivers outbound messages to the messaging platform.
// Both calls are best-effort; the engine never treats their failures
// as fatal.
type Transport interface {
	SendMessage(ctx context.Context, userID int64, text string, keyboard [][]string) error
	SendTyping(ctx context.Context, userID int64) error
}

// Config tunes the engine.
type Config struct {
	RateLimitMessages int
	RateLimitPeriod   time.Duration
	HistoryCap        int
	SearchDelayMin    time.Duration
	SearchDelayMax    time.Duration
}

// Engine is the dialog state machine. Events for the same user must be
// delivered one at a time (the worker dispatcher guarantees this);
// events for different users may run concurrently.
type Engine struct {
	cfg       Config
	store     *store.Store
	limiter   *ratelimit.Limiter
	gateway   Gateway
	transport Transport
	audit     *audit.Logger
	log       *zap.Logger

	mu     sync.Mutex
	states map[int64]State

	// sleep and pace are swapped out by tests to skip real delays.
	sleep func(ctx context.Context, d time.Duration)
	pace  func(ctx context.Context, d time.Duration, indicate func(context.Context) error)
}

func NewEngine(cfg Config, st *store.Store, limiter *ratelimit.Limiter, gateway Gateway, transport Transport, auditLog *audit.Logger, log *zap.Logger) *Engine {
	if cfg.RateLimitMessages <= 0 {
		cfg.RateLimitMessages = 5
	}
	if cfg.RateLimitPeriod <= 0 {
		cfg.RateLimitPeriod = 10 * time.Second
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = models.DefaultHistoryCap
	}
	if cfg.SearchDelayMin <= 0 {
		cfg.SearchDelayMin = 3 * time.Second
	}
	if cfg.SearchDelayMax < cfg.SearchDelayMin {
		cfg.SearchDelayMax = cfg.SearchDelayMin
	}
	if auditLog == nil {
		auditLog = audit.New(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		store:     st,
		limiter:   limiter,
		gateway:   gateway,
		transport: transport,
		audit:     auditLog,
		log:       log,
		states:    make(map[int64]State),
		sleep:     sleepCtx,
		pace:      EmitTyping,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// HandleEvent routes one inbound event through the state machine.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) {
	switch ev.Text {
	case cmdStart:
		e.handleStart(ctx, ev.UserID)
	case BtnStartChat:
		e.store.RegisterUser(ev.UserID)
		e.startDialog(ctx, ev.UserID)
	case BtnAbout:
		e.send(ctx, ev.UserID, aboutText, nil)
	case BtnSupport:
		e.send(ctx, ev.UserID, supportText, nil)
	case BtnEnd:
		e.endDialog(ctx, ev.UserID)
	case BtnNext:
		e.nextDialog(ctx, ev.UserID)
	default:
		if e.state(ev.UserID) == StateInDialog {
			e.handleTurn(ctx, ev.UserID, ev.Text)
			return
		}
		e.send(ctx, ev.UserID, fallbackText, MainMenuKeyboard())
	}
}

func (e *Engine) handleStart(ctx context.Context, userID int64) {
	e.store.RegisterUser(userID)
	e.store.TrackStart()
	e.setState(userID, StateIdle)
	e.audit.Startup(userID)
	e.send(ctx, userID, welcomeText, MainMenuKeyboard())
}

// startDialog retires any current session, creates a new one, and walks
// the user through the matchmaking delay into the active dialog.
func (e *Engine) startDialog(ctx context.Context, userID int64) {
	session := models.NewSession(userID)
	if prev := e.store.SetSession(userID, session); prev != nil {
		e.audit.DialogFinished(userID, prev.SessionID, prev.MessagesCount)
	}
	e.audit.DialogStarted(userID, session.SessionID)

	e.setState(userID, StateSearching)
	e.send(ctx, userID, searchingText, nil)
	e.sleep(ctx, e.searchDelay())
	e.send(ctx, userID, foundText, ChatKeyboard())
	e.setState(userID, StateInDialog)
}

func (e *Engine) endDialog(ctx context.Context, userID int64) {
	session := e.store.ClearSession(userID)
	e.setState(userID, StateIdle)
	if session != nil {
		e.audit.DialogFinished(userID, session.SessionID, session.MessagesCount)
	}
	e.send(ctx, userID, endedText, MainMenuKeyboard())
}

func (e *Engine) nextDialog(ctx context.Context, userID int64) {
	if session := e.store.ClearSession(userID); session != nil {
		e.audit.DialogFinished(userID, session.SessionID, session.MessagesCount)
	}
	e.startDialog(ctx, userID)
}

// handleTurn processes one conversational turn. The user stays in the
// dialog whatever the per-turn outcome; a failed generation keeps the
// inbound turn in history so a retry does not duplicate context.
func (e *Engine) handleTurn(ctx context.Context, userID int64, text string) {
	if !e.limiter.Allow(userID, e.cfg.RateLimitMessages, e.cfg.RateLimitPeriod) {
		e.send(ctx, userID, slowDownText, nil)
		return
	}

	session := e.store.GetSession(userID)
	if session == nil {
		e.setState(userID, StateIdle)
		e.send(ctx, userID, sessionGoneText, nil)
		return
	}

	session.Append(models.Turn{Role: models.RoleUser, Content: text}, e.cfg.HistoryCap)

	reply, err := e.gateway.GenerateReply(ctx, session.History)
	if err != nil {
		e.audit.APIError(userID, err)
		e.send(ctx, userID, noticeFor(err), nil)
		return
	}

	e.pace(ctx, TypingDuration(reply), func(ctx context.Context) error {
		return e.transport.SendTyping(ctx, userID)
	})

	session.Append(models.Turn{Role: models.RoleAssistant, Content: reply}, e.cfg.HistoryCap)
	e.store.IncrementMessages(userID)
	e.send(ctx, userID, reply, nil)
}

func (e *Engine) searchDelay() time.Duration {
	spread := e.cfg.SearchDelayMax - e.cfg.SearchDelayMin
	if spread <= 0 {
		return e.cfg.SearchDelayMin
	}
	return e.cfg.SearchDelayMin + time.Duration(rand.Int63n(int64(spread)))
}

// send delivers best-effort: transport failures are logged, never
// propagated.
func (e *Engine) send(ctx context.Context, userID int64, text string, keyboard [][]string) {
	if err := e.transport.SendMessage(ctx, userID, text, keyboard); err != nil {
		e.log.Warn("send message failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) state(userID int64) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[userID]
}

func (e *Engine) setState(userID int64, s State) {
	e.mu.Lock()
	e.states[userID] = s
	e.mu.Unlock()
}
