package dialog

import (
	"context"
	"sync"
	"testing"
	"time"

	"anonchat/internal/llm"
	"anonchat/internal/models"
	"anonchat/internal/ratelimit"
	"anonchat/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMsg struct {
	userID   int64
	text     string
	keyboard [][]string
}

type fakeTransport struct {
	mu      sync.Mutex
	msgs    []sentMsg
	typing  int
	sendErr error
}

func (f *fakeTransport) SendMessage(_ context.Context, userID int64, text string, keyboard [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.msgs = append(f.msgs, sentMsg{userID: userID, text: text, keyboard: keyboard})
	return nil
}

func (f *fakeTransport) SendTyping(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.text)
	}
	return out
}

func (f *fakeTransport) last() sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return sentMsg{}
	}
	return f.msgs[len(f.msgs)-1]
}

type fakeGateway struct {
	reply      string
	err        error
	gotHistory []models.Turn
}

func (f *fakeGateway) GenerateReply(_ context.Context, history []models.Turn) (string, error) {
	f.gotHistory = append([]models.Turn(nil), history...)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestEngine(gw Gateway, tr Transport, cfg Config) (*Engine, *store.Store) {
	st := store.New(nil, nil)
	e := NewEngine(cfg, st, ratelimit.New(), gw, tr, nil, nil)
	e.sleep = func(context.Context, time.Duration) {}
	e.pace = func(ctx context.Context, _ time.Duration, indicate func(context.Context) error) {
		indicate(ctx)
	}
	return e, st
}

func startDialogFor(e *Engine, userID int64) {
	e.HandleEvent(context.Background(), Event{UserID: userID, Text: BtnStartChat})
}

func TestStartCommand(t *testing.T) {
	tr := &fakeTransport{}
	e, st := newTestEngine(&fakeGateway{}, tr, Config{})

	e.HandleEvent(context.Background(), Event{UserID: 1, Text: cmdStart})

	assert.Equal(t, StateIdle, e.state(1))
	stats := st.Stats()
	assert.Equal(t, 1, stats.TotalUsers)
	assert.Equal(t, 1, stats.Starts24h)

	last := tr.last()
	assert.Equal(t, welcomeText, last.text)
	assert.Equal(t, MainMenuKeyboard(), last.keyboard)
}

func TestStartDialogTransitions(t *testing.T) {
	tr := &fakeTransport{}
	e, st := newTestEngine(&fakeGateway{}, tr, Config{})

	startDialogFor(e, 1)

	require.Equal(t, []string{searchingText, foundText}, tr.texts())
	assert.Equal(t, StateInDialog, e.state(1))

	session := st.GetSession(1)
	require.NotNil(t, session)
	assert.True(t, session.Active)
	assert.NotEmpty(t, session.SessionID)
	assert.Equal(t, ChatKeyboard(), tr.last().keyboard)
}

func TestStartRetiresPreviousSession(t *testing.T) {
	tr := &fakeTransport{}
	e, st := newTestEngine(&fakeGateway{reply: "ok"}, tr, Config{})

	startDialogFor(e, 1)
	first := st.GetSession(1)
	first.MessagesCount = 3

	startDialogFor(e, 1)
	second := st.GetSession(1)

	assert.False(t, first.Active)
	assert.Equal(t, 3, first.MessagesCount)
	assert.True(t, second.Active)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestTurnSuccess(t *testing.T) {
	tr := &fakeTransport{}
	gw := &fakeGateway{reply: "hey"}
	e, st := newTestEngine(gw, tr, Config{})

	startDialogFor(e, 1)
	e.HandleEvent(context.Background(), Event{UserID: 1, Text: "hello there"})

	session := st.GetSession(1)
	require.NotNil(t, session)
	require.Len(t, session.History, 2)
	assert.Equal(t, models.RoleUser, session.History[0].Role)
	assert.Equal(t, "hello there", session.History[0].Content)
	assert.Equal(t, models.RoleAssistant, session.History[1].Role)
	assert.Equal(t, "hey", session.History[1].Content)
	assert.Equal(t, 1, session.MessagesCount)

	// The gateway saw the inbound turn.
	require.Len(t, gw.gotHistory, 1)
	assert.Equal(t, "hello there", gw.gotHistory[0].Content)

	assert.Equal(t, "hey", tr.last().text)
	assert.GreaterOrEqual(t, tr.typing, 1)
	assert.Equal(t, 1, st.Stats().Messages24h)
}

func TestTurnGatewayFailure(t *testing.T) {
	tr := &fakeTransport{}
	gw := &fakeGateway{err: &llm.APIError{Kind: llm.KindTimeout}}
	e, st := newTestEngine(gw, tr, Config{})

	startDialogFor(e, 1)
	e.HandleEvent(context.Background(), Event{UserID: 1, Text: "anyone here?"})

	session := st.GetSession(1)
	require.NotNil(t, session)
	require.Len(t, session.History, 1)
	assert.Equal(t, models.RoleUser, session.History[0].Role)
	assert.Equal(t, 0, session.MessagesCount)

	assert.Equal(t, noticeFor(gw.err), tr.last().text)
	assert.Equal(t, StateInDialog, e.state(1))

	// The next turn still goes through and carries the failed turn.
	gw.err = nil
	gw.reply = "back"
	e.HandleEvent(context.Background(), Event{UserID: 1, Text: "retry"})
	require.Len(t, gw.gotHistory, 2)
	assert.Equal(t, "anyone here?", gw.gotHistory[0].Content)
	assert.Equal(t, "retry", gw.gotHistory[1].Content)
}

func TestTurnRateLimited(t *testing.T) {
	tr := &fakeTransport{}
	gw := &fakeGateway{reply: "ok"}
	e, st := newTestEngine(gw, tr, Config{RateLimitMessages: 1, RateLimitPeriod: time.Minute})

	startDialogFor(e, 1)
	e.HandleEvent(context.Background(), Event{UserID: 1, Text: "first"})
	e.HandleEvent(context.Background(), Event{UserID: 1, Text: "second"})

	assert.Equal(t, slowDownText, tr.last().text)

	session := st.GetSession(1)
	require.Len(t, session.History, 2)
	assert.Equal(t, StateInDialog, e.state(1))
}

func TestTurnWithoutSession(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(&fakeGateway{}, tr, Config{})

	e.setState(7, StateInDialog)
	e.HandleEvent(context.Background(), Event{UserID: 7, Text: "hello?"})

	assert.Equal(t, sessionGoneText, tr.last().text)
	assert.Equal(t, StateIdle, e.state(7))
}

func TestEndDialog(t *testing.T) {
	tr := &fakeTransport{}
	e, st := newTestEngine(&fakeGateway{}, tr, Config{})

	startDialogFor(e, 1)
	session := st.GetSession(1)
	e.HandleEvent(context.Background(), Event{UserID: 1, Text: BtnEnd})

	assert.False(t, session.Active)
	assert.Nil(t, st.GetSession(1))
	assert.Equal(t, StateIdle, e.state(1))
	assert.Equal(t, endedText, tr.last().text)
	assert.Equal(t, MainMenuKeyboard(), tr.last().keyboard)
}

func TestNextDialog(t *testing.T) {
	tr := &fakeTransport{}
	e, st := newTestEngine(&fakeGateway{}, tr, Config{})

	startDialogFor(e, 1)
	first := st.GetSession(1)
	e.HandleEvent(context.Background(), Event{UserID: 1, Text: BtnNext})

	second := st.GetSession(1)
	require.NotNil(t, second)
	assert.False(t, first.Active)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, StateInDialog, e.state(1))
}

func TestFallbackOutsideDialog(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(&fakeGateway{}, tr, Config{})

	e.HandleEvent(context.Background(), Event{UserID: 1, Text: "random text"})

	assert.Equal(t, fallbackText, tr.last().text)
	assert.Equal(t, MainMenuKeyboard(), tr.last().keyboard)
}

func TestAboutAndSupport(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(&fakeGateway{}, tr, Config{})

	e.HandleEvent(context.Background(), Event{UserID: 1, Text: BtnAbout})
	e.HandleEvent(context.Background(), Event{UserID: 1, Text: BtnSupport})

	assert.Equal(t, []string{aboutText, supportText}, tr.texts())
}

func TestTransportFailureSwallowed(t *testing.T) {
	tr := &fakeTransport{sendErr: context.DeadlineExceeded}
	e, st := newTestEngine(&fakeGateway{reply: "ok"}, tr, Config{})

	// None of these may panic or corrupt state even though every
	// outbound send fails.
	e.HandleEvent(context.Background(), Event{UserID: 1, Text: cmdStart})
	startDialogFor(e, 1)
	e.HandleEvent(context.Background(), Event{UserID: 1, Text: "hi"})

	session := st.GetSession(1)
	require.NotNil(t, session)
	assert.Len(t, session.History, 2)
}

func TestHistoryCappedAcrossExchanges(t *testing.T) {
	tr := &fakeTransport{}
	gw := &fakeGateway{reply: "r"}
	e, st := newTestEngine(gw, tr, Config{RateLimitMessages: 1000, RateLimitPeriod: time.Minute, HistoryCap: 10})

	startDialogFor(e, 1)
	for i := 0; i < 30; i++ {
		e.HandleEvent(context.Background(), Event{UserID: 1, Text: "m"})
	}

	session := st.GetSession(1)
	assert.Len(t, session.History, 10)
	assert.Equal(t, 30, session.MessagesCount)
}
