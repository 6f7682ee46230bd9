package livesession

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bazaar-live/backend/internal/models"
)

// fakeGateway is an in-memory PersistenceGateway. Sessions are cloned on
// load and save so rollback behaviour matches a real store.
type fakeGateway struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]*models.LiveSession
	participants []*models.Participant
	messages     []models.ChatMessage
	failSave     bool
	failAppend   bool
	failClose    bool
	onClose      func() // runs after a successful CloseSession commit
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: make(map[uuid.UUID]*models.LiveSession)}
}

func (g *fakeGateway) SaveSession(_ context.Context, s *models.LiveSession) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSave {
		return errors.New("save refused")
	}
	g.sessions[s.ID] = s.Clone()
	return nil
}

func (g *fakeGateway) LoadSession(_ context.Context, id uuid.UUID) (*models.LiveSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (g *fakeGateway) UpsertParticipant(_ context.Context, p *models.Participant) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.participants {
		if existing.SessionID == p.SessionID && existing.UserID == p.UserID && existing.LeftAt == nil {
			return nil
		}
	}
	cp := *p
	g.participants = append(g.participants, &cp)
	return nil
}

func (g *fakeGateway) ActiveParticipant(_ context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.participants {
		if p.SessionID == sessionID && p.UserID == userID && p.LeftAt == nil {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (g *fakeGateway) MarkLeft(_ context.Context, sessionID, userID uuid.UUID, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.participants {
		if p.SessionID == sessionID && p.UserID == userID && p.LeftAt == nil {
			t := at
			p.LeftAt = &t
		}
	}
	return nil
}

func (g *fakeGateway) CloseSession(_ context.Context, s *models.LiveSession, at time.Time) error {
	g.mu.Lock()
	if g.failClose {
		g.mu.Unlock()
		return errors.New("close refused")
	}
	g.sessions[s.ID] = s.Clone()
	for _, p := range g.participants {
		if p.SessionID == s.ID && p.LeftAt == nil {
			t := at
			p.LeftAt = &t
		}
	}
	hook := g.onClose
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (g *fakeGateway) CountActive(_ context.Context, sessionID uuid.UUID, role models.ParticipantRole) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.participants {
		if p.SessionID == sessionID && p.Role == role && p.LeftAt == nil {
			n++
		}
	}
	return n, nil
}

func (g *fakeGateway) AppendChatMessage(_ context.Context, m *models.ChatMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAppend {
		return errors.New("append refused")
	}
	g.messages = append(g.messages, *m)
	return nil
}

func (g *fakeGateway) ListChatMessages(_ context.Context, sessionID uuid.UUID, limit int, _ *time.Time) ([]models.ChatMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range g.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(&out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeTransport records channel and token activity and can be told to fail.
type fakeTransport struct {
	mu        sync.Mutex
	open      map[uuid.UUID]bool
	failOpen  bool
	failToken bool
	tokens    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{open: make(map[uuid.UUID]bool)}
}

func (t *fakeTransport) OpenChannel(_ context.Context, sessionID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failOpen {
		return errors.New("channel refused")
	}
	t.open[sessionID] = true
	return nil
}

func (t *fakeTransport) CloseChannel(_ context.Context, sessionID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.open, sessionID)
	return nil
}

func (t *fakeTransport) AccessToken(_ context.Context, sessionID, userID uuid.UUID, role models.ParticipantRole) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failToken {
		return "", errors.New("token refused")
	}
	t.tokens++
	return fmt.Sprintf("tok-%s-%s-%s-%d", sessionID, userID, role, t.tokens), nil
}

func (t *fakeTransport) channelOpen(sessionID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open[sessionID]
}

func newTestCoordinator() (*Coordinator, *fakeGateway, *fakeTransport) {
	g := newFakeGateway()
	tr := newFakeTransport()
	return NewCoordinator(g, tr, nil, nil), g, tr
}

func scheduledSession(t *testing.T, c *Coordinator, hostID uuid.UUID, catalog ...uuid.UUID) *models.LiveSession {
	t.Helper()
	in := time.Now().Add(time.Hour)
	s, err := c.CreateSession(context.Background(), CreateParams{
		HostID:      hostID,
		Title:       "flash sale",
		Catalog:     catalog,
		ScheduledAt: &in,
		AllowChat:   true,
		IsPublic:    true,
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return s
}

func liveSession(t *testing.T, c *Coordinator, hostID uuid.UUID, catalog ...uuid.UUID) *models.LiveSession {
	t.Helper()
	s := scheduledSession(t, c, hostID, catalog...)
	started, err := c.StartSession(context.Background(), s.ID, hostID)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	return started
}

func TestCreateSessionScheduleValidation(t *testing.T) {
	c, _, _ := newTestCoordinator()
	past := time.Now().Add(-time.Minute)
	_, err := c.CreateSession(context.Background(), CreateParams{
		HostID:      uuid.New(),
		ScheduledAt: &past,
	})
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("error = %v, want ErrInvalidSchedule", err)
	}
}

func TestCreateSessionGoLiveNow(t *testing.T) {
	c, _, tr := newTestCoordinator()
	host := uuid.New()
	s, err := c.CreateSession(context.Background(), CreateParams{HostID: host, Title: "drop"})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if s.State != models.SessionLive {
		t.Fatalf("state = %s, want live", s.State)
	}
	if s.StartedAt == nil {
		t.Fatalf("StartedAt not set on live session")
	}
	if !tr.channelOpen(s.ID) {
		t.Fatalf("media channel not opened for go-live-now session")
	}
}

func TestStartEarlyThenEnd(t *testing.T) {
	c, _, tr := newTestCoordinator()
	host := uuid.New()
	s := scheduledSession(t, c, host)
	if s.State != models.SessionScheduled || s.ScheduledAt == nil {
		t.Fatalf("unexpected scheduled session: %+v", s)
	}

	// Starting before the scheduled time is allowed.
	live, err := c.StartSession(context.Background(), s.ID, host)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if live.State != models.SessionLive || live.StartedAt == nil {
		t.Fatalf("unexpected live session: %+v", live)
	}
	if !tr.channelOpen(s.ID) {
		t.Fatalf("media channel not open after start")
	}

	ended, err := c.EndSession(context.Background(), s.ID, host)
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if ended.State != models.SessionEnded || ended.EndedAt == nil {
		t.Fatalf("unexpected ended session: %+v", ended)
	}
	if ended.EndedAt.Before(*ended.StartedAt) {
		t.Fatalf("endedAt %v before startedAt %v", ended.EndedAt, ended.StartedAt)
	}
	if tr.channelOpen(s.ID) {
		t.Fatalf("media channel still open after end")
	}
}

func TestStartWrongHostAndWrongState(t *testing.T) {
	c, _, _ := newTestCoordinator()
	host := uuid.New()
	s := scheduledSession(t, c, host)

	if _, err := c.StartSession(context.Background(), s.ID, uuid.New()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("wrong-host start error = %v, want ErrForbidden", err)
	}
	if _, err := c.EndSession(context.Background(), s.ID, host); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("end scheduled error = %v, want ErrInvalidState", err)
	}

	if _, err := c.StartSession(context.Background(), s.ID, host); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if _, err := c.StartSession(context.Background(), s.ID, host); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double start error = %v, want ErrInvalidState", err)
	}
}

func TestEndedIsTerminal(t *testing.T) {
	c, _, _ := newTestCoordinator()
	host := uuid.New()
	product := uuid.New()
	s := liveSession(t, c, host, product)
	if _, err := c.EndSession(context.Background(), s.ID, host); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	if _, err := c.EndSession(context.Background(), s.ID, host); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double end error = %v, want ErrInvalidState", err)
	}
	if _, err := c.JoinSession(context.Background(), s.ID, uuid.New()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("join ended error = %v, want ErrInvalidState", err)
	}
	if _, err := c.PostChatMessage(context.Background(), s.ID, host, "h", "hi"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("chat on ended error = %v, want ErrInvalidState", err)
	}
	if _, err := c.HighlightProduct(context.Background(), s.ID, host, product); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("highlight on ended error = %v, want ErrInvalidState", err)
	}
	// Idempotent leave stays legal after end.
	if err := c.LeaveSession(context.Background(), s.ID, host); err != nil {
		t.Fatalf("leave after end error = %v", err)
	}
}

func TestJoinLeaveViewerCount(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()
	host := uuid.New()
	s := liveSession(t, c, host)
	userA, userB := uuid.New(), uuid.New()

	resA, err := c.JoinSession(ctx, s.ID, userA)
	if err != nil {
		t.Fatalf("JoinSession(userA) error = %v", err)
	}
	if resA.ParticipantToken == "" {
		t.Fatalf("missing participant token")
	}
	if _, err := c.JoinSession(ctx, s.ID, userB); err != nil {
		t.Fatalf("JoinSession(userB) error = %v", err)
	}
	if n := c.GetViewerCount(ctx, s.ID); n != 2 {
		t.Fatalf("viewer count = %d, want 2", n)
	}

	// Double join does not double count.
	if _, err := c.JoinSession(ctx, s.ID, userA); err != nil {
		t.Fatalf("re-join error = %v", err)
	}
	if n := c.GetViewerCount(ctx, s.ID); n != 2 {
		t.Fatalf("viewer count after re-join = %d, want 2", n)
	}

	if err := c.LeaveSession(ctx, s.ID, userA); err != nil {
		t.Fatalf("LeaveSession() error = %v", err)
	}
	if n := c.GetViewerCount(ctx, s.ID); n != 1 {
		t.Fatalf("viewer count after leave = %d, want 1", n)
	}
	// Double leave: no error, no decrement below the real count.
	if err := c.LeaveSession(ctx, s.ID, userA); err != nil {
		t.Fatalf("second LeaveSession() error = %v", err)
	}
	if n := c.GetViewerCount(ctx, s.ID); n != 1 {
		t.Fatalf("viewer count after double leave = %d, want 1", n)
	}
}

func TestJoinScheduledPreLobby(t *testing.T) {
	c, _, tr := newTestCoordinator()
	host := uuid.New()
	s := scheduledSession(t, c, host)
	res, err := c.JoinSession(context.Background(), s.ID, uuid.New())
	if err != nil {
		t.Fatalf("pre-lobby join error = %v", err)
	}
	if res.Role != models.ParticipantAudience {
		t.Fatalf("role = %s, want audience", res.Role)
	}
	if tr.channelOpen(s.ID) {
		t.Fatalf("pre-lobby join must not open the media channel")
	}
}

func TestPostChatAdmission(t *testing.T) {
	c, g, _ := newTestCoordinator()
	ctx := context.Background()
	host := uuid.New()
	s := liveSession(t, c, host)
	viewer := uuid.New()
	if _, err := c.JoinSession(ctx, s.ID, viewer); err != nil {
		t.Fatalf("JoinSession() error = %v", err)
	}

	if _, err := c.PostChatMessage(ctx, s.ID, uuid.New(), "ghost", "hello"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-participant chat error = %v, want ErrForbidden", err)
	}
	if _, err := c.PostChatMessage(ctx, s.ID, viewer, "v", "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty chat error = %v, want ErrValidation", err)
	}
	long := make([]byte, MaxChatContentLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := c.PostChatMessage(ctx, s.ID, viewer, "v", string(long)); !errors.Is(err, ErrValidation) {
		t.Fatalf("oversize chat error = %v, want ErrValidation", err)
	}

	m, err := c.PostChatMessage(ctx, s.ID, viewer, "v", "  love this bag  ")
	if err != nil {
		t.Fatalf("PostChatMessage() error = %v", err)
	}
	if m.Content != "love this bag" {
		t.Fatalf("content = %q, want trimmed", m.Content)
	}
	// The host may chat without an explicit join.
	if _, err := c.PostChatMessage(ctx, s.ID, host, "host", "thanks!"); err != nil {
		t.Fatalf("host chat error = %v", err)
	}
	if len(g.messages) != 2 {
		t.Fatalf("stored messages = %d, want 2", len(g.messages))
	}
}

func TestChatDisabled(t *testing.T) {
	c, g, _ := newTestCoordinator()
	host := uuid.New()
	s, err := c.CreateSession(context.Background(), CreateParams{HostID: host, AllowChat: false})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := c.PostChatMessage(context.Background(), s.ID, host, "h", "hi"); !errors.Is(err, ErrChatDisabled) {
		t.Fatalf("error = %v, want ErrChatDisabled", err)
	}
	if len(g.messages) != 0 {
		t.Fatalf("message appended despite disabled chat")
	}
}

func TestChatOrderingUnderConcurrency(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()
	host := uuid.New()
	s := liveSession(t, c, host)

	const posters = 8
	const perPoster = 20
	var wg sync.WaitGroup
	for i := 0; i < posters; i++ {
		viewer := uuid.New()
		if _, err := c.JoinSession(ctx, s.ID, viewer); err != nil {
			t.Fatalf("JoinSession() error = %v", err)
		}
		wg.Add(1)
		go func(userID uuid.UUID, n int) {
			defer wg.Done()
			for j := 0; j < perPoster; j++ {
				if _, err := c.PostChatMessage(ctx, s.ID, userID, "v", fmt.Sprintf("msg %d/%d", n, j)); err != nil {
					t.Errorf("PostChatMessage() error = %v", err)
					return
				}
			}
		}(viewer, i)
	}
	wg.Wait()

	msgs, err := c.ListChatMessages(ctx, s.ID, posters*perPoster, nil)
	if err != nil {
		t.Fatalf("ListChatMessages() error = %v", err)
	}
	if len(msgs) != posters*perPoster {
		t.Fatalf("messages = %d, want %d", len(msgs), posters*perPoster)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Before(&msgs[i-1]) {
			t.Fatalf("messages out of (created_at, id) order at index %d", i)
		}
	}
}

func TestHighlightLifecycle(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()
	host := uuid.New()
	productA, productB := uuid.New(), uuid.New()
	s := liveSession(t, c, host, productA, productB)

	// Product outside the catalog is rejected and state is unchanged.
	if _, err := c.HighlightProduct(ctx, s.ID, host, uuid.New()); !errors.Is(err, ErrValidation) {
		t.Fatalf("foreign product error = %v, want ErrValidation", err)
	}
	got, err := c.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.HighlightedProductID != nil {
		t.Fatalf("highlight set after rejected call")
	}

	if _, err := c.HighlightProduct(ctx, s.ID, uuid.New(), productA); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-host highlight error = %v, want ErrForbidden", err)
	}

	got, err = c.HighlightProduct(ctx, s.ID, host, productA)
	if err != nil {
		t.Fatalf("HighlightProduct() error = %v", err)
	}
	if got.HighlightedProductID == nil || *got.HighlightedProductID != productA {
		t.Fatalf("highlight = %v, want %s", got.HighlightedProductID, productA)
	}

	// Last write wins.
	got, err = c.HighlightProduct(ctx, s.ID, host, productB)
	if err != nil {
		t.Fatalf("second HighlightProduct() error = %v", err)
	}
	if *got.HighlightedProductID != productB {
		t.Fatalf("highlight = %s, want %s", got.HighlightedProductID, productB)
	}

	got, err = c.ClearHighlight(ctx, s.ID, host)
	if err != nil {
		t.Fatalf("ClearHighlight() error = %v", err)
	}
	if got.HighlightedProductID != nil {
		t.Fatalf("highlight not cleared")
	}
}

func TestHighlightRequiresLive(t *testing.T) {
	c, _, _ := newTestCoordinator()
	host := uuid.New()
	product := uuid.New()
	s := scheduledSession(t, c, host, product)
	if _, err := c.HighlightProduct(context.Background(), s.ID, host, product); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
}

func TestStartRollsBackOnTransportFailure(t *testing.T) {
	c, g, tr := newTestCoordinator()
	host := uuid.New()
	s := scheduledSession(t, c, host)

	tr.failOpen = true
	_, err := c.StartSession(context.Background(), s.ID, host)
	if !errors.Is(err, ErrMediaTransport) {
		t.Fatalf("error = %v, want ErrMediaTransport", err)
	}

	stored, loadErr := g.LoadSession(context.Background(), s.ID)
	if loadErr != nil || stored == nil {
		t.Fatalf("LoadSession() = %v, %v", stored, loadErr)
	}
	if stored.State != models.SessionScheduled {
		t.Fatalf("state after rollback = %s, want scheduled", stored.State)
	}
	if stored.StartedAt != nil {
		t.Fatalf("startedAt set after rollback")
	}
	if stored.ScheduledAt == nil {
		t.Fatalf("scheduledAt lost during rollback")
	}

	// The host can retry once the transport recovers.
	tr.failOpen = false
	live, err := c.StartSession(context.Background(), s.ID, host)
	if err != nil {
		t.Fatalf("retry StartSession() error = %v", err)
	}
	if live.State != models.SessionLive {
		t.Fatalf("state after retry = %s, want live", live.State)
	}
}

func TestJoinCompensatesOnTokenFailure(t *testing.T) {
	c, _, tr := newTestCoordinator()
	ctx := context.Background()
	host := uuid.New()
	s := liveSession(t, c, host)

	tr.failToken = true
	if _, err := c.JoinSession(ctx, s.ID, uuid.New()); !errors.Is(err, ErrMediaTransport) {
		t.Fatalf("error = %v, want ErrMediaTransport", err)
	}
	if n := c.GetViewerCount(ctx, s.ID); n != 0 {
		t.Fatalf("viewer count after failed join = %d, want 0", n)
	}
}

func TestPersistenceFailureSurfacesUnavailable(t *testing.T) {
	c, g, _ := newTestCoordinator()
	ctx := context.Background()
	host := uuid.New()
	s := liveSession(t, c, host)
	viewer := uuid.New()
	if _, err := c.JoinSession(ctx, s.ID, viewer); err != nil {
		t.Fatalf("JoinSession() error = %v", err)
	}

	g.failAppend = true
	if _, err := c.PostChatMessage(ctx, s.ID, viewer, "v", "hi"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("chat error = %v, want ErrUnavailable", err)
	}
	g.failAppend = false

	g.failClose = true
	if _, err := c.EndSession(ctx, s.ID, host); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("end error = %v, want ErrUnavailable", err)
	}
	g.failClose = false
	// The failed end had no partial effect.
	got, err := c.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.State != models.SessionLive {
		t.Fatalf("state = %s, want live after failed end", got.State)
	}
}

func TestEndClosesRosterWithSession(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()
	host := uuid.New()
	s := liveSession(t, c, host)
	for i := 0; i < 3; i++ {
		if _, err := c.JoinSession(ctx, s.ID, uuid.New()); err != nil {
			t.Fatalf("JoinSession() error = %v", err)
		}
	}
	if n := c.GetViewerCount(ctx, s.ID); n != 3 {
		t.Fatalf("viewer count = %d, want 3", n)
	}

	if _, err := c.EndSession(ctx, s.ID, host); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if n := c.GetViewerCount(ctx, s.ID); n != 0 {
		t.Fatalf("viewer count after end = %d, want 0", n)
	}
}

func TestEndFailureLeavesRosterOpen(t *testing.T) {
	c, g, tr := newTestCoordinator()
	ctx := context.Background()
	host := uuid.New()
	s := liveSession(t, c, host)
	if _, err := c.JoinSession(ctx, s.ID, uuid.New()); err != nil {
		t.Fatalf("JoinSession() error = %v", err)
	}

	g.failClose = true
	if _, err := c.EndSession(ctx, s.ID, host); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("end error = %v, want ErrUnavailable", err)
	}
	// State and roster move together: a refused commit changes neither,
	// and the media channel stays open.
	if n := c.GetViewerCount(ctx, s.ID); n != 1 {
		t.Fatalf("viewer count after failed end = %d, want 1", n)
	}
	if !tr.channelOpen(s.ID) {
		t.Fatalf("media channel closed after failed end")
	}
}

func TestEndHookRunsAfterLockReleased(t *testing.T) {
	c, g, _ := newTestCoordinator()
	ctx := context.Background()
	host := uuid.New()
	product := uuid.New()
	s := liveSession(t, c, host, product)

	// Park a highlight on the session lock while EndSession is still inside
	// its critical section, then have the end hook wait for it, the way a
	// caller waits for a rotation goroutine to drain. The hook can only
	// finish if it runs after the lock is released.
	highlightDone := make(chan struct{})
	g.onClose = func() {
		go func() {
			defer close(highlightDone)
			_, _ = c.HighlightProduct(ctx, s.ID, host, product)
		}()
		time.Sleep(50 * time.Millisecond)
	}
	c.SetEndHook(func(uuid.UUID) {
		select {
		case <-highlightDone:
		case <-time.After(2 * time.Second):
			t.Error("end hook timed out waiting for the parked highlight")
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := c.EndSession(ctx, s.ID, host)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EndSession() error = %v", err)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("EndSession() blocked on its own end hook")
	}
}

func TestChatIDsFollowAdmissionOrder(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()
	host := uuid.New()
	s := liveSession(t, c, host)

	var prev *models.ChatMessage
	for i := 0; i < 50; i++ {
		m, err := c.PostChatMessage(ctx, s.ID, host, "h", fmt.Sprintf("msg %d", i))
		if err != nil {
			t.Fatalf("PostChatMessage() error = %v", err)
		}
		if prev != nil {
			if !prev.Before(m) {
				t.Fatalf("message %d does not sort after its predecessor", i)
			}
			// IDs are time-ordered, so they alone break created_at ties
			// in favour of admission order.
			if prev.ID.String() >= m.ID.String() {
				t.Fatalf("message %d id %s not above predecessor id %s", i, m.ID, prev.ID)
			}
		}
		prev = m
	}
}

func TestUnknownSession(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()
	id := uuid.New()
	if _, err := c.StartSession(ctx, id, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("start error = %v, want ErrNotFound", err)
	}
	if _, err := c.JoinSession(ctx, id, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("join error = %v, want ErrNotFound", err)
	}
	if _, err := c.PostChatMessage(ctx, id, uuid.New(), "x", "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("chat error = %v, want ErrNotFound", err)
	}
}
