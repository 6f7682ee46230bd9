package livesession

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bazaar-live/backend/internal/middleware"
	"github.com/bazaar-live/backend/internal/models"
)

// newTestRouter wires the handler behind a stub auth middleware that injects
// the given caller identity.
func newTestRouter(h *Handler, callerID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, callerID)
		c.Set(middleware.ContextUserRole, "vendor")
		c.Set(middleware.ContextUserName, "Test Vendor")
		c.Next()
	})
	r.POST("/sessions", h.Create)
	r.GET("/sessions/:id", h.Get)
	r.POST("/sessions/:id/start", h.Start)
	r.POST("/sessions/:id/end", h.End)
	r.POST("/sessions/:id/join", h.Join)
	r.POST("/sessions/:id/chat", h.PostChat)
	r.GET("/sessions/:id/chat", h.ListChat)
	r.POST("/sessions/:id/highlight", h.Highlight)
	r.GET("/sessions/:id/viewers", h.ViewerCount)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerCreateAndGet(t *testing.T) {
	coord, _, _ := newTestCoordinator()
	host := uuid.New()
	r := newTestRouter(NewHandler(coord, nil, nil), host)

	in := time.Now().Add(time.Hour).UTC()
	w := doJSON(t, r, http.MethodPost, "/sessions", gin.H{
		"title":        "friday drop",
		"scheduled_at": in.Format(time.RFC3339),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		Data models.LiveSession `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Data.State != models.SessionScheduled {
		t.Errorf("state = %s, want scheduled", created.Data.State)
	}

	w = doJSON(t, r, http.MethodGet, "/sessions/"+created.Data.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	coord, _, tr := newTestCoordinator()
	host := uuid.New()
	r := newTestRouter(NewHandler(coord, nil, nil), host)

	// unknown session -> 404
	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/sessions/%s/start", uuid.New()), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", w.Code)
	}

	// past schedule -> 400
	past := time.Now().Add(-time.Hour).UTC()
	w = doJSON(t, r, http.MethodPost, "/sessions", gin.H{
		"title":        "too late",
		"scheduled_at": past.Format(time.RFC3339),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("past schedule status = %d, want 400", w.Code)
	}

	// transport failure on go-live -> 502
	s := scheduledSession(t, coord, host)
	tr.failOpen = true
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/sessions/%s/start", s.ID), nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("transport failure status = %d, want 502", w.Code)
	}
	tr.failOpen = false

	// wrong host -> 403
	other := newTestRouter(NewHandler(coord, nil, nil), uuid.New())
	w = doJSON(t, other, http.MethodPost, fmt.Sprintf("/sessions/%s/start", s.ID), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("wrong host status = %d, want 403", w.Code)
	}

	// chat on ended session -> 409
	if _, err := coord.StartSession(context.Background(), s.ID, host); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if _, err := coord.EndSession(context.Background(), s.ID, host); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/sessions/%s/chat", s.ID), gin.H{"content": "hello"})
	if w.Code != http.StatusConflict {
		t.Errorf("chat after end status = %d, want 409", w.Code)
	}
}

func TestHandlerChatFlow(t *testing.T) {
	coord, _, _ := newTestCoordinator()
	host := uuid.New()
	r := newTestRouter(NewHandler(coord, nil, nil), host)

	s := liveSession(t, coord, host)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/sessions/%s/chat", s.ID), gin.H{"content": "  welcome everyone  "})
	if w.Code != http.StatusCreated {
		t.Fatalf("post chat status = %d, body %s", w.Code, w.Body.String())
	}
	var posted struct {
		Data models.ChatMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &posted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if posted.Data.Content != "welcome everyone" {
		t.Errorf("content = %q, want trimmed", posted.Data.Content)
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/sessions/%s/chat", s.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list chat status = %d", w.Code)
	}
	var listed struct {
		Data struct {
			Messages []models.ChatMessage `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Data.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(listed.Data.Messages))
	}

	// viewer count includes nobody yet (host is not audience)
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/sessions/%s/viewers", s.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("viewers status = %d", w.Code)
	}
}
