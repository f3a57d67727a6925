package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmind/mailmind/internal/auth"
	"github.com/mailmind/mailmind/internal/quota"
)

type fakeGate struct{ err error }

func (f fakeGate) Allow(context.Context, uuid.UUID) error { return f.err }

type fakeCompleter struct {
	chunks []string
	err    error
	system string
	turns  []Turn
}

func (f *fakeCompleter) Stream(_ context.Context, system string, turns []Turn, onDelta func(string) error) (string, error) {
	f.system, f.turns = system, turns
	var reply strings.Builder
	for _, c := range f.chunks {
		reply.WriteString(c)
		if err := onDelta(c); err != nil {
			return reply.String(), err
		}
	}
	return reply.String(), f.err
}

type memRepo struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (m *memRepo) Append(_ context.Context, msgs ...Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *memRepo) ListByThread(_ context.Context, userID uuid.UUID, threadID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []Message{}
	for _, msg := range m.msgs {
		if msg.UserID == userID && msg.ThreadID == threadID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func withUser(r *http.Request, id uuid.UUID) *http.Request {
	ctx := context.WithValue(r.Context(), auth.UserClaimsKey, &auth.AccessClaims{UserID: id.String()})
	return r.WithContext(ctx)
}

const chatBody = `{"threadId":"t-1","mailContext":"From: bob","messages":[{"role":"user","content":"summarize"}]}`

func postChat(h *Handler, userID uuid.UUID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Complete(rec, withUser(req, userID))
	return rec
}

func TestComplete_StreamsAndPersists(t *testing.T) {
	completer := &fakeCompleter{chunks: []string{"Bob ", "wants ", "numbers."}}
	repo := &memRepo{}
	h := NewHandler(fakeGate{}, completer, repo)
	userID := uuid.New()

	rec := postChat(h, userID, chatBody)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Bob wants numbers.", rec.Body.String())
	assert.Contains(t, completer.system, "From: bob")
	assert.Equal(t, []Turn{{Role: RoleUser, Content: "summarize"}}, completer.turns)

	require.Len(t, repo.msgs, 2)
	assert.Equal(t, RoleUser, repo.msgs[0].Role)
	assert.Equal(t, "summarize", repo.msgs[0].Content)
	assert.Equal(t, RoleAssistant, repo.msgs[1].Role)
	assert.Equal(t, "Bob wants numbers.", repo.msgs[1].Content)
	assert.Equal(t, userID, repo.msgs[1].UserID)
	assert.Equal(t, "t-1", repo.msgs[1].ThreadID)
}

func TestComplete_NoThreadSkipsPersistence(t *testing.T) {
	repo := &memRepo{}
	h := NewHandler(fakeGate{}, &fakeCompleter{chunks: []string{"ok"}}, repo)

	rec := postChat(h, uuid.New(), `{"messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, repo.msgs)
}

func TestComplete_Gate(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"limit reached", quota.ErrLimitReached, http.StatusTooManyRequests},
		{"unknown user", quota.ErrUserNotFound, http.StatusNotFound},
		{"storage", &quota.StorageError{Op: "peek", Err: errors.New("db down")}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			completer := &fakeCompleter{chunks: []string{"never"}}
			h := NewHandler(fakeGate{err: tc.err}, completer, &memRepo{})

			rec := postChat(h, uuid.New(), chatBody)

			assert.Equal(t, tc.status, rec.Code)
			assert.Nil(t, completer.turns, "completion is not attempted")
		})
	}
}

func TestComplete_InvalidBodies(t *testing.T) {
	bodies := map[string]string{
		"malformed":     `{"messages":`,
		"no messages":   `{"messages":[]}`,
		"unknown role":  `{"messages":[{"role":"system","content":"x"}]}`,
		"empty content": `{"messages":[{"role":"user","content":""}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			h := NewHandler(fakeGate{}, &fakeCompleter{}, &memRepo{})

			rec := postChat(h, uuid.New(), body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestComplete_Unauthenticated(t *testing.T) {
	h := NewHandler(fakeGate{}, &fakeCompleter{}, &memRepo{})

	rec := httptest.NewRecorder()
	h.Complete(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(chatBody)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestComplete_ProviderFailsBeforeFirstChunk(t *testing.T) {
	repo := &memRepo{}
	h := NewHandler(fakeGate{}, &fakeCompleter{err: ErrProvider}, repo)

	rec := postChat(h, uuid.New(), chatBody)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, repo.msgs)
}

func TestComplete_ProviderFailsMidStream(t *testing.T) {
	repo := &memRepo{}
	h := NewHandler(fakeGate{}, &fakeCompleter{chunks: []string{"partial"}, err: ErrProvider}, repo)

	rec := postChat(h, uuid.New(), chatBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
	assert.Empty(t, repo.msgs, "an aborted reply is not saved")
}

func TestComplete_PersistFailureStillAnswers(t *testing.T) {
	h := NewHandler(fakeGate{}, &fakeCompleter{chunks: []string{"fine"}}, &memRepo{err: errors.New("db down")})

	rec := postChat(h, uuid.New(), chatBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fine", rec.Body.String())
}

func TestMessages(t *testing.T) {
	owner, other := uuid.New(), uuid.New()
	repo := &memRepo{msgs: []Message{
		{ID: uuid.New(), UserID: owner, ThreadID: "t-1", Role: RoleUser, Content: "q"},
		{ID: uuid.New(), UserID: owner, ThreadID: "t-1", Role: RoleAssistant, Content: "a"},
		{ID: uuid.New(), UserID: other, ThreadID: "t-1", Role: RoleUser, Content: "not yours"},
		{ID: uuid.New(), UserID: owner, ThreadID: "t-2", Role: RoleUser, Content: "other thread"},
	}}
	h := NewHandler(fakeGate{}, &fakeCompleter{}, repo)

	t.Run("owner scoped", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Messages(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/chat/messages?threadId=t-1", nil), owner))

		require.Equal(t, http.StatusOK, rec.Code)
		var got []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "user", got[0]["role"])
		assert.Equal(t, "a", got[1]["content"])
		assert.Len(t, got[0], 3, "only id, role and content are exposed")
	})

	t.Run("empty thread", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Messages(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/chat/messages?threadId=nope", nil), owner))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("missing thread id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Messages(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/chat/messages", nil), owner))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "threadId is required")
	})

	t.Run("storage failure", func(t *testing.T) {
		failing := NewHandler(fakeGate{}, &fakeCompleter{}, &memRepo{err: errors.New("db down")})
		rec := httptest.NewRecorder()
		failing.Messages(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/chat/messages?threadId=t-1", nil), owner))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
