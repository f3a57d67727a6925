package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmind/mailmind/internal/auth"
)

type fakeMailbox struct {
	page     *Page
	sent     *Sent
	data     string
	err      error
	category string
	token    string
	draft    Draft
	threadID string
	reply    Reply
	ids      [2]string
}

func (f *fakeMailbox) List(_ context.Context, _ uuid.UUID, category, pageToken string) (*Page, error) {
	f.category, f.token = category, pageToken
	return f.page, f.err
}

func (f *fakeMailbox) Send(_ context.Context, _ uuid.UUID, d Draft) (*Sent, error) {
	f.draft = d
	return f.sent, f.err
}

func (f *fakeMailbox) Reply(_ context.Context, _ uuid.UUID, threadID string, r Reply) (*Sent, error) {
	f.threadID, f.reply = threadID, r
	return f.sent, f.err
}

func (f *fakeMailbox) Attachment(_ context.Context, _ uuid.UUID, messageID, attachmentID string) (string, error) {
	f.ids = [2]string{messageID, attachmentID}
	return f.data, f.err
}

func mailRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/mail", h.List)
	r.Post("/mail/send", h.Send)
	r.Post("/mail/reply/{threadID}", h.Reply)
	r.Get("/mail/attachment", h.Attachment)
	return r
}

func serve(t *testing.T, h *Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := context.WithValue(req.Context(), auth.UserClaimsKey, &auth.AccessClaims{UserID: uuid.NewString()})
	rec := httptest.NewRecorder()
	mailRouter(h).ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func decodeJSONBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandler_List(t *testing.T) {
	mb := &fakeMailbox{page: &Page{
		Messages:      []Message{{ID: "m1", Subject: "hi", Labels: []string{}, Attachments: []AttachmentInfo{}}},
		NextPageToken: "next",
	}}
	rec := serve(t, NewHandler(mb), http.MethodGet, "/mail?category=social&pageToken=abc", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "social", mb.category)
	assert.Equal(t, "abc", mb.token)

	body := decodeJSONBody(t, rec)
	assert.Equal(t, "next", body["nextPageToken"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].(map[string]any)["id"])
}

func TestHandler_Unauthenticated(t *testing.T) {
	rec := httptest.NewRecorder()
	mailRouter(NewHandler(&fakeMailbox{})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mail", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Send(t *testing.T) {
	mb := &fakeMailbox{sent: &Sent{ID: "s1", ThreadID: "t1"}}
	rec := serve(t, NewHandler(mb), http.MethodPost, "/mail/send",
		`{"to":"ana@example.com","subject":"Hi","content":"<p>x</p>","attachments":[{"name":"a.txt","type":"text/plain","content":"YQ=="}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"id": "s1", "threadId": "t1"}, decodeJSONBody(t, rec))
	assert.Equal(t, "ana@example.com", mb.draft.To)
	require.Len(t, mb.draft.Attachments, 1)
	assert.Equal(t, "a.txt", mb.draft.Attachments[0].Name)
}

func TestHandler_SendValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"to":`},
		{name: "missing recipient", body: `{"content":"x"}`},
		{name: "missing content", body: `{"to":"ana@example.com"}`},
		{name: "attachment not base64", body: `{"to":"a@b.c","content":"x","attachments":[{"name":"f","content":"***"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := &fakeMailbox{}
			rec := serve(t, NewHandler(mb), http.MethodPost, "/mail/send", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, mb.draft.To)
		})
	}
}

func TestHandler_Reply(t *testing.T) {
	mb := &fakeMailbox{sent: &Sent{ID: "r1", ThreadID: "thread-7"}}
	rec := serve(t, NewHandler(mb), http.MethodPost, "/mail/reply/thread-7", `{"content":"thanks"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "thread-7", mb.threadID)
	assert.Equal(t, "thanks", mb.reply.Content)
}

func TestHandler_Attachment(t *testing.T) {
	mb := &fakeMailbox{data: "ZmlsZQ=="}
	rec := serve(t, NewHandler(mb), http.MethodGet, "/mail/attachment?messageId=m1&attachmentId=a1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]string{"m1", "a1"}, mb.ids)
	assert.Equal(t, "ZmlsZQ==", decodeJSONBody(t, rec)["data"])
}

func TestHandler_AttachmentMissingIDs(t *testing.T) {
	for _, q := range []string{"", "?messageId=m1", "?attachmentId=a1"} {
		rec := serve(t, NewHandler(&fakeMailbox{}), http.MethodGet, "/mail/attachment"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{err: ErrNotConnected, code: http.StatusUnauthorized},
		{err: fmt.Errorf("fetching attachment: %w", ErrNotFound), code: http.StatusNotFound},
		{err: fmt.Errorf("%w: no recipient", ErrInvalidDraft), code: http.StatusBadRequest},
		{err: fmt.Errorf("sending message: %w: Invalid To header", ErrRejected), code: http.StatusBadRequest},
		{err: fmt.Errorf("listing messages: %w: timeout", ErrUpstream), code: http.StatusBadGateway},
		{err: errors.New("connection refused"), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := serve(t, NewHandler(&fakeMailbox{err: tt.err}), http.MethodGet, "/mail", "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, decodeJSONBody(t, rec), "error")
		})
	}
}
