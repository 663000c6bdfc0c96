package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matri_server/server/comm/domain"
	"matri_server/server/comm/service"
	commonauth "matri_server/server/common/auth"
)

type stubStore struct {
	seq      int
	messages map[string]domain.Message
	count    int64
}

func (s *stubStore) Create(_ context.Context, msg domain.Message) (domain.Message, error) {
	s.seq++
	msg.ID = fmt.Sprintf("msg-%d", s.seq)
	msg.CreatedAt = time.Now().UTC()
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *stubStore) GetByID(_ context.Context, id string) (domain.Message, error) {
	msg, ok := s.messages[id]
	if !ok {
		return domain.Message{}, domain.ErrNotFound
	}
	return msg, nil
}

func (s *stubStore) UpdateContent(_ context.Context, id, content string, editedAt time.Time) (domain.Message, error) {
	msg, ok := s.messages[id]
	if !ok {
		return domain.Message{}, domain.ErrNotFound
	}
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &editedAt
	s.messages[id] = msg
	return msg, nil
}

func (s *stubStore) Delete(_ context.Context, id string) error {
	if _, ok := s.messages[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

func (s *stubStore) ListByChat(_ context.Context, chatID string, limit, offset int) ([]domain.Message, int64, error) {
	out := make([]domain.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out, int64(len(out)), nil
}

func (s *stubStore) MarkRead(_ context.Context, _, _ string, _ time.Time) error { return nil }

func (s *stubStore) CountFromTo(_ context.Context, _, _ string) (int64, error) { return s.count, nil }

func (s *stubStore) LatestPerCounterpart(_ context.Context, _ string) ([]domain.Message, error) {
	return nil, nil
}

type stubUsers struct {
	users map[string]domain.ChatUser
}

func (u *stubUsers) GetByID(_ context.Context, id string) (domain.ChatUser, error) {
	user, ok := u.users[id]
	if !ok {
		return domain.ChatUser{}, domain.ErrNotFound
	}
	return user, nil
}

type stubBlobs struct{}

func (stubBlobs) Put(_ context.Context, _, _ string, _ io.Reader, _ int64) error { return nil }
func (stubBlobs) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not stored")
}
func (stubBlobs) Remove(_ context.Context, _ string) error { return nil }
func (stubBlobs) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/" + key, nil
}

type nopFanout struct{}

func (nopFanout) ToRoom(_, _ string, _ any) {}
func (nopFanout) ToUser(_, _ string, _ any) {}

type handlerFixture struct {
	store  *stubStore
	auth   *commonauth.Service
	router *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &stubStore{messages: map[string]domain.Message{}}
	users := &stubUsers{users: map[string]domain.ChatUser{
		"alice": {ID: "alice", Name: "Alice", Plan: domain.PlanPremium},
		"bob":   {ID: "bob", Name: "Bob", Plan: domain.PlanBasic},
	}}
	gateway := service.NewGateway(store, users, stubBlobs{}, nopFanout{}, nil, time.Second)
	authSvc := commonauth.NewService("test-secret", 30)

	router := gin.New()
	NewHandler(gateway, nil, stubBlobs{}, authSvc).RegisterRoutes(router)
	return &handlerFixture{store: store, auth: authSvc, router: router}
}

func (f *handlerFixture) do(t *testing.T, method, target, body, asUser string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if asUser != "" {
		token, err := f.auth.GenerateToken(asUser)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestChatRoutesRequireAuth(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/chat/conversations", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations", nil)
	req.Header.Set("Authorization", "Bearer bogus-token")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendTextCreated(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/messages",
		`{"receiver_id":"bob","content":"hello"}`, "alice")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"chat_id":"alice-bob"`)
	assert.Contains(t, rec.Body.String(), `"content":"hello"`)
}

func TestSendTextPolicyViolationStatus(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/messages",
		`{"receiver_id":"alice","content":"mail me at bob@mail.com"}`, "bob")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSendTextQuotaStatus(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.count = 5

	rec := f.do(t, http.MethodPost, "/api/v1/chat/messages",
		`{"receiver_id":"alice","content":"hello"}`, "bob")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSendTextBadRequest(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/messages", `{"receiver_id":"bob"}`, "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEditMessageNotFound(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPut, "/api/v1/chat/messages/msg-404", `{"content":"edited"}`, "alice")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMessageForbiddenForNonOwner(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.do(t, http.MethodPost, "/api/v1/chat/messages",
		`{"receiver_id":"bob","content":"hello"}`, "alice")
	require.Equal(t, http.StatusCreated, created.Code)

	rec := f.do(t, http.MethodDelete, "/api/v1/chat/messages/msg-1", "", "bob")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListChatPagination(t *testing.T) {
	f := newHandlerFixture(t)
	sent := f.do(t, http.MethodPost, "/api/v1/chat/messages",
		`{"receiver_id":"bob","content":"hello"}`, "alice")
	require.Equal(t, http.StatusCreated, sent.Code)

	rec := f.do(t, http.MethodGet, "/api/v1/chat/messages/bob?page=1&limit=10", "", "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
	assert.Contains(t, rec.Body.String(), `"pages":1`)
}

func TestServeMediaRedirect(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/media/chat/abc.pdf", "", "")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://blobs.test/chat/abc.pdf", rec.Header().Get("Location"))
}

func TestWSRejectsInvalidToken(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/ws?token=bogus", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrInvalidOperation, http.StatusBadRequest},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrPlanForbidden, http.StatusForbidden},
		{domain.ErrPolicyViolation, http.StatusForbidden},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrQuotaExceeded, http.StatusTooManyRequests},
		{domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", domain.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusForError(tc.err), tc.err.Error())
	}
}
