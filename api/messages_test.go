package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagesHandler_NewMessageReturns200(t *testing.T) {
	client := newTestClient(t)
	handler := NewMessagesHandler(client)

	body, _ := json.Marshal(addMessageRequest{ID: uuid.New(), Sender: "alice", Content: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v0/add_message", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMessagesHandler_ConflictReturns409(t *testing.T) {
	client := newTestClient(t)
	handler := NewMessagesHandler(client)
	id := uuid.New()

	body1, _ := json.Marshal(addMessageRequest{ID: id, Sender: "alice", Content: "hi"})
	req1 := httptest.NewRequest(http.MethodPost, "/api/v0/add_message", bytes.NewReader(body1))
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	body2, _ := json.Marshal(addMessageRequest{ID: id, Sender: "alice", Content: "different"})
	req2 := httptest.NewRequest(http.MethodPost, "/api/v0/add_message", bytes.NewReader(body2))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestMessagesHandler_InvalidBodyReturns400(t *testing.T) {
	client := newTestClient(t)
	handler := NewMessagesHandler(client)

	req := httptest.NewRequest(http.MethodPost, "/api/v0/add_message", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
