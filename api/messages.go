package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/pacman82/klatsch/chat"
)

// addMessageRequest is the wire shape POST /api/v0/add_message expects.
type addMessageRequest struct {
	ID      uuid.UUID `json:"id"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
}

// MessagesHandler serves POST /api/v0/add_message.
type MessagesHandler struct {
	client chat.Client
}

// NewMessagesHandler builds a MessagesHandler.
func NewMessagesHandler(client chat.Client) *MessagesHandler {
	return &MessagesHandler{client: client}
}

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	message := chat.Message{ID: req.ID, Sender: req.Sender, Content: req.Content}
	err := h.client.Submit(r.Context(), message)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, chat.ErrConflict):
		http.Error(w, "A different message with this ID already exists", http.StatusConflict)
	case errors.Is(err, chat.ErrInternal):
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
