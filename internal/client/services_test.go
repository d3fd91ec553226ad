package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesync/internal/protocol"
)

func TestAPIClient_CreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rooms", r.URL.Path)
		json.NewEncoder(w).Encode(protocol.CreateRoomResponse{RoomID: "abc123"})
	}))
	defer srv.Close()

	id, err := NewAPIClient(srv.URL+"/", nil).CreateRoom(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
}

func TestAPIClient_CreateRoomRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, nil).CreateRoom(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestAPIClient_Suggest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/autocomplete", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req protocol.SuggestionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, protocol.SuggestionRequest{Code: "def f():", CursorPosition: 8, Language: "python"}, req)

		json.NewEncoder(w).Encode(protocol.SuggestionResponse{Suggestion: "    return ", Detail: "ok"})
	}))
	defer srv.Close()

	got, err := NewAPIClient(srv.URL, nil).Suggest(context.Background(),
		protocol.SuggestionRequest{Code: "def f():", CursorPosition: 8, Language: "python"})
	require.NoError(t, err)
	assert.Equal(t, "    return ", got)
}

func TestAPIClient_SuggestMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, nil).Suggest(context.Background(), protocol.SuggestionRequest{})
	assert.Error(t, err)
}
