package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerClient_SubmitTransfer(t *testing.T) {
	var got TransferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/transfers", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Service-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transfer_id":"tx-9"}`))
	}))
	defer srv.Close()

	c := NewLedgerClient(srv.URL, "secret", 100)
	resp, err := c.SubmitTransfer(context.Background(), TransferRequest{Reference: "p-1", Asset: "cheddar", Recipient: "alice", Amount: 180})
	require.NoError(t, err)
	assert.Equal(t, "tx-9", resp.TransferID)
	assert.Equal(t, TransferAccepted, resp.Status)
	assert.Equal(t, "p-1", got.Reference)
	assert.Equal(t, uint64(180), got.Amount)
}

func TestLedgerClient_SubmitTransferErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rejected", http.StatusUnprocessableEntity, ErrTransferRejected},
		{"server error", http.StatusBadGateway, ErrLedgerUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewLedgerClient(srv.URL, "secret", 100).SubmitTransfer(context.Background(), TransferRequest{Reference: "p-1"})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := NewLedgerClient("http://127.0.0.1:1", "secret", 100).SubmitTransfer(context.Background(), TransferRequest{Reference: "p-1"})
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestLedgerClient_TransferUpdates(t *testing.T) {
	since := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "2026-01-01T12:00:00Z", r.URL.Query().Get("since"))
		_, _ = w.Write([]byte(`{"transfers":[{"transfer_id":"tx-1","reference":"p-1","status":"confirmed","updated_at":"2026-01-01T12:00:05Z"},{"transfer_id":"tx-2","reference":"p-2","status":"failed","reason":"closed account"}]}`))
	}))
	defer srv.Close()

	updates, err := NewLedgerClient(srv.URL, "secret", 100).TransferUpdates(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, TransferConfirmed, updates[0].Status)
	assert.Equal(t, since.Add(5*time.Second), updates[0].UpdatedAt)
	assert.Equal(t, "closed account", updates[1].Reason)
}
