package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/search-backup-utility/internal/config"
)

func TestEventText(t *testing.T) {
	e := Event{Type: "restore", Status: "failed", Folder: "/backups/granular/x", Databases: []string{"db1", "db2"}, Duration: "2s", Error: "boom"}
	assert.Equal(t, "[failed] restore of /backups/granular/x (databases: db1, db2) in 2s: boom", e.Text())
}

func TestFromConfigTargets(t *testing.T) {
	var webhook Event
	var chat map[string]string
	var matrixAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/hook":
			assert.Equal(t, "yes", r.Header.Get("X-Test"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&webhook))
		case r.URL.Path == "/mm":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&chat))
		default:
			matrixAuth = r.Header.Get("Authorization")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	multi := FromConfig(config.NotificationsConfig{
		Webhooks:   []config.WebhookConfig{{Name: "ops", URL: srv.URL + "/hook", Headers: map[string]string{"X-Test": "yes"}}},
		Mattermost: []config.MattermostHook{{Name: "team", URL: srv.URL + "/mm"}},
		Matrix:     []config.MatrixConfig{{Name: "room", ServerURL: srv.URL, AccessToken: "tok", RoomID: "!r:example"}},
	})
	require.Len(t, multi.Targets, 3)

	event := Event{Type: "backup", Status: "success", Folder: "f1", Snapshot: "f1"}
	require.NoError(t, multi.Notify(context.Background(), event))
	assert.Equal(t, "f1", webhook.Snapshot)
	assert.Equal(t, "[success] backup of f1", chat["text"])
	assert.Equal(t, "Bearer tok", matrixAuth)
}

func TestNotifyReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Webhook{Name: "ops", URL: srv.URL}.Notify(context.Background(), Event{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook ops")
}
