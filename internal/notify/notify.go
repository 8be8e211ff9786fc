package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rowjay/search-backup-utility/internal/config"
)

// Event describes the outcome of one backup, restore or eviction.
type Event struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Folder    string    `json:"folder"`
	Snapshot  string    `json:"snapshot"`
	Databases []string  `json:"databases,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Duration  string    `json:"duration"`
	Error     string    `json:"error,omitempty"`
}

// Text renders the event for chat targets.
func (e Event) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s of %s", e.Status, e.Type, e.Folder)
	if len(e.Databases) > 0 {
		fmt.Fprintf(&b, " (databases: %s)", strings.Join(e.Databases, ", "))
	}
	if e.Duration != "" {
		fmt.Fprintf(&b, " in %s", e.Duration)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, ": %s", e.Error)
	}
	return b.String()
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans an event out to every target and returns the last failure.
type Multi struct {
	Targets []Notifier
}

func (m Multi) Notify(ctx context.Context, event Event) error {
	var err error
	for _, target := range m.Targets {
		if target == nil {
			continue
		}
		if nerr := target.Notify(ctx, event); nerr != nil {
			err = nerr
		}
	}
	return err
}

type Webhook struct {
	Name    string
	URL     string
	Headers map[string]string
}

func (w Webhook) Notify(ctx context.Context, event Event) error {
	return post(ctx, "webhook "+w.Name, w.URL, w.Headers, event)
}

type Mattermost struct {
	Name string
	URL  string
}

func (m Mattermost) Notify(ctx context.Context, event Event) error {
	return post(ctx, "mattermost "+m.Name, m.URL, nil, map[string]string{"text": event.Text()})
}

type Matrix struct {
	Name        string
	ServerURL   string
	AccessToken string
	RoomID      string
}

func (m Matrix) Notify(ctx context.Context, event Event) error {
	endpoint := fmt.Sprintf("%s/_matrix/client/v3/rooms/%s/send/m.room.message/%d",
		strings.TrimRight(m.ServerURL, "/"), url.PathEscape(m.RoomID), time.Now().UnixNano())
	payload := map[string]string{
		"msgtype": "m.text",
		"body":    event.Text(),
	}
	headers := map[string]string{"Authorization": "Bearer " + m.AccessToken}
	return post(ctx, "matrix "+m.Name, endpoint, headers, payload)
}

func post(ctx context.Context, target, endpoint string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s", target, resp.Status)
	}
	return nil
}

func FromConfig(cfg config.NotificationsConfig) Multi {
	var targets []Notifier
	for _, w := range cfg.Webhooks {
		targets = append(targets, Webhook{Name: w.Name, URL: w.URL, Headers: w.Headers})
	}
	for _, mm := range cfg.Mattermost {
		targets = append(targets, Mattermost{Name: mm.Name, URL: mm.URL})
	}
	for _, mx := range cfg.Matrix {
		targets = append(targets, Matrix{Name: mx.Name, ServerURL: mx.ServerURL, AccessToken: mx.AccessToken, RoomID: mx.RoomID})
	}
	return Multi{Targets: targets}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
