package recovery

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rowjay/search-backup-utility/internal/config"
)

const (
	statePath   = "/api/v2/dbaas/adapter/opensearch/users/restore-password/state"
	restorePath = "/api/v3/dbaas/internal/physical_databases/users/restore-password"
)

// ErrorKind separates failures worth retrying from answers of the service.
type ErrorKind int

const (
	// KindTransport means the service could not be reached.
	KindTransport ErrorKind = iota
	// KindStatus means the service answered with an unexpected status.
	KindStatus
)

func (k ErrorKind) String() string {
	if k == KindStatus {
		return "status"
	}
	return "transport"
}

// RequestError is returned by the DBaaS clients.
type RequestError struct {
	Kind       ErrorKind
	Service    string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s responded %d %s", e.Service, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s unreachable: %v", e.Service, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

type client struct {
	service  string
	address  string
	username string
	password string
	http     *http.Client
}

func newClient(service string, ep config.Endpoint, caPath string, sec config.SecurityConfig) (*client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if sec.MinTLSVersion == "1.3" {
		tlsConfig.MinVersion = tls.VersionTLS13
	}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		switch {
		case err == nil:
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("%s CA certificate %s holds no certificates", service, caPath)
			}
			tlsConfig.RootCAs = pool
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read %s CA certificate: %w", service, err)
		}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	c := &client{
		service: service,
		address: strings.TrimRight(ep.Address, "/"),
		http:    &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
	if user, pass, ok := ep.Credentials(); ok {
		c.username, c.password = user, pass
	}
	return c, nil
}

func (c *client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.address+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Kind: KindTransport, Service: c.service, Err: err}
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, &RequestError{Kind: KindTransport, Service: c.service, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{Kind: KindStatus, Service: c.service, StatusCode: resp.StatusCode}
	}
	return payload, nil
}

// Adapter reports the credential recovery state of the cluster.
type Adapter struct {
	c *client
}

func NewAdapter(cfg config.DBaaSConfig, sec config.SecurityConfig) (*Adapter, error) {
	c, err := newClient("dbaas adapter", cfg.Adapter, cfg.CACertPath, sec)
	if err != nil {
		return nil, err
	}
	return &Adapter{c: c}, nil
}

// State returns the recovery state as reported by the adapter.
func (a *Adapter) State(ctx context.Context) (State, error) {
	body, err := a.c.do(ctx, http.MethodGet, statePath, nil)
	if err != nil {
		return "", err
	}
	return State(strings.TrimSpace(string(body))), nil
}

// Aggregator starts credential recovery for a physical database.
type Aggregator struct {
	c                  *client
	physicalDatabaseID string
}

func NewAggregator(cfg config.DBaaSConfig, sec config.SecurityConfig) (*Aggregator, error) {
	c, err := newClient("dbaas aggregator", cfg.Aggregator, cfg.CACertPath, sec)
	if err != nil {
		return nil, err
	}
	return &Aggregator{c: c, physicalDatabaseID: cfg.PhysicalDatabaseID}, nil
}

type restoreRequest struct {
	PhysicalDBID string         `json:"physicalDbId"`
	Type         string         `json:"type"`
	Settings     map[string]any `json:"settings"`
}

// RestorePasswords asks the aggregator to push user credentials again.
func (a *Aggregator) RestorePasswords(ctx context.Context) error {
	body, err := json.Marshal(restoreRequest{
		PhysicalDBID: a.physicalDatabaseID,
		Type:         "opensearch",
		Settings:     map[string]any{},
	})
	if err != nil {
		return err
	}
	_, err = a.c.do(ctx, http.MethodPost, restorePath, body)
	return err
}
