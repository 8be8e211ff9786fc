package cluster

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/rs/zerolog"

	"github.com/rowjay/search-backup-utility/internal/catalog"
	"github.com/rowjay/search-backup-utility/internal/config"
)

// Client implements Gateway with the opensearch-go request types.
type Client struct {
	transport opensearchapi.Transport
	log       zerolog.Logger
}

var _ Gateway = (*Client)(nil)

// New builds a client for the configured cluster. Basic auth is only used
// when both username and password are set.
func New(cfg config.ClusterConfig, sec config.SecurityConfig, log zerolog.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.NotValidf("cluster host is empty")
	}
	scheme := "http"
	if cfg.TLSEnabled {
		scheme = "https"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: minTLSVersion(sec.MinTLSVersion)}
	if cfg.RequestTimeout > 0 {
		transport.ResponseHeaderTimeout = cfg.RequestTimeout
	}

	osCfg := opensearch.Config{
		Addresses: []string{fmt.Sprintf("%s://%s", scheme, cfg.Host)},
		Transport: transport,
	}
	if user, pass, ok := cfg.Credentials(); ok {
		osCfg.Username = user
		osCfg.Password = pass
	}
	if cfg.CACertPath != "" {
		ca, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read cluster CA certificate: %w", err)
		}
		osCfg.CACert = ca
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("create cluster client: %w", err)
	}
	return NewWithTransport(client, log), nil
}

// NewWithTransport wraps an existing transport, typically an *opensearch.Client.
func NewWithTransport(transport opensearchapi.Transport, log zerolog.Logger) *Client {
	return &Client{transport: transport, log: log.With().Str("component", "cluster").Logger()}
}

func minTLSVersion(v string) uint16 {
	if v == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}

type request interface {
	Do(ctx context.Context, transport opensearchapi.Transport) (*opensearchapi.Response, error)
}

// do runs req and decodes a successful body into out when out is not nil.
func (c *Client) do(ctx context.Context, op string, req request, out any) error {
	start := time.Now()
	res, err := req.Do(ctx, c.transport)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()
	c.log.Debug().Str("op", op).Int("status", res.StatusCode).Dur("took", time.Since(start)).Msg("cluster request")

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &ResponseError{Op: op, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func jsonBody(v any) (io.Reader, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(payload), nil
}

func boolPtr(v bool) *bool { return &v }

func (c *Client) Indices(ctx context.Context) ([]string, error) {
	var rows []struct {
		Index string `json:"index"`
	}
	req := opensearchapi.CatIndicesRequest{Format: "json", H: []string{"index"}, ExpandWildcards: "open,closed"}
	if err := c.do(ctx, "list indices", req, &rows); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Index)
	}
	return out, nil
}

func (c *Client) Aliases(ctx context.Context) (catalog.AliasMap, error) {
	out := catalog.AliasMap{}
	if err := c.do(ctx, "get aliases", opensearchapi.IndicesGetAliasRequest{}, &out); err != nil {
		if errors.Is(err, errors.NotFound) {
			return catalog.AliasMap{}, nil
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) IndexTemplates(ctx context.Context) ([]catalog.IndexTemplate, error) {
	var res struct {
		IndexTemplates []catalog.IndexTemplate `json:"index_templates"`
	}
	if err := c.do(ctx, "get index templates", opensearchapi.IndicesGetIndexTemplateRequest{}, &res); err != nil {
		if errors.Is(err, errors.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return res.IndexTemplates, nil
}

func (c *Client) ComponentTemplates(ctx context.Context) ([]catalog.ComponentTemplate, error) {
	var res struct {
		ComponentTemplates []catalog.ComponentTemplate `json:"component_templates"`
	}
	if err := c.do(ctx, "get component templates", opensearchapi.ClusterGetComponentTemplateRequest{}, &res); err != nil {
		if errors.Is(err, errors.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return res.ComponentTemplates, nil
}

func (c *Client) LegacyTemplates(ctx context.Context) ([]catalog.LegacyTemplate, error) {
	byName := map[string]catalog.Object{}
	if err := c.do(ctx, "get legacy templates", opensearchapi.IndicesGetTemplateRequest{}, &byName); err != nil {
		if errors.Is(err, errors.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return catalog.LegacyTemplates(byName), nil
}

func (c *Client) PutIndexTemplate(ctx context.Context, t catalog.IndexTemplate) error {
	body, err := jsonBody(t.Body)
	if err != nil {
		return err
	}
	return c.do(ctx, "put index template "+t.Name, opensearchapi.IndicesPutIndexTemplateRequest{Name: t.Name, Body: body}, nil)
}

func (c *Client) PutComponentTemplate(ctx context.Context, t catalog.ComponentTemplate) error {
	body, err := jsonBody(t.Body)
	if err != nil {
		return err
	}
	return c.do(ctx, "put component template "+t.Name, opensearchapi.ClusterPutComponentTemplateRequest{Name: t.Name, Body: body}, nil)
}

func (c *Client) PutLegacyTemplate(ctx context.Context, t catalog.LegacyTemplate) error {
	body, err := jsonBody(t.Body)
	if err != nil {
		return err
	}
	return c.do(ctx, "put legacy template "+t.Name, opensearchapi.IndicesPutTemplateRequest{Name: t.Name, Body: body}, nil)
}

func (c *Client) DeleteIndexTemplate(ctx context.Context, pattern string) error {
	return c.do(ctx, "delete index template "+pattern, opensearchapi.IndicesDeleteIndexTemplateRequest{Name: pattern}, nil)
}

func (c *Client) DeleteComponentTemplate(ctx context.Context, pattern string) error {
	return c.do(ctx, "delete component template "+pattern, opensearchapi.ClusterDeleteComponentTemplateRequest{Name: pattern}, nil)
}

func (c *Client) DeleteLegacyTemplate(ctx context.Context, pattern string) error {
	return c.do(ctx, "delete legacy template "+pattern, opensearchapi.IndicesDeleteTemplateRequest{Name: pattern}, nil)
}

func (c *Client) CloseIndices(ctx context.Context, indices []string) error {
	if len(indices) == 0 {
		return nil
	}
	req := opensearchapi.IndicesCloseRequest{Index: indices, IgnoreUnavailable: boolPtr(true)}
	return c.do(ctx, "close indices", req, nil)
}

func (c *Client) DeleteIndices(ctx context.Context, patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}
	return c.do(ctx, "delete indices "+strings.Join(patterns, ","), opensearchapi.IndicesDeleteRequest{Index: patterns}, nil)
}

func (c *Client) PutAlias(ctx context.Context, index, alias string, body json.RawMessage) error {
	req := opensearchapi.IndicesPutAliasRequest{Index: []string{index}, Name: alias}
	if len(body) > 0 && string(body) != "null" {
		req.Body = bytes.NewReader(body)
	}
	return c.do(ctx, fmt.Sprintf("put alias %s on %s", alias, index), req, nil)
}

func (c *Client) CreateSnapshot(ctx context.Context, repository, name string, r CreateSnapshotRequest) error {
	body, err := jsonBody(map[string]any{
		"indices":              strings.Join(r.Indices, ","),
		"include_global_state": r.IncludeGlobalState,
	})
	if err != nil {
		return err
	}
	req := opensearchapi.SnapshotCreateRequest{
		Repository:        repository,
		Snapshot:          name,
		Body:              body,
		WaitForCompletion: boolPtr(true),
	}
	var res snapshotResult
	if err := c.do(ctx, "create snapshot "+name, req, &res); err != nil {
		return err
	}
	if res.Snapshot == nil || res.Snapshot.State != "SUCCESS" {
		return res.failure("create snapshot", name)
	}
	return nil
}

// snapshotResult is the answer of a snapshot create or restore issued with
// wait_for_completion.
type snapshotResult struct {
	Snapshot *struct {
		State  string `json:"state"`
		Shards struct {
			Failed int `json:"failed"`
		} `json:"shards"`
	} `json:"snapshot"`
}

func (r snapshotResult) failure(op, name string) *SnapshotFailedError {
	err := &SnapshotFailedError{Op: op, Snapshot: name}
	if r.Snapshot == nil {
		err.State = "UNKNOWN"
		return err
	}
	err.State = r.Snapshot.State
	err.FailedShards = r.Snapshot.Shards.Failed
	return err
}

func (c *Client) Snapshot(ctx context.Context, repository, name string) (SnapshotInfo, error) {
	var res struct {
		Snapshots []SnapshotInfo `json:"snapshots"`
	}
	req := opensearchapi.SnapshotGetRequest{Repository: repository, Snapshot: []string{name}}
	if err := c.do(ctx, "get snapshot "+name, req, &res); err != nil {
		return SnapshotInfo{}, err
	}
	for _, s := range res.Snapshots {
		if s.Snapshot == name {
			return s, nil
		}
	}
	return SnapshotInfo{}, errors.NotFoundf("snapshot %s in repository %s", name, repository)
}

func (c *Client) RestoreSnapshot(ctx context.Context, repository, name string, r RestoreSnapshotRequest) error {
	payload := map[string]any{
		"include_aliases":      r.IncludeAliases,
		"include_global_state": false,
	}
	if len(r.Indices) > 0 {
		payload["indices"] = strings.Join(r.Indices, ",")
	}
	if r.RenamePattern != "" {
		payload["rename_pattern"] = r.RenamePattern
		payload["rename_replacement"] = r.RenameReplacement
	}
	body, err := jsonBody(payload)
	if err != nil {
		return err
	}
	req := opensearchapi.SnapshotRestoreRequest{
		Repository:        repository,
		Snapshot:          name,
		Body:              body,
		WaitForCompletion: boolPtr(true),
	}
	var res snapshotResult
	if err := c.do(ctx, "restore snapshot "+name, req, &res); err != nil {
		return err
	}
	if res.Snapshot != nil && res.Snapshot.Shards.Failed > 0 {
		return res.failure("restore snapshot", name)
	}
	return nil
}

func (c *Client) DeleteSnapshot(ctx context.Context, repository, name string) error {
	req := opensearchapi.SnapshotDeleteRequest{Repository: repository, Snapshot: []string{name}}
	return c.do(ctx, "delete snapshot "+name, req, nil)
}
