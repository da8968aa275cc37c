// backend/client.go

// Package backend wraps the entity store's HTTP API. Every call forwards the
// caller's credential as a bearer token so writes are attributed to the
// person whose edit triggered the webhook.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mitselek/esmuseum-map-app-sub006/config"
	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
	logger "github.com/mitselek/esmuseum-map-app-sub006/logging"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorBody    = 4096
	defaultPageSize = 1000
)

type Client struct {
	baseURL    string
	database   string
	httpClient *http.Client
	now        func() time.Time
	locks      *resourceLocks
}

// NewClient creates a client for one backend database.
func NewClient(cfg config.BackendConfiguration) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		database:   cfg.Database,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		locks:      newResourceLocks(),
	}
}

// WithClock replaces the client's time source.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Database returns the backend database the client talks to.
func (c *Client) Database() string {
	return c.database
}

type entityResponse struct {
	Entity model.Entity `json:"entity"`
}

type searchResponse struct {
	Entities []model.Entity `json:"entities"`
	Count    *int           `json:"count"`
}

// FetchEntity returns the entity with the given id, or ErrEntityNotFound.
func (c *Client) FetchEntity(ctx context.Context, cred *model.Credential, id model.EntityID) (*model.Entity, error) {
	var resp entityResponse
	if err := c.do(ctx, cred, http.MethodGet, "entity/"+url.PathEscape(string(id)), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch entity %s: %w", id, err)
	}
	if resp.Entity.ID == "" {
		return nil, fmt.Errorf("fetch entity %s: %w", id, sync_errors.ErrEntityNotFound)
	}
	logger.Debug("Entity fetched", zap.String("entityID", string(id)))
	return &resp.Entity, nil
}

// SearchEntities returns every entity matching filter, following pages until
// the reported count is reached. Without a count, a short page ends the search.
func (c *Client) SearchEntities(ctx context.Context, cred *model.Credential, filter Filter) ([]model.Entity, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	query := filter.Query()

	var entities []model.Entity
	for {
		query.Set("skip", strconv.Itoa(len(entities)))
		var page searchResponse
		if err := c.do(ctx, cred, http.MethodGet, "entity", query, nil, &page); err != nil {
			return nil, fmt.Errorf("search entities: %w", err)
		}
		entities = append(entities, page.Entities...)
		if len(page.Entities) == 0 {
			break
		}
		if page.Count != nil && len(entities) >= *page.Count {
			break
		}
		if page.Count == nil && len(page.Entities) < filter.Limit {
			break
		}
	}

	logger.Debug("Entities searched",
		zap.String("query", query.Encode()),
		zap.Int("count", len(entities)))
	return entities, nil
}

// GrantPermission gives grantee the permission kind on resource. Granting a
// permission that is already held reports AlreadyGranted and writes nothing.
func (c *Client) GrantPermission(ctx context.Context, cred *model.Credential, resource, grantee model.EntityID, kind model.PermissionKind) (model.GrantOutcome, error) {
	unlock := c.locks.lock(resource)
	defer unlock()

	entity, err := c.FetchEntity(ctx, cred, resource)
	if err != nil {
		return model.Granted, fmt.Errorf("grant %s on %s: %w", kind, resource, err)
	}
	if entity.HasReference(kind.PropertyName(), grantee) {
		return model.AlreadyGranted, nil
	}

	props := []model.Property{{Type: kind.PropertyName(), Reference: grantee}}
	if err := c.do(ctx, cred, http.MethodPost, "entity/"+url.PathEscape(string(resource)), nil, props, nil); err != nil {
		return model.Granted, fmt.Errorf("grant %s on %s to %s: %w", kind, resource, grantee, err)
	}

	logger.Info("Permission granted",
		zap.String("resource", string(resource)),
		zap.String("grantee", string(grantee)),
		zap.String("kind", string(kind)))
	return model.Granted, nil
}

// BulkGrantPermissions grants kind on resource to all grantees with a single
// write. Already-held and duplicate grantees are counted as skipped.
func (c *Client) BulkGrantPermissions(ctx context.Context, cred *model.Credential, resource model.EntityID, grantees []model.EntityID, kind model.PermissionKind) (model.BulkGrantResult, error) {
	var result model.BulkGrantResult
	if len(grantees) == 0 {
		return result, nil
	}

	unlock := c.locks.lock(resource)
	defer unlock()

	entity, err := c.FetchEntity(ctx, cred, resource)
	if err != nil {
		return result, fmt.Errorf("bulk grant %s on %s: %w", kind, resource, err)
	}

	seen := make(map[model.EntityID]struct{}, len(grantees))
	props := make([]model.Property, 0, len(grantees))
	for _, grantee := range grantees {
		if _, dup := seen[grantee]; dup || entity.HasReference(kind.PropertyName(), grantee) {
			result.Skipped++
			continue
		}
		seen[grantee] = struct{}{}
		props = append(props, model.Property{Type: kind.PropertyName(), Reference: grantee})
	}
	if len(props) == 0 {
		return result, nil
	}

	if err := c.do(ctx, cred, http.MethodPost, "entity/"+url.PathEscape(string(resource)), nil, props, nil); err != nil {
		return model.BulkGrantResult{Skipped: result.Skipped}, fmt.Errorf("bulk grant %s on %s: %w", kind, resource, err)
	}
	result.Granted = len(props)

	logger.Info("Permissions granted in bulk",
		zap.String("resource", string(resource)),
		zap.String("kind", string(kind)),
		zap.Int("granted", result.Granted),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// do issues one request. The request deadline never outlives the credential,
// and a credential that is already expired is rejected without a request.
func (c *Client) do(ctx context.Context, cred *model.Credential, method, path string, query url.Values, body, out interface{}) error {
	if cred == nil || cred.Token == "" {
		return fmt.Errorf("%w: no credential", sync_errors.ErrCredentialRejected)
	}
	if cred.Expired(c.now()) {
		return fmt.Errorf("%w: credential expired at %s", sync_errors.ErrCredentialRejected, cred.ExpiresAt.Format(time.RFC3339))
	}

	ctx, cancel := context.WithTimeout(ctx, cred.Remaining(c.now()))
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.database), path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && cred.Expired(c.now()) {
			return fmt.Errorf("%w: credential expired during request", sync_errors.ErrCredentialRejected)
		}
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &sync_errors.RemoteError{StatusCode: res.StatusCode, Message: errorMessage(res.StatusCode, data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func errorMessage(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}
