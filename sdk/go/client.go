package reviewlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Reviewline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Item represents the API item model (partial).
type Item struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`
	InArchive    bool   `json:"in_archive"`
	Withdrawn    bool   `json:"withdrawn"`
	Discoverable bool   `json:"discoverable"`
}

// WorkspaceItem is an in-progress submission.
type WorkspaceItem struct {
	ID           string `json:"id"`
	ItemID       string `json:"item_id"`
	CollectionID string `json:"collection_id"`
	SubmitterID  string `json:"submitter_id"`
}

// PoolTask is an open review task.
type PoolTask struct {
	ID             string `json:"id"`
	WorkflowItemID string `json:"workflow_item_id"`
	GroupID        string `json:"group_id"`
}

// ClaimedTask is a review task held by one reviewer.
type ClaimedTask struct {
	ID             string `json:"id"`
	WorkflowItemID string `json:"workflow_item_id"`
	OwnerID        string `json:"owner_id"`
}

// SubmitResult reports where a submission landed.
type SubmitResult struct {
	Installed bool   `json:"installed"`
	ItemID    string `json:"item_id"`
}

// Grant is a granted authorization.
type Grant struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id,omitempty"`
	Feature    string `json:"feature"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
}

// CorrectionType describes one configured correction flow.
type CorrectionType struct {
	ID             string `json:"id"`
	Topic          string `json:"topic"`
	CreatesNewItem bool   `json:"creates_new_item"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateWorkspaceItem starts a submission in a collection.
func (c *Client) CreateWorkspaceItem(ctx context.Context, collectionID, title string) (WorkspaceItem, error) {
	body := map[string]any{
		"collection_id": collectionID,
		"title":         title,
	}
	var resp WorkspaceItem
	err := c.do(ctx, http.MethodPost, "v0/workspaceitems", body, &resp)
	return resp, err
}

// Submit routes a workspace item into review or straight to install.
func (c *Client) Submit(ctx context.Context, workspaceItemID string) (SubmitResult, error) {
	var resp SubmitResult
	endpoint := fmt.Sprintf("v0/workspaceitems/%s/submit", url.PathEscape(workspaceItemID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// PoolTasks lists open review tasks visible to the caller.
func (c *Client) PoolTasks(ctx context.Context) ([]PoolTask, error) {
	var resp []PoolTask
	err := c.do(ctx, http.MethodGet, "v0/pooltasks", nil, &resp)
	return resp, err
}

// Claim takes a pool task for the caller.
func (c *Client) Claim(ctx context.Context, poolTaskID string) (ClaimedTask, error) {
	var resp ClaimedTask
	endpoint := fmt.Sprintf("v0/pooltasks/%s/claim", url.PathEscape(poolTaskID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Approve installs the submission under review.
func (c *Client) Approve(ctx context.Context, claimedTaskID string) error {
	endpoint := fmt.Sprintf("v0/claimedtasks/%s/approve", url.PathEscape(claimedTaskID))
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

// Reject sends the submission back to the submitter's workspace.
func (c *Client) Reject(ctx context.Context, claimedTaskID, reason string) error {
	endpoint := fmt.Sprintf("v0/claimedtasks/%s/reject", url.PathEscape(claimedTaskID))
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"reason": reason}, nil)
}

// Item fetches one item.
func (c *Client) Item(ctx context.Context, id string) (Item, error) {
	var resp Item
	endpoint := fmt.Sprintf("v0/items/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateCorrection opens a correction workspace item for an installed item.
func (c *Client) CreateCorrection(ctx context.Context, itemID string) (WorkspaceItem, error) {
	var resp WorkspaceItem
	endpoint := fmt.Sprintf("v0/items/%s/correction", url.PathEscape(itemID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ViewGrant checks one authorization by its grant id.
func (c *Client) ViewGrant(ctx context.Context, grantID string) (Grant, error) {
	var resp Grant
	endpoint := fmt.Sprintf("v0/authorizations/%s", url.PathEscape(grantID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GrantsForObject lists granted features on a target.
func (c *Client) GrantsForObject(ctx context.Context, targetType, targetID, actorID, feature string) ([]Grant, error) {
	q := url.Values{}
	q.Set("target_type", targetType)
	q.Set("target_id", targetID)
	if actorID != "" {
		q.Set("actor_id", actorID)
	}
	if feature != "" {
		q.Set("feature", feature)
	}
	var resp []Grant
	err := c.do(ctx, http.MethodGet, "v0/authorizations/search/object?"+q.Encode(), nil, &resp)
	return resp, err
}

// CorrectionTypesForItem lists correction types applicable to an item.
func (c *Client) CorrectionTypesForItem(ctx context.Context, itemID string) ([]CorrectionType, error) {
	var resp []CorrectionType
	endpoint := "v0/correctiontypes/search/findByItem?uuid=" + url.QueryEscape(itemID)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
