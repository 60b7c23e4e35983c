// Package tracker is the read-only client for the task tracker API: paginated
// task listing filtered by tag and update time, single-record fetches, and
// the pure field-matching helpers that derive contact details from records.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PedroDircksen/Lighthouse/internal/core"
)

// ErrUnauthorized is returned when the tracker rejects our credentials.
var ErrUnauthorized = errors.New("tracker rejected credentials")

type Config struct {
	BaseURL string
	Token   string
	TeamID  string
	Tag     string
}

// Client provides pure read access to the tracker. It never mutates
// tracker state.
type Client struct {
	baseURL string
	token   string
	teamID  string
	tag     string
	httpc   *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		teamID:  cfg.TeamID,
		tag:     cfg.Tag,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

type taskPage struct {
	Tasks    []core.Task `json:"tasks"`
	LastPage bool        `json:"last_page"`
}

// ListTasks fetches one page of team tasks updated after updatedAfter
// (unix millis, 0 for no bound), filtered server-side by the configured
// tag. The second return value reports whether this was the last page.
func (c *Client) ListTasks(ctx context.Context, updatedAfter int64, page int) ([]core.Task, bool, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("include_closed", "true")
	if updatedAfter > 0 {
		params.Set("date_updated_gt", strconv.FormatInt(updatedAfter, 10))
	}
	if c.tag != "" {
		params.Add("tags[]", c.tag)
	}

	var out taskPage
	endpoint := fmt.Sprintf("%s/team/%s/task?%s", c.baseURL, c.teamID, params.Encode())
	if err := c.get(ctx, endpoint, &out); err != nil {
		return nil, false, fmt.Errorf("list team tasks: %w", err)
	}
	return out.Tasks, out.LastPage, nil
}

// GetTask fetches a single record with its custom fields. Both tasks and
// their parent epics live behind the same endpoint.
func (c *Client) GetTask(ctx context.Context, id string) (core.Epic, error) {
	var out core.Epic
	if err := c.get(ctx, c.baseURL+"/task/"+url.PathEscape(id), &out); err != nil {
		return core.Epic{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
