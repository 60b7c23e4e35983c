// Package sheets reads client rows from a spreadsheet: sheet discovery
// plus a header-keyed fetch of one range, used by the bulk-send import.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

type Config struct {
	BaseURL       string
	APIKey        string
	SpreadsheetID string
}

type Client struct {
	baseURL       string
	apiKey        string
	spreadsheetID string
	httpc         *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.SpreadsheetID == "" {
		return nil, errors.New("sheets api key and spreadsheet id are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		spreadsheetID: cfg.SpreadsheetID,
		httpc:         &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// SheetNames returns the title of every sheet in the spreadsheet.
func (c *Client) SheetNames(ctx context.Context) ([]string, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=sheets.properties.title&key=%s", c.baseURL, c.spreadsheetID, c.apiKey)
	var out struct {
		Sheets []struct {
			Properties struct {
				Title string `json:"title"`
			} `json:"properties"`
		} `json:"sheets"`
	}
	if err := c.get(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Sheets))
	for _, s := range out.Sheets {
		names = append(names, s.Properties.Title)
	}
	return names, nil
}

// FetchAll reads every row of a range, keying each row by the header row.
// Cells missing from short rows come back as "".
func (c *Client) FetchAll(ctx context.Context, rng string) ([]map[string]string, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s?key=%s", c.baseURL, c.spreadsheetID, url.PathEscape(rng), c.apiKey)
	var out struct {
		Values [][]string `json:"values"`
	}
	if err := c.get(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	if len(out.Values) < 2 {
		return nil, nil
	}
	headers := out.Values[0]
	rows := make([]map[string]string, 0, len(out.Values)-1)
	for _, raw := range out.Values[1:] {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(raw) {
				row[h] = raw[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("sheets fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sheets api status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
