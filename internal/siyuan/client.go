// Package siyuan is a typed HTTP client for the SiYuan kernel API.
//
// Every kernel response uses the envelope {code, msg, data}; a non-zero
// code or a transport failure is reported as apperr.ErrStoreUnavailable
// so callers can treat "kernel not reachable" uniformly.
package siyuan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/soramir/inkwell/internal/apperr"
)

// Client talks to one SiYuan kernel.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a kernel client. token may be empty when the kernel
// runs without API auth.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// post performs one kernel call and decodes the data field into out
// (out may be nil when the caller only needs the ack).
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("siyuan: marshal %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("siyuan: build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("siyuan: %s: %w: %v", path, apperr.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("siyuan: %s: %w: status %d", path, apperr.ErrStoreUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("siyuan: %s: %w: decode: %v", path, apperr.ErrStoreUnavailable, err)
	}
	if env.Code != 0 {
		return fmt.Errorf("siyuan: %s: %w: code %d: %s", path, apperr.ErrStoreUnavailable, env.Code, env.Msg)
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("siyuan: %s: decode data: %w", path, err)
		}
	}
	return nil
}

// ListNotebooks returns all notebooks, open and closed.
func (c *Client) ListNotebooks(ctx context.Context) ([]Notebook, error) {
	var data struct {
		Notebooks []Notebook `json:"notebooks"`
	}
	if err := c.post(ctx, "/api/notebook/lsNotebooks", map[string]any{}, &data); err != nil {
		return nil, err
	}
	return data.Notebooks, nil
}

// CreateNotebook creates a notebook and returns it.
func (c *Client) CreateNotebook(ctx context.Context, name string) (Notebook, error) {
	var data struct {
		Notebook Notebook `json:"notebook"`
	}
	if err := c.post(ctx, "/api/notebook/createNotebook", map[string]string{"name": name}, &data); err != nil {
		return Notebook{}, err
	}
	return data.Notebook, nil
}

// OpenNotebook opens a closed notebook.
func (c *Client) OpenNotebook(ctx context.Context, id string) error {
	return c.post(ctx, "/api/notebook/openNotebook", map[string]string{"notebook": id}, nil)
}

// QuerySQL runs a SQL statement against the kernel's block metadata.
func (c *Client) QuerySQL(ctx context.Context, stmt string) ([]SQLBlock, error) {
	var rows []SQLBlock
	if err := c.post(ctx, "/api/sql/query", map[string]string{"stmt": stmt}, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateDocWithMarkdown creates a document at path inside the notebook
// and returns the new document id.
func (c *Client) CreateDocWithMarkdown(ctx context.Context, notebook, path, markdown string) (string, error) {
	var docID string
	err := c.post(ctx, "/api/filetree/createDocWithMd", map[string]string{
		"notebook": notebook,
		"path":     path,
		"markdown": markdown,
	}, &docID)
	if err != nil {
		return "", err
	}
	return docID, nil
}

// AppendBlock appends a child block under parentID and returns the new
// block id. dataType is "markdown" or "dom". An empty id in the ack is
// returned as-is; callers decide whether that is fatal.
func (c *Client) AppendBlock(ctx context.Context, parentID, dataType, data string) (string, error) {
	var result struct {
		DoOperations []struct {
			ID string `json:"id"`
		} `json:"doOperations"`
	}
	err := c.post(ctx, "/api/block/appendBlock", map[string]string{
		"parentID": parentID,
		"dataType": dataType,
		"data":     data,
	}, &result)
	if err != nil {
		return "", err
	}
	if len(result.DoOperations) == 0 {
		return "", nil
	}
	return result.DoOperations[0].ID, nil
}

// GetChildBlocks lists the direct children of a block or document.
func (c *Client) GetChildBlocks(ctx context.Context, id string) ([]ChildBlock, error) {
	var blocks []ChildBlock
	if err := c.post(ctx, "/api/block/getChildBlocks", map[string]string{"id": id}, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// SetBlockAttrs sets custom attributes on a block.
func (c *Client) SetBlockAttrs(ctx context.Context, id string, attrs map[string]string) error {
	return c.post(ctx, "/api/attr/setBlockAttrs", map[string]any{"id": id, "attrs": attrs}, nil)
}

// GetBlockAttrs reads all attributes of a block.
func (c *Client) GetBlockAttrs(ctx context.Context, id string) (map[string]string, error) {
	attrs := map[string]string{}
	if err := c.post(ctx, "/api/attr/getBlockAttrs", map[string]string{"id": id}, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// GetAttributeView fetches an attribute view by id. The second return
// is false when the kernel reports no such view.
func (c *Client) GetAttributeView(ctx context.Context, avID string) (bool, error) {
	var data struct {
		AV *struct {
			ID string `json:"id"`
		} `json:"av"`
	}
	if err := c.post(ctx, "/api/av/getAttributeView", map[string]string{"id": avID}, &data); err != nil {
		return false, err
	}
	return data.AV != nil && data.AV.ID != "", nil
}

// GetAttributeViewKeys lists the columns of an attribute view.
func (c *Client) GetAttributeViewKeys(ctx context.Context, avID string) ([]AttributeViewKey, error) {
	var entries []struct {
		Key AttributeViewKey `json:"key"`
	}
	if err := c.post(ctx, "/api/av/getAttributeViewKeys", map[string]string{"avID": avID}, &entries); err != nil {
		return nil, err
	}
	keys := make([]AttributeViewKey, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys, nil
}

// AddAttributeViewColumn adds a column to an attribute view via the
// transaction endpoint. previousKeyID positions the new column after an
// existing one; empty appends at the end.
func (c *Client) AddAttributeViewColumn(ctx context.Context, avID, keyID, name, typ, previousKeyID string) error {
	op := map[string]any{
		"action": "addAttrViewCol",
		"avID":   avID,
		"id":     keyID,
		"name":   name,
		"typ":    typ,
	}
	if previousKeyID != "" {
		op["previousID"] = previousKeyID
	}
	payload := map[string]any{
		"transactions": []map[string]any{
			{"doOperations": []map[string]any{op}},
		},
	}
	return c.post(ctx, "/api/transactions", payload, nil)
}

// AppendDetachedRow appends one detached row with the given cell values.
func (c *Client) AppendDetachedRow(ctx context.Context, avID string, values []AttributeValue) error {
	payload := map[string]any{
		"avID":         avID,
		"blocksValues": [][]AttributeValue{values},
	}
	return c.post(ctx, "/api/av/appendAttributeViewDetachedBlocksWithValues", payload, nil)
}
