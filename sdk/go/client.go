package fieldlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Fieldline HTTP API client.
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

// User is an account.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// Task represents the API task model.
type Task struct {
	ID            int64    `json:"id"`
	Description   string   `json:"description"`
	Location      string   `json:"location"`
	EstimatedCost float64  `json:"estimated_cost"`
	FinalCost     *float64 `json:"final_cost,omitempty"`
	Status        string   `json:"status"`
	Priority      string   `json:"priority"`
	Deadline      *string  `json:"deadline,omitempty"`
	Dependencies  []int64  `json:"dependencies,omitempty"`
	Comments      string   `json:"comments,omitempty"`
	Attachments   []string `json:"attachments,omitempty"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

// Estimate is a cost rollup over tasks.
type Estimate struct {
	ID                 int64   `json:"id"`
	TaskIDs            []int64 `json:"task_ids"`
	TotalEstimatedCost float64 `json:"total_estimated_cost"`
	Region             string  `json:"region"`
	Store              string  `json:"store"`
	Manager            string  `json:"manager"`
	CreatedAt          string  `json:"created_at"`
}

// Invoice is a final-cost rollup over tasks.
type Invoice struct {
	ID             int64   `json:"id"`
	TaskIDs        []int64 `json:"task_ids"`
	TotalFinalCost float64 `json:"total_final_cost"`
	Region         string  `json:"region"`
	Store          string  `json:"store"`
	Manager        string  `json:"manager"`
	CreatedAt      string  `json:"created_at"`
}

// InventoryItem is a stocked part.
type InventoryItem struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Location string `json:"location"`
	TaskID   *int64 `json:"task_id,omitempty"`
}

// ValidatedAddress is a normalized address.
type ValidatedAddress struct {
	Input      string `json:"input"`
	Normalized string `json:"normalized"`
	Provider   string `json:"provider"`
}

// DriveTime is a travel estimate in minutes.
type DriveTime struct {
	Minutes  float64 `json:"minutes"`
	Provider string  `json:"provider"`
}

// TokenResponse is returned by Login.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	User      User   `json:"user"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password, role string) (User, error) {
	body := map[string]any{"username": username, "password": password, "role": role}
	var resp User
	err := c.do(ctx, http.MethodPost, "v1/auth/register", body, &resp)
	return resp, err
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (TokenResponse, error) {
	body := map[string]any{"username": username, "password": password}
	var resp TokenResponse
	if err := c.do(ctx, http.MethodPost, "v1/auth/login", body, &resp); err != nil {
		return resp, err
	}
	c.BearerToken = resp.Token
	return resp, nil
}

// CreateTask creates a task. New tasks always start as Not Started.
func (c *Client) CreateTask(ctx context.Context, description, location string, estimatedCost float64, priority string) (Task, error) {
	body := map[string]any{
		"description":    description,
		"location":       location,
		"estimated_cost": estimatedCost,
		"priority":       priority,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v1/tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/tasks/%d", id), nil, &resp)
	return resp, err
}

// ListTasks lists tasks, optionally filtered by status and priority.
func (c *Client) ListTasks(ctx context.Context, status, priority string) ([]Task, error) {
	endpoint := "v1/tasks"
	var params []string
	if status != "" {
		params = append(params, "status="+status)
	}
	if priority != "" {
		params = append(params, "priority="+priority)
	}
	if len(params) > 0 {
		endpoint += "?" + strings.Join(params, "&")
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetPriority changes a task's priority.
func (c *Client) SetPriority(ctx context.Context, id int64, priority string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("v1/tasks/%d/priority", id), map[string]any{"priority": priority}, &resp)
	return resp, err
}

// OrderList returns inventory item ids to reorder for a task.
func (c *Client) OrderList(ctx context.Context, taskID int64) ([]int64, error) {
	var resp struct {
		TaskID  int64   `json:"task_id"`
		ItemIDs []int64 `json:"item_ids"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/tasks/%d/order-list", taskID), nil, &resp)
	return resp.ItemIDs, err
}

// CreateEstimate creates an estimate over tasks.
func (c *Client) CreateEstimate(ctx context.Context, taskIDs []int64, total float64) (Estimate, error) {
	var resp Estimate
	err := c.do(ctx, http.MethodPost, "v1/estimates", map[string]any{"task_ids": taskIDs, "total": total}, &resp)
	return resp, err
}

// CreateInvoice creates an invoice over tasks.
func (c *Client) CreateInvoice(ctx context.Context, taskIDs []int64, total float64) (Invoice, error) {
	var resp Invoice
	err := c.do(ctx, http.MethodPost, "v1/invoices", map[string]any{"task_ids": taskIDs, "total": total}, &resp)
	return resp, err
}

// ValidateAddress normalizes an address via the server's provider cascade.
func (c *Client) ValidateAddress(ctx context.Context, address string) (ValidatedAddress, error) {
	var resp ValidatedAddress
	err := c.do(ctx, http.MethodPost, "v1/address/validate", map[string]any{"address": address}, &resp)
	return resp, err
}

// DriveTime estimates travel time between two addresses.
func (c *Client) DriveTime(ctx context.Context, origin, destination string) (DriveTime, error) {
	var resp DriveTime
	err := c.do(ctx, http.MethodPost, "v1/drive-time", map[string]any{"origin": origin, "destination": destination}, &resp)
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
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
