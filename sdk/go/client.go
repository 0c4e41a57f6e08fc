package missiondesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Missiondesk HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base path,
// for example http://127.0.0.1:3001/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User is the API user model.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// IsAdmin reports whether the user has the administrator role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

const (
	RoleAdmin    = "مدیر"
	RoleEmployee = "کارمند"

	StatusNew        = "جدید"
	StatusInProgress = "در حال انجام"
	StatusCompleted  = "تکمیل شده"
)

type ChecklistItem struct {
	Category string   `json:"category"`
	Steps    []string `json:"steps"`
}

// ChecklistState maps category to step to done.
type ChecklistState map[string]map[string]bool

type Report struct {
	ID                string         `json:"id"`
	ReporterID        string         `json:"reporterId"`
	CreatedAt         string         `json:"createdAt"`
	DepartureTime     string         `json:"departureTime"`
	ReturnTime        string         `json:"returnTime"`
	Summary           string         `json:"summary"`
	ChecklistSnapshot ChecklistState `json:"checklistSnapshot"`
}

// Mission is the API mission model.
type Mission struct {
	ID               string          `json:"id"`
	Subject          string          `json:"subject"`
	Location         string          `json:"location"`
	StartTime        string          `json:"starttime"`
	EndTime          string          `json:"endtime"`
	Status           string          `json:"status"`
	CreatedBy        string          `json:"createdby"`
	AssignedTo       string          `json:"assignedto"`
	CreatedAt        string          `json:"createdat"`
	Checklist        []ChecklistItem `json:"checklist"`
	ChecklistState   ChecklistState  `json:"checkliststate"`
	Reports          []Report        `json:"reports"`
	DelegatedBy      *string         `json:"delegated_by"`
	DelegationTarget *string         `json:"delegation_target"`
	DelegationReason *string         `json:"delegation_reason"`
	DelegationStatus *string         `json:"delegation_status"`
	DelegationCount  int             `json:"delegation_count"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type Performance struct {
	UserID              string         `json:"userId"`
	Assigned            int            `json:"assigned"`
	ByStatus            map[string]int `json:"byStatus"`
	ReportsFiled        int            `json:"reportsFiled"`
	DelegationsSent     int            `json:"delegationsSent"`
	DelegationsReceived int            `json:"delegationsReceived"`
	ChecklistDone       int            `json:"checklistDone"`
	ChecklistTotal      int            `json:"checklistTotal"`
}

// APIError wraps non-2xx responses. Message is the server's localized text.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type NewUser struct {
	Name       string `json:"name"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// UserChanges lists fields to change; nil fields are left alone.
type UserChanges struct {
	Name       *string `json:"name,omitempty"`
	Password   *string `json:"password,omitempty"`
	Role       *string `json:"role,omitempty"`
	Department *string `json:"department,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

type NewMission struct {
	Subject    string          `json:"subject"`
	Location   string          `json:"location"`
	StartTime  string          `json:"starttime"`
	EndTime    string          `json:"endtime"`
	AssignedTo string          `json:"assignedto"`
	CreatedBy  string          `json:"createdby"`
	Checklist  []ChecklistItem `json:"checklist,omitempty"`
}

type ReportInput struct {
	Status         string         `json:"status"`
	DepartureTime  string         `json:"departureTime,omitempty"`
	ReturnTime     string         `json:"returnTime,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	ChecklistState ChecklistState `json:"checklistState,omitempty"`
}

// MissionQuery selects missions. The zero value lists every mission.
type MissionQuery struct {
	View   string
	UserID string
	Status string
}

// Login checks credentials and returns a session for the user. When the server
// signs tokens the session carries one and uses it on every call.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var u User
	hdr, err := c.doHeaders(ctx, http.MethodPost, "login", map[string]string{
		"username": username,
		"password": password,
	}, &u)
	if err != nil {
		return nil, err
	}
	s := &Session{User: u, Token: hdr.Get("X-Auth-Token")}
	if exp := hdr.Get("X-Auth-Expires"); exp != "" {
		if t, err := time.Parse(time.RFC3339, exp); err == nil {
			s.Expires = t
		}
	}
	clone := *c
	if s.Token != "" {
		clone.BearerToken = s.Token
	}
	s.client = &clone
	return s, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var resp []User
	err := c.do(ctx, http.MethodGet, "users", nil, &resp)
	return resp, err
}

func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "users/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateUser creates a user and returns its id.
func (c *Client) CreateUser(ctx context.Context, u NewUser) (string, error) {
	hdr, err := c.doHeaders(ctx, http.MethodPost, "users", u, nil)
	if err != nil {
		return "", err
	}
	return path.Base(hdr.Get("Location")), nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, changes UserChanges) error {
	return c.do(ctx, http.MethodPut, "users/"+url.PathEscape(id), changes, nil)
}

// DeleteUser removes the user together with every mission assigned to them.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "users/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Performance(ctx context.Context, userID string) (Performance, error) {
	var resp Performance
	err := c.do(ctx, http.MethodGet, "users/"+url.PathEscape(userID)+"/performance", nil, &resp)
	return resp, err
}

func (c *Client) ListMissions(ctx context.Context, q MissionQuery) ([]Mission, error) {
	params := url.Values{}
	if q.View != "" {
		params.Set("view", q.View)
	}
	if q.UserID != "" {
		params.Set("userId", q.UserID)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	endpoint := "missions"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp []Mission
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) GetMission(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, "missions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateMission creates a mission and returns its id.
func (c *Client) CreateMission(ctx context.Context, m NewMission) (string, error) {
	hdr, err := c.doHeaders(ctx, http.MethodPost, "missions", m, nil)
	if err != nil {
		return "", err
	}
	return path.Base(hdr.Get("Location")), nil
}

// PurgeUserMissions deletes every mission assigned to userID.
func (c *Client) PurgeUserMissions(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "missions/user/"+url.PathEscape(userID), nil, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	_, err := c.doHeaders(ctx, method, endpoint, body, out)
	return err
}

func (c *Client) doHeaders(ctx context.Context, method, endpoint string, body any, out any) (http.Header, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(b, &msg) == nil {
			apiErr.Message = msg.Message
		}
		return resp.Header, apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, err
		}
	}
	return resp.Header, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
