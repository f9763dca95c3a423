package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) PublicConfig(ctx context.Context) (*PublicConfig, error) {
	var out PublicConfig
	if err := c.do(ctx, http.MethodGet, "/config/public", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Availability(ctx context.Context, classroomID, assignmentID string) (*Availability, error) {
	path := "/schedule/" + url.PathEscape(classroomID) + "/availability"
	if assignmentID != "" {
		path += "?assignment_id=" + url.QueryEscape(assignmentID)
	}
	var out Availability
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type StartOptions struct {
	ClassroomID  string `json:"classroom_id,omitempty"`
	OverrideCode string `json:"override_code,omitempty"`
}

func (c *Client) StartSession(ctx context.Context, assignmentID string, opts StartOptions) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/assessments/"+url.PathEscape(assignmentID)+"/sessions", opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ReportIncident(ctx context.Context, sessionID string, in Incident) (*LedgerResult, error) {
	var out LedgerResult
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/incidents", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SecurityStatus(ctx context.Context, sessionID string) (*LedgerResult, error) {
	var out LedgerResult
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/security-status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Unlock(ctx context.Context, sessionID, code string) (*Session, error) {
	var out Session
	body := map[string]string{"bypass_code": code}
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/unlock", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Autosave(ctx context.Context, sessionID string, payload json.RawMessage) (*AutosaveResult, error) {
	var out AutosaveResult
	body := map[string]json.RawMessage{"payload": payload}
	if err := c.do(ctx, http.MethodPut, "/sessions/"+url.PathEscape(sessionID)+"/autosave", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit sends payload as the final answers; nil submits whatever was autosaved.
func (c *Client) Submit(ctx context.Context, sessionID string, payload json.RawMessage) (*Session, error) {
	var body interface{}
	if len(payload) > 0 {
		body = map[string]json.RawMessage{"payload": payload}
	}
	var out Session
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/submit", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) IssueCode(ctx context.Context, req IssueCodeRequest) (*Code, error) {
	var out Code
	if err := c.do(ctx, http.MethodPost, "/bypass-codes", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCodes(ctx context.Context, q CodeQuery) ([]Code, error) {
	v := url.Values{}
	if q.Scope != "" {
		v.Set("scope", q.Scope)
	}
	if q.ClassroomID != "" {
		v.Set("classroom_id", q.ClassroomID)
	}
	if q.Used != "" {
		v.Set("used", q.Used)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/bypass-codes"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out listEnvelope[Code]
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) RevokeCode(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/bypass-codes/"+url.PathEscape(id)+"/revoke", nil, nil)
}

func (c *Client) PutWindow(ctx context.Context, classroomID string, req PutWindowRequest) error {
	return c.do(ctx, http.MethodPut, "/schedule/"+url.PathEscape(classroomID), req, nil)
}

func (c *Client) PutAssessment(ctx context.Context, id, classroomID string, timeLimitSeconds int64) error {
	body := map[string]interface{}{"classroom_id": classroomID, "time_limit_seconds": timeLimitSeconds}
	return c.do(ctx, http.MethodPut, "/admin/assessments/"+url.PathEscape(id), body, nil)
}
