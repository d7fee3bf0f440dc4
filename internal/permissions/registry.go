// Package permissions tracks human confirmation requests for sensitive
// agent actions.
package permissions

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound   = errors.New("permission request not found")
	ErrNotPending = errors.New("permission request already resolved")
)

// Status is the lifecycle state of a confirmation request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Decision values carried in a resolution.
const (
	DecisionApprove = "approve"
	DecisionDeny    = "deny"
)

// Response is the resolution payload returned to the polling hook.
type Response struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// Request is a single confirmation sought from the operator.
type Request struct {
	RequestID   string         `json:"request_id"`
	SessionID   string         `json:"session_id"`
	ToolName    string         `json:"tool_name"`
	Command     string         `json:"command"`
	FullInput   map[string]any `json:"full_input,omitempty"`
	Status      Status         `json:"status"`
	Response    *Response      `json:"response,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	RespondedAt *time.Time     `json:"responded_at,omitempty"`
}

// LookupState is what GetResponse reports to the polling side.
type LookupState string

const (
	LookupPending   LookupState = "pending"
	LookupResponded LookupState = "responded"
	LookupNotFound  LookupState = "not_found"
)

// Lookup pairs a state with the resolution, if any.
type Lookup struct {
	Status   LookupState `json:"status"`
	Response *Response   `json:"response,omitempty"`
}

// Registry tracks pending and resolved confirmation requests. A coarse mutex
// guards the maps; nothing slow ever runs under it.
type Registry struct {
	mu             sync.Mutex
	requests       map[string]*Request
	bySession      map[string][]string // session id -> request ids, creation order
	defaultTimeout time.Duration
}

// NewRegistry creates a Registry. Requests still pending after defaultTimeout
// are treated as denied when next read.
func NewRegistry(defaultTimeout time.Duration) *Registry {
	if defaultTimeout <= 0 {
		defaultTimeout = time.Hour
	}
	return &Registry{
		requests:       make(map[string]*Request),
		bySession:      make(map[string][]string),
		defaultTimeout: defaultTimeout,
	}
}

// Create stores a new pending request. The id is supplied by the requester
// and must be globally unique.
func (r *Registry) Create(requestID, sessionID, toolName, command string, fullInput map[string]any) *Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := &Request{
		RequestID: requestID,
		SessionID: sessionID,
		ToolName:  toolName,
		Command:   command,
		FullInput: fullInput,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	r.requests[requestID] = req
	r.bySession[sessionID] = append(r.bySession[sessionID], requestID)
	return req
}

// Respond resolves a pending request. The first call wins: any later call on
// the same id observes a non-pending state and fails without side effect.
// Decisions approve/yes/ok/y normalize to approved, everything else to denied.
func (r *Registry) Respond(requestID, decision, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	if req.Status != StatusPending {
		return ErrNotPending
	}

	normalized := DecisionDeny
	switch decision {
	case "approve", "yes", "ok", "y":
		normalized = DecisionApprove
		req.Status = StatusApproved
	default:
		req.Status = StatusDenied
	}

	now := time.Now()
	req.Response = &Response{Decision: normalized, Reason: reason}
	req.RespondedAt = &now
	return nil
}

// GetResponse reports the resolution state of a request. A pending request
// older than the default timeout is lazily transitioned to expired
// (decision deny, reason "request expired") at read time.
func (r *Registry) GetResponse(requestID string) Lookup {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[requestID]
	if !ok {
		return Lookup{Status: LookupNotFound}
	}

	if req.Status == StatusPending && time.Since(req.CreatedAt) > r.defaultTimeout {
		r.expireLocked(req, time.Now())
	}

	if req.Status == StatusPending {
		return Lookup{Status: LookupPending}
	}
	return Lookup{Status: LookupResponded, Response: req.Response}
}

// Get returns a request by id.
func (r *Registry) Get(requestID string) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	return req, ok
}

// PendingForSession returns all still-pending requests of a session in
// creation order.
func (r *Registry) PendingForSession(sessionID string) []*Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*Request
	for _, id := range r.bySession[sessionID] {
		if req, ok := r.requests[id]; ok && req.Status == StatusPending {
			pending = append(pending, req)
		}
	}
	return pending
}

// LatestPending returns the most recently created pending request for a
// session, used to route a bare approve/deny reply. Older pending requests
// are only addressable by id.
func (r *Registry) LatestPending(sessionID string) (*Request, bool) {
	pending := r.PendingForSession(sessionID)
	if len(pending) == 0 {
		return nil, false
	}
	return pending[len(pending)-1], true
}

// CancelAllForSession transitions every pending request of a session to
// cancelled with a deny resolution. Returns the number cancelled.
func (r *Registry) CancelAllForSession(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	now := time.Now()
	for _, id := range r.bySession[sessionID] {
		req, ok := r.requests[id]
		if !ok || req.Status != StatusPending {
			continue
		}
		req.Status = StatusCancelled
		req.Response = &Response{Decision: DecisionDeny, Reason: "task cancelled by user"}
		req.RespondedAt = &now
		count++
	}
	return count
}

// ExpireStale transitions every pending request older than the default
// timeout to expired. The janitor calls this so requests that are never
// polled again still converge.
func (r *Registry) ExpireStale() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	now := time.Now()
	for _, req := range r.requests {
		if req.Status == StatusPending && now.Sub(req.CreatedAt) > r.defaultTimeout {
			r.expireLocked(req, now)
			count++
		}
	}
	return count
}

func (r *Registry) expireLocked(req *Request, now time.Time) {
	req.Status = StatusExpired
	req.Response = &Response{Decision: DecisionDeny, Reason: "request expired"}
	req.RespondedAt = &now
}

// PurgeResolved removes resolved requests whose resolution (or creation, if
// never resolved) is older than maxAge, keeping the session index consistent.
// Returns the number removed.
func (r *Registry) PurgeResolved(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	purged := 0
	for id, req := range r.requests {
		if req.Status == StatusPending {
			continue
		}
		at := req.CreatedAt
		if req.RespondedAt != nil {
			at = *req.RespondedAt
		}
		if at.After(cutoff) {
			continue
		}

		delete(r.requests, id)
		r.bySession[req.SessionID] = remove(r.bySession[req.SessionID], id)
		if len(r.bySession[req.SessionID]) == 0 {
			delete(r.bySession, req.SessionID)
		}
		purged++
	}
	return purged
}

// PendingCount returns the number of unresolved requests.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, req := range r.requests {
		if req.Status == StatusPending {
			n++
		}
	}
	return n
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
