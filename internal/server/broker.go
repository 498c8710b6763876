package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aladin147/FlowCode-sub002/internal/coordinator"
	"github.com/Aladin147/FlowCode-sub002/internal/logger"
)

// pendingApproval tracks one approval request waiting for a client decision.
type pendingApproval struct {
	req      coordinator.ApprovalRequest
	created  time.Time
	response chan coordinator.ApprovalDecision
	once     sync.Once
}

func (p *pendingApproval) resolve(d coordinator.ApprovalDecision) bool {
	resolved := false
	p.once.Do(func() {
		p.response <- d
		resolved = true
	})
	return resolved
}

// ApprovalBroker parks approval requests from the coordinator until an API
// client resolves them. Each request resolves exactly once; an unanswered
// request ends when the coordinator's deadline cancels the context, at
// which point the coordinator applies the auto-approval policy.
type ApprovalBroker struct {
	log *logger.Logger

	mu      sync.Mutex
	pending map[string]*pendingApproval
}

// NewApprovalBroker returns an empty broker.
func NewApprovalBroker(log *logger.Logger) *ApprovalBroker {
	if log == nil {
		log = logger.Global()
	}
	return &ApprovalBroker{
		log:     log.WithPrefix("approvals"),
		pending: make(map[string]*pendingApproval),
	}
}

// RequestApproval implements coordinator.Approver.
func (b *ApprovalBroker) RequestApproval(ctx context.Context, req coordinator.ApprovalRequest) (coordinator.ApprovalDecision, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	p := &pendingApproval{
		req:      req,
		created:  time.Now(),
		response: make(chan coordinator.ApprovalDecision, 1),
	}

	b.mu.Lock()
	b.pending[req.ID] = p
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
	}()

	b.log.Info("approval %s pending for %s (risk %s)", req.ID, approvalSubject(req), req.RiskLevel)

	select {
	case decision := <-p.response:
		return decision, nil
	case <-ctx.Done():
		return coordinator.ApprovalDecision{}, ctx.Err()
	}
}

// Resolve answers a pending request. Resolving an unknown or already
// answered id is an error.
func (b *ApprovalBroker) Resolve(id string, decision coordinator.ApprovalDecision) error {
	b.mu.Lock()
	p, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending approval %s", id)
	}
	if !p.resolve(decision) {
		return fmt.Errorf("approval %s already resolved", id)
	}
	b.log.Info("approval %s resolved: approved=%v", id, decision.Approved)
	return nil
}

// PendingApproval is the wire form of a parked request.
type PendingApproval struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	StepID      string    `json:"step_id,omitempty"`
	RiskLevel   string    `json:"risk_level"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Pending lists unanswered requests, oldest first.
func (b *ApprovalBroker) Pending() []PendingApproval {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]PendingApproval, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, PendingApproval{
			ID:          p.req.ID,
			TaskID:      p.req.TaskID,
			StepID:      p.req.StepID,
			RiskLevel:   string(p.req.RiskLevel),
			Description: p.req.Description,
			CreatedAt:   p.created,
		})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func approvalSubject(req coordinator.ApprovalRequest) string {
	if req.StepID != "" {
		return "step " + req.StepID
	}
	return "task " + req.TaskID
}
