package approval

import (
	"context"
	"log/slog"
)

// Requests is the persistence surface the gate needs. Implemented by
// Store; narrowed here so tests can supply fakes.
type Requests interface {
	CreateRequest(ctx context.Context, r *Request) (*Request, error)
	GetRequest(ctx context.Context, id string) (*Request, error)
	ListRequests(ctx context.Context, params ListParams) ([]*Request, string, error)
	Transition(ctx context.Context, id, from, to, decidedBy string) (*Request, error)
	PausePending(ctx context.Context, userID string) (int64, error)
	ResumePaused(ctx context.Context, userID string) (int64, error)
	CreateHandoff(ctx context.Context, h *Handoff) (*Handoff, error)
	ListHandoffs(ctx context.Context, fromAgentID string, limit int) ([]*Handoff, error)
}

// Gate creates and transitions approval requests. Every request starts
// pending; approval only ever arrives from a human decision.
type Gate struct {
	store  Requests
	logger *slog.Logger
}

// NewGate creates a Gate over the given store.
func NewGate(store Requests, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: store, logger: logger}
}

// RequestApproval classifies the content's impact and persists a pending
// approval request.
func (g *Gate) RequestApproval(ctx context.Context, agentID, userID string, content Content) (*Request, error) {
	req := &Request{
		AgentID:       agentID,
		UserID:        userID,
		ContentType:   content.ContentType,
		Title:         content.Title,
		Preview:       content.Preview,
		Payload:       content.Payload,
		ImpactLevel:   ClassifyImpact(content),
		EstimatedCost: content.EstimatedCost,
	}

	created, err := g.store.CreateRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	g.logger.Info("approval requested",
		slog.String("request_id", created.ID),
		slog.String("agent_id", agentID),
		slog.String("content_type", content.ContentType),
		slog.String("impact_level", created.ImpactLevel))
	return created, nil
}

// Approve moves a pending request to approved.
func (g *Gate) Approve(ctx context.Context, id, decidedBy string) (*Request, error) {
	return g.store.Transition(ctx, id, StatusPending, StatusApproved, decidedBy)
}

// Reject moves a pending request to rejected.
func (g *Gate) Reject(ctx context.Context, id, decidedBy string) (*Request, error) {
	return g.store.Transition(ctx, id, StatusPending, StatusRejected, decidedBy)
}

// Get retrieves a single request.
func (g *Gate) Get(ctx context.Context, id string) (*Request, error) {
	return g.store.GetRequest(ctx, id)
}

// List returns a page of the user's requests.
func (g *Gate) List(ctx context.Context, params ListParams) ([]*Request, string, error) {
	return g.store.ListRequests(ctx, params)
}

// PauseAllPending detours every pending request of the user to
// emergency_paused. Invoked only by the global emergency stop.
func (g *Gate) PauseAllPending(ctx context.Context, userID string) (int64, error) {
	n, err := g.store.PausePending(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.logger.Warn("pending approvals emergency paused",
			slog.String("user_id", userID), slog.Int64("count", n))
	}
	return n, nil
}

// ResumePaused lifts the emergency detour, returning paused requests to
// pending.
func (g *Gate) ResumePaused(ctx context.Context, userID string) (int64, error) {
	return g.store.ResumePaused(ctx, userID)
}

// RequestHandoff persists a handoff to the human operator. Delivery of the
// notification belongs to an external collaborator.
func (g *Gate) RequestHandoff(ctx context.Context, agentID, conversationID, contextSummary, urgency string) (*Handoff, error) {
	h := &Handoff{
		FromAgentID:    agentID,
		TargetType:     TargetHuman,
		RequestType:    "guidance",
		ContextSummary: contextSummary,
		Urgency:        urgency,
		ConversationID: conversationID,
	}

	created, err := g.store.CreateHandoff(ctx, h)
	if err != nil {
		return nil, err
	}

	g.logger.Info("handoff requested",
		slog.String("handoff_id", created.ID),
		slog.String("agent_id", agentID),
		slog.String("urgency", urgency))
	return created, nil
}

// ListHandoffs returns the agent's handoff requests, newest first.
func (g *Gate) ListHandoffs(ctx context.Context, agentID string, limit int) ([]*Handoff, error) {
	return g.store.ListHandoffs(ctx, agentID, limit)
}
