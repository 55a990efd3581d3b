package approval

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a request does not exist.
var ErrNotFound = errors.New("approval: request not found")

// Store provides database operations for approval and handoff requests.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new approval store backed by the given connection
// pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const requestColumns = `id, agent_id, user_id, content_type, title, preview, payload,
	 impact_level, estimated_cost, status, created_at, decided_at, decided_by`

func scanRequest(row pgx.Row) (*Request, error) {
	r := &Request{}
	var decidedBy *string
	err := row.Scan(&r.ID, &r.AgentID, &r.UserID, &r.ContentType, &r.Title,
		&r.Preview, &r.Payload, &r.ImpactLevel, &r.EstimatedCost, &r.Status,
		&r.CreatedAt, &r.DecidedAt, &decidedBy)
	if err != nil {
		return nil, err
	}
	if decidedBy != nil {
		r.DecidedBy = *decidedBy
	}
	return r, nil
}

// CreateRequest inserts an approval request. Status is forced to pending
// at the SQL level regardless of the input.
func (s *Store) CreateRequest(ctx context.Context, r *Request) (*Request, error) {
	created, err := scanRequest(s.pool.QueryRow(ctx,
		`INSERT INTO approval_requests (agent_id, user_id, content_type, title, preview, payload, impact_level, estimated_cost, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		 RETURNING `+requestColumns,
		r.AgentID, r.UserID, r.ContentType, r.Title, r.Preview, r.Payload, r.ImpactLevel, r.EstimatedCost,
	))
	if err != nil {
		return nil, fmt.Errorf("creating approval request: %w", err)
	}
	return created, nil
}

// GetRequest retrieves an approval request by id.
func (s *Store) GetRequest(ctx context.Context, id string) (*Request, error) {
	r, err := scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM approval_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting approval request: %w", err)
	}
	return r, nil
}

// ListParams filters and paginates a request listing.
type ListParams struct {
	UserID string
	Status string
	Limit  int
	Cursor string
}

// ListRequests returns a page of the user's approval requests ordered by
// created_at DESC, id DESC, with cursor-based pagination. It returns the
// requests, the next cursor (empty if no more results), and any error.
func (s *Store) ListRequests(ctx context.Context, params ListParams) ([]*Request, string, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE user_id = $1`
	args := []any{params.UserID}

	if params.Status != "" {
		args = append(args, params.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if params.Cursor != "" {
		cursorTime, cursorID, err := decodeCursor(params.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		args = append(args, cursorTime, cursorID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing approval requests: %w", err)
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scanning approval request row: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating approval request rows: %w", err)
	}

	var nextCursor string
	if len(requests) > limit {
		last := requests[limit-1]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
		requests = requests[:limit]
	}
	return requests, nextCursor, nil
}

// Transition moves a request from one status to another, guarded at the
// SQL level so a concurrent decision cannot double-apply. decidedBy is
// recorded for terminal decisions.
func (s *Store) Transition(ctx context.Context, id, from, to, decidedBy string) (*Request, error) {
	if !validTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	var decidedAt *time.Time
	var by *string
	if to == StatusApproved || to == StatusRejected {
		now := time.Now().UTC()
		decidedAt = &now
		if decidedBy != "" {
			by = &decidedBy
		}
	}

	r, err := scanRequest(s.pool.QueryRow(ctx,
		`UPDATE approval_requests
		 SET status = $1, decided_at = $2, decided_by = $3
		 WHERE id = $4 AND status = $5
		 RETURNING `+requestColumns,
		to, decidedAt, by, id, from,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the id is unknown or the row is no longer in the expected
		// status. Tell them apart for the caller.
		if _, getErr := s.GetRequest(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: request %s is not %s", ErrInvalidTransition, id, from)
	}
	if err != nil {
		return nil, fmt.Errorf("transitioning approval request: %w", err)
	}
	return r, nil
}

// PausePending flips every pending request of the user to emergency_paused.
// Returns the number of rows paused.
func (s *Store) PausePending(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE approval_requests SET status = $1 WHERE user_id = $2 AND status = $3`,
		StatusEmergencyPaused, userID, StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("pausing pending requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResumePaused returns every emergency_paused request of the user to
// pending.
func (s *Store) ResumePaused(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE approval_requests SET status = $1 WHERE user_id = $2 AND status = $3`,
		StatusPending, userID, StatusEmergencyPaused,
	)
	if err != nil {
		return 0, fmt.Errorf("resuming paused requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateHandoff inserts a handoff request with status pending.
func (s *Store) CreateHandoff(ctx context.Context, h *Handoff) (*Handoff, error) {
	created := &Handoff{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO handoff_requests (from_agent_id, target_type, target_id, request_type, context_summary, urgency, conversation_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		 RETURNING id, from_agent_id, target_type, target_id, request_type, context_summary, urgency, conversation_id, status, created_at`,
		h.FromAgentID, h.TargetType, h.TargetID, h.RequestType, h.ContextSummary, h.Urgency, h.ConversationID,
	).Scan(&created.ID, &created.FromAgentID, &created.TargetType, &created.TargetID,
		&created.RequestType, &created.ContextSummary, &created.Urgency,
		&created.ConversationID, &created.Status, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating handoff request: %w", err)
	}
	return created, nil
}

// ListHandoffs returns the agent's handoff requests, newest first.
func (s *Store) ListHandoffs(ctx context.Context, fromAgentID string, limit int) ([]*Handoff, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, from_agent_id, target_type, target_id, request_type, context_summary, urgency, conversation_id, status, created_at
		 FROM handoff_requests
		 WHERE from_agent_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		fromAgentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing handoff requests: %w", err)
	}
	defer rows.Close()

	var handoffs []*Handoff
	for rows.Next() {
		h := &Handoff{}
		if err := rows.Scan(&h.ID, &h.FromAgentID, &h.TargetType, &h.TargetID,
			&h.RequestType, &h.ContextSummary, &h.Urgency, &h.ConversationID,
			&h.Status, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning handoff row: %w", err)
		}
		handoffs = append(handoffs, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating handoff rows: %w", err)
	}
	return handoffs, nil
}

// encodeCursor packs a created_at/id pair into an opaque cursor.
func encodeCursor(createdAt time.Time, id string) string {
	raw := createdAt.Format(time.RFC3339Nano) + "|" + id
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// decodeCursor parses a base64 cursor back into its created_at and id
// parts.
func decodeCursor(cursor string) (time.Time, string, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decoding cursor base64: %w", err)
	}

	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}

	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parsing cursor time: %w", err)
	}

	return t, parts[1], nil
}
