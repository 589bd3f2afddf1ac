package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/knowyourdev/knowyourdev/internal/model"
)

// SaveAgentState stores the latest published state of an agent instance.
func (db *DB) SaveAgentState(ctx context.Context, researchID string, state model.AgentState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("storage: marshal agent state: %w", err)
	}
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO agent_states (research_id, status, state, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (research_id) DO UPDATE SET
		     status = EXCLUDED.status,
		     state = EXCLUDED.state,
		     updated_at = now()`,
		researchID, string(state.Status), data,
	); err != nil {
		return fmt.Errorf("storage: save agent state: %w", err)
	}
	return nil
}

// GetAgentState returns the last stored state of an agent instance.
func (db *DB) GetAgentState(ctx context.Context, researchID string) (model.AgentState, error) {
	var data []byte
	err := db.pool.QueryRow(ctx,
		`SELECT state FROM agent_states WHERE research_id = $1`, researchID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AgentState{}, fmt.Errorf("storage: agent state %s: %w", researchID, ErrNotFound)
		}
		return model.AgentState{}, fmt.Errorf("storage: get agent state: %w", err)
	}
	state, err := model.ParseAgentState(data)
	if err != nil {
		return model.AgentState{}, fmt.Errorf("storage: decode agent state %s: %w", researchID, err)
	}
	return state, nil
}
