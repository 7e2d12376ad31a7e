package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conductor/orchestrator"
)

func (c *Client) registerHandlers() {
	c.handlers[TypeListAgents] = c.handleListAgents
	c.handlers[TypeViewLog] = c.handleViewLog
	c.handlers[TypeCancelAgent] = c.handleCancelAgent
}

func (c *Client) handleListAgents(ctx context.Context, env *Envelope) (*Envelope, error) {
	ctrl, err := c.controller()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	records := ctrl.List()
	agents := make([]AgentInfo, 0, len(records))
	for _, rec := range records {
		agents = append(agents, RecordToAgentInfo(rec, now))
	}
	return NewResponse(env.RequestID, TypeListAgentsResult, &ListAgentsResultPayload{Agents: agents})
}

func (c *Client) handleViewLog(ctx context.Context, env *Envelope) (*Envelope, error) {
	var payload ViewLogPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode view_log: %w", err)
	}

	ctrl, err := c.controller()
	if err != nil {
		return nil, err
	}
	view, err := ctrl.ViewLog(payload.AgentID)
	if err != nil {
		return nil, fmt.Errorf("view log %s: %w", payload.AgentID, err)
	}
	return NewResponse(env.RequestID, TypeViewLogResult, &ViewLogResultPayload{
		AgentID:    view.AgentID,
		Body:       view.Body,
		Summarized: view.Summarized,
	})
}

func (c *Client) handleCancelAgent(ctx context.Context, env *Envelope) (*Envelope, error) {
	var payload CancelAgentPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode cancel_agent: %w", err)
	}

	ctrl, err := c.controller()
	if err != nil {
		return nil, err
	}

	c.logger.Info("cancel requested by relay", "agent_id", payload.AgentID)
	result := CancelAgentResultPayload{AgentID: payload.AgentID, Cancelled: true}

	err = ctrl.Cancel(ctx, payload.AgentID)
	var timeout *orchestrator.CancellationTimeout
	switch {
	case err == nil:
	case errors.As(err, &timeout):
		result.Forced = true
		result.Error = err.Error()
	case errors.Is(err, orchestrator.ErrAgentNotFound):
		return nil, fmt.Errorf("cancel %s: %w", payload.AgentID, err)
	default:
		result.Cancelled = false
		result.Error = err.Error()
	}
	return NewResponse(env.RequestID, TypeCancelAgentResult, &result)
}
