package wsbridge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageType names an envelope on the relay connection
type MessageType string

const (
	TypeRegister     MessageType = "register"
	TypeRegisterAck  MessageType = "register_ack"
	TypeHeartbeat    MessageType = "heartbeat"
	TypeHeartbeatAck MessageType = "heartbeat_ack"
	TypeError        MessageType = "error"

	// TypeEvent carries an orchestrator event, one-way
	TypeEvent MessageType = "event"

	TypeListAgents        MessageType = "list_agents"
	TypeListAgentsResult  MessageType = "list_agents_result"
	TypeViewLog           MessageType = "view_log"
	TypeViewLogResult     MessageType = "view_log_result"
	TypeCancelAgent       MessageType = "cancel_agent"
	TypeCancelAgentResult MessageType = "cancel_agent_result"
)

// Envelope is the unit of the relay protocol. Requests and their responses
// share a RequestID; events have none.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func newEnvelope(t MessageType, requestID string, payload any) (*Envelope, error) {
	env := &Envelope{Type: t, RequestID: requestID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Payload = data
	}
	return env, nil
}

// NewRequest creates an envelope with a fresh request id
func NewRequest(t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, uuid.New().String(), payload)
}

// NewResponse answers the request with the given id
func NewResponse(requestID string, t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, requestID, payload)
}

// NewEvent creates a one-way envelope
func NewEvent(t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, "", payload)
}

func NewError(requestID, code, message string) (*Envelope, error) {
	return newEnvelope(TypeError, requestID, &ErrorPayload{Code: code, Message: message})
}

// DecodePayload unmarshals the envelope payload into v
func DecodePayload(env *Envelope, v any) error {
	if env.Type == TypeError {
		var e ErrorPayload
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return fmt.Errorf("decode error payload: %w", err)
		}
		return fmt.Errorf("%s: %s", e.Code, e.Message)
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	return json.Unmarshal(env.Payload, v)
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RegisterPayload struct {
	InstanceName string       `json:"instance_name"`
	Version      string       `json:"version"`
	SessionID    string       `json:"session_id"`
	Instance     InstanceInfo `json:"instance"`
}

type RegisterAckPayload struct {
	Accepted   bool   `json:"accepted"`
	InstanceID string `json:"instance_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type HeartbeatAckPayload struct{}

type ListAgentsResultPayload struct {
	Agents []AgentInfo `json:"agents"`
}

type ViewLogPayload struct {
	AgentID string `json:"agent_id"`
}

type ViewLogResultPayload struct {
	AgentID    string `json:"agent_id"`
	Body       string `json:"body"`
	Summarized bool   `json:"summarized"`
}

type CancelAgentPayload struct {
	AgentID string `json:"agent_id"`
}

type CancelAgentResultPayload struct {
	AgentID   string `json:"agent_id"`
	Cancelled bool   `json:"cancelled"`
	Forced    bool   `json:"forced,omitempty"`
	Error     string `json:"error,omitempty"`
}
