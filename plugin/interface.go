package plugin

import (
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"
)

// Handshake is shared by the host and every engine plugin
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "CONDUCTOR_PLUGIN",
	MagicCookieValue: "engine",
}

// PluginMap is the map of plugins we can dispense
var PluginMap = map[string]goplugin.Plugin{
	"engine": &EnginePlugin{},
}

// StartRequest is the task handed to a plugin engine
type StartRequest struct {
	AgentID     string
	DisplayName string
	Purpose     string
	Prompt      string
	Checklist   []string
	Profile     string
}

// PollResponse reports what happened since the previous poll
type PollResponse struct {
	// Progress holds the progress messages not yet returned
	Progress []string

	ContextUsed  int
	ContextLimit int

	Done bool
	// Status is one of completed, failed or cancelled once Done is set
	Status string
	Output string
	Error  string

	InputTokens  int
	OutputTokens int
	ToolCalls    int
}

// EngineProvider is implemented by engine plugins. Start must return
// without waiting for the conversation.
type EngineProvider interface {
	Start(req StartRequest) (runID string, err error)
	Poll(runID string) (PollResponse, error)
	Cancel(runID string) error
}

// EnginePlugin serves an EngineProvider over net/rpc
type EnginePlugin struct {
	Impl EngineProvider
}

func (p *EnginePlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &EngineRPCServer{Impl: p.Impl}, nil
}

func (p *EnginePlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &EngineRPC{client: c}, nil
}

// EngineRPC is the host side of the connection
type EngineRPC struct {
	client *rpc.Client
}

func (e *EngineRPC) Start(req StartRequest) (string, error) {
	var runID string
	err := e.client.Call("Plugin.Start", req, &runID)
	return runID, err
}

func (e *EngineRPC) Poll(runID string) (PollResponse, error) {
	var resp PollResponse
	err := e.client.Call("Plugin.Poll", runID, &resp)
	return resp, err
}

func (e *EngineRPC) Cancel(runID string) error {
	var ok bool
	return e.client.Call("Plugin.Cancel", runID, &ok)
}

// EngineRPCServer is the plugin side of the connection
type EngineRPCServer struct {
	Impl EngineProvider
}

func (s *EngineRPCServer) Start(req StartRequest, runID *string) error {
	id, err := s.Impl.Start(req)
	*runID = id
	return err
}

func (s *EngineRPCServer) Poll(runID string, resp *PollResponse) error {
	r, err := s.Impl.Poll(runID)
	*resp = r
	return err
}

func (s *EngineRPCServer) Cancel(runID string, ok *bool) error {
	if err := s.Impl.Cancel(runID); err != nil {
		return err
	}
	*ok = true
	return nil
}

// Serve runs an engine plugin. It is called from the plugin's main.
func Serve(impl EngineProvider) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"engine": &EnginePlugin{Impl: impl},
		},
	})
}
