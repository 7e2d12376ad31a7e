package plugin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"conductor/orchestrator"
)

// PluginClient wraps a go-plugin client and the engine it dispensed
type PluginClient struct {
	client *goplugin.Client
	engine EngineProvider
	path   string
}

// LoadPlugin starts the plugin binary at path and connects to it
func LoadPlugin(path string, logger hclog.Logger) (*PluginClient, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("plugin not found at %s", path)
	}

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap,
		Cmd:              exec.Command(path),
		Logger:           logger,
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense("engine")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	engine, ok := raw.(EngineProvider)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin does not implement EngineProvider")
	}

	return &PluginClient{client: client, engine: engine, path: path}, nil
}

// Exited reports whether the plugin process has stopped
func (p *PluginClient) Exited() bool {
	return p.client.Exited()
}

// Close shuts down the plugin
func (p *PluginClient) Close() {
	if p.client != nil {
		p.client.Kill()
	}
}

// Path returns the plugin binary path
func (p *PluginClient) Path() string {
	return p.path
}

// Manager starts plugin processes on first use and hands out engines for
// them. One process serves every agent of a plugin profile.
type Manager struct {
	logger hclog.Logger

	mu      sync.Mutex
	clients map[string]*PluginClient
}

func NewManager(logger hclog.Logger) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{
		logger:  logger.Named("plugin"),
		clients: make(map[string]*PluginClient),
	}
}

// Engine returns an engine backed by the plugin at path, restarting the
// process if it has exited
func (m *Manager) Engine(ctx context.Context, path string) (orchestrator.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[path]; ok {
		if !c.Exited() {
			return NewRemoteEngine(c.engine, m.logger.With("path", path)), nil
		}
		m.logger.Warn("plugin exited, restarting", "path", path)
		c.Close()
		delete(m.clients, path)
	}

	c, err := LoadPlugin(path, m.logger.With("path", path))
	if err != nil {
		return nil, err
	}
	m.clients[path] = c
	return NewRemoteEngine(c.engine, m.logger.With("path", path)), nil
}

// Close kills every plugin process
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for path, c := range m.clients {
		c.Close()
		delete(m.clients, path)
	}
}
