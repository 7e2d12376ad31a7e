package config

import (
	"fmt"
	"strings"
)

// RelayConfig defines the connection to a relay server that receives
// orchestration events and may inspect or cancel agents remotely.
// Without a relay block the session runs standalone.
type RelayConfig struct {
	URL               string `hcl:"url"`
	InstanceName      string `hcl:"instance_name"`
	AutoReconnect     bool   `hcl:"auto_reconnect,optional"`
	ReconnectInterval int    `hcl:"reconnect_interval,optional"` // seconds
}

// Defaults fills in default values for unset fields
func (r *RelayConfig) Defaults() {
	if r.ReconnectInterval <= 0 {
		r.ReconnectInterval = 5
	}
}

// Validate checks that required fields are set
func (r *RelayConfig) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(r.URL, "ws://") && !strings.HasPrefix(r.URL, "wss://") {
		return fmt.Errorf("url must use ws:// or wss://, got '%s'", r.URL)
	}
	if r.InstanceName == "" {
		return fmt.Errorf("instance_name is required")
	}
	return nil
}
