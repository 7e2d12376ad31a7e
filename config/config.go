package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Config holds all configuration
type Config struct {
	Variables    []Variable          `hcl:"variable,block"`
	Models       []Model             `hcl:"model,block"`
	Profiles     []Profile           `hcl:"profile,block"`
	Orchestrator *OrchestratorConfig `hcl:"orchestrator,block"`
	Storage      *StorageConfig      `hcl:"storage,block"`
	Relay        *RelayConfig        `hcl:"relay,block"`

	// ResolvedVars holds the resolved variable values for runtime use
	ResolvedVars map[string]cty.Value `hcl:"-"`
}

func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadAndValidate loads the config and validates all components
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all config components are valid
func (c *Config) Validate() error {
	for _, v := range c.Variables {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variable '%s': %w", v.Name, err)
		}
	}

	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("model '%s': %w", m.Name, err)
		}
	}

	for _, p := range c.Profiles {
		if err := p.Validate(c.Models); err != nil {
			return fmt.Errorf("profile '%s': %w", p.Name, err)
		}
	}

	if c.Orchestrator != nil {
		if err := c.Orchestrator.Validate(c.Profiles); err != nil {
			return fmt.Errorf("orchestrator: %w", err)
		}
	}

	if c.Storage != nil {
		if err := c.Storage.Validate(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}

	if c.Relay != nil {
		if err := c.Relay.Validate(); err != nil {
			return fmt.Errorf("relay: %w", err)
		}
	}

	return nil
}

// GetProfile returns the profile with the given name, or nil
func (c *Config) GetProfile(name string) *Profile {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i]
		}
	}
	return nil
}

func LoadFile(filename string) (*Config, error) {
	return loadFromFiles([]string{filename})
}

func LoadDir(dir string) (*Config, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, err
	}
	return loadFromFiles(files)
}

// parsedBlocks holds all blocks extracted from a file in one pass
type parsedBlocks struct {
	Variables    []*hcl.Block
	Models       []*hcl.Block
	Profiles     []*hcl.Block
	Orchestrator []*hcl.Block
	Storage      []*hcl.Block
	Relay        []*hcl.Block
}

// loadFromFiles implements staged loading: variables → models → profiles → singleton blocks
func loadFromFiles(files []string) (*Config, error) {
	parser := hclparse.NewParser()
	var allParsedBlocks []parsedBlocks

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: %w", file, diags)
		}

		content, _, diags := hclFile.Body.PartialContent(&hcl.BodySchema{
			Blocks: []hcl.BlockHeaderSchema{
				{Type: "variable", LabelNames: []string{"name"}},
				{Type: "model", LabelNames: []string{"name"}},
				{Type: "profile", LabelNames: []string{"name"}},
				{Type: "orchestrator"},
				{Type: "storage"},
				{Type: "relay"},
			},
		})
		if diags.HasErrors() {
			return nil, fmt.Errorf("partial content %s: %w", file, diags)
		}

		var pb parsedBlocks
		for _, block := range content.Blocks {
			switch block.Type {
			case "variable":
				pb.Variables = append(pb.Variables, block)
			case "model":
				pb.Models = append(pb.Models, block)
			case "profile":
				pb.Profiles = append(pb.Profiles, block)
			case "orchestrator":
				pb.Orchestrator = append(pb.Orchestrator, block)
			case "storage":
				pb.Storage = append(pb.Storage, block)
			case "relay":
				pb.Relay = append(pb.Relay, block)
			}
		}
		allParsedBlocks = append(allParsedBlocks, pb)
	}

	// Stage 1: variables (no context needed)
	var allVars []Variable
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Variables {
			var v Variable
			v.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, nil, &v)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode variable %s: %w", v.Name, diags)
			}
			allVars = append(allVars, v)
		}
	}

	varsCtx, resolvedVars := buildVarsContext(allVars)

	// Stage 2: models
	var allModels []Model
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Models {
			var m Model
			m.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, varsCtx, &m)
			if diags.HasErrors() {
				return nil, diags
			}
			allModels = append(allModels, m)
		}
	}

	modelsCtx := buildModelsContext(varsCtx, allModels)

	// Stage 3: profiles
	var allProfiles []Profile
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Profiles {
			var p Profile
			p.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, modelsCtx, &p)
			if diags.HasErrors() {
				return nil, diags
			}
			allProfiles = append(allProfiles, p)
		}
	}

	fullCtx := buildProfilesContext(modelsCtx, allProfiles)

	// Stage 4: singleton blocks (orchestrator, storage, relay)
	cfg := &Config{
		Variables:    allVars,
		Models:       allModels,
		Profiles:     allProfiles,
		ResolvedVars: resolvedVars,
	}

	var orchestratorBlocks, storageBlocks, relayBlocks []*hcl.Block
	for _, pb := range allParsedBlocks {
		orchestratorBlocks = append(orchestratorBlocks, pb.Orchestrator...)
		storageBlocks = append(storageBlocks, pb.Storage...)
		relayBlocks = append(relayBlocks, pb.Relay...)
	}

	if block, err := singleBlock("orchestrator", orchestratorBlocks); err != nil {
		return nil, err
	} else if block != nil {
		var o OrchestratorConfig
		if diags := gohcl.DecodeBody(block.Body, fullCtx, &o); diags.HasErrors() {
			return nil, diags
		}
		o.Defaults()
		cfg.Orchestrator = &o
	}

	if block, err := singleBlock("storage", storageBlocks); err != nil {
		return nil, err
	} else if block != nil {
		var s StorageConfig
		if diags := gohcl.DecodeBody(block.Body, fullCtx, &s); diags.HasErrors() {
			return nil, diags
		}
		s.Defaults()
		cfg.Storage = &s
	}

	if block, err := singleBlock("relay", relayBlocks); err != nil {
		return nil, err
	} else if block != nil {
		var r RelayConfig
		if diags := gohcl.DecodeBody(block.Body, fullCtx, &r); diags.HasErrors() {
			return nil, diags
		}
		r.Defaults()
		cfg.Relay = &r
	}

	return cfg, nil
}

// singleBlock returns the only block of a singleton type, nil when absent
func singleBlock(blockType string, blocks []*hcl.Block) (*hcl.Block, error) {
	switch len(blocks) {
	case 0:
		return nil, nil
	case 1:
		return blocks[0], nil
	default:
		return nil, fmt.Errorf("only one %s block is allowed, found %d", blockType, len(blocks))
	}
}

// buildVarsContext creates context with just vars
func buildVarsContext(vars []Variable) (*hcl.EvalContext, map[string]cty.Value) {
	varsMap := make(map[string]cty.Value)
	fileVars, _ := LoadVarsFromFile()
	for _, v := range vars {
		value, _ := v.resolve(fileVars)
		varsMap[v.Name] = cty.StringVal(value)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"vars": cty.ObjectVal(varsMap),
		},
	}, varsMap
}

// buildModelsContext adds models to existing context
func buildModelsContext(ctx *hcl.EvalContext, models []Model) *hcl.EvalContext {
	modelsMap := make(map[string]cty.Value)
	for _, m := range models {
		providerModels := make(map[string]cty.Value)
		for _, modelKey := range m.AllowedModels {
			providerModels[modelKey] = cty.StringVal(modelKey)
		}
		modelsMap[m.Name] = cty.ObjectVal(providerModels)
	}

	return extendContext(ctx, "models", cty.ObjectVal(modelsMap))
}

// buildProfilesContext adds profiles.<name> references to existing context
func buildProfilesContext(ctx *hcl.EvalContext, profiles []Profile) *hcl.EvalContext {
	profilesMap := make(map[string]cty.Value)
	for _, p := range profiles {
		profilesMap[p.Name] = cty.StringVal(p.Name)
	}
	return extendContext(ctx, "profiles", cty.ObjectVal(profilesMap))
}

func extendContext(ctx *hcl.EvalContext, name string, val cty.Value) *hcl.EvalContext {
	newVars := make(map[string]cty.Value, len(ctx.Variables)+1)
	for k, v := range ctx.Variables {
		newVars[k] = v
	}
	newVars[name] = val

	return &hcl.EvalContext{
		Variables: newVars,
	}
}
