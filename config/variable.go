package config

import (
	"fmt"
	"os"
	"strings"
)

// VarEnvPrefix names the environment fallback of a variable:
// CONDUCTOR_VAR_<NAME> with the name upper-cased
const VarEnvPrefix = "CONDUCTOR_VAR_"

type Variable struct {
	Name    string `hcl:"name,label"`
	Default string `hcl:"default,optional"`
	Secret  bool   `hcl:"secret,optional"`
}

func (v *Variable) Validate() error {
	if v.Secret && v.Default != "" {
		return fmt.Errorf("secret variable cannot have a default value; set it with 'conductor vars set %s <value>' or %s", v.Name, v.EnvName())
	}
	return nil
}

func (v *Variable) EnvName() string {
	return VarEnvPrefix + strings.ToUpper(v.Name)
}

// resolve picks the value from the vars file, then the environment, then
// the default. ok is false when none of them has one.
func (v *Variable) resolve(fileVars map[string]string) (value string, ok bool) {
	if value, ok := fileVars[v.Name]; ok {
		return value, true
	}
	if value, ok := os.LookupEnv(v.EnvName()); ok {
		return value, true
	}
	return v.Default, v.Default != ""
}
