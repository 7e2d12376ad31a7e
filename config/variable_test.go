package config_test

import (
	"conductor/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Variable", func() {

	Describe("parsing", func() {
		It("parses a variable with a default value", func() {
			_, f := writeFixture("vars.hcl", `variable "app_name" { default = "conductor" }`)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(1))
			Expect(cfg.Variables[0].Name).To(Equal("app_name"))
			Expect(cfg.Variables[0].Default).To(Equal("conductor"))
			Expect(cfg.Variables[0].Secret).To(BeFalse())
		})

		It("parses a secret variable without a default", func() {
			_, f := writeFixture("vars.hcl", `variable "api_key" { secret = true }`)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(1))
			Expect(cfg.Variables[0].Secret).To(BeTrue())
			Expect(cfg.Variables[0].Default).To(BeEmpty())
		})

		It("parses a variable with no attributes", func() {
			_, f := writeFixture("vars.hcl", `variable "bare" {}`)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables[0].Name).To(Equal("bare"))
			Expect(cfg.Variables[0].Default).To(BeEmpty())
			Expect(cfg.Variables[0].Secret).To(BeFalse())
		})

		It("parses multiple variables", func() {
			hcl := `
variable "a" { default = "alpha" }
variable "b" { default = "beta" }
variable "c" { secret = true }
`
			_, f := writeFixture("vars.hcl", hcl)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(3))
		})
	})

	Describe("Validate", func() {
		It("rejects secret variable with a default value", func() {
			hcl := `
variable "bad_secret" {
  secret  = true
  default = "oops"
}
`
			_, f := writeFixture("vars.hcl", hcl)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			err = cfg.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("bad_secret"))
			Expect(err.Error()).To(ContainSubstring("secret"))
		})

		It("accepts non-secret variable with a default", func() {
			hcl := `variable "ok_var" { default = "hello" }`
			_, f := writeFixture("vars.hcl", hcl)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Validate()).To(Succeed())
		})

		It("accepts secret variable without a default", func() {
			hcl := `variable "good_secret" { secret = true }`
			_, f := writeFixture("vars.hcl", hcl)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Validate()).To(Succeed())
		})
	})
})

var _ = Describe("Vars file", func() {
	AfterEach(func() {
		names, err := config.ListVars()
		Expect(err).NotTo(HaveOccurred())
		for _, name := range names {
			Expect(config.DeleteVar(name)).To(Succeed())
		}
	})

	It("round-trips a value", func() {
		Expect(config.SetVar("token", "abc=123")).To(Succeed())
		value, err := config.GetVar("token")
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("abc=123"))
	})

	It("lists names in sorted order", func() {
		Expect(config.SetVar("zeta", "1")).To(Succeed())
		Expect(config.SetVar("alpha", "2")).To(Succeed())
		names, err := config.ListVars()
		Expect(err).NotTo(HaveOccurred())
		Expect(names).To(Equal([]string{"alpha", "zeta"}))
	})

	It("rejects names containing '='", func() {
		Expect(config.SetVar("a=b", "1")).To(MatchError(ContainSubstring("invalid variable name")))
	})

	It("errors deleting an unknown variable", func() {
		Expect(config.DeleteVar("missing")).To(MatchError(ContainSubstring("not found")))
	})

	It("resolves the file value ahead of the default", func() {
		Expect(config.SetVar("region", "eu")).To(Succeed())
		value, err := config.ResolveVariableValue(&config.Variable{Name: "region", Default: "us"})
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("eu"))

		value, err = config.ResolveVariableValue(&config.Variable{Name: "other", Default: "us"})
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("us"))
	})

	It("falls back to the environment before the default", func() {
		v := &config.Variable{Name: "region", Default: "us"}
		Expect(v.EnvName()).To(Equal("CONDUCTOR_VAR_REGION"))
		GinkgoT().Setenv(v.EnvName(), "ap")

		value, err := config.ResolveVariableValue(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("ap"))

		Expect(config.SetVar("region", "eu")).To(Succeed())
		value, err = config.ResolveVariableValue(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("eu"))
	})

	It("resolves secrets from the environment when loading", func() {
		GinkgoT().Setenv("CONDUCTOR_VAR_ANTHROPIC_KEY", "sk-env")
		_, f := writeFixture("models.hcl", `
variable "anthropic_key" { secret = true }

model "anthropic" {
  provider       = "anthropic"
  allowed_models = ["claude_sonnet_4"]
  api_key        = vars.anthropic_key
}
`)
		cfg, err := config.LoadFile(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Models[0].APIKey).To(Equal("sk-env"))
	})
})
