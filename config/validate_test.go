package config_test

import (
	"conductor/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoadAndValidate (end-to-end)", func() {

	Context("single-file config", func() {
		It("succeeds with a complete valid config", func() {
			dir, _ := writeFixture("all.hcl", fullBaseHCL())
			cfg, err := config.LoadAndValidate(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(1))
			Expect(cfg.Models).To(HaveLen(1))
			Expect(cfg.Profiles).To(HaveLen(2))
			Expect(cfg.Orchestrator.SummarizeAt).To(Equal(0.8))
		})
	})

	Context("variable validation errors", func() {
		It("rejects a secret variable with a default", func() {
			hcl := fullBaseHCL() + `
variable "bad_secret" {
  secret  = true
  default = "oops"
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("secret"))
			Expect(err.Error()).To(ContainSubstring("bad_secret"))
		})
	})

	Context("profile validation errors", func() {
		It("rejects a profile referencing a model outside any allowed list", func() {
			hcl := minimalVarsHCL() + minimalModelHCL() + `
profile "p" {
  model = "claude_opus_4"
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("profile 'p'"))
			Expect(err.Error()).To(ContainSubstring("claude_opus_4"))
		})

		It("rejects a profile with neither model nor plugin", func() {
			dir, _ := writeFixture("config.hcl", `profile "empty" {}`)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("one of model or plugin is required")))
		})

		It("fails to load a profile referencing an undeclared model block", func() {
			hcl := minimalVarsHCL() + `
profile "p" {
  model = models.missing.claude_sonnet_4
}
`
			_, f := writeFixture("config.hcl", hcl)
			_, err := config.LoadFile(f)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("orchestrator validation errors", func() {
		It("rejects an unknown primary profile", func() {
			hcl := minimalVarsHCL() + minimalModelHCL() + minimalProfilesHCL() + `
orchestrator {
  primary_profile = "ghost"
  agent_profiles  = [profiles.worker]
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("primary_profile: unknown profile 'ghost'")))
		})

		It("rejects an empty agent profile list", func() {
			hcl := minimalVarsHCL() + minimalModelHCL() + minimalProfilesHCL() + `
orchestrator {
  primary_profile = profiles.lead
  agent_profiles  = []
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("at least one profile")))
		})
	})

	Context("storage and relay validation errors", func() {
		It("requires a dsn for postgres", func() {
			dir, _ := writeFixture("config.hcl", fullBaseHCL()+`storage { backend = "postgres" }`)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("dsn is required")))
		})

		It("rejects an unknown backend", func() {
			dir, _ := writeFixture("config.hcl", fullBaseHCL()+`storage { backend = "redis" }`)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("unknown backend 'redis'")))
		})

		It("rejects a relay url without a websocket scheme", func() {
			hcl := fullBaseHCL() + `
relay {
  url           = "http://localhost:8080"
  instance_name = "dev"
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("ws:// or wss://")))
		})
	})
})
