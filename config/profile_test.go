package config_test

import (
	"conductor/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Profile", func() {
	var models []config.Model

	BeforeEach(func() {
		models = []config.Model{{
			Name:          "anthropic",
			Provider:      config.ProviderAnthropic,
			AllowedModels: []string{"claude_sonnet_4"},
			APIKey:        "k",
		}}
	})

	Describe("Validate", func() {
		It("accepts a model profile", func() {
			p := config.Profile{Name: "p", Model: "claude_sonnet_4"}
			Expect(p.Validate(models)).To(Succeed())
		})

		It("accepts a plugin profile without any model", func() {
			p := config.Profile{Name: "p", Plugin: "/usr/local/bin/engine"}
			Expect(p.Validate(nil)).To(Succeed())
			Expect(p.UsesPlugin()).To(BeTrue())
		})

		It("rejects model and plugin together", func() {
			p := config.Profile{Name: "p", Model: "claude_sonnet_4", Plugin: "x"}
			Expect(p.Validate(models)).To(MatchError(ContainSubstring("mutually exclusive")))
		})

		It("rejects negative limits", func() {
			p := config.Profile{Name: "p", Model: "claude_sonnet_4", ContextWindow: -1}
			Expect(p.Validate(models)).To(MatchError(ContainSubstring("context_window")))
		})
	})

	Describe("ResolveModel", func() {
		It("returns the provider block and model spec", func() {
			p := config.Profile{Model: "claude_sonnet_4"}
			m, spec, err := p.ResolveModel(models)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Name).To(Equal("anthropic"))
			Expect(spec.ID).To(Equal("claude-sonnet-4-20250514"))
		})

		It("errors when no block allows the key", func() {
			p := config.Profile{Model: "gpt_4o"}
			_, _, err := p.ResolveModel(models)
			Expect(err).To(MatchError(ContainSubstring("no model config found")))
		})
	})

	Describe("EffectiveContextWindow", func() {
		It("prefers the configured window", func() {
			p := config.Profile{Model: "claude_sonnet_4", ContextWindow: 32000}
			Expect(p.EffectiveContextWindow(models)).To(Equal(32000))
		})

		It("falls back to the model window", func() {
			p := config.Profile{Model: "claude_sonnet_4"}
			Expect(p.EffectiveContextWindow(models)).To(Equal(200000))
		})

		It("uses the default for plugin profiles", func() {
			p := config.Profile{Plugin: "engine"}
			Expect(p.EffectiveContextWindow(models)).To(Equal(config.DefaultContextWindow))
		})
	})

	It("defaults max steps to 12", func() {
		Expect((&config.Profile{}).GetMaxSteps()).To(Equal(12))
		Expect((&config.Profile{MaxSteps: 3}).GetMaxSteps()).To(Equal(3))
	})
})
