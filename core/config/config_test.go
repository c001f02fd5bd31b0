package config_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"worktrack.app/relay/core/config"
)

func setenv(key, value string) {
	prev, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	})
}

var _ = Describe("Load", func() {
	BeforeEach(func() {
		setenv("RELAY_ENV", "test")
	})

	It("applies defaults", func() {
		cfg, err := config.Load(config.ServiceTypeWorker)
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.AMQP.Exchange).To(Equal("domain.events"))
		Expect(cfg.AMQP.IndexQueue).To(Equal("rag.index.queue"))
		Expect(cfg.AMQP.AutomationQueue).To(Equal("automation.rule.queue"))
		Expect(cfg.Guard.TTL).To(Equal(10 * time.Minute))
		Expect(cfg.NodeID).To(Equal(int64(2)))
		Expect(cfg.OTel.ServiceName).To(Equal("relay-worker"))
	})

	It("reads overrides from the environment", func() {
		setenv("AMQP_DEAD_LETTER", "false")
		setenv("GUARD_TTL", "90s")
		setenv("REDIS_URL", "redis://localhost:6379/1")
		setenv("NODE_ID", "7")

		cfg, err := config.Load(config.ServiceTypeServer)
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.AMQP.DeadLetter).To(BeFalse())
		Expect(cfg.Guard.TTL).To(Equal(90 * time.Second))
		Expect(cfg.Guard.Shared()).To(BeTrue())
		Expect(cfg.NodeID).To(Equal(int64(7)))
	})

	It("requires a broker url", func() {
		setenv("AMQP_URL", "")

		_, err := config.Load(config.ServiceTypeServer)
		Expect(err).To(MatchError(ContainSubstring("AMQP_URL")))
	})
})

var _ = Describe("Warnings", func() {
	It("lists missing optional credentials", func() {
		warnings := config.Config{}.Warnings()
		Expect(warnings).To(HaveLen(3))
		Expect(warnings[0]).To(ContainSubstring("RAG_AUTH_TOKEN"))
	})

	It("is empty when everything is configured", func() {
		cfg := config.Config{
			DocStore:     config.DocStoreConfig{AuthToken: "t", CollectionID: "c"},
			ConditionLLM: config.LLMConfig{APIKey: "k"},
		}
		Expect(cfg.Warnings()).To(BeEmpty())
	})
})
