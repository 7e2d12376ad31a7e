package orchestrator_test

import (
	"sync"
	"time"

	"conductor/orchestrator"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type offerRecorder struct {
	mu     sync.Mutex
	offers []string
}

func (r *offerRecorder) Offer(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offers = append(r.offers, agentID)
	return true
}

func (r *offerRecorder) Offers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.offers...)
}

var _ = Describe("Ledger", func() {
	var (
		dir    *orchestrator.Directory
		jobs   *offerRecorder
		ledger *orchestrator.Ledger
	)

	finished := func(name, output string) string {
		id, err := dir.Register("", task(name))
		Expect(err).NotTo(HaveOccurred())
		_, err = dir.Finish(orchestrator.Outcome{AgentID: id, Status: orchestrator.StatusCompleted, Output: output})
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	BeforeEach(func() {
		dir = orchestrator.NewDirectory()
		jobs = &offerRecorder{}
		ledger = orchestrator.NewLedger(dir, 0.8, jobs, nil)
	})

	It("triggers only when usage strictly exceeds the threshold", func() {
		id := finished("done", "some output worth condensing")

		Expect(ledger.Update(orchestrator.MainParticipant, 25000, 32000)).To(BeFalse())
		Expect(jobs.Offers()).To(BeEmpty())
		Expect(ledger.Threshold()).To(BeNumerically("~", 25600, 0.001))

		Expect(ledger.Update(orchestrator.MainParticipant, 25600, 32000)).To(BeFalse())
		Expect(ledger.Update(orchestrator.MainParticipant, 25700, 32000)).To(BeTrue())
		Expect(jobs.Offers()).To(Equal([]string{id}))
	})

	It("uses the smallest limit among active participants", func() {
		finished("done", "output")
		ledger.Update(orchestrator.MainParticipant, 1000, 200000)
		ledger.Update("child", 0, 10000)
		Expect(ledger.Threshold()).To(BeNumerically("~", 8000, 0.001))

		Expect(ledger.Update("child", 8001, 10000)).To(BeTrue())

		ledger.Retire("child")
		Expect(ledger.Threshold()).To(BeNumerically("~", 160000, 0.001))
		Expect(ledger.Update(orchestrator.MainParticipant, 9000, 200000)).To(BeFalse())
	})

	It("has nothing to request when no terminal agent has a log", func() {
		id, _ := dir.Register("", task("running"))
		Expect(dir.UpdateStatus(id, orchestrator.StatusRunning, "")).To(Succeed())

		Expect(ledger.Update(orchestrator.MainParticipant, 900, 1000)).To(BeFalse())
		Expect(jobs.Offers()).To(BeEmpty())
	})

	It("offers the oldest terminal agent first", func() {
		first := finished("first", "small")
		time.Sleep(2 * time.Millisecond)
		finished("second", "a much larger log than the first one")

		Expect(ledger.Update(orchestrator.MainParticipant, 900, 1000)).To(BeTrue())
		Expect(jobs.Offers()).To(Equal([]string{first}))
	})

	It("aggregates usage over active participants", func() {
		ledger.Update(orchestrator.MainParticipant, 1200, 100000)
		ledger.Update("a", 300, 8000)
		ledger.Update("b", 500, 16000)
		ledger.Retire("b")

		total, limit := ledger.Aggregate()
		Expect(total).To(Equal(1500))
		Expect(limit).To(Equal(8000))

		used, lim := ledger.Usage("b")
		Expect(used).To(Equal(500))
		Expect(lim).To(Equal(16000))
		Expect(ledger.Entries()).To(HaveLen(3))
	})
})
