package stats_test

import (
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/keyframeco/prism/pkg/stats"
)

func TestStats(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stats Suite")
}

var _ = Describe("Registry", func() {
	var registry *stats.Registry

	BeforeEach(func() {
		registry = stats.NewRegistry()
	})

	It("starts with all known operations at zero", func() {
		snap := registry.Snapshot()
		Expect(snap.APICalls).To(HaveKeyWithValue(stats.OpHealth, int64(0)))
		Expect(snap.APICalls).To(HaveKeyWithValue(stats.OpAddImage, int64(0)))
		Expect(snap.APICalls).To(HaveKeyWithValue(stats.OpSearch, int64(0)))
		Expect(snap.ErrorCount).To(BeZero())
	})

	It("counts calls per operation", func() {
		registry.RecordCall(stats.OpSearch)
		registry.RecordCall(stats.OpSearch)
		registry.RecordCall(stats.OpAddImage)

		snap := registry.Snapshot()
		Expect(snap.APICalls[stats.OpSearch]).To(Equal(int64(2)))
		Expect(snap.APICalls[stats.OpAddImage]).To(Equal(int64(1)))
	})

	It("counts errors independently of calls", func() {
		registry.RecordError()
		registry.RecordError()

		snap := registry.Snapshot()
		Expect(snap.ErrorCount).To(Equal(int64(2)))
	})

	It("creates counters for unknown operation names", func() {
		registry.RecordCall("reindex")

		snap := registry.Snapshot()
		Expect(snap.APICalls["reindex"]).To(Equal(int64(1)))
	})

	It("reports a non-negative uptime", func() {
		Expect(registry.Uptime()).To(BeNumerically(">=", 0))
		Expect(registry.Snapshot().UptimeSeconds).To(BeNumerically(">=", 0))
	})

	It("is safe under concurrent increments", func() {
		const workers = 16
		const perWorker = 100

		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					registry.RecordCall(stats.OpGetImage)
					registry.RecordError()
				}
			}()
		}
		wg.Wait()

		snap := registry.Snapshot()
		Expect(snap.APICalls[stats.OpGetImage]).To(Equal(int64(workers * perWorker)))
		Expect(snap.ErrorCount).To(Equal(int64(workers * perWorker)))
	})

	It("returns independent snapshot copies", func() {
		registry.RecordCall(stats.OpHealth)
		snap := registry.Snapshot()
		snap.APICalls[stats.OpHealth] = 999

		Expect(registry.Snapshot().APICalls[stats.OpHealth]).To(Equal(int64(1)))
	})
})
