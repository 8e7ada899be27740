package vecstore_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/keyframeco/prism/pkg/vecstore"
)

var _ = Describe("Filter", func() {
	It("collects conditions in insertion order", func() {
		f := vecstore.NewFilter().
			Eq("subject", "math").
			Eq("grade", 7).
			Eq("published", true)

		conds := f.Conditions()
		Expect(conds).To(HaveLen(3))
		Expect(conds[0].Field).To(Equal("subject"))
		Expect(conds[0].Value).To(Equal("math"))
		Expect(conds[1].Value).To(Equal(7))
		Expect(conds[2].Value).To(Equal(true))
	})

	It("treats nil and empty filters as unconstrained", func() {
		var nilFilter *vecstore.Filter
		Expect(nilFilter.IsEmpty()).To(BeTrue())
		Expect(nilFilter.Conditions()).To(BeEmpty())

		Expect(vecstore.NewFilter().IsEmpty()).To(BeTrue())
	})

	It("preserves quote characters in values as data", func() {
		f := vecstore.NewFilter().Eq("title", `o'brien" && malicious == "x`)

		conds := f.Conditions()
		Expect(conds[0].Value).To(Equal(`o'brien" && malicious == "x`))
	})

	Describe("FilterFromMap", func() {
		It("returns nil for empty input", func() {
			Expect(vecstore.FilterFromMap(nil)).To(BeNil())
			Expect(vecstore.FilterFromMap(map[string]any{})).To(BeNil())
		})

		It("adds fields in sorted order for determinism", func() {
			f := vecstore.FilterFromMap(map[string]any{
				"subject": "math",
				"grade":   7,
				"author":  "kay",
			})

			conds := f.Conditions()
			Expect(conds[0].Field).To(Equal("author"))
			Expect(conds[1].Field).To(Equal("grade"))
			Expect(conds[2].Field).To(Equal("subject"))
		})
	})
})
