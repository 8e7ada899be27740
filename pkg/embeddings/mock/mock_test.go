package mock_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/keyframeco/prism/pkg/embeddings"
	"github.com/keyframeco/prism/pkg/embeddings/mock"
)

func TestMock(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Mock Embedder Suite")
}

var _ = Describe("Embedder", func() {
	It("should produce identical vectors for identical images", func() {
		embedder := mock.NewEmbedder(8)

		first, err := embedder.Embed(context.Background(), []byte("same-image"))
		Expect(err).NotTo(HaveOccurred())

		second, err := embedder.Embed(context.Background(), []byte("same-image"))
		Expect(err).NotTo(HaveOccurred())

		Expect(second).To(Equal(first))
	})

	It("should produce different vectors for different images", func() {
		embedder := mock.NewEmbedder(8)

		first, err := embedder.Embed(context.Background(), []byte("image-one"))
		Expect(err).NotTo(HaveOccurred())

		second, err := embedder.Embed(context.Background(), []byte("image-two"))
		Expect(err).NotTo(HaveOccurred())

		Expect(second).NotTo(Equal(first))
	})

	It("should honor the configured dimension", func() {
		embedder := mock.NewEmbedder(16)
		Expect(embedder.Dimension()).To(Equal(16))

		vector, err := embedder.Embed(context.Background(), []byte("img"))
		Expect(err).NotTo(HaveOccurred())
		Expect(vector).To(HaveLen(16))
	})

	It("should default the dimension when unset", func() {
		Expect(mock.NewEmbedder(0).Dimension()).To(Equal(mock.DefaultDimension))
	})

	It("should reject empty image data", func() {
		_, err := mock.NewEmbedder(8).Embed(context.Background(), nil)
		Expect(err).To(MatchError(embeddings.ErrInvalidImage))
	})
})
