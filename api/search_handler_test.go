package api

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Search Handler", func() {
	var ts *testServer

	BeforeEach(func() {
		ts = newTestServer("100/minute")
	})

	AfterEach(func() {
		ts.stop()
	})

	seed := func(id, content string, vector []float32, metadata map[string]any) {
		ts.embedder.Embeddings[content] = vector
		resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/images", AddImageRequest{
			ID:        id,
			ImageData: img(content),
			Metadata:  metadata,
		}))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))
	}

	search := func(body SearchRequest) *http.Response {
		resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/search", body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("POST /v1/search", func() {
		BeforeEach(func() {
			seed("east", "east-image", []float32{1, 0, 0}, map[string]any{"region": "east", "kind": "photo"})
			seed("north", "north-image", []float32{0, 1, 0}, map[string]any{"region": "north", "kind": "photo"})
			seed("northeast", "northeast-image", []float32{0.7071, 0.7071, 0}, map[string]any{"region": "east", "kind": "sketch"})

			ts.embedder.Embeddings["east-query"] = []float32{1, 0, 0}
		})

		It("returns ranked results with timing", func() {
			resp := search(SearchRequest{ImageData: img("east-query"), TopK: 3})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result SearchResponse
			decodeJSON(resp, &result)
			Expect(result.Total).To(Equal(3))
			Expect(result.SearchTimeMs).To(BeNumerically(">=", 0))

			Expect(result.Results[0].ID).To(Equal("east"))
			Expect(result.Results[1].ID).To(Equal("northeast"))
			Expect(result.Results[2].ID).To(Equal("north"))
			Expect(result.Results[0].Similarity).To(BeNumerically("~", 1.0, 0.001))
			for i := 1; i < len(result.Results); i++ {
				Expect(result.Results[i].Similarity).To(BeNumerically("<=", result.Results[i-1].Similarity))
			}
		})

		It("truncates to top_k", func() {
			resp := search(SearchRequest{ImageData: img("east-query"), TopK: 2})

			var result SearchResponse
			decodeJSON(resp, &result)
			Expect(result.Results).To(HaveLen(2))
			Expect(result.Total).To(Equal(2))
		})

		It("defaults top_k to 5", func() {
			for i := 0; i < 6; i++ {
				content := fmt.Sprintf("filler-%d", i)
				seed(fmt.Sprintf("r%d", i), content, []float32{1, float32(i) * 0.01, 0}, nil)
			}

			resp := search(SearchRequest{ImageData: img("east-query")})

			var result SearchResponse
			decodeJSON(resp, &result)
			Expect(result.Results).To(HaveLen(5))
		})

		It("rejects an out-of-range top_k", func() {
			resp := search(SearchRequest{ImageData: img("east-query"), TopK: 101})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Error).To(Equal("invalid_argument"))
			Expect(payload.Message).To(ContainSubstring("out of range"))

			resp = search(SearchRequest{ImageData: img("east-query"), TopK: -1})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("applies every metadata filter", func() {
			resp := search(SearchRequest{
				ImageData: img("east-query"),
				TopK:      10,
				Filters:   map[string]any{"region": "east", "kind": "photo"},
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result SearchResponse
			decodeJSON(resp, &result)
			Expect(result.Results).To(HaveLen(1))
			Expect(result.Results[0].ID).To(Equal("east"))
		})

		It("returns an empty list rather than null when nothing matches", func() {
			resp := search(SearchRequest{
				ImageData: img("east-query"),
				TopK:      10,
				Filters:   map[string]any{"region": "nowhere"},
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var raw map[string]any
			decodeJSON(resp, &raw)
			Expect(raw["results"]).NotTo(BeNil())
			Expect(raw["results"]).To(HaveLen(0))
			Expect(raw["total"]).To(Equal(float64(0)))
		})

		It("returns 400 when image_data is missing", func() {
			resp := search(SearchRequest{TopK: 3})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 422 for undecodable image data", func() {
			resp := search(SearchRequest{ImageData: "not base64!"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnprocessableEntity))
		})
	})

	Describe("rate limiting", func() {
		BeforeEach(func() {
			ts.stop()
			ts = newTestServer("2/minute")
		})

		It("limits searches once the window is spent", func() {
			for i := 0; i < 2; i++ {
				resp := search(SearchRequest{ImageData: img("anything")})
				Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			}

			resp := search(SearchRequest{ImageData: img("anything")})
			Expect(resp.StatusCode).To(Equal(fiber.StatusTooManyRequests))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Error).To(Equal("rate_limited"))
			Expect(payload.Message).To(ContainSubstring("2/minute"))
		})
	})
})
