package api

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/keyframeco/prism/pkg/service"
	"github.com/keyframeco/prism/pkg/vecstore"
)

var _ = Describe("Image Handlers", func() {
	var ts *testServer

	BeforeEach(func() {
		ts = newTestServer("100/minute")
	})

	AfterEach(func() {
		ts.stop()
	})

	addImage := func(id, content string, metadata map[string]any) *http.Response {
		resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/images", AddImageRequest{
			ID:        id,
			ImageData: img(content),
			Metadata:  metadata,
		}))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	getImage := func(id string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, "/v1/images/"+id, nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := ts.server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("GET /health", func() {
		It("reports a connected store", func() {
			req, err := http.NewRequest(http.MethodGet, "/health", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := ts.server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var payload service.HealthStatus
			decodeJSON(resp, &payload)
			Expect(payload.Status).To(Equal("ok"))
			Expect(payload.Database).To(Equal("connected"))
			Expect(payload.UptimeSeconds).To(BeNumerically(">=", 0))
		})
	})

	Describe("POST /v1/images", func() {
		It("creates a record and returns 201", func() {
			resp := addImage("q1", "sunset", map[string]any{"region": "east", "size": 42})
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			var created AddImageResponse
			decodeJSON(resp, &created)
			Expect(created.ID).To(Equal("q1"))
			Expect(created.Status).To(Equal("created"))

			resp = getImage("q1")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var record vecstore.Record
			decodeJSON(resp, &record)
			Expect(record.ID).To(Equal("q1"))
			Expect(record.Vector).To(HaveLen(3))
			Expect(record.Metadata).To(HaveKeyWithValue("region", "east"))
			Expect(record.Metadata).To(HaveKeyWithValue("size", float64(42)))
		})

		It("returns 400 when id is missing", func() {
			resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/images", AddImageRequest{
				ImageData: img("sunset"),
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Error).To(Equal("invalid_argument"))
			Expect(payload.Message).To(ContainSubstring("id is required"))
		})

		It("returns 400 when the id is too long", func() {
			resp := addImage(strings.Repeat("x", 101), "sunset", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Message).To(ContainSubstring("exceeds 100 characters"))
		})

		It("returns 400 when image_data is missing", func() {
			resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/images", AddImageRequest{
				ID: "q1",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Message).To(ContainSubstring("image_data is required"))
		})

		It("returns 400 on a malformed body", func() {
			req, err := http.NewRequest(http.MethodPost, "/v1/images", strings.NewReader("{not json"))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := ts.server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Message).To(ContainSubstring("decoding request body"))
		})

		It("returns 422 when the image is not decodable base64", func() {
			resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/images", AddImageRequest{
				ID:        "q1",
				ImageData: "not base64!",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnprocessableEntity))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Error).To(Equal("invalid_image"))
		})

		It("returns 422 when the embedder rejects the image", func() {
			ts.embedder.RejectOn = "corrupt"

			resp := addImage("q1", "corrupt", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnprocessableEntity))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Error).To(Equal("invalid_image"))
		})

		It("returns 409 for a duplicate id and keeps the original", func() {
			Expect(addImage("q1", "sunset", map[string]any{"v": "original"}).StatusCode).To(Equal(fiber.StatusCreated))

			resp := addImage("q1", "sunrise", map[string]any{"v": "replacement"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Error).To(Equal("conflict"))
			Expect(payload.Message).To(ContainSubstring("q1"))

			var record vecstore.Record
			decodeJSON(getImage("q1"), &record)
			Expect(record.Metadata).To(HaveKeyWithValue("v", "original"))
		})

		It("masks embedder failures behind a generic 500 and counts them", func() {
			ts.embedder.FailOn = "broken"

			resp := addImage("q1", "broken", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Error).To(Equal("internal_error"))
			Expect(payload.Message).To(Equal("internal server error"))
			Expect(payload.Message).NotTo(ContainSubstring("mock"))

			Expect(ts.registry.Snapshot().ErrorCount).To(Equal(int64(1)))
		})
	})

	Describe("POST /v1/images/batch", func() {
		It("ingests every item and returns the inserted ids in order", func() {
			resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/images/batch", BatchAddRequest{
				Images: []AddImageRequest{
					{ID: "q1", ImageData: img("one")},
					{ID: "q2", ImageData: img("two")},
					{ID: "q3", ImageData: img("three")},
				},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			var result service.BatchResult
			decodeJSON(resp, &result)
			Expect(result.Inserted).To(Equal([]string{"q1", "q2", "q3"}))
			Expect(result.Count).To(Equal(3))

			for _, id := range []string{"q1", "q2", "q3"} {
				Expect(getImage(id).StatusCode).To(Equal(fiber.StatusOK))
			}
		})

		It("returns 400 for an empty batch", func() {
			resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/images/batch", BatchAddRequest{}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Message).To(ContainSubstring("at least one item"))
		})

		It("returns 400 when an item misses its image data", func() {
			resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/images/batch", BatchAddRequest{
				Images: []AddImageRequest{
					{ID: "q1", ImageData: img("one")},
					{ID: "q2"},
				},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 409 when an id appears twice in the batch", func() {
			resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/images/batch", BatchAddRequest{
				Images: []AddImageRequest{
					{ID: "q1", ImageData: img("one")},
					{ID: "q1", ImageData: img("two")},
				},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Message).To(ContainSubstring("appears twice"))
		})

		It("rejects the whole batch when an id already exists", func() {
			Expect(addImage("e1", "existing", nil).StatusCode).To(Equal(fiber.StatusCreated))

			resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/images/batch", BatchAddRequest{
				Images: []AddImageRequest{
					{ID: "q1", ImageData: img("one")},
					{ID: "e1", ImageData: img("existing")},
				},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))

			Expect(getImage("q1").StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("names the offending record on a dimension mismatch", func() {
			ts.embedder.Embeddings["tall"] = []float32{1, 2, 3, 4, 5}

			resp, err := ts.server.app.Test(jsonRequest(http.MethodPost, "/v1/images/batch", BatchAddRequest{
				Images: []AddImageRequest{
					{ID: "q1", ImageData: img("one")},
					{ID: "q2", ImageData: img("tall")},
				},
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Error).To(Equal("invalid_argument"))
			Expect(payload.Message).To(ContainSubstring(`"q2"`))
		})
	})

	Describe("GET /v1/images/:id", func() {
		It("returns 404 for a missing record", func() {
			resp := getImage("nope")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Error).To(Equal("not_found"))
		})
	})

	Describe("DELETE /v1/images/:id", func() {
		It("deletes a record and returns 204", func() {
			Expect(addImage("q1", "sunset", nil).StatusCode).To(Equal(fiber.StatusCreated))

			req, err := http.NewRequest(http.MethodDelete, "/v1/images/q1", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := ts.server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))

			Expect(getImage("q1").StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("returns 404 for an absent id without counting an error", func() {
			req, err := http.NewRequest(http.MethodDelete, "/v1/images/ghost", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := ts.server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
			Expect(ts.registry.Snapshot().ErrorCount).To(BeZero())
		})
	})

	Describe("GET /stats", func() {
		It("merges collection stats with API counters", func() {
			Expect(addImage("q1", "sunset", nil).StatusCode).To(Equal(fiber.StatusCreated))
			Expect(getImage("q1").StatusCode).To(Equal(fiber.StatusOK))

			req, err := http.NewRequest(http.MethodGet, "/stats", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := ts.server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var payload service.Stats
			decodeJSON(resp, &payload)
			Expect(payload.Collection).To(Equal("images"))
			Expect(payload.RecordCount).To(Equal(int64(1)))
			Expect(payload.AvgRecordBytes).To(Equal(payload.StorageBytes))
			Expect(payload.APICalls).To(HaveKeyWithValue("add_image", int64(1)))
			Expect(payload.APICalls).To(HaveKeyWithValue("get_image", int64(1)))
			Expect(payload.APICalls).To(HaveKeyWithValue("stats", int64(1)))
			Expect(payload.ErrorCount).To(BeZero())
		})
	})

	Describe("rate limiting", func() {
		BeforeEach(func() {
			ts.stop()
			ts = newTestServer("2/minute")
		})

		It("limits ingests once the window is spent but never health checks", func() {
			Expect(addImage("q1", "one", nil).StatusCode).To(Equal(fiber.StatusCreated))
			Expect(addImage("q2", "two", nil).StatusCode).To(Equal(fiber.StatusCreated))

			resp := addImage("q3", "three", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusTooManyRequests))

			var payload ErrorResponse
			decodeJSON(resp, &payload)
			Expect(payload.Error).To(Equal("rate_limited"))
			Expect(payload.Message).To(ContainSubstring("2/minute"))

			for i := 0; i < 3; i++ {
				req, err := http.NewRequest(http.MethodGet, "/health", nil)
				Expect(err).NotTo(HaveOccurred())

				healthResp, err := ts.server.app.Test(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(healthResp.StatusCode).To(Equal(fiber.StatusOK))
			}
		})
	})
})
