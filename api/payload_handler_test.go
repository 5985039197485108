package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/logger"
	"github.com/totenbilder/imagesearch/pkg/metadata"
)

type stubPayload struct {
	started  []metadata.SyncRequest
	startErr error
	report   *metadata.MissingReport
	err      error
}

func (p *stubPayload) Start(req metadata.SyncRequest) error {
	if p.startErr != nil {
		return p.startErr
	}
	p.started = append(p.started, req)
	return nil
}

func (p *stubPayload) Missing(context.Context) (*metadata.MissingReport, error) {
	return p.report, p.err
}

var _ = Describe("Payload routes", func() {
	var (
		payload *stubPayload
		config  Config
		server  *Server
	)

	BeforeEach(func() {
		payload = &stubPayload{}
		config = Config{
			APIKey:   testKey,
			Searcher: &stubSearcher{},
			Indexer:  &stubIndexer{},
			Payload:  payload,
		}
	})

	JustBeforeEach(func() {
		var err error
		server, err = NewServer(config, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("POST /api/update-payload", func() {
		It("requires the api key", func() {
			resp, _ := doJSON(server.app, http.MethodPost, "/api/update-payload", map[string]any{"all": true})
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
			Expect(payload.started).To(BeEmpty())
		})

		It("starts a sync of all records and returns 202", func() {
			resp, body := doJSON(server.app, http.MethodPost, "/api/update-payload",
				map[string]any{"all": true}, HeaderAPIKey, testKey)
			Expect(resp.StatusCode).To(Equal(fiber.StatusAccepted))

			var out UpdatePayloadResponse
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Message).To(ContainSubstring("all records"))
			Expect(payload.started).To(Equal([]metadata.SyncRequest{{All: true}}))
		})

		It("starts a sync of one trimmed filename", func() {
			resp, body := doJSON(server.app, http.MethodPost, "/api/update-payload",
				map[string]any{"filename": " a.jpg "}, HeaderAPIKey, testKey)
			Expect(resp.StatusCode).To(Equal(fiber.StatusAccepted))
			Expect(string(body)).To(ContainSubstring(`a.jpg`))
			Expect(payload.started).To(Equal([]metadata.SyncRequest{{Filename: "a.jpg"}}))
		})

		It("returns 400 without a filename or all", func() {
			resp, body := doJSON(server.app, http.MethodPost, "/api/update-payload",
				map[string]any{}, HeaderAPIKey, testKey)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(errorOf(body)).To(ContainSubstring("filename or all"))
			Expect(payload.started).To(BeEmpty())
		})

		It("returns 409 while a sync is active", func() {
			payload.startErr = fmt.Errorf("%w: payload sync", errdefs.ErrAlreadyRunning)
			resp, _ := doJSON(server.app, http.MethodPost, "/api/update-payload",
				map[string]any{"all": true}, HeaderAPIKey, testKey)
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
		})

		Context("without a payload syncer", func() {
			BeforeEach(func() {
				config.Payload = nil
			})

			It("returns 503", func() {
				resp, body := doJSON(server.app, http.MethodPost, "/api/update-payload",
					map[string]any{"all": true}, HeaderAPIKey, testKey)
				Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
				Expect(errorOf(body)).To(ContainSubstring("not configured"))
			})
		})
	})

	Describe("GET /api/missing-in-index", func() {
		It("requires the api key", func() {
			resp, _ := doJSON(server.app, http.MethodGet, "/api/missing-in-index", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
		})

		It("reports counts and caps the file lists", func() {
			ready := make([]string, 600)
			for i := range ready {
				ready[i] = fmt.Sprintf("totenbilder/%04d.jpg", i)
			}
			payload.report = &metadata.MissingReport{
				Records:         700,
				Indexed:         99,
				Missing:         append(ready, "totenbilder/gone.jpg"),
				BucketChecked:   true,
				ReadyToIndex:    ready,
				MissingInBucket: []string{"totenbilder/gone.jpg"},
			}

			resp, body := doJSON(server.app, http.MethodGet, "/api/missing-in-index", nil, HeaderAPIKey, testKey)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out MissingResponse
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.TotalRecords).To(Equal(700))
			Expect(out.TotalIndexed).To(Equal(99))
			Expect(out.TotalMissing).To(Equal(601))
			Expect(out.ReadyToIndexCount).To(Equal(600))
			Expect(out.MissingInBucketCount).To(Equal(1))
			Expect(out.ReadyToIndexFiles).To(HaveLen(500))
			Expect(out.MissingFiles).To(HaveLen(500))
			Expect(out.MissingInBucketFiles).To(Equal([]string{"totenbilder/gone.jpg"}))
		})

		It("renders empty lists as arrays", func() {
			payload.report = &metadata.MissingReport{Records: 1, Indexed: 1}
			_, body := doJSON(server.app, http.MethodGet, "/api/missing-in-index", nil, HeaderAPIKey, testKey)
			Expect(string(body)).To(ContainSubstring(`"ready_to_index_files":[]`))
		})

		It("maps index failures to 503", func() {
			payload.err = fmt.Errorf("checking key: %w", errdefs.ErrIndexUnavailable)
			resp, _ := doJSON(server.app, http.MethodGet, "/api/missing-in-index", nil, HeaderAPIKey, testKey)
			Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
		})
	})
})
