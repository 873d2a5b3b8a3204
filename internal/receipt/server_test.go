package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/receipt-enricher/internal/enrich"
	"github.com/zombor/receipt-enricher/internal/ocr"
)

// multipartUpload builds a multipart body with one file part
func multipartUpload(filename, contentType string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeError(resp *http.Response) string {
	var body map[string]string
	Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return body["error"]
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		analyzer    *mockAnalyzer
		auth        BasicAuth
		metrics     http.Handler
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		analyzer = newMockAnalyzer()
		auth = BasicAuth{}
		metrics = nil
	})

	JustBeforeEach(func() {
		service := NewServiceWithDeps(db, analyzer, storage, &mockIDGenerator{id: "new-id"}, &mockTimeSource{})
		server = NewServerWithMux(service, auth, metrics, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	Describe("handleIndex", func() {
		It("should return the upload page", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/html"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("Receipt Enricher"))
		})

		When("request method is not GET", func() {
			It("should return status Method Not Allowed", func() {
				resp, err := http.Post(ghttpServer.URL()+"/", "text/plain", nil)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
			})
		})
	})

	Describe("handleHealth", func() {
		It("should report ok", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("handleListReceipts", func() {
		BeforeEach(func() {
			db.receipts["r1"] = reviewReceipt("r1")
			db.receipts["r2"] = &Receipt{ID: "r2", Result: newMockAnalyzer().result}
		})

		It("should return all receipts", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var receipts []*Receipt
			Expect(json.NewDecoder(resp.Body).Decode(&receipts)).To(Succeed())
			Expect(receipts).To(HaveLen(2))
		})

		It("should filter by status", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts?status=needs_review")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var receipts []*Receipt
			Expect(json.NewDecoder(resp.Body).Decode(&receipts)).To(Succeed())
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0].ID).To(Equal("r1"))
		})

		It("should reject an unknown status", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts?status=paid")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("no receipts exist", func() {
			BeforeEach(func() {
				db.receipts = map[string]*Receipt{}
			})

			It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(MatchJSON(`[]`))
			})
		})
	})

	Describe("handleUploadReceipt", func() {
		var (
			filename    string
			contentType string
			resp        *http.Response
		)

		BeforeEach(func() {
			filename = "receipt.jpg"
			contentType = "image/jpeg"
		})

		JustBeforeEach(func() {
			body, formType := multipartUpload(filename, contentType, []byte("fake image"))
			var err error
			resp, err = http.Post(ghttpServer.URL()+"/api/receipts", formType, body)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			resp.Body.Close()
		})

		When("the upload succeeds", func() {
			It("should return the created receipt", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var receipt Receipt
				Expect(json.NewDecoder(resp.Body).Decode(&receipt)).To(Succeed())
				Expect(receipt.ID).To(Equal("new-id"))
				Expect(receipt.Result.Status).To(Equal(enrich.StatusApproved))
				Expect(receipt.Result.Currency).To(Equal("₹"))
			})

			It("should store the receipt", func() {
				Expect(db.receipts).To(HaveKey("new-id"))
			})
		})

		When("the part has a generic content type", func() {
			BeforeEach(func() {
				filename = "scan.PDF"
				contentType = "application/octet-stream"
			})

			It("should infer the type from the filename", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(analyzer.contentType).To(Equal("application/pdf"))
			})
		})

		When("credentials are missing", func() {
			BeforeEach(func() {
				analyzer.err = ocr.ErrMissingCredentials
			})

			It("should return Service Unavailable", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
				Expect(decodeError(resp)).To(ContainSubstring("not configured"))
			})
		})

		When("the analysis fails", func() {
			BeforeEach(func() {
				analyzer.err = errors.New("document intelligence API error (status 500)")
			})

			It("should return Bad Gateway with the cause", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(decodeError(resp)).To(ContainSubstring("status 500"))
			})

			It("should not store anything", func() {
				Expect(db.receipts).To(BeEmpty())
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.saveErr = errors.New("disk full")
			})

			It("should return Internal Server Error", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleUploadReceipt without a file", func() {
		It("should return Bad Request", func() {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			Expect(writer.WriteField("note", "no file")).To(Succeed())
			Expect(writer.Close()).To(Succeed())

			resp, err := http.Post(ghttpServer.URL()+"/api/receipts", writer.FormDataContentType(), body)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decodeError(resp)).To(ContainSubstring("No file"))
		})
	})

	Describe("handleGetReceipt", func() {
		BeforeEach(func() {
			db.receipts["r1"] = reviewReceipt("r1")
		})

		It("should return the receipt", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/r1")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var receipt Receipt
			Expect(json.NewDecoder(resp.Body).Decode(&receipt)).To(Succeed())
			Expect(receipt.Status()).To(Equal(enrich.StatusNeedsReview))
		})

		It("should return Not Found for an unknown ID", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/missing")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleGetReceiptFile", func() {
		BeforeEach(func() {
			db.receipts["r1"] = reviewReceipt("r1")
			storage.files["r1_receipt.jpg"] = []byte("image bytes")
		})

		It("should return the stored document", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/r1/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal([]byte("image bytes")))
		})

		It("should return Not Found for an unknown ID", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/missing/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleDeleteReceipt", func() {
		BeforeEach(func() {
			db.receipts["r1"] = reviewReceipt("r1")
			storage.files["r1_receipt.jpg"] = []byte("image bytes")
		})

		It("should delete the receipt", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/receipts/r1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.receipts).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		It("should return Not Found for an unknown ID", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/receipts/missing", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleExportReceipts", func() {
		BeforeEach(func() {
			db.receipts["r1"] = reviewReceipt("r1")
		})

		It("should default to CSV", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/export")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/csv"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("receipts.csv"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("r1"))
		})

		It("should export JSON on request", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/export?format=json")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/json"))

			var rows []map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&rows)).To(Succeed())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0]).To(HaveKeyWithValue("status", "needs_review"))
		})

		It("should reject an unknown format", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/export?format=pdf")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decodeError(resp)).To(ContainSubstring("unsupported export format"))
		})
	})

	Describe("metrics", func() {
		When("a metrics handler is configured", func() {
			BeforeEach(func() {
				metrics = promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
			})

			It("should serve it", func() {
				resp, err := http.Get(ghttpServer.URL() + "/metrics")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		When("no metrics handler is configured", func() {
			It("should not expose the endpoint", func() {
				resp, err := http.Get(ghttpServer.URL() + "/metrics")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should leave the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
