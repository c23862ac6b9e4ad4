package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-scanner/internal/scanning"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		scanner     *mockScanner
		service     *Service
		server      *Server
		auth        BasicAuth
		idGen       *mockIDGenerator
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		idGen = &mockIDGenerator{ids: []string{"file-1", "receipt-1"}}
		service = NewServiceWithDeps(db, scanner, storage, idGen,
			&mockTimeSource{now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)},
		)
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).To(Succeed())
	}

	multipartBody := func(field, filename string, data []byte) (*bytes.Buffer, string) {
		var b bytes.Buffer
		writer := multipart.NewWriter(&b)
		part, err := writer.CreateFormFile(field, filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())
		return &b, writer.FormDataContentType()
	}

	// seedFile stands in for an upload, taking the next ID as one would
	seedFile := func(data []byte) {
		id := idGen.Generate()
		storedName := id + "_receipt.pdf"
		_, err := storage.Save(storedName, data)
		Expect(err).NotTo(HaveOccurred())
		db.files[id] = &File{ID: id, Filename: "receipt.pdf", StoredName: storedName}
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = newMockScanner()
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleUploadFile", func() {
		When("upload succeeds", func() {
			var resp *http.Response

			BeforeEach(func() {
				body, contentType := multipartBody("receipt", "receipt.pdf", validPDF)
				resp = do("POST", "/api/files", body, contentType)
			})

			It("should return status Created", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				resp.Body.Close()
			})

			It("should return the unvalidated file record", func() {
				var file File
				decode(resp, &file)
				Expect(file.ID).To(Equal("file-1"))
				Expect(file.Filename).To(Equal("receipt.pdf"))
				Expect(file.Validated).To(BeFalse())
			})

			It("should store the upload", func() {
				resp.Body.Close()
				Expect(storage.files).To(HaveKey("file-1_receipt.pdf"))
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				body, contentType := multipartBody("other", "receipt.pdf", validPDF)
				resp := do("POST", "/api/files", body, contentType)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("invalid multipart form", func() {
			It("should return status Bad Request", func() {
				resp := do("POST", "/api/files", bytes.NewBufferString("invalid"), "multipart/form-data")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("storage returns an error", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("disk full")
			})

			It("should return status Internal Server Error", func() {
				body, contentType := multipartBody("receipt", "receipt.pdf", validPDF)
				resp := do("POST", "/api/files", body, contentType)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleListFiles", func() {
		BeforeEach(func() {
			seedFile(validPDF)
		})

		It("should return all files", func() {
			resp := do("GET", "/api/files", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			var files []*File
			decode(resp, &files)
			Expect(files).To(HaveLen(1))
		})

		When("the database returns an error", func() {
			BeforeEach(func() {
				db.listFilesErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp := do("GET", "/api/files", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleGetFile", func() {
		When("file exists", func() {
			BeforeEach(func() {
				seedFile(validPDF)
			})

			It("should return the file", func() {
				resp := do("GET", "/api/files/file-1", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var file File
				decode(resp, &file)
				Expect(file.StoredName).To(Equal("file-1_receipt.pdf"))
			})
		})

		When("file does not exist", func() {
			It("should return status Not Found", func() {
				resp := do("GET", "/api/files/nope", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleGetFileContent", func() {
		When("file exists", func() {
			BeforeEach(func() {
				seedFile(validPDF)
			})

			It("should return the stored bytes", func() {
				resp := do("GET", "/api/files/file-1/content", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(body).To(Equal(validPDF))
			})
		})

		When("file does not exist", func() {
			It("should return status Not Found", func() {
				resp := do("GET", "/api/files/nope/content", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleValidateFile", func() {
		When("the file is a PDF", func() {
			BeforeEach(func() {
				seedFile(validPDF)
			})

			It("should report it as valid", func() {
				resp := do("POST", "/api/files/file-1/validate", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var result scanning.ValidationResult
				decode(resp, &result)
				Expect(result.Valid).To(BeTrue())
				Expect(result.Reason).To(BeEmpty())
			})
		})

		When("the file is not a PDF", func() {
			BeforeEach(func() {
				seedFile([]byte("GIF89a"))
			})

			It("should report the reason", func() {
				resp := do("POST", "/api/files/file-1/validate", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var result scanning.ValidationResult
				decode(resp, &result)
				Expect(result.Valid).To(BeFalse())
				Expect(result.Reason).To(Equal("not a valid PDF document"))
			})
		})

		When("file does not exist", func() {
			It("should return status Not Found", func() {
				resp := do("POST", "/api/files/nope/validate", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleProcessFile", func() {
		When("processing succeeds", func() {
			BeforeEach(func() {
				seedFile(validPDF)
			})

			It("should return the extracted receipt", func() {
				resp := do("POST", "/api/files/file-1/process", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				var receipt Receipt
				decode(resp, &receipt)
				Expect(receipt.ID).To(Equal("receipt-1"))
				Expect(receipt.FileID).To(Equal("file-1"))
				Expect(receipt.TotalAmount).To(HaveValue(Equal("$25.99")))
			})
		})

		When("fields are absent", func() {
			BeforeEach(func() {
				seedFile(validPDF)
				scanner.data = &scanning.ReceiptData{MerchantName: strPtr("Corner Shop")}
			})

			It("should encode them as null", func() {
				resp := do("POST", "/api/files/file-1/process", nil, "")
				var body map[string]any
				decode(resp, &body)
				Expect(body).To(HaveKeyWithValue("merchant_name", "Corner Shop"))
				Expect(body).To(HaveKeyWithValue("purchased_at", BeNil()))
				Expect(body).To(HaveKeyWithValue("total_amount", BeNil()))
			})
		})

		When("the file is not a PDF", func() {
			BeforeEach(func() {
				seedFile([]byte("PK\x03\x04"))
			})

			It("should return status Unprocessable Entity", func() {
				resp := do("POST", "/api/files/file-1/process", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(ContainSubstring("not a valid PDF document"))
				Expect(scanner.scanned).To(BeEmpty())
			})
		})

		When("a pipeline stage fails", func() {
			BeforeEach(func() {
				seedFile(validPDF)
				scanner.scanErr = &scanning.StageError{Stage: scanning.StageRecognize, Err: errors.New("engine crashed")}
			})

			It("should name the failing stage", func() {
				resp := do("POST", "/api/files/file-1/process", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				var body map[string]string
				decode(resp, &body)
				Expect(body).To(HaveKeyWithValue("stage", "recognize"))
			})
		})

		When("scanning fails for another reason", func() {
			BeforeEach(func() {
				seedFile(validPDF)
				scanner.scanErr = errors.New("unexpected")
			})

			It("should return status Internal Server Error", func() {
				resp := do("POST", "/api/files/file-1/process", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})

		When("file does not exist", func() {
			It("should return status Not Found", func() {
				resp := do("POST", "/api/files/nope/process", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleListReceipts", func() {
		When("receipts exist", func() {
			BeforeEach(func() {
				db.receipts["id1"] = &Receipt{ID: "id1", MerchantName: strPtr("A")}
				db.receipts["id2"] = &Receipt{ID: "id2", MerchantName: strPtr("B")}
			})

			It("should return all receipts", func() {
				resp := do("GET", "/api/receipts", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				var receipts []*Receipt
				decode(resp, &receipts)
				Expect(receipts).To(HaveLen(2))
			})
		})

		When("no receipts exist", func() {
			It("should return an empty array", func() {
				resp := do("GET", "/api/receipts", nil, "")
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(Equal("[]\n"))
			})
		})

		When("the database returns an error", func() {
			BeforeEach(func() {
				db.listReceiptsErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp := do("GET", "/api/receipts", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleGetReceipt", func() {
		When("receipt exists", func() {
			BeforeEach(func() {
				db.receipts["id1"] = &Receipt{ID: "id1", FileID: "file-1", PurchasedAt: strPtr("01/15/2024")}
			})

			It("should return the receipt", func() {
				resp := do("GET", "/api/receipts/id1", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var receipt Receipt
				decode(resp, &receipt)
				Expect(receipt.PurchasedAt).To(HaveValue(Equal("01/15/2024")))
			})
		})

		When("receipt does not exist", func() {
			It("should return status Not Found", func() {
				resp := do("GET", "/api/receipts/nope", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleDeleteReceipt", func() {
		When("deletion succeeds", func() {
			BeforeEach(func() {
				db.receipts["id1"] = &Receipt{ID: "id1"}
			})

			It("should return status No Content", func() {
				resp := do("DELETE", "/api/receipts/id1", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(db.receipts).NotTo(HaveKey("id1"))
			})
		})

		When("receipt does not exist", func() {
			It("should return status Not Found", func() {
				resp := do("DELETE", "/api/receipts/nope", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		When("the database returns an error", func() {
			BeforeEach(func() {
				db.receipts["id1"] = &Receipt{ID: "id1"}
				db.deleteErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp := do("DELETE", "/api/receipts/id1", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("authenticate", func() {
		When("no auth is configured", func() {
			It("should return true", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(server.authenticate(req)).To(BeTrue())
			})
		})

		When("auth is configured", func() {
			BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				setupServer()
			})

			It("should accept valid credentials", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:pass")))
				Expect(server.authenticate(req)).To(BeTrue())
			})

			It("should reject invalid credentials", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "wrong")
				Expect(server.authenticate(req)).To(BeFalse())
			})

			It("should reject a missing header", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(server.authenticate(req)).To(BeFalse())
			})
		})
	})

	Describe("requireAuth", func() {
		When("request is unauthorized", func() {
			BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				setupServer()
			})

			It("should return status Unauthorized with a challenge", func() {
				resp := do("POST", "/api/files/file-1/process", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Receipt Scanner"))
				Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
				Expect(scanner.scanned).To(BeEmpty())
			})
		})
	})

	Describe("corsMiddleware", func() {
		It("should answer preflight requests without calling the handler", func() {
			called := false
			handler := server.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})
			ghttpServer.SetHandler(0, handler)

			resp := do("OPTIONS", "/api/files", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("DELETE"))
			Expect(called).To(BeFalse())
		})
	})

	Describe("Handler", func() {
		It("should wrap the routes with CORS headers", func() {
			ghttpServer.SetHandler(0, server.Handler().ServeHTTP)

			resp := do("GET", "/api/receipts", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("Start", func() {
		It("should return once the context is done", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				done <- server.Start(ctx, "127.0.0.1:0")
			}()

			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
