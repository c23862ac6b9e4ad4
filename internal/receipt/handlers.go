package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/zombor/receipt-scanner/internal/scanning"
)

// maxUploadSize caps uploaded documents at 50MB
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes {"error": message} plus any extra fields
func jsonError(w http.ResponseWriter, code int, message string, extra map[string]string) {
	body := map[string]string{"error": message}
	for k, v := range extra {
		body[k] = v
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleUploadFile stores an uploaded receipt document
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, http.StatusBadRequest, errorMsg, nil)
		return
	}

	f, header, err := r.FormFile("receipt")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, http.StatusBadRequest, "No file uploaded", nil)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, http.StatusInternalServerError, "Error reading file. Please try again.", nil)
		return
	}

	file, err := s.service.UploadFile(header.Filename, data)
	if err != nil {
		slog.Error("Error uploading file", "filename", header.Filename, "error", err)
		jsonError(w, http.StatusInternalServerError, "Error saving file", nil)
		return
	}

	writeJSON(w, http.StatusCreated, file)
}

// handleListFiles returns all uploaded files
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.service.ListFiles()
	if err != nil {
		slog.Error("Error listing files", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, files)
}

// handleGetFile returns a single file record
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.service.GetFile(r.PathValue("id"))
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, file)
}

// handleGetFileContent returns the stored document
func (s *Server) handleGetFileContent(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetFileData(r.PathValue("id"))
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}

// handleValidateFile checks a file's signature and records the result
func (s *Server) handleValidateFile(w http.ResponseWriter, r *http.Request) {
	_, result, err := s.service.ValidateFile(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "File not found", http.StatusNotFound)
			return
		}
		slog.Error("Error validating file", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleProcessFile runs the scanning pipeline over a file
func (s *Server) handleProcessFile(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.ProcessFile(r.Context(), r.PathValue("id"))
	if err != nil {
		var stageErr *scanning.StageError
		switch {
		case errors.Is(err, ErrNotFound):
			jsonError(w, http.StatusNotFound, "File not found", nil)
		case errors.Is(err, ErrFileInvalid):
			jsonError(w, http.StatusUnprocessableEntity, err.Error(), nil)
		case errors.As(err, &stageErr):
			jsonError(w, http.StatusBadGateway, "Error processing receipt", map[string]string{
				"stage": string(stageErr.Stage),
			})
		default:
			slog.Error("Error processing file", "error", err)
			jsonError(w, http.StatusInternalServerError, "Internal server error", nil)
		}
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

// handleListReceipts returns a list of all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Receipt not found", http.StatusNotFound)
			return
		}
		corsError(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
