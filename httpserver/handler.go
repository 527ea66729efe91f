package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/mos-registry-driver/interfaces"
)

const (
	// maxBodySize is the maximum body accepted by PUT /blobs/*. Larger uploads
	// go through PUT /stream/*, which is staged on disk instead of in memory.
	maxBodySize = 64 * 1024 * 1024
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Handler exposes a StorageDriver over HTTP.
type Handler struct {
	driver interfaces.StorageDriver
	log    *slog.Logger
}

// NewHandler creates a new HTTP request handler serving driver.
func NewHandler(driver interfaces.StorageDriver, log *slog.Logger) *Handler {
	return &Handler{
		driver: driver,
		log:    log,
	}
}

// HandleGetBlob returns the content stored at the path.
//
// URL format: GET /blobs/{path}
func (h *Handler) HandleGetBlob(w http.ResponseWriter, r *http.Request) {
	path := blobPath(r)

	data, err := h.driver.GetContent(r.Context(), path)
	if err != nil {
		h.writeError(w, "get", path, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleHeadBlob reports existence and size of the object at the path.
//
// URL format: HEAD /blobs/{path}
func (h *Handler) HandleHeadBlob(w http.ResponseWriter, r *http.Request) {
	path := blobPath(r)

	if !h.driver.Exists(r.Context(), path) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	size, err := h.driver.GetSize(r.Context(), path)
	if err != nil {
		h.writeError(w, "size", path, err)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
}

// HandlePutBlob stores the request body at the path, replacing any previous
// content.
//
// URL format: PUT /blobs/{path}
// Response: JSON {"key": "<resolved object key>"}
func (h *Handler) HandlePutBlob(w http.ResponseWriter, r *http.Request) {
	path := blobPath(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, "put", path, &RequestError{
				StatusCode: http.StatusRequestEntityTooLarge,
				Err:        fmt.Errorf("body exceeds %d bytes, use /stream", maxBodySize),
			})
			return
		}
		h.writeError(w, "put", path, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}

	key, err := h.driver.PutContent(r.Context(), path, body)
	if err != nil {
		h.writeError(w, "put", path, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

// HandleDeleteBlob removes the object at the path.
//
// URL format: DELETE /blobs/{path}
func (h *Handler) HandleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	path := blobPath(r)

	if err := h.driver.Remove(r.Context(), path); err != nil {
		h.writeError(w, "remove", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStreamRead streams a byte range of the object at the path.
//
// URL format: GET /stream/{path}?offset=<int>&length=<int>
// Both parameters are optional; a missing length reads to the end.
func (h *Handler) HandleStreamRead(w http.ResponseWriter, r *http.Request) {
	path := blobPath(r)

	byteRange, err := parseByteRange(r)
	if err != nil {
		h.writeError(w, "stream read", path, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}

	rc, err := h.driver.StreamRead(r.Context(), path, byteRange)
	if err != nil {
		h.writeError(w, "stream read", path, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("Stream read interrupted", slog.String("path", path), "err", err)
	}
}

// HandleStreamWrite stores the request body at the path without buffering it
// in memory.
//
// URL format: PUT /stream/{path}
// Response: JSON {"written": <bytes>}
func (h *Handler) HandleStreamWrite(w http.ResponseWriter, r *http.Request) {
	path := blobPath(r)

	n, err := h.driver.StreamWrite(r.Context(), path, r.Body)
	if err != nil {
		h.writeError(w, "stream write", path, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"written": n})
}

// HandleList returns the object keys under the path as a JSON array.
//
// URL format: GET /list/{path}
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	path := blobPath(r)

	keys := []string{}
	for key, err := range h.driver.ListDirectory(r.Context(), path) {
		if err != nil {
			h.writeError(w, "list", path, err)
			return
		}
		keys = append(keys, key)
	}

	writeJSON(w, http.StatusOK, keys)
}

// writeError maps driver errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, op, path string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", slog.String("op", op), slog.String("path", path), "err", err)
	} else {
		h.log.Debug("Request rejected", slog.String("op", op), slog.String("path", path), "err", err)
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrInvalidPath), errors.Is(err, interfaces.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrConnection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func blobPath(r *http.Request) string {
	return chi.URLParam(r, "*")
}

func parseByteRange(r *http.Request) (interfaces.ByteRange, error) {
	byteRange := interfaces.WholeObject

	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.ParseInt(v, 10, 64)
		if err != nil || offset < 0 {
			return byteRange, fmt.Errorf("invalid offset %q", v)
		}
		byteRange.Offset = offset
	}
	if v := r.URL.Query().Get("length"); v != "" {
		length, err := strconv.ParseInt(v, 10, 64)
		if err != nil || length <= 0 {
			return byteRange, fmt.Errorf("invalid length %q", v)
		}
		byteRange.Length = length
	}
	return byteRange, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
