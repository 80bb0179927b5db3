// Package query exposes the query dispatcher over HTTP.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"zeno_agent/pkg/core/pipeline"
	"zeno_agent/pkg/core/utils"
)

const (
	// MaxUploadBytes bounds request bodies, JSON and multipart alike.
	MaxUploadBytes = 10 << 20
	// MaxFileChars bounds the document text handed to the handlers.
	MaxFileChars = 20000
)

// Dispatcher is satisfied by *pipeline.Dispatcher.
type Dispatcher interface {
	Handle(ctx context.Context, q pipeline.Query) pipeline.Reply
}

type Request struct {
	Query          string `json:"query"`
	FileContext    string `json:"file_context"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type Handler struct {
	dispatcher Dispatcher
	log        *logrus.Entry
}

func NewHandler(d Dispatcher, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{dispatcher: d, log: logger.WithField("component", "api.query")}
}

// HandleQuery accepts either a JSON body or a multipart form with an optional
// "file" part.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := h.decode(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	reply := h.dispatcher.Handle(r.Context(), pipeline.Query{
		Text:           req.Query,
		FileContext:    req.FileContext,
		ConversationID: req.ConversationID,
	})
	writeJSON(w, reply.Status, reply.Body)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Request, error) {
	req, err := h.decodeBody(w, r)
	if err != nil {
		return req, err
	}
	req.FileContext = utils.TruncateRunes(req.FileContext, MaxFileChars)
	return req, nil
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (Request, error) {
	var req Request
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
			return req, fmt.Errorf("invalid form: %w", err)
		}
		req.Query = r.FormValue("query")
		req.FileContext = r.FormValue("file_context")
		req.ConversationID = r.FormValue("conversation_id")

		file, header, err := r.FormFile("file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			return req, fmt.Errorf("read upload: %w", err)
		default:
			defer file.Close()
			doc, err := h.documentText(file, header)
			if err != nil {
				return req, err
			}
			req.FileContext = strings.TrimSpace(doc + "\n\n" + req.FileContext)
		}
		return req, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return req, errors.New("invalid request body")
	}
	return req, nil
}

// documentText extracts readable text from an upload and prefixes the file
// name. HTML is converted to text; other binary formats are described only.
func (h *Handler) documentText(file multipart.File, header *multipart.FileHeader) (string, error) {
	raw, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}

	name := header.Filename
	var body string
	switch ext := strings.ToLower(filepath.Ext(name)); {
	case ext == ".html" || ext == ".htm" || strings.Contains(header.Header.Get("Content-Type"), "html"):
		body, err = utils.HTMLToText(string(raw))
		if err != nil {
			return "", fmt.Errorf("parse html upload: %w", err)
		}
	case utf8.Valid(raw):
		body = string(raw)
	default:
		h.log.WithField("file", name).Warn("binary upload, content not extracted")
		body = fmt.Sprintf("(binary document, %d bytes, content not extracted)", len(raw))
	}

	body = utils.TruncateRunes(body, MaxFileChars)
	return fmt.Sprintf("File: %s\n%s", name, strings.TrimSpace(body)), nil
}

// HandleHealth reports liveness.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
