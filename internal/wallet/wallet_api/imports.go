package wallet_api

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ticket-wallet/internal/extraction"
)

const uploadField = "files"

type importResponse struct {
	ID    string            `json:"id"`
	Items []extraction.Item `json:"items"`
}

type commitResponse struct {
	Added     int               `json:"added"`
	Remaining []extraction.Item `json:"remaining"`
}

// CreateImport accepts one or more ticket images or PDFs as multipart
// "files" and extracts each of them.
func (h *Handler) CreateImport(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		http.Error(w, "Invalid upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}

	uploads := make([]extraction.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "Invalid upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			http.Error(w, "Invalid upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		uploads = append(uploads, extraction.Upload{
			FileName: fh.Filename,
			MimeType: mimeTypeOf(fh.Header.Get("Content-Type"), data),
			Data:     data,
		})
	}

	h.clearWriteDeadline(w)
	batch := sess.Import(r.Context(), uploads)
	sendJSONResponse(w, http.StatusCreated, importResponse{ID: batch.ID, Items: batch.Items()})
}

func mimeTypeOf(declared string, data []byte) string {
	declared = strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return strings.SplitN(http.DetectContentType(data), ";", 2)[0]
}

func (h *Handler) GetImport(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	batch, err := sess.ImportBatch(chi.URLParam(r, "importId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	sendJSONResponse(w, http.StatusOK, importResponse{ID: batch.ID, Items: batch.Items()})
}

func (h *Handler) CorrectImportItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var patch extraction.FieldsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	importID := chi.URLParam(r, "importId")
	if err := sess.CorrectImportItem(importID, chi.URLParam(r, "itemId"), patch); err != nil {
		h.writeError(w, err)
		return
	}
	h.GetImport(w, r)
}

func (h *Handler) RetryImportItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.RetryImportItem(r.Context(), chi.URLParam(r, "importId"), chi.URLParam(r, "itemId")); err != nil {
		h.writeError(w, err)
		return
	}
	h.GetImport(w, r)
}

func (h *Handler) RemoveImportItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.RemoveImportItem(chi.URLParam(r, "importId"), chi.URLParam(r, "itemId")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CommitImport adds every reviewed item to the wallet. Items that still need
// attention are returned and stay in the import.
func (h *Handler) CommitImport(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	importID := chi.URLParam(r, "importId")
	batch, err := sess.ImportBatch(importID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	added, err := sess.CommitImport(importID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sendJSONResponse(w, http.StatusOK, commitResponse{Added: added, Remaining: batch.Items()})
}
