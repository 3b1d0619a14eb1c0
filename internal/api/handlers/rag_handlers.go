package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/ragjenkins/internal/index"
	"github.com/agentoven/ragjenkins/internal/rag"
	"github.com/agentoven/ragjenkins/pkg/models"
)

// maxSearchResults caps the k parameter of GET /api/search.
const maxSearchResults = 50

// ══════════════════════════════════════════════════════════════
// ── Index / Search ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// IndexArchive handles POST /api/index (multipart: archive, language).
// The collection is replaced by the archive's chunks.
func (h *Handlers) IndexArchive(w http.ResponseWriter, r *http.Request) {
	coll, ok := h.collection(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.Archive.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "archive exceeds the upload limit")
			return
		}
		respondError(w, http.StatusBadRequest, "expected a multipart form with an archive file")
		return
	}
	defer r.MultipartForm.RemoveAll()

	filter, err := rag.ParseLanguageFilter(r.FormValue("language"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("archive")
	if err != nil {
		respondError(w, http.StatusBadRequest, "archive file is required")
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		respondError(w, http.StatusBadRequest, "archive must be a .zip file")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read archive")
		return
	}

	result, err := h.Ingester.IndexArchive(r.Context(), coll, data, filter)
	if result != nil && h.Activity != nil {
		h.Activity.Indexed(result)
	}
	if err != nil {
		log.Warn().Err(err).Str("collection", coll.Name()).Str("archive", header.Filename).Msg("Index failed")
		if errors.Is(err, rag.ErrNoSupportedFiles) && result != nil {
			respondError(w, http.StatusBadRequest, result.StatusMessage)
			return
		}
		respondErr(w, r, err)
		return
	}

	log.Info().
		Str("collection", coll.Name()).
		Str("archive", header.Filename).
		Int("files", result.FilesIndexed).
		Int("chunks", result.ChunksStored).
		Msg("Archive indexed")
	respondJSON(w, http.StatusOK, result)
}

// ClearIndex handles POST /api/index/clear.
func (h *Handlers) ClearIndex(w http.ResponseWriter, r *http.Request) {
	coll, ok := h.collection(w, r)
	if !ok {
		return
	}
	if err := coll.Clear(r.Context()); err != nil {
		respondErr(w, r, err)
		return
	}
	if h.Activity != nil {
		h.Activity.Cleared(coll.Name())
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"collection": coll.Name(),
		"status":     "Index cleared.",
	})
}

// Search handles GET /api/search?q=&k=
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	coll, ok := h.collection(w, r)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	k := index.DefaultTopK
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSearchResults {
			respondError(w, http.StatusBadRequest, "k must be between 1 and 50")
			return
		}
		k = n
	}

	hits, err := coll.Search(r.Context(), query, k)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if hits == nil {
		hits = []models.ScoredChunk{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"collection": coll.Name(),
		"query":      query,
		"results":    hits,
	})
}
