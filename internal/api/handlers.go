package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/serapeum-ai/serapeum/internal/knowledge"
	"github.com/serapeum-ai/serapeum/internal/rag"
)

// maxBodyBytes bounds request bodies so a single client cannot exhaust
// memory with one POST.
const maxBodyBytes = 10 << 20

type handler struct {
	logger    *slog.Logger
	querier   Querier
	ingestor  Ingestor
	documents DocumentStore
	graph     GraphReader
	knowledge Knowledge
	avail     rag.Availability
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, h.logger, rag.Validationf("invalid JSON body: %v", err))
		return false
	}
	return true
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (h *handler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !h.decode(w, r, &req) {
		return
	}

	answer, err := h.querier.Answer(r.Context(), req.Query, req.TopK)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type storeDocumentRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

func (h *handler) storeDocument(w http.ResponseWriter, r *http.Request) {
	var req storeDocumentRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), req.Content, req.Metadata)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":                 result.Document.ID,
		"outcome":            result.Outcome.String(),
		"failed_enrichments": result.FailedEnrichments,
	})
}

func (h *handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, h.logger, rag.Validationf("document id is required"))
		return
	}

	doc, err := h.documents.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if doc == nil {
		writeError(w, h.logger, rag.NotFoundf("document %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *handler) graphNodes(w http.ResponseWriter, r *http.Request) {
	if !h.avail.Graph || h.graph == nil {
		writeError(w, h.logger, rag.Unavailable("graph"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, h.logger, rag.Validationf("limit must be an integer"))
			return
		}
		limit = n
	}

	nodes, err := h.graph.NodesByLabel(r.Context(), r.PathValue("label"), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "count": len(nodes)})
}

type knowledgeAddRequest struct {
	Text string `json:"text"`
}

func (h *handler) knowledgeAdd(w http.ResponseWriter, r *http.Request) {
	if !h.avail.Knowledge || h.knowledge == nil {
		writeError(w, h.logger, rag.Unavailable("knowledge"))
		return
	}

	var req knowledgeAddRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, h.logger, rag.Validationf("text is required"))
		return
	}

	raw, err := h.knowledge.Add(r.Context(), req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeRaw(w, raw)
}

type knowledgeSearchRequest struct {
	Query      string `json:"query"`
	SearchType string `json:"search_type"`
}

func (h *handler) knowledgeSearch(w http.ResponseWriter, r *http.Request) {
	if !h.avail.Knowledge || h.knowledge == nil {
		writeError(w, h.logger, rag.Unavailable("knowledge"))
		return
	}

	var req knowledgeSearchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, h.logger, rag.Validationf("query is required"))
		return
	}
	searchType, err := knowledge.ParseSearchType(req.SearchType)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	raw, err := h.knowledge.Search(r.Context(), req.Query, searchType)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeRaw(w, raw)
}

// writeRaw passes through JSON already produced by the knowledge
// processor.
func writeRaw(w http.ResponseWriter, raw json.RawMessage) {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
