package handlers

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cloo-solutions/campaignkb/internal/api"
	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/cloo-solutions/campaignkb/internal/pagination"
	"github.com/cloo-solutions/campaignkb/internal/repository"
	"github.com/cloo-solutions/campaignkb/internal/service"
	"github.com/cloo-solutions/campaignkb/internal/storage"
	"github.com/go-chi/chi/v5"
)

type KnowledgeBase interface {
	Ingest(ctx context.Context, path string) (int, error)
	SyncDirectory(ctx context.Context, dir string) (*service.SyncResult, error)
	Ask(ctx context.Context, query string, k int) (string, error)
	SessionEnemies(ctx context.Context, session int) (string, error)
}

type ManifestReader interface {
	ReadManifest(stem string) ([]repository.ManifestRecord, error)
}

type PDFPuller interface {
	PullPDFs(ctx context.Context, dir string) (*storage.PullResult, error)
}

// KBHandlerConfig locates documents on the server. Ingest paths must resolve
// inside IngestDir or DriveRawDir; relative paths are taken from IngestDir.
type KBHandlerConfig struct {
	IngestDir   string
	DriveRawDir string
}

type KBHandler struct {
	kb       KnowledgeBase
	manifest ManifestReader
	puller   PDFPuller
	cfg      KBHandlerConfig
}

// NewKBHandler creates a KBHandler. puller may be nil when no bucket is configured.
func NewKBHandler(kb KnowledgeBase, manifest ManifestReader, puller PDFPuller, cfg KBHandlerConfig) *KBHandler {
	return &KBHandler{kb: kb, manifest: manifest, puller: puller, cfg: cfg}
}

type IngestRequest struct {
	Path string `json:"path"`
}

type IngestResponse struct {
	SourceFile string `json:"source_file"`
	Chunks     int    `json:"chunks"`
}

type SyncRequest struct {
	Pull bool `json:"pull"`
}

type SyncFailureResponse struct {
	SourceFile string `json:"source_file"`
	Error      string `json:"error"`
}

type SyncResponse struct {
	Message    string                `json:"message"`
	Documents  int                   `json:"documents"`
	Chunks     int                   `json:"chunks"`
	Failed     []SyncFailureResponse `json:"failed"`
	Downloaded []string              `json:"downloaded,omitempty"`
}

type AskRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
	MaxChars int    `json:"max_chars"`
}

type AnswerResponse struct {
	Answer string `json:"answer"`
}

type ManifestResponse struct {
	Stem    string                      `json:"stem"`
	Chunks  []repository.ManifestRecord `json:"chunks"`
	Cursor  string                      `json:"cursor,omitempty"`
	HasMore bool                        `json:"has_more"`
}

func (h *KBHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !api.DecodeJSON(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		api.HandleError(w, domain.ErrMissingRequiredField)
		return
	}

	path, err := h.resolvePath(req.Path)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	n, err := h.kb.Ingest(r.Context(), path)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, IngestResponse{SourceFile: filepath.Base(path), Chunks: n})
}

func (h *KBHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !api.DecodeJSON(w, r, &req, true) {
		return
	}

	var downloaded []string
	if req.Pull {
		if h.puller == nil {
			api.HandleError(w, domain.ErrStorageNotConfigured)
			return
		}
		pulled, err := h.puller.PullPDFs(r.Context(), h.cfg.DriveRawDir)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		downloaded = pulled.Downloaded
	}

	result, err := h.kb.SyncDirectory(r.Context(), h.cfg.DriveRawDir)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	failed := make([]SyncFailureResponse, 0, len(result.Failed))
	for _, f := range result.Failed {
		log.Printf("sync: %s failed: %v", f.SourceFile, f.Err)
		failed = append(failed, SyncFailureResponse{SourceFile: f.SourceFile, Error: api.PublicMessage(f.Err)})
	}

	api.Success(w, http.StatusOK, SyncResponse{
		Message:    result.Message(),
		Documents:  result.Documents,
		Chunks:     result.Chunks,
		Failed:     failed,
		Downloaded: downloaded,
	})
}

func (h *KBHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !api.DecodeJSON(w, r, &req, false) {
		return
	}
	if req.K < 0 || req.MaxChars < 0 {
		api.Error(w, http.StatusBadRequest, "k and max_chars must not be negative")
		return
	}

	answer, err := h.kb.Ask(r.Context(), req.Question, req.K)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, AnswerResponse{Answer: service.TruncateAnswer(answer, req.MaxChars)})
}

func (h *KBHandler) SessionEnemies(w http.ResponseWriter, r *http.Request) {
	session, err := strconv.Atoi(chi.URLParam(r, "session"))
	if err != nil {
		api.HandleError(w, domain.ErrInvalidSession)
		return
	}

	maxChars := 0
	if v := r.URL.Query().Get("max_chars"); v != "" {
		maxChars, err = strconv.Atoi(v)
		if err != nil || maxChars < 0 {
			api.Error(w, http.StatusBadRequest, "invalid max_chars")
			return
		}
	}

	answer, err := h.kb.SessionEnemies(r.Context(), session)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, AnswerResponse{Answer: service.TruncateAnswer(answer, maxChars)})
}

func (h *KBHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	stem := chi.URLParam(r, "stem")
	if stem == "" || stem != filepath.Base(stem) || stem == "." || stem == ".." {
		api.Error(w, http.StatusBadRequest, "invalid document stem")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.manifest.ReadManifest(stem)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	page, err := pagination.Paginate(records, r.URL.Query().Get("cursor"), limit, func(rec repository.ManifestRecord) string {
		return rec.ID
	})
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	api.Success(w, http.StatusOK, ManifestResponse{
		Stem:    stem,
		Chunks:  page.Items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *KBHandler) resolvePath(p string) (string, error) {
	if !strings.EqualFold(filepath.Ext(p), ".pdf") {
		return "", domain.ErrNotPDF
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(h.cfg.IngestDir, p)
	}
	p = filepath.Clean(p)

	for _, root := range []string{h.cfg.IngestDir, h.cfg.DriveRawDir} {
		if root != "" && within(root, p) {
			return p, nil
		}
	}
	return "", domain.ErrPathNotAllowed
}

// within reports whether path lies below root once symlinks in either are
// resolved, so a link inside root cannot point out of it.
func within(root, path string) bool {
	realRoot, err := resolveSymlinks(root)
	if err != nil {
		return false
	}
	realPath, err := resolveSymlinks(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveSymlinks evaluates symlinks of the longest existing prefix of p
// and appends the rest unchanged.
func resolveSymlinks(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(abs)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		// a dangling link exists but cannot be resolved
		if _, lerr := os.Lstat(abs); lerr == nil {
			return "", err
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", err
		}
		missing = append([]string{filepath.Base(abs)}, missing...)
		abs = parent
	}
}
