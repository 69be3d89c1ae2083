package media

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// Handler streams stored attachments under /uploads/*.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a media handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// ServeHTTP handles GET /uploads/* requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	if !ValidKey(key) {
		http.NotFound(w, r)
		return
	}
	obj, err := h.store.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("failed to open media", "key", key, "error", err)
		http.Error(w, "failed to load file", http.StatusInternalServerError)
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Warn("media stream interrupted", "key", key, "error", err)
	}
}
