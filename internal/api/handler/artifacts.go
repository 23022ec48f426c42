package handler

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Althuwaynee/iraqairquality/internal/api/response"
	"github.com/Althuwaynee/iraqairquality/internal/snapshot"
)

// artifactCacheControl lets the map cache artifacts for part of a cycle.
const artifactCacheControl = "public, max-age=300"

// ArtifactHandler serves the published artifact files.
type ArtifactHandler struct {
	dir string
}

// NewArtifactHandler creates an ArtifactHandler for the publisher directory.
func NewArtifactHandler(dir string) *ArtifactHandler {
	return &ArtifactHandler{dir: dir}
}

// Now handles GET /data/pm10_now.json.
func (h *ArtifactHandler) Now(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, snapshot.NowFile)
}

// Alerts handles GET /data/pm10_alerts.json.
func (h *ArtifactHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, snapshot.AlertsFile)
}

func (h *ArtifactHandler) serve(w http.ResponseWriter, r *http.Request, name string) {
	path := filepath.Join(h.dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			response.NotFound(w, r, name+" has not been published yet")
			return
		}
		response.InternalError(w, r, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", artifactCacheControl)
	http.ServeFile(w, r, path)
}
