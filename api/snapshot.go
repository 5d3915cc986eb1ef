package api

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zero8dotdev/godspeed-cli/fs"
	"github.com/zero8dotdev/godspeed-cli/log"
)

// HealthStatus is the body of GET /api/health
type HealthStatus struct {
	Status   string `json:"status"`
	Root     string `json:"root"`
	Sessions int    `json:"sessions"`

	// Directory names left out of every snapshot
	Ignored []string `json:"ignored"`
}

// Health handles GET /api/health
func (h *Handlers) Health(c *gin.Context) {
	RespondData(c, HealthStatus{
		Status:   "ok",
		Root:     h.root,
		Sessions: h.server.SessionCount(),
		Ignored:  fs.IgnoreSet(),
	})
}

// Snapshot handles GET /api/snapshot?dir=<relative dir>
// The directory must stay inside the exposed root.
func (h *Handlers) Snapshot(c *gin.Context) {
	target, ok := withinRoot(h.root, c.Query("dir"))
	if !ok {
		RespondForbidden(c, "directory is outside the exposed root")
		return
	}

	records, err := h.server.Snapshotter().Snapshot(c.Request.Context(), target)
	switch {
	case errors.Is(err, os.ErrNotExist):
		RespondNotFound(c, "directory not found")
		return
	case errors.Is(err, fs.ErrNotADirectory):
		RespondBadRequest(c, "not a directory")
		return
	case err != nil:
		log.Error().Err(err).Str("dir", target).Msg("snapshot failed")
		RespondInternalError(c, "Could not read folder structure")
		return
	}

	RespondData(c, records)
}

// withinRoot resolves dir against root and reports whether it stays inside root
func withinRoot(root, dir string) (string, bool) {
	if filepath.IsAbs(dir) {
		return "", false
	}
	target := filepath.Join(root, dir)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}
