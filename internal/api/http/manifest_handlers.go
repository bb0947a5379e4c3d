package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepdev237/LivePrint/internal/manifest"
)

// GetManifest lists the plugin's module manifests, filtered by ?module= and
// ?variant=, each with its validation result against the module registry.
func (h *Handlers) GetManifest(c *gin.Context) {
	var variant manifest.Variant
	if raw := c.Query("variant"); raw != "" {
		v, err := manifest.ParseVariant(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		variant = v
	}
	module := c.Query("module")

	manifests := h.manifests.Query(module, variant)
	if len(manifests) == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "No manifest matches",
			"modules": h.manifests.Modules(),
		})
		return
	}

	type entry struct {
		manifest.Manifest
		Valid    bool               `json:"valid"`
		Problems []manifest.Problem `json:"problems,omitempty"`
	}
	out := make([]entry, 0, len(manifests))
	valid := true
	for _, m := range manifests {
		e := entry{Manifest: m, Valid: true}
		if err := manifest.Validate(m, h.modules); err != nil {
			var verr *manifest.ValidationError
			if errors.As(err, &verr) {
				e.Problems = verr.Problems
			}
			e.Valid = false
			valid = false
		}
		out = append(out, e)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"manifests": out,
		"valid":     valid,
		"canonical": manifest.VariantA,
	})
}

// DiffManifest compares one module's manifest across two variants
func (h *Handlers) DiffManifest(c *gin.Context) {
	module := c.Query("module")
	if module == "" {
		badRequest(c, "module is required")
		return
	}
	from, err := manifest.ParseVariant(c.DefaultQuery("from", "A"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	to, err := manifest.ParseVariant(c.DefaultQuery("to", "B"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	diff, err := h.manifests.Compare(module, from, to)
	if errors.Is(err, manifest.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"diff":    diff,
		"same":    diff.Empty(),
	})
}
