package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/domain/diagnostics"
)

// RunSelfTest runs the in-process self-tests. ?test= selects one check or a
// group ("locks", "throttle/per_user", "stress"); empty runs everything.
func (h *Handlers) RunSelfTest(c *gin.Context) {
	defer h.metrics.Track("diagnostics", "selftest")()

	settings := h.hub.Settings()
	suite := diagnostics.NewSuite(h.log, settings.StressTestMessageCount, settings.StressTestUserCount)

	var (
		report diagnostics.Report
		err    error
	)
	test := c.Query("test")
	if test == "" {
		report = suite.RunAll(c.Request.Context())
	} else {
		report, err = suite.Run(c.Request.Context(), test)
	}
	if errors.Is(err, diagnostics.ErrUnknownCheck) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
			"tests":   suite.Names(),
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

	h.log.Info("self-test finished",
		zap.String("test", test),
		zap.Int("runs", report.Runs),
		zap.Int("failed", report.Failed))

	c.JSON(http.StatusOK, gin.H{
		"success": report.AllPassed(),
		"report":  report,
		"text":    report.String(),
	})
}

// ListSelfTests lists the available self-test names
func (h *Handlers) ListSelfTests(c *gin.Context) {
	settings := h.hub.Settings()
	suite := diagnostics.NewSuite(nil, settings.StressTestMessageCount, settings.StressTestUserCount)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tests":   suite.Names(),
	})
}
