package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/layout"
	"github.com/username/orphanrun/pkg/render"
	"github.com/username/orphanrun/pkg/stats"
)

const (
	headLineLimit = 400
	pageHeading   = "Qubic-selfish orphan runs"
)

func (s *Server) handleDetect(c *gin.Context) {
	minRun, err := queryInt(c, "minRun", s.analyzer.MinRunLength())
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	res, err := s.analyzer.Analyze(c.Request.Context(), minRun)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleMeta(c *gin.Context) {
	f, err := s.analyzer.Fetch(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	body := gin.H{
		"source":     s.analyzer.Source().Describe(),
		"size_bytes": f.Size,
		"rows":       len(f.Rows),
		"head_line":  headLine(f.Header),
		"mtime":      nil,
	}
	if !f.ModTime.IsZero() {
		body["mtime"] = f.ModTime.UnixMilli()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRuns(c *gin.Context) {
	res, runs, ok := s.selectRuns(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"meta": res.Summary, "runs": runs})
}

func (s *Server) handleLayouts(c *gin.Context) {
	res, runs, ok := s.selectRuns(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta":    res.Summary,
		"layouts": layout.All(runs, s.cfg.LayoutConfig()),
	})
}

func (s *Server) handlePage(c *gin.Context) {
	_, runs, ok := s.selectRuns(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.Page(&buf, pageHeading, layout.All(runs, s.cfg.LayoutConfig())); err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleSVG(c *gin.Context) {
	start, err := strconv.ParseInt(c.Param("start"), 10, 64)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("invalid start height %q", c.Param("start")))
		return
	}
	minRun, err := queryInt(c, "minRun", s.analyzer.MinRunLength())
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	res, err := s.analyzer.Analyze(c.Request.Context(), minRun)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	for _, run := range res.Runs {
		if run.StartHeight != start {
			continue
		}
		var buf bytes.Buffer
		if err := render.SVG(&buf, layout.New(run, s.cfg.LayoutConfig())); err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		c.Data(http.StatusOK, "image/svg+xml", buf.Bytes())
		return
	}
	abortWithError(c, http.StatusNotFound, fmt.Errorf("no run starts at height %d", start))
}

func (s *Server) handleCounters(g stats.Granularity) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := s.analyzer.Fetch(c.Request.Context())
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		samples := stats.SamplesFromRows(f.Header, f.Rows)
		rep, err := stats.Build(samples, c.Query("start"), c.Query("end"), g, s.now())
		if err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		c.JSON(http.StatusOK, rep)
	}
}

// selectRuns detects runs and narrows them to a day range when start or end
// is given, otherwise to the most recent ones. It writes the error response
// itself and reports false on failure.
func (s *Server) selectRuns(c *gin.Context) (*core.Result, []core.Run, bool) {
	minRun, err := queryInt(c, "minRun", s.analyzer.MinRunLength())
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return nil, nil, false
	}
	recent, err := queryInt(c, "recent", s.cfg.RecentRuns)
	if err != nil || recent < 0 {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("invalid recent %q", c.Query("recent")))
		return nil, nil, false
	}

	res, err := s.analyzer.Analyze(c.Request.Context(), minRun)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return nil, nil, false
	}

	start, end := c.Query("start"), c.Query("end")
	if start == "" && end == "" {
		return res, layout.MostRecent(res.Runs, recent), true
	}
	runs, err := layout.InDayRange(res.Runs, start, end)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return nil, nil, false
	}
	return res, runs, true
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func headLine(header []string) string {
	line := strings.Join(header, ",")
	if len(line) > headLineLimit {
		line = line[:headLineLimit]
	}
	return line
}
