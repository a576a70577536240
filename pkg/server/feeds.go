package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/feed"
	"github.com/username/orphanrun/pkg/spi"
)

const csvContentType = "text/csv; charset=utf-8"

// table is a header plus its rows
type table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

func newTable(header []string, rows [][]string) table {
	if header == nil {
		header = []string{}
	}
	if rows == nil {
		rows = [][]string{}
	}
	return table{Header: header, Rows: rows}
}

// feedBody is the response of /api/blocks, /api/blocks/uniq and /api/jobs
type feedBody struct {
	TS int64 `json:"ts"`
	table
}

// blocksMessage is pushed on /api/blocks/stream after every feed change
type blocksMessage struct {
	Type   string `json:"type"`
	TS     int64  `json:"ts"`
	CSV    string `json:"csv"`
	Parsed table  `json:"parsed"`
	Uniq   table  `json:"uniq"`
}

// jobsMessage is pushed on /api/jobs/stream after every jobs log change
type jobsMessage struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
	CSV  string `json:"csv"`
}

// csvText renders a feed back to CSV; a feed without header or rows is empty text
func csvText(f *core.Feed) (string, error) {
	if len(f.Header) == 0 && len(f.Rows) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := feed.WriteCSV(&buf, f.Header, f.Rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Server) handleBlocks(c *gin.Context) {
	f, err := s.analyzer.Fetch(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, feedBody{TS: s.now().UnixMilli(), table: newTable(f.Header, f.Rows)})
}

func (s *Server) handleBlocksUniq(c *gin.Context) {
	f, err := s.analyzer.Fetch(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, feedBody{TS: s.now().UnixMilli(), table: newTable(feed.CollapseByHashChange(f.Header, f.Rows))})
}

func (s *Server) handleBlocksCSV(c *gin.Context) {
	f, err := s.analyzer.Fetch(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	s.writeCSV(c, f)
}

func (s *Server) handleJobs(c *gin.Context) {
	f, err := s.fetchJobs(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, feedBody{TS: s.now().UnixMilli(), table: newTable(f.Header, f.Rows)})
}

func (s *Server) handleJobsCSV(c *gin.Context) {
	f, err := s.fetchJobs(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	s.writeCSV(c, f)
}

func (s *Server) writeCSV(c *gin.Context, f *core.Feed) {
	text, err := csvText(f)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, csvContentType, []byte(text))
}

// fetchJobs reads the jobs log; a missing or unconfigured log reads as empty
func (s *Server) fetchJobs(ctx context.Context) (*core.Feed, error) {
	if s.jobs == nil {
		return &core.Feed{Header: []string{}}, nil
	}
	f, err := s.jobs.Fetch(ctx)
	if errors.Is(err, core.ErrFeedUnavailable) {
		return &core.Feed{Header: []string{}}, nil
	}
	return f, err
}

// publishBlocks pushes the feed of the latest analysis to the blocks stream.
// It has the core.UpdateHandler signature.
func (s *Server) publishBlocks(ctx context.Context, _ *core.Result) error {
	_, f := s.analyzer.Latest()
	if f == nil {
		f = &core.Feed{}
	}
	text, err := csvText(f)
	if err != nil {
		return err
	}
	s.blocks.Publish(blocksMessage{
		Type:   "blocks",
		TS:     s.now().UnixMilli(),
		CSV:    text,
		Parsed: newTable(f.Header, f.Rows),
		Uniq:   newTable(feed.CollapseByHashChange(f.Header, f.Rows)),
	})
	return nil
}

func (s *Server) publishJobs(f *core.Feed) {
	text, err := csvText(f)
	if err != nil {
		s.logger.Warn("failed to render jobs log", zap.Error(err))
		return
	}
	s.jobsHub.Publish(jobsMessage{Type: "jobs", TS: s.now().UnixMilli(), CSV: text})
}

// WatchJobs pushes the jobs log to /api/jobs/stream whenever it changes. It
// returns nil when ctx is cancelled or no jobs log is configured.
func (s *Server) WatchJobs(ctx context.Context) error {
	if s.jobs == nil {
		return nil
	}
	w := spi.NewWatcher(s.jobs, s.cfg.PollInterval, s.logger)
	w.Start(ctx)
	defer w.Stop()

	unavailable := false
	for {
		f, err := w.Next(ctx)
		switch {
		case err == nil:
			unavailable = false
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, core.ErrFeedUnavailable):
			if unavailable {
				continue
			}
			unavailable = true
			if err := w.Reset(ctx); err != nil {
				return nil
			}
			f = &core.Feed{Header: []string{}}
		default:
			s.logger.Warn("failed to read jobs log", zap.Error(err))
			continue
		}
		s.publishJobs(f)
	}
}
