package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stellarlinkco/benchkit/internal/eval"
	"github.com/stellarlinkco/benchkit/internal/store"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s == nil || s.store == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return
	}

	limit, err := parseLimitParam(c.Query("limit"), 20)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	since, err := parseTimeParam(c.Query("since"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	until, err := parseTimeParam(c.Query("until"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	filter := store.RunFilter{
		Model:   strings.TrimSpace(c.Query("model")),
		Dataset: strings.TrimSpace(c.Query("dataset")),
		Since:   since,
		Until:   until,
		Limit:   limit,
	}

	runs, err := s.store.ListRuns(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*store.RunRecord{}
	}

	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s == nil || s.store == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run id"))
		return
	}

	run, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, fmt.Errorf("run %q not found", id))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// handleListReports walks the reports tree and returns every parseable report
// document. Malformed files are skipped rather than failing the listing.
func (s *Server) handleListReports(c *gin.Context) {
	root := s.layout.ReportsDir()

	var reports []eval.Report
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rep, err := readReport(path)
		if err != nil {
			return nil
		}
		reports = append(reports, *rep)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].ModelName != reports[j].ModelName {
			return reports[i].ModelName < reports[j].ModelName
		}
		return reports[i].DatasetName < reports[j].DatasetName
	})
	if reports == nil {
		reports = []eval.Report{}
	}

	c.JSON(http.StatusOK, reports)
}

func (s *Server) handleGetReport(c *gin.Context) {
	model := strings.TrimSpace(c.Param("model"))
	dataset := strings.TrimSpace(c.Param("dataset"))
	if model == "" || dataset == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing model or dataset"))
		return
	}

	rep, err := readReport(s.layout.ReportFile(model, dataset))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			respondError(c, http.StatusNotFound, fmt.Errorf("no report for %s/%s", model, dataset))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, rep)
}

func readReport(path string) (*eval.Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rep eval.Report
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, fmt.Errorf("parse report %q: %w", path, err)
	}
	return &rep, nil
}

func respondError(c *gin.Context, status int, err error) {
	if err == nil {
		c.Status(status)
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseLimitParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("limit must be > 0")
	}
	return v, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	layouts := []string{time.RFC3339, "2006-01-02"}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (expected RFC3339 or YYYY-MM-DD)", raw)
}
