package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/strrl/brightspots/internal/aggregator"
	"github.com/strrl/brightspots/internal/delta"
	"github.com/strrl/brightspots/internal/survey"
)

const maxDeltaSize = 8 << 20

var deltaFilePattern = regexp.MustCompile(`^delta[^/\\]+\.json$`)

func (s *Server) getSummary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"summary": s.dash.Aggregator.Summary(),
		"session": s.dash.Stats(),
	})
}

func (s *Server) getThemes(c *gin.Context) {
	c.JSON(http.StatusOK, s.dash.Store.Themes())
}

func domainParam(c *gin.Context) (survey.Domain, bool) {
	domain := survey.Domain(c.Param("domain"))
	if !domain.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tag domain: " + string(domain)})
		return "", false
	}
	return domain, true
}

func (s *Server) getTags(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, nonNil(s.dash.Aggregator.TagFrequencies(domain)))
}

func (s *Server) getTagCloud(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, nonNil(s.dash.Aggregator.TagCloud(domain)))
}

func (s *Server) getTagEntries(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, nonNil(s.dash.Aggregator.EntriesByTagFold(c.Param("tag"), domain)))
}

// getTagCompanies matches customer theme tags exactly, including case.
func (s *Server) getTagCompanies(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	if domain != survey.DomainCustomerTheme {
		c.JSON(http.StatusNotFound, gin.H{"error": "company lookup is only available for customer tags"})
		return
	}
	c.JSON(http.StatusOK, nonNil(s.dash.Aggregator.CompaniesByExactTag(c.Param("tag"))))
}

func (s *Server) getRollup(c *gin.Context) {
	field := survey.RatingField(c.Param("field"))
	if !field.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown field: " + string(field)})
		return
	}

	items := s.dash.Aggregator.Rollup(field)
	if raw := c.Query("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top must be a non-negative integer"})
			return
		}
		items = aggregator.Top(items, n)
	}
	c.JSON(http.StatusOK, nonNil(items))
}

func (s *Server) getCompanies(c *gin.Context) {
	c.JSON(http.StatusOK, nonNil(s.dash.Aggregator.Companies()))
}

func (s *Server) getCustomerThemes(c *gin.Context) {
	c.JSON(http.StatusOK, nonNil(s.dash.Aggregator.CustomerThemes()))
}

func (s *Server) getEmergingTech(c *gin.Context) {
	c.JSON(http.StatusOK, nonNil(s.dash.Aggregator.EmergingTech()))
}

func (s *Server) getAssessments(c *gin.Context) {
	c.JSON(http.StatusOK, s.dash.Themes.All())
}

func (s *Server) getCompanyAssessments(c *gin.Context) {
	c.JSON(http.StatusOK, s.dash.Themes.Get(c.Param("company")))
}

func (s *Server) getInterest(c *gin.Context) {
	category := survey.RatingField(c.Param("category"))
	if !category.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category: " + string(category)})
		return
	}
	detail, ok := s.dash.Interest.Get(c.Param("company"), category, c.Param("topic"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no interest details"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) getExport(c *gin.Context) {
	out, err := s.dash.Export()
	if err != nil {
		s.logger.Error("failed to export", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getRecord(c *gin.Context) {
	rec, ok := s.dash.Store.FindByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	data, err := s.dash.Store.Fields().Encode(rec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

type assessmentInput struct {
	Involvement survey.Involvement `json:"involvement"`
	Description string             `json:"description"`
	Timestamp   string             `json:"timestamp"`
}

func (s *Server) putAssessments(c *gin.Context) {
	var input map[string]assessmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assessments: " + err.Error()})
		return
	}

	now := time.Now()
	assessments := make(map[string]survey.Assessment, len(input))
	for id, in := range input {
		if in.Involvement != "" && !in.Involvement.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid involvement for theme " + id})
			return
		}
		if in.Involvement == "" && strings.TrimSpace(in.Description) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "theme " + id + " needs an involvement or a description"})
			return
		}
		a := survey.NewAssessment(in.Involvement, in.Description, now)
		if in.Timestamp != "" {
			a.Timestamp = in.Timestamp
		}
		assessments[id] = a
	}

	push, err := s.dash.SaveAssessments(c.Request.Context(), c.Param("company"), assessments)
	s.respondSaved(c, push, err)
}

type itemsInput struct {
	Items []string `json:"items"`
}

func (s *Server) putCustomerThemes(c *gin.Context) {
	var input itemsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid items: " + err.Error()})
		return
	}
	push, err := s.dash.SaveCustomerThemes(c.Request.Context(), c.Param("company"), input.Items)
	s.respondSaved(c, push, err)
}

func (s *Server) putEmergingTech(c *gin.Context) {
	var input itemsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid items: " + err.Error()})
		return
	}
	push, err := s.dash.SaveEmergingTech(c.Request.Context(), c.Param("company"), input.Items)
	s.respondSaved(c, push, err)
}

type detailInput struct {
	Where string `json:"where"`
	When  string `json:"when"`
	What  string `json:"what"`
	From  string `json:"from"`
}

type interestInput struct {
	Records []detailInput `json:"records"`
}

func (s *Server) postInterest(c *gin.Context) {
	var input interestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid detail records: " + err.Error()})
		return
	}

	now := time.Now()
	records := make([]survey.DetailRecord, 0, len(input.Records))
	for _, in := range input.Records {
		rec, err := survey.NewDetailRecord(in.Where, in.When, in.What, in.From, now)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		records = append(records, rec)
	}

	category := survey.RatingField(c.Param("category"))
	push, err := s.dash.AppendInterest(c.Request.Context(), c.Param("company"), category, c.Param("topic"), records...)
	s.respondSaved(c, push, err)
}

// respondSaved reports a local save and, when the save was pushed, whether
// the push reached the delta folder.
func (s *Server) respondSaved(c *gin.Context, push *delta.Push, err error) {
	switch {
	case errors.Is(err, survey.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, survey.ErrInvalidCategory), errors.Is(err, survey.ErrInvalidDetail):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error("failed to save", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"saved": true, "pushed": false}
	if push != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.PushWait)
		defer cancel()
		if perr := push.Wait(ctx); perr != nil {
			resp["warning"] = delta.LocalOnlyWarning
		} else {
			resp["pushed"] = true
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) deltaPath(c *gin.Context) (string, bool) {
	name := c.Param("file")
	if !deltaFilePattern.MatchString(name) || strings.Contains(name, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delta file name"})
		return "", false
	}
	return filepath.Join(s.cfg.DeltasDir, filepath.FromSlash(delta.Dir), name), true
}

func (s *Server) getDeltaFile(c *gin.Context) {
	path, ok := s.deltaPath(c)
	if !ok {
		return
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "delta not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) putDeltaFile(c *gin.Context) {
	path, ok := s.deltaPath(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDeltaSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("stored delta file", zap.String("file", filepath.Base(path)), zap.Int("bytes", len(body)))
	c.Status(http.StatusNoContent)
}

// nonNil keeps empty listings encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
