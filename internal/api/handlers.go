package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/blast-search-server/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// searchBody is the request payload for POST /api/v1/search. The search
// parameters are inlined next to the sequence.
type searchBody struct {
	Sequence string `json:"sequence"`
	domain.SearchRequest
}

func (s *Server) handleSearch(c *gin.Context) {
	var body searchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, domain.NewValidationError("body", err.Error()))
		return
	}

	result, err := s.search.Search(c.Request.Context(), body.Sequence, &body.SearchRequest)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListDatabases(c *gin.Context) {
	records, err := s.databases.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"databases": records,
		"count":     len(records),
	})
}

type createDatabaseBody struct {
	Name       string `json:"name"`
	SourcePath string `json:"source_path"`
	MolType    string `json:"mol_type"`
}

// handleCreateDatabase accepts either a JSON body referencing a FASTA file
// already on the server, or a multipart upload with the FASTA in a "fasta"
// part. Uploads are kept under the registry data dir so a later rebuild can
// reuse them.
func (s *Server) handleCreateDatabase(c *gin.Context) {
	var name, sourcePath, molType string

	if c.ContentType() == "multipart/form-data" {
		name = c.PostForm("name")
		molType = c.PostForm("mol_type")

		file, err := c.FormFile("fasta")
		if err != nil {
			s.writeError(c, domain.NewValidationError("fasta", "multipart create requires a fasta file part"))
			return
		}

		dir := filepath.Join(s.configManager.GetRegistryConfig().DataDir, "uploads")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.writeError(c, err)
			return
		}
		sourcePath = filepath.Join(dir, uuid.New().String()+".fasta")
		if err := c.SaveUploadedFile(file, sourcePath); err != nil {
			s.writeError(c, err)
			return
		}
	} else {
		var body createDatabaseBody
		if err := c.ShouldBindJSON(&body); err != nil {
			s.writeError(c, domain.NewValidationError("body", err.Error()))
			return
		}
		name, sourcePath, molType = body.Name, body.SourcePath, body.MolType
	}

	record, err := s.databases.Create(c.Request.Context(), name, sourcePath, domain.MolType(molType))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (s *Server) handleDeleteDatabase(c *gin.Context) {
	ref := c.Param("id")

	if err := s.databases.Delete(c.Request.Context(), ref); err != nil {
		var notFound *domain.DatabaseNotFoundError
		if errors.As(err, &notFound) {
			s.writeErrorStatus(c, err, http.StatusNotFound)
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": ref})
}

func (s *Server) handleRebuildDatabase(c *gin.Context) {
	ref := c.Param("id")

	record, err := s.databases.Update(c.Request.Context(), ref)
	if err != nil {
		var notFound *domain.DatabaseNotFoundError
		if errors.As(err, &notFound) {
			s.writeErrorStatus(c, err, http.StatusNotFound)
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) handleHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultHistoryLimit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	records, err := s.history.List(ctx, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	total, err := s.history.Count(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

type profileBody struct {
	Sequence string `json:"sequence"`
}

func (s *Server) handleProfile(c *gin.Context) {
	var body profileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, domain.NewValidationError("body", err.Error()))
		return
	}

	query, err := s.validator.Validate(body.Sequence)
	if err != nil {
		s.writeError(c, err)
		return
	}

	profile, err := s.profiles.Profile(c.Request.Context(), query)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer")
	}
	return value, nil
}
