package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"remoteprompt-server/internal/files"
	"remoteprompt-server/internal/store"
)

type FileHandler struct {
	Store        *store.Store
	AllowedRoots []string
}

// workspaceRoot resolves the room behind a file request down to its
// validated workspace directory.
func (h *FileHandler) workspaceRoot(c *gin.Context) (string, bool) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return "", false
	}
	room, ok := roomForDevice(c, h.Store, c.Param("id"), deviceID)
	if !ok {
		return "", false
	}
	if room.WorkspacePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room has no workspace"})
		return "", false
	}
	root, err := files.ValidateWorkspacePath(room.WorkspacePath, h.AllowedRoots)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Workspace path is not allowed"})
		return "", false
	}
	return root, true
}

// List returns the workspace entries under the ?path= subdirectory.
func (h *FileHandler) List(c *gin.Context) {
	root, ok := h.workspaceRoot(c)
	if !ok {
		return
	}
	items, err := files.List(root, c.Query("path"))
	if err != nil {
		fileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": items})
}

// GetContent serves one workspace file. Markdown comes back as JSON text,
// PDFs and images as raw bytes with their content type.
func (h *FileHandler) GetContent(c *gin.Context) {
	root, ok := h.workspaceRoot(c)
	if !ok {
		return
	}
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Path is required"})
		return
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".md":
		content, err := files.ReadMarkdown(root, path)
		if err != nil {
			fileError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"content": content})
	case ".pdf":
		data, err := files.ReadPDF(root, path)
		if err != nil {
			fileError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/pdf", data)
	case ".png", ".jpg", ".jpeg", ".gif", ".heic":
		data, err := files.ReadImage(root, path)
		if err != nil {
			fileError(c, err)
			return
		}
		c.Data(http.StatusOK, imageContentType(ext), data)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported file type"})
	}
}

type writeFileBody struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// PutContent replaces a markdown file, backing up the previous content.
func (h *FileHandler) PutContent(c *gin.Context) {
	root, ok := h.workspaceRoot(c)
	if !ok {
		return
	}
	var body writeFileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Path is required"})
		return
	}

	result, err := files.WriteMarkdown(root, body.Path, body.Content)
	if err != nil {
		fileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"size":           result.Size,
		"backup_created": result.BackupCreated,
	})
}

// UploadImage stores a multipart image upload under the ?path= directory,
// renaming on conflict instead of overwriting.
func (h *FileHandler) UploadImage(c *gin.Context) {
	root, ok := h.workspaceRoot(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image file is required"})
		return
	}
	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, files.MaxImageSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	result, err := files.WriteImage(root, c.PostForm("path"), header.Filename, data)
	if err != nil {
		fileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"size":       result.Size,
		"saved_path": result.SavedPath,
	})
}

// fileError maps filesystem errors onto HTTP statuses.
func fileError(c *gin.Context, err error) {
	var sizeErr *files.SizeExceededError
	switch {
	case errors.Is(err, files.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &sizeErr):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, files.ErrInvalidPath),
		errors.Is(err, files.ErrInvalidExtension),
		errors.Is(err, files.ErrNotUTF8):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func imageContentType(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	}
	return "application/octet-stream"
}
