package handler

import (
	"path/filepath"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
	"github.com/noah-isme/guru-portal-api/pkg/response"
	"github.com/noah-isme/guru-portal-api/pkg/storage"
)

// DownloadHandler serves stored files (session photos, result exports,
// certificates) against signed tokens. Each storage area gets its own
// handler instance bound to that area's signer.
type DownloadHandler struct {
	signer *storage.SignedURLSigner
	files  *storage.LocalStorage
}

// NewDownloadHandler creates a download handler for one storage area.
func NewDownloadHandler(signer *storage.SignedURLSigner, files *storage.LocalStorage) *DownloadHandler {
	return &DownloadHandler{signer: signer, files: files}
}

// Serve godoc
// @Summary Download file
// @Description Serve a stored file referenced by a signed token
// @Tags Downloads
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /downloads [get]
func (h *DownloadHandler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	_, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token"))
		return
	}

	file, err := h.files.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		return
	}
	_ = file.Close()

	c.FileAttachment(h.files.Path(relPath), filepath.Base(relPath))
}
