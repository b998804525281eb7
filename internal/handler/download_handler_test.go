package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/guru-portal-api/pkg/storage"
)

func TestDownloadServe(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save("results.csv", []byte("student,score\nSiswa Satu,80\n"))
	require.NoError(t, err)

	signer := storage.NewSignedURLSigner("download-test-secret", time.Minute)
	token, _, err := signer.Generate("exam-1", "results.csv")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/downloads", NewDownloadHandler(signer, store).Serve)

	t.Run("valid token serves file", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/downloads?token="+token, nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), "Siswa Satu")
		require.Contains(t, resp.Header().Get("Content-Disposition"), "results.csv")
	})

	t.Run("missing token rejected", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/downloads", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/downloads?token="+token+"x", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("token for missing file is not found", func(t *testing.T) {
		orphan, _, err := signer.Generate("exam-1", "gone.csv")
		require.NoError(t, err)
		req, _ := http.NewRequest(http.MethodGet, "/downloads?token="+orphan, nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
	})
}
