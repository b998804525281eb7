package middleware

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/guru-portal-api/internal/models"
	"github.com/noah-isme/guru-portal-api/internal/repository"
)

func newAuditRouter(t *testing.T, status int) (*gin.Engine, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	repo := repository.NewUserRepository(sqlxDB)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/schools",
		func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
		},
		Audit(repo, models.AuditActionSchoolCreate, "school"),
		func(c *gin.Context) {
			c.JSON(status, gin.H{})
		})

	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return router, mock, cleanup
}

func TestAuditRecordsSuccessfulMutation(t *testing.T) {
	router, mock, cleanup := newAuditRouter(t, http.StatusCreated)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), "admin-1", models.AuditActionSchoolCreate, "school",
			nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/schools", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditSkipsFailedRequest(t *testing.T) {
	router, mock, cleanup := newAuditRouter(t, http.StatusBadRequest)
	defer cleanup()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/schools", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
