package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/univern/academics-api/internal/middleware"
	"github.com/univern/academics-api/internal/models"
	"github.com/univern/academics-api/internal/service"
)

type studentRepoStub struct {
	students map[string]*models.StudentDetail
}

func (s *studentRepoStub) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	out := make([]models.StudentDetail, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, *st)
	}
	return out, len(out), nil
}

func (s *studentRepoStub) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if st, ok := s.students[id]; ok {
		return st, nil
	}
	return nil, sql.ErrNoRows
}

func (s *studentRepoStub) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	for _, st := range s.students {
		if st.UserID == userID {
			return st, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *studentRepoStub) ExistsByIndexNumber(ctx context.Context, indexNumber string, excludeID string) (bool, error) {
	return false, nil
}

func (s *studentRepoStub) Update(ctx context.Context, student *models.StudentProfile) error {
	return nil
}

func (s *studentRepoStub) UpdateStatus(ctx context.Context, id string, status models.StudentStatus) error {
	return nil
}

func buildStudentRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: c.GetHeader("X-Test-User"),
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	repo := &studentRepoStub{students: map[string]*models.StudentDetail{
		"s1": {
			StudentProfile: models.StudentProfile{ID: "s1", UserID: "u1", IndexNumber: "2021/0042", Status: models.StudentStatusActive},
			Email:          "ana@example.edu",
			FullName:       "Ana Lukic",
		},
		"s2": {
			StudentProfile: models.StudentProfile{ID: "s2", UserID: "u2", IndexNumber: "2021/0043", Status: models.StudentStatusActive},
			Email:          "marko@example.edu",
			FullName:       "Marko Ilic",
		},
	}}
	studentHandler := NewStudentHandler(service.NewStudentService(repo, nil, nil))

	students := router.Group("/students")
	students.GET("", internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleStudentService, models.RoleProfessor), studentHandler.List)
	students.GET("/:id", internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleStudentService, models.RoleProfessor, models.RoleStudent), studentHandler.Get)
	students.PUT("/:id/status", internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleStudentService), studentHandler.UpdateStatus)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStudentRouteAccess(t *testing.T) {
	router := buildStudentRouter()

	t.Run("list requires authentication", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/students", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("list forbidden for students", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/students", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("list allowed for student service", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/students", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudentService))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"index_number":"2021/0042"`)
	})

	t.Run("get allows own profile via account id", func(t *testing.T) {
		// The token carries the user account ID, not the profile ID.
		req, _ := http.NewRequest(http.MethodGet, "/students/s1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		req.Header.Set("X-Test-User", "u1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"index_number":"2021/0042"`)
	})

	t.Run("get forbids other students", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/students/s1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		req.Header.Set("X-Test-User", "u2")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("get allows staff on any profile", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/students/s2", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudentService))
		req.Header.Set("X-Test-User", "staff-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("status update forbidden for professors", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, "/students/s1/status", nil)
		req.Header.Set("X-Test-Role", string(models.RoleProfessor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})
}
