package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/univern/academics-api/internal/models"
	appErrors "github.com/univern/academics-api/pkg/errors"
)

type mockAuthUserRepo struct {
	usersByEmail  map[string]*models.User
	usersByID     map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	revokedAll    []string
	auditActions  []string
	created       *models.User
}

func (m *mockAuthUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.usersByID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.usersByEmail == nil {
		m.usersByEmail = make(map[string]*models.User)
	}
	if m.usersByID == nil {
		m.usersByID = make(map[string]*models.User)
	}
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	m.created = user
	return nil
}

func (m *mockAuthUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if u, ok := m.usersByID[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

func (m *mockAuthUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditActions = append(m.auditActions, log.Action)
	return nil
}

type mockAuthStudentRepo struct {
	takenIndexes map[string]bool
	created      *models.StudentProfile
}

func (m *mockAuthStudentRepo) Create(ctx context.Context, student *models.StudentProfile) error {
	student.ID = "sp-1"
	m.created = student
	return nil
}

func (m *mockAuthStudentRepo) ExistsByIndexNumber(ctx context.Context, indexNumber string, excludeID string) (bool, error) {
	return m.takenIndexes[indexNumber], nil
}

func (m *mockAuthStudentRepo) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	if m.created != nil && m.created.UserID == userID {
		return &models.StudentDetail{StudentProfile: *m.created}, nil
	}
	return nil, sql.ErrNoRows
}

type mockAuthProfessorRepo struct {
	created *models.ProfessorProfile
}

func (m *mockAuthProfessorRepo) Create(ctx context.Context, professor *models.ProfessorProfile) error {
	professor.ID = "pp-1"
	m.created = professor
	return nil
}

func (m *mockAuthProfessorRepo) FindByUserID(ctx context.Context, userID string) (*models.ProfessorDetail, error) {
	if m.created != nil && m.created.UserID == userID {
		return &models.ProfessorDetail{ProfessorProfile: *m.created}, nil
	}
	return nil, sql.ErrNoRows
}

func authConfigFixture() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "academics-api",
	}
}

func newAuthService(users *mockAuthUserRepo, students *mockAuthStudentRepo, professors *mockAuthProfessorRepo) *AuthService {
	if students == nil {
		students = &mockAuthStudentRepo{}
	}
	if professors == nil {
		professors = &mockAuthProfessorRepo{}
	}
	return NewAuthService(users, students, professors, validator.New(), zap.NewNop(), authConfigFixture())
}

func userFixture(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "u1",
		Email:        "ana@uni.edu",
		PasswordHash: string(hash),
		FullName:     "Ana Anic",
		Role:         models.RoleStudent,
		Active:       true,
	}
}

func TestAuthServiceRegisterStudent(t *testing.T) {
	users := &mockAuthUserRepo{}
	students := &mockAuthStudentRepo{}
	svc := newAuthService(users, students, nil)

	user, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:          "Novak@Uni.edu",
		Password:       "secret1",
		FirstName:      "Novak",
		LastName:       "Novic",
		Role:           models.RoleStudent,
		IndexNumber:    "2024/0001",
		EnrollmentYear: 2024,
	})
	require.NoError(t, err)
	assert.Equal(t, "novak@uni.edu", user.Email)
	assert.Equal(t, "Novak Novic", user.FullName)
	require.NotNil(t, students.created)
	assert.Equal(t, "2024/0001", students.created.IndexNumber)
	assert.Equal(t, 1, students.created.YearOfStudy)
	assert.Contains(t, users.auditActions, models.AuditActionRegister)
}

func TestAuthServiceRegisterStudentRequiresIndex(t *testing.T) {
	svc := newAuthService(&mockAuthUserRepo{}, nil, nil)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email: "a@b.com", Password: "secret1", FirstName: "A", LastName: "B", Role: models.RoleStudent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRegisterDuplicateIndex(t *testing.T) {
	students := &mockAuthStudentRepo{takenIndexes: map[string]bool{"2024/0001": true}}
	svc := newAuthService(&mockAuthUserRepo{}, students, nil)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email: "a@b.com", Password: "secret1", FirstName: "A", LastName: "B",
		Role: models.RoleStudent, IndexNumber: "2024/0001", EnrollmentYear: 2024,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogin(t *testing.T) {
	user := userFixture(t, "secret1")
	users := &mockAuthUserRepo{
		usersByEmail: map[string]*models.User{user.Email: user},
		usersByID:    map[string]*models.User{user.ID: user},
	}
	svc := newAuthService(users, nil, nil)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@uni.edu", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, user.ID, resp.User.ID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	user := userFixture(t, "secret1")
	users := &mockAuthUserRepo{usersByEmail: map[string]*models.User{user.Email: user}}
	svc := newAuthService(users, nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@uni.edu", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	user := userFixture(t, "secret1")
	user.Active = false
	users := &mockAuthUserRepo{usersByEmail: map[string]*models.User{user.Email: user}}
	svc := newAuthService(users, nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@uni.edu", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	user := userFixture(t, "secret1")
	users := &mockAuthUserRepo{
		usersByEmail: map[string]*models.User{user.Email: user},
		usersByID:    map[string]*models.User{user.ID: user},
	}
	svc := newAuthService(users, nil, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@uni.edu", Password: "secret1"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// the used token is revoked and cannot be replayed
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshExpired(t *testing.T) {
	user := userFixture(t, "secret1")
	users := &mockAuthUserRepo{
		usersByID: map[string]*models.User{user.ID: user},
		refreshTokens: map[string]*models.RefreshToken{
			"old": {ID: "t1", UserID: user.ID, Token: "old", ExpiresAt: time.Now().UTC().Add(-time.Minute)},
		},
	}
	svc := newAuthService(users, nil, nil)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePasswordRevokesSessions(t *testing.T) {
	user := userFixture(t, "secret1")
	users := &mockAuthUserRepo{usersByID: map[string]*models.User{user.ID: user}}
	svc := newAuthService(users, nil, nil)

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "newsecret"})
	require.NoError(t, err)
	assert.Contains(t, users.revokedAll, user.ID)

	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("newsecret")))
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	user := userFixture(t, "secret1")
	users := &mockAuthUserRepo{
		usersByEmail: map[string]*models.User{user.Email: user},
		usersByID:    map[string]*models.User{user.ID: user},
	}
	svc := newAuthService(users, nil, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@uni.edu", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(login.AccessToken + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
