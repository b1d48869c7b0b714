package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-hub/campus-ops-api/internal/authz"
	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id, name string, avatarURL *string) error
	UpdateRoles(ctx context.Context, id string, roles models.RoleSet) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	TokenSecret      string
	TokenExpiry      time.Duration
	Issuer           string
	GoogleClientID   string
	GoogleTokenURL   string
	GoogleHTTPClient *http.Client
}

// AuthService provides registration, login, Google sign-in and user
// administration.
type AuthService struct {
	repo      authUserRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TokenExpiry <= 0 {
		config.TokenExpiry = 24 * time.Hour
	}
	if config.GoogleHTTPClient == nil {
		config.GoogleHTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &AuthService{repo: repo, validator: validate, logger: logger, config: config}
}

// Register creates a LOCAL account with the baseline USER role and signs it
// in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid register payload")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Provider:     models.ProviderLocal,
		Roles:        models.RoleSet{models.RoleUser},
		Enabled:      true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	return s.issueToken(user)
}

// Login authenticates a LOCAL account.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if !user.Enabled {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}
	if user.Provider != models.ProviderLocal || user.PasswordHash == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "account uses an external sign-in provider")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	return s.issueToken(user)
}

// googleTokenInfo is the subset of the tokeninfo response the service needs.
type googleTokenInfo struct {
	Audience      string `json:"aud"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleSignIn verifies a Google ID token against the tokeninfo endpoint
// and creates or refreshes the matching account.
func (s *AuthService) GoogleSignIn(ctx context.Context, req models.GoogleAuthRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid google payload")
	}

	info, err := s.verifyGoogleToken(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByEmail(ctx, info.Email)
	switch {
	case err == nil:
		if !user.Enabled {
			return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
		}
		avatar := user.AvatarURL
		if info.Picture != "" {
			avatar = &info.Picture
		}
		name := user.Name
		if info.Name != "" {
			name = info.Name
		}
		if err := s.repo.UpdateProfile(ctx, user.ID, name, avatar); err != nil {
			s.logger.Warn("failed to refresh google profile", zap.Error(err))
		} else {
			user.Name = name
			user.AvatarURL = avatar
		}
	case isNoRows(err):
		user = &models.User{
			Email:    info.Email,
			Name:     info.Name,
			Provider: models.ProviderGoogle,
			Roles:    models.RoleSet{models.RoleUser},
			Enabled:  true,
		}
		if info.Picture != "" {
			user.AvatarURL = &info.Picture
		}
		if info.Subject != "" {
			user.ProviderID = &info.Subject
		}
		if err := s.repo.Create(ctx, user); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
		}
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	return s.issueToken(user)
}

func (s *AuthService) verifyGoogleToken(ctx context.Context, idToken string) (*googleTokenInfo, error) {
	endpoint := fmt.Sprintf("%s?id_token=%s", s.config.GoogleTokenURL, url.QueryEscape(idToken))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build tokeninfo request")
	}
	resp, err := s.config.GoogleHTTPClient.Do(httpReq)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "tokeninfo request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "google token rejected")
	}

	var info googleTokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode tokeninfo response")
	}
	if s.config.GoogleClientID != "" && info.Audience != s.config.GoogleClientID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "google token audience mismatch")
	}
	if info.Email == "" || info.EmailVerified != "true" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "google account email not verified")
	}
	return &info, nil
}

// Me returns the profile behind the principal.
func (s *AuthService) Me(ctx context.Context, principal models.Principal) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, principal.ID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	return user, nil
}

// ListUsers returns every account. ADMIN only.
func (s *AuthService) ListUsers(ctx context.Context, principal models.Principal) ([]models.User, error) {
	if !authz.Allowed(principal.Roles, authz.OpUserManage) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "user management requires ADMIN")
	}
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, nil
}

// UpdateRoles replaces a user's role set. ADMIN only; admins cannot drop
// their own ADMIN role, which would lock the last administrator out.
func (s *AuthService) UpdateRoles(ctx context.Context, principal models.Principal, userID string, req models.UpdateRolesRequest) (*models.User, error) {
	if !authz.Allowed(principal.Roles, authz.OpUserManage) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "user management requires ADMIN")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roles payload")
	}

	roles := make(models.RoleSet, 0, len(req.Roles))
	for _, raw := range req.Roles {
		if !models.ValidRole(raw) {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "unknown role", map[string]string{"role": raw})
		}
		roles = append(roles, models.UserRole(raw))
	}
	if userID == principal.ID && !roles.Has(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot remove your own ADMIN role")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := s.repo.UpdateRoles(ctx, user.ID, roles); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update roles")
	}
	user.Roles = roles

	detail, _ := json.Marshal(map[string]interface{}{"roles": roles.Strings()})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &principal.ID,
		Action:     models.AuditActionRolesUpdate,
		Resource:   "user",
		ResourceID: &user.ID,
		Detail:     detail,
	}); err != nil {
		s.logger.Warn("failed to record roles audit log", zap.Error(err))
	}

	return user, nil
}

// ParseToken validates a bearer token and returns its claims.
func (s *AuthService) ParseToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.config.TokenSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

func (s *AuthService) issueToken(user *models.User) (*models.AuthResponse, error) {
	now := time.Now().UTC()
	claims := models.JWTClaims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Roles:  user.Roles.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.TokenSecret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}

	return &models.AuthResponse{
		Token:     signed,
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Roles:     user.Roles.Strings(),
		ExpiresIn: int64(s.config.TokenExpiry.Seconds()),
	}, nil
}
