package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/AzielCF/az-wabot/core/config"
	"github.com/AzielCF/az-wabot/domains/store"
	domainUser "github.com/AzielCF/az-wabot/domains/user"
	pkgError "github.com/AzielCF/az-wabot/pkg/error"
	"github.com/AzielCF/az-wabot/validations"
)

type userService struct {
	store    store.IStore
	security config.SecurityConfig
}

func NewUserService(st store.IStore, security config.SecurityConfig) domainUser.IUserUsecase {
	return &userService{store: st, security: security}
}

func (s *userService) Login(ctx context.Context, req domainUser.LoginRequest) (domainUser.LoginResponse, error) {
	if err := validations.ValidateLoginRequest(ctx, req.Username, req.Password); err != nil {
		return domainUser.LoginResponse{}, err
	}

	user, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		// Same answer for unknown user and wrong password.
		return domainUser.LoginResponse{}, pkgError.BadCredentialsError("invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return domainUser.LoginResponse{}, pkgError.BadCredentialsError("invalid username or password")
	}

	expireDays := s.security.AccessTokenExpireDays
	if expireDays <= 0 {
		expireDays = 7
	}
	expiresAt := time.Now().UTC().Add(time.Duration(expireDays) * 24 * time.Hour)

	claims := jwt.MapClaims{
		"sub": user.ID,
		"usr": user.Username,
		"iat": time.Now().UTC().Unix(),
		"exp": expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.security.JWTSecret))
	if err != nil {
		return domainUser.LoginResponse{}, err
	}

	logrus.Infof("[AUTH] User %s logged in", user.Username)
	return domainUser.LoginResponse{Token: token, ExpiresAt: expiresAt}, nil
}

// EnsureSeedAdmin creates the admin account on an empty user table. The
// password comes from ADMIN_PASSWORD or, absent that, is generated and
// returned so the process root can print it exactly once.
func (s *userService) EnsureSeedAdmin(ctx context.Context) (string, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return "", err
	}
	if count > 0 {
		return "", nil
	}

	password := s.security.AdminPassword
	generated := ""
	if password == "" {
		raw := make([]byte, 12)
		if _, err := rand.Read(raw); err != nil {
			return "", err
		}
		password = hex.EncodeToString(raw)
		generated = password
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	err = s.store.CreateUser(ctx, domainUser.User{
		ID:           uuid.NewString(),
		Username:     "admin",
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return "", err
	}
	logrus.Info("[AUTH] Seeded admin user")
	return generated, nil
}
