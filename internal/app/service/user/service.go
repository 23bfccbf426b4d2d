// Package user covers accounts: registration, password and social login,
// and the access tokens that authenticate the API.
package user

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/fatflowers/aspy/internal/app/service/billing"
	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/internal/platform/social"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/tool"
	"github.com/fatflowers/aspy/pkg/types"
)

var (
	ErrEmailTaken          = errors.New("email already registered")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInactiveUser        = errors.New("inactive user")
	ErrInvalidToken        = errors.New("could not validate credentials")
	ErrEmailRequired       = errors.New("email is required for social login")
	ErrUnsupportedProvider = errors.New("unsupported social provider")
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SocialLoginRequest carries a google access token, an apple id_token or a
// github authorization code. Name is only read for apple, which sends it
// once outside the token.
type SocialLoginRequest struct {
	Provider string `json:"provider" binding:"required"`
	Token    string `json:"token"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

type View struct {
	ID        string         `json:"id"`
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	UserType  types.UserType `json:"user_type"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewView(u *models.User) View {
	return View{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		UserType:  u.UserType,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

type AuthResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        View   `json:"user"`
}

type MeResult struct {
	View
	Subscription *types.UserSubscriptionInfo `json:"subscription"`
}

type Stats struct {
	TotalExecutions int64 `json:"total_executions"`
	AIRequests      int64 `json:"ai_requests"`
}

type Service struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	store   *ledger.Store
	billing *billing.Service
	social  *social.Verifier
	now     func() time.Time
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, store *ledger.Store, billingSvc *billing.Service, verifier *social.Verifier) *Service {
	return &Service{cfg: cfg, log: log, store: store, billing: billingSvc, social: verifier, now: time.Now}
}

func hashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Register creates the account and its free subscription together.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	db := s.store.DB(ctx)
	if exists, err := exists(db, "email = ?", req.Email); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrEmailTaken
	}
	if exists, err := exists(db, "username = ?", req.Username); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrUsernameTaken
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           tool.GenerateUUIDV7(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		UserType:     types.UserTypeUser,
		IsActive:     true,
	}
	if err := s.createWithFreePlan(ctx, u); err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("user registered", "user_id", u.ID)
	return s.authResult(u)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	var u models.User
	err := s.store.DB(ctx).Where("email = ?", req.Email).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}
	return s.authResult(&u)
}

// SocialLogin verifies the provider credential, then signs in the account
// with the provider's email, creating it on first use. A request without a
// credential is rejected.
func (s *Service) SocialLogin(ctx context.Context, req SocialLoginRequest) (*AuthResult, error) {
	var (
		id  *social.Identity
		err error
	)
	provider := strings.ToLower(req.Provider)
	switch provider {
	case social.ProviderGoogle, social.ProviderApple:
		if req.Token == "" {
			return nil, fmt.Errorf("%w: %s token is required", social.ErrInvalidCredential, provider)
		}
	case social.ProviderGitHub:
		if req.Code == "" {
			return nil, fmt.Errorf("%w: github code is required", social.ErrInvalidCredential)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, req.Provider)
	}

	switch provider {
	case social.ProviderGoogle:
		id, err = s.social.Google(ctx, req.Token)
	case social.ProviderGitHub:
		id, err = s.social.GitHub(ctx, req.Code)
	case social.ProviderApple:
		id, err = s.social.Apple(ctx, req.Token, req.Name)
	}
	if err != nil {
		return nil, err
	}
	email, name := id.Email, id.Name
	if email == "" {
		return nil, ErrEmailRequired
	}

	var u models.User
	err = s.store.DB(ctx).Where("email = ?", email).Take(&u).Error
	if err == nil {
		if !u.IsActive {
			return nil, ErrInactiveUser
		}
		return s.authResult(&u)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := hashPassword(randomToken(16))
	if err != nil {
		return nil, err
	}
	nu := &models.User{
		ID:           tool.GenerateUUIDV7(),
		Username:     socialUsername(name),
		Email:        email,
		PasswordHash: hash,
		UserType:     types.UserTypeUser,
		IsActive:     true,
	}
	if err := s.createWithFreePlan(ctx, nu); err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("user registered via social login", "user_id", nu.ID, "provider", req.Provider)
	return s.authResult(nu)
}

func (s *Service) Me(ctx context.Context, u *models.User) (*MeResult, error) {
	info, err := s.billing.SubscriptionInfo(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &MeResult{View: NewView(u), Subscription: info}, nil
}

// Stats counts one AI request per execution.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	var n int64
	if err := s.store.DB(ctx).Model(&models.CodeExecution{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}
	return &Stats{TotalExecutions: n, AIRequests: n}, nil
}

func (s *Service) createWithFreePlan(ctx context.Context, u *models.User) error {
	return s.store.Transaction(ctx, func(tx *ledger.Store) error {
		if err := tx.DB(ctx).Create(u).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if _, err := s.billing.AssignFreePlan(ctx, tx, u.ID); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				logctx.FromCtx(ctx, s.log).Warnw("free plan missing; user created without subscription", "user_id", u.ID)
				return nil
			}
			return err
		}
		return nil
	})
}

func (s *Service) authResult(u *models.User) (*AuthResult, error) {
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{AccessToken: token, TokenType: "bearer", User: NewView(u)}, nil
}

func exists(db *gorm.DB, query string, args ...any) (bool, error) {
	var n int64
	if err := db.Model(&models.User{}).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func randomToken(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// socialUsername is the display name without spaces, lowercased, with a
// random suffix.
func socialUsername(name string) string {
	if name == "" {
		name = "user"
	}
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return strings.ToLower(strings.ReplaceAll(name, " ", "")) + "_" + hex.EncodeToString(b)
}

var Module = fx.Options(
	fx.Provide(NewService),
)
