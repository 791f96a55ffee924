package auth

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	apperrors "github.com/gmsas95/docsheet/internal/errors"
	"github.com/gmsas95/docsheet/internal/store"
)

// Service manages operator accounts and credentials
type Service struct {
	store  *store.Store
	logger *zap.Logger
}

func NewService(st *store.Store, logger *zap.Logger) *Service {
	return &Service{store: st, logger: logger}
}

// RegisterInput carries the fields needed to create an account
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Role     string
}

// Register creates a new account with a bcrypt-hashed password
func (s *Service) Register(in RegisterInput) (*store.User, error) {
	in.Email = NormalizeEmail(in.Email)
	if in.Email == "" || in.Password == "" {
		return nil, apperrors.ErrBadRequest
	}
	if len(in.Password) < 8 {
		return nil, apperrors.ErrWeakPassword
	}
	if in.Username == "" {
		in.Username = in.Email
	}

	if _, err := s.store.GetUserByEmail(in.Email); err == nil {
		return nil, apperrors.ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_003", "failed to hash password")
	}

	user := &store.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		FullName:     in.FullName,
		Role:         in.Role,
		IsActive:     true,
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, apperrors.Wrap(err, "USER_002", "failed to create user")
	}

	s.logger.Info("user registered",
		zap.String("email", user.Email),
		zap.String("role", user.Role))
	return user, nil
}

// Authenticate checks credentials. Suspended accounts are rejected with
// a distinct error so the client can show why. On success last_login is
// updated.
func (s *Service) Authenticate(email, password string) (*store.User, error) {
	email = NormalizeEmail(email)
	user, err := s.store.GetUserByEmail(email)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.Wrap(err, "GEN_003", "failed to look up user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, apperrors.ErrAccountSuspended
	}

	now := time.Now()
	user.LastLogin = &now
	if err := s.store.UpdateUser(user); err != nil {
		s.logger.Warn("failed to update last_login", zap.String("email", email), zap.Error(err))
	}

	return user, nil
}

// ChangePassword requires the current password before setting a new one
func (s *Service) ChangePassword(email, current, next string) error {
	user, err := s.store.GetUserByEmail(NormalizeEmail(email))
	if err != nil {
		return apperrors.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return apperrors.ErrInvalidCredentials
	}
	return s.SetPassword(email, next)
}

// SetPassword sets a new password without checking the old one. Used by
// the admin CLI.
func (s *Service) SetPassword(email, next string) error {
	if len(next) < 8 {
		return apperrors.ErrWeakPassword
	}
	user, err := s.store.GetUserByEmail(NormalizeEmail(email))
	if err != nil {
		return apperrors.ErrUserNotFound
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(err, "GEN_003", "failed to hash password")
	}
	user.PasswordHash = string(hash)
	return s.store.UpdateUser(user)
}

// ProfileUpdate carries optional profile fields; nil means unchanged
type ProfileUpdate struct {
	FullName         *string
	AnnotationMode   *string
	VerificationMode *string
}

func (s *Service) UpdateProfile(email string, upd ProfileUpdate) (*store.User, error) {
	user, err := s.store.GetUserByEmail(NormalizeEmail(email))
	if err != nil {
		return nil, apperrors.ErrUserNotFound
	}
	if upd.FullName != nil {
		user.FullName = *upd.FullName
	}
	if upd.AnnotationMode != nil {
		user.AnnotationMode = *upd.AnnotationMode
	}
	if upd.VerificationMode != nil {
		user.VerificationMode = *upd.VerificationMode
	}
	if err := s.store.UpdateUser(user); err != nil {
		return nil, apperrors.Wrap(err, "GEN_003", "failed to update profile")
	}
	return user, nil
}

func (s *Service) Suspend(email string) error   { return s.setActive(email, false) }
func (s *Service) Unsuspend(email string) error { return s.setActive(email, true) }

func (s *Service) setActive(email string, active bool) error {
	user, err := s.store.GetUserByEmail(NormalizeEmail(email))
	if err != nil {
		return apperrors.ErrUserNotFound
	}
	user.IsActive = active
	if err := s.store.UpdateUser(user); err != nil {
		return apperrors.Wrap(err, "GEN_003", "failed to update user")
	}
	s.logger.Info("user active flag changed",
		zap.String("email", email), zap.Bool("active", active))
	return nil
}

func (s *Service) Delete(email string) error {
	if _, err := s.store.GetUserByEmail(NormalizeEmail(email)); err != nil {
		return apperrors.ErrUserNotFound
	}
	return s.store.DeleteUser(NormalizeEmail(email))
}

func (s *Service) Get(email string) (*store.User, error) {
	user, err := s.store.GetUserByEmail(NormalizeEmail(email))
	if err != nil {
		return nil, apperrors.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) List() ([]store.User, error) {
	return s.store.ListUsers()
}

// SeedDefaults creates the stock admin and annotator accounts when the
// users table is empty. Passwords come from config; blank passwords
// skip seeding so a bare install cannot be entered with well-known
// credentials.
func (s *Service) SeedDefaults(adminEmail, adminPassword, defaultPassword string) error {
	count, err := s.store.CountUsers()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if adminPassword == "" {
		s.logger.Warn("no admin password configured, skipping account seeding")
		return nil
	}
	if adminEmail == "" {
		adminEmail = "admin@example.com"
	}

	if _, err := s.Register(RegisterInput{
		Username: "admin",
		Email:    adminEmail,
		Password: adminPassword,
		FullName: "Administrator",
		Role:     "admin",
	}); err != nil {
		return err
	}

	if defaultPassword != "" {
		if _, err := s.Register(RegisterInput{
			Username: "user",
			Email:    "user@example.com",
			Password: defaultPassword,
			FullName: "Default User",
			Role:     "annotator",
		}); err != nil {
			return err
		}
	}

	s.logger.Info("seeded default accounts", zap.String("admin", adminEmail))
	return nil
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
