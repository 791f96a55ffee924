package api

import (
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/docsheet/internal/auth"
	"github.com/gmsas95/docsheet/internal/sheets"
	"github.com/gmsas95/docsheet/internal/store"
)

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	user, err := s.auth.Authenticate(req.Email, req.Password)
	if err != nil {
		s.metrics.RecordLogin(false)
		return fail(c, err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("token issue failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to generate token"})
	}

	now := time.Now()
	event := &store.LoginEvent{
		Email:     user.Email,
		RemoteIP:  c.IP(),
		UserAgent: c.Get("User-Agent"),
	}

	// The spreadsheet log is best effort; login never fails on it
	if err := s.sheets.AppendRow(c.Context(), sheets.LoginWorksheet, sheets.LoginRow(user.Email, now)); err != nil {
		s.logger.Warn("login log append failed", zap.String("email", user.Email), zap.Error(err))
		s.metrics.RecordSheetAppend(false)
	} else {
		event.SheetLogged = true
		s.metrics.RecordSheetAppend(true)
	}

	if err := s.store.CreateLoginEvent(event); err != nil {
		s.logger.Warn("login event write failed", zap.Error(err))
	}

	s.metrics.RecordLogin(true)
	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// handleRegister is open self-registration. Accounts always start as
// annotators; only an admin can grant the admin role.
func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	user, err := s.auth.Register(auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     "annotator",
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(user)
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	user, err := s.auth.Get(currentEmail(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(user)
}

func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	var req struct {
		FullName         *string `json:"full_name"`
		AnnotationMode   *string `json:"annotation_mode"`
		VerificationMode *string `json:"verification_mode"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	user, err := s.auth.UpdateProfile(currentEmail(c), auth.ProfileUpdate{
		FullName:         req.FullName,
		AnnotationMode:   req.AnnotationMode,
		VerificationMode: req.VerificationMode,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(user)
}

func (s *Server) handleChangePassword(c *fiber.Ctx) error {
	var req struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if err := s.auth.ChangePassword(currentEmail(c), req.Current, req.New); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "password changed"})
}

// ==================== Admin ====================

func (s *Server) handleListUsers(c *fiber.Ctx) error {
	users, err := s.auth.List()
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(users)
}

func (s *Server) handleCreateUser(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
		Role     string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	user, err := s.auth.Register(auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(user)
}

// paramEmail decodes the :email route segment, which arrives
// percent-encoded.
func paramEmail(c *fiber.Ctx) string {
	email, err := url.PathUnescape(c.Params("email"))
	if err != nil {
		return c.Params("email")
	}
	return email
}

func (s *Server) handleSuspendUser(c *fiber.Ctx) error {
	if err := s.auth.Suspend(paramEmail(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "suspended"})
}

func (s *Server) handleUnsuspendUser(c *fiber.Ctx) error {
	if err := s.auth.Unsuspend(paramEmail(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "active"})
}

func (s *Server) handleDeleteUser(c *fiber.Ctx) error {
	email := paramEmail(c)
	if email == currentEmail(c) {
		return c.Status(400).JSON(fiber.Map{"error": "cannot delete own account"})
	}
	if err := s.auth.Delete(email); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(204)
}
