package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/docsheet/internal/store"
)

type statusRequest struct {
	Token string   `json:"token"`
	IDs   []string `json:"ids"`
}

// handleStatusSocket pushes extraction progress so the review page
// does not have to poll. The first frame must carry the token and the
// document IDs to watch; updates stream until every document reaches a
// terminal status.
func (s *Server) handleStatusSocket(c *websocket.Conn) {
	defer c.Close()

	var req statusRequest
	if err := c.ReadJSON(&req); err != nil {
		c.WriteJSON(fiber.Map{"error": "invalid subscribe frame"})
		return
	}

	claims, err := s.tokens.Verify(req.Token)
	if err != nil {
		c.WriteJSON(fiber.Map{"error": "invalid token"})
		return
	}
	user, err := s.auth.Get(claims.Email)
	if err != nil || !user.IsActive {
		c.WriteJSON(fiber.Map{"error": "account unavailable"})
		return
	}
	if len(req.IDs) == 0 {
		c.WriteJSON(fiber.Map{"error": "no document ids"})
		return
	}

	admin := user.Role == "admin"
	last := make(map[string]string, len(req.IDs))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		pending := 0
		for _, id := range req.IDs {
			doc, err := s.store.GetDocument(id)
			if err != nil {
				if last[id] != "missing" {
					last[id] = "missing"
					c.WriteJSON(fiber.Map{"id": id, "status": "not_found"})
				}
				continue
			}
			if doc.OwnerEmail != user.Email && !admin {
				continue
			}

			if doc.Status == store.StatusQueued || doc.Status == store.StatusProcessing {
				pending++
			}
			if last[id] == doc.Status {
				continue
			}
			last[id] = doc.Status

			if err := c.WriteJSON(statusPayload(doc)); err != nil {
				s.logger.Debug("status socket write failed", zap.Error(err))
				return
			}
		}

		if pending == 0 {
			c.WriteJSON(fiber.Map{"done": true})
			return
		}
	}
}
