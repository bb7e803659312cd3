// Package audit writes the append-only administrative action log. Writes
// are fire-and-forget: a failed audit write is logged and never fails the
// action that produced it.
package audit

import (
	"github.com/sirupsen/logrus"

	"kosh/internal/models"
	"kosh/internal/repositories"
)

type Service interface {
	Record(actorID uint, action, description string)
}

type service struct {
	repo repositories.AuditRepository
}

func NewService(repo repositories.AuditRepository) Service {
	return &service{repo: repo}
}

func (s *service) Record(actorID uint, action, description string) {
	entry := &models.AuditLog{
		ActorID:     actorID,
		Action:      action,
		Description: description,
	}
	if err := s.repo.Append(entry); err != nil {
		logrus.WithFields(logrus.Fields{
			"actor_id": actorID,
			"action":   action,
			"error":    err.Error(),
		}).Warn("audit log write failed")
	}
}
