package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
)

// Auditor writes the system activity log. Failures are logged, never returned:
// an audit outage must not block a payment.
type Auditor struct {
	repo repository.ActivityRepository
	log  *zerolog.Logger
	now  func() time.Time
}

// NewAuditor: entries never join a caller transaction. A nil repo keeps them
// in the application log only.
func NewAuditor(repo repository.ActivityRepository, logger *zerolog.Logger) *Auditor {
	return &Auditor{repo: repo, log: logger, now: time.Now}
}

func (a *Auditor) Record(ctx context.Context, component string, sev model.Severity, userID, format string, args ...interface{}) {
	if a == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	ev := a.log.Info()
	if sev == model.SeverityWarning {
		ev = a.log.Warn()
	} else if sev == model.SeverityError || sev == model.SeverityCritical {
		ev = a.log.Error()
	}
	ev.Str("component", component).Str("severity", string(sev)).Str("user_id", userID).Msg(msg)

	if a.repo == nil {
		return
	}
	entry := &model.Activity{Component: component, Message: msg, Severity: sev, CreatedAt: a.now()}
	if userID != "" {
		entry.UserID = &userID
	}
	if err := a.repo.Save(ctx, repository.NoTX, entry); err != nil {
		a.log.Warn().Err(err).Str("component", component).Msg("activity log write failed")
	}
}
