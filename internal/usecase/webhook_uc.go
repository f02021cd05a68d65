package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/adapter"
	"school-payments/internal/domain/ports/repository"
	"school-payments/internal/infra/metrics"
)

// Path segments longer than this are cut before they reach the log table.
const maxGatewayNameLen = 32

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

type WebhookUseCase interface {
	// Process authenticates and applies one gateway notification. ack tells the
	// HTTP layer whether to answer 2xx; a false ack with a non-integrity error
	// asks the gateway to redeliver.
	Process(ctx context.Context, gateway string, payload []byte, signature string) (ack bool, err error)
	Recent(ctx context.Context, gateway string, limit int) ([]*model.WebhookLog, error)
}

type webhookUC struct {
	gateways *adapter.GatewaySet
	payments PaymentUseCase
	logs     repository.WebhookLogRepository
	audit    *Auditor
	alerts   adapter.AlertNotifier
	log      *zerolog.Logger
	now      func() time.Time
}

func NewWebhookUseCase(gateways *adapter.GatewaySet, payments PaymentUseCase, logs repository.WebhookLogRepository, audit *Auditor, alerts adapter.AlertNotifier, logger *zerolog.Logger) *webhookUC {
	l := logger.With().Str("component", "webhook_uc").Logger()
	return &webhookUC{
		gateways: gateways,
		payments: payments,
		logs:     logs,
		audit:    audit,
		alerts:   alerts,
		log:      &l,
		now:      time.Now,
	}
}

func (u *webhookUC) Process(ctx context.Context, gateway string, payload []byte, signature string) (bool, error) {
	entry := &model.WebhookLog{
		ID:         ulid.Make().String(),
		Gateway:    gateway,
		Payload:    string(payload),
		Signature:  signature,
		ReceivedAt: u.now(),
	}

	gw, ok := u.gateways.Get(gateway)
	if !ok {
		if len(entry.Gateway) > maxGatewayNameLen {
			entry.Gateway = entry.Gateway[:maxGatewayNameLen]
		}
		entry.EventType = "rejected"
		entry.Error = "unknown gateway"
		u.save(ctx, entry)
		metrics.IncWebhook("unknown", "unknown_gateway")
		u.log.Warn().Str("gateway", entry.Gateway).Str("webhook_id", entry.ID).Msg("webhook for unknown gateway")
		return false, fmt.Errorf("%w: unknown gateway %q", domain.ErrInvalidArgument, gateway)
	}
	entry.Gateway = gw.Name()

	ev, err := gw.ParseWebhook(ctx, payload, signature)
	if err != nil {
		entry.EventType = "rejected"
		entry.Error = err.Error()
		u.save(ctx, entry)
		if errors.Is(err, adapter.ErrInvalidSignature) {
			metrics.IncWebhook(gateway, "bad_signature")
			u.audit.Record(ctx, "webhooks", model.SeverityCritical, "", "%s webhook with invalid signature refused (log %s)", gateway, entry.ID)
			u.alert(ctx, "Invalid webhook signature", fmt.Sprintf("gateway %s, webhook log %s", gateway, entry.ID))
		} else {
			metrics.IncWebhook(gateway, "malformed")
			u.log.Warn().Err(err).Str("gateway", gateway).Msg("webhook refused")
		}
		return false, err
	}

	entry.EventType = ev.RawType
	entry.Reference = ev.Reference
	log := u.log.With().Str("gateway", gateway).Str("reference", ev.Reference).Str("event", ev.RawType).Logger()

	var status model.TransactionStatus
	switch ev.Type {
	case adapter.EventChargeSucceeded:
		// The body is only a trigger; the gateway's verify endpoint decides.
		var vr *VerificationResult
		vr, err = u.payments.ConfirmByReference(ctx, ev.Reference, ev.ProviderReference)
		if vr != nil {
			status = vr.Status
		}
	case adapter.EventChargeFailed:
		var cr *CallbackResult
		cr, err = u.payments.ProcessPaymentCallback(ctx, ev.Reference, model.TransactionFailed, model.GatewayData{
			PaymentMethod:    ev.Channel,
			GatewayReference: ev.ProviderReference,
			Response:         ev.Raw,
		})
		if cr != nil {
			status = cr.Status
		}
	default:
		entry.Error = "event ignored"
		u.save(ctx, entry)
		metrics.IncWebhook(gateway, "ignored")
		log.Info().Msg("webhook event ignored")
		return true, nil
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		entry.Error = "unknown reference"
		u.save(ctx, entry)
		metrics.IncWebhook(gateway, "unknown_reference")
		log.Warn().Msg("webhook for unknown reference")
		return true, nil
	case err != nil:
		entry.Error = err.Error()
		u.save(ctx, entry)
		metrics.IncWebhook(gateway, "error")
		log.Error().Err(err).Msg("webhook processing failed")
		return false, err
	case status == model.TransactionPending:
		entry.Error = "gateway still reports pending"
		u.save(ctx, entry)
		metrics.IncWebhook(gateway, "pending")
		return true, nil
	}

	entry.Processed = true
	u.save(ctx, entry)
	metrics.IncWebhook(gateway, "processed")
	log.Info().Str("status", string(status)).Msg("webhook processed")
	return true, nil
}

func (u *webhookUC) Recent(ctx context.Context, gateway string, limit int) ([]*model.WebhookLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.logs.ListRecent(ctx, repository.NoTX, gateway, limit)
}

// save never fails the webhook: the payment outcome is already durable.
func (u *webhookUC) save(ctx context.Context, entry *model.WebhookLog) {
	if err := u.logs.Save(ctx, repository.NoTX, entry); err != nil {
		u.log.Error().Err(err).Str("webhook_id", entry.ID).Msg("webhook log write failed")
	}
}

func (u *webhookUC) alert(ctx context.Context, subject, text string) {
	if u.alerts == nil {
		return
	}
	if err := u.alerts.Alert(ctx, subject, text); err != nil {
		u.log.Warn().Err(err).Str("subject", subject).Msg("alert delivery failed")
	}
}
