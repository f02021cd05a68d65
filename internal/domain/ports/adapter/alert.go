// File: internal/domain/ports/adapter/alert.go
package adapter

import "context"

// AlertNotifier pushes operator alerts (bad webhook signatures, stuck payments).
type AlertNotifier interface {
	Alert(ctx context.Context, subject, text string) error
}
