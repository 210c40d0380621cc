package port

import (
	"context"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// CritiqueBackend reviews an initial decision and may recommend a reversal.
// Implementations are selected by configuration at startup, which also names them.
type CritiqueBackend interface {
	Critique(ctx context.Context, invoice *entity.Invoice, initial entity.InitialDecision, findings []entity.Finding) (*entity.Critique, error)
}
