package port

import (
	"context"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// DecisionNotifier announces final decisions to people outside the pipeline
type DecisionNotifier interface {
	NotifyDecision(ctx context.Context, result *entity.PipelineResult) error
}

// DocumentStore is file storage confined to one base directory
type DocumentStore interface {
	Save(ctx context.Context, name string, content []byte) (string, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Resolve(name string) (string, error)
	Exists(name string) bool
	List(extensions ...string) ([]string, error)
	Move(ctx context.Context, name, destDir string) (string, error)
}
