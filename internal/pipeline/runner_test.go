package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-pipeline/internal/application/dispatcher"
	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/approval"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/internal/domain/event"
	"github.com/garyjia/invoice-pipeline/internal/ingest"
	"github.com/garyjia/invoice-pipeline/internal/payment"
	"github.com/garyjia/invoice-pipeline/internal/snapshot"
	"github.com/garyjia/invoice-pipeline/internal/validation"
)

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type mockIngestor struct {
	ingestFn func(ctx context.Context, path string) (*entity.Invoice, error)
}

func (m *mockIngestor) Ingest(ctx context.Context, path string) (*entity.Invoice, error) {
	return m.ingestFn(ctx, path)
}

type mockResultRepo struct {
	mu      sync.Mutex
	saved   []*entity.PipelineResult
	saveErr error
}

func (m *mockResultRepo) Save(ctx context.Context, r *entity.PipelineResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, r)
	return m.saveErr
}

func (m *mockResultRepo) GetByRunID(ctx context.Context, runID string) (*entity.PipelineResult, error) {
	return nil, nil
}

func (m *mockResultRepo) List(ctx context.Context, f port.ResultFilter) ([]*entity.PipelineResult, error) {
	return nil, nil
}

type mockNotifier struct {
	mu      sync.Mutex
	results []*entity.PipelineResult
}

func (m *mockNotifier) NotifyDecision(ctx context.Context, r *entity.PipelineResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

type fixture struct {
	runner   *Runner
	executor *payment.MockExecutor
	repo     *mockResultRepo
	events   *[]event.Type
}

func newFixture(t *testing.T, ing port.Ingestor, snaps SnapshotSource) fixture {
	t.Helper()
	if ing == nil {
		ing = ingest.New(nil)
	}
	if snaps == nil {
		snaps = StaticSnapshot(snapshot.Seed())
	}
	exec := payment.NewMockExecutor(nil)
	repo := &mockResultRepo{}

	var mu sync.Mutex
	var types []event.Type
	d := dispatcher.NewDispatcher()
	d.SubscribeAll("recorder", func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, evt.Type)
		return nil
	})

	clock := func() time.Time { return fixedNow }
	n := 0
	runner := NewRunner(
		ing,
		snaps,
		validation.NewEngine(validation.DefaultConfig()),
		approval.NewPolicy(approval.DefaultPolicyConfig(), clock),
		approval.NewController(approval.DefaultControllerConfig(), nil, nil, clock, nil),
		payment.NewGate(exec, payment.NewMemoryLedger(), nil),
		nil,
		WithResultRepository(repo),
		WithDispatcher(d),
		WithClock(clock),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("run-%d", n)
		}),
	)
	return fixture{runner: runner, executor: exec, repo: repo, events: &types}
}

func writeInvoice(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func codes(findings []entity.Finding) []entity.FindingCode {
	out := make([]entity.FindingCode, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}

func TestRunFile_Scenarios(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name      string
		content   string
		approved  bool
		paid      bool
		codes     []entity.FindingCode
		reasonHas string
	}{
		{
			name: "quantity over stock is a warning only",
			content: `{"invoice_number": "INV-A", "vendor": "Widgets Inc.", "total": 8000,
				"line_items": [{"item": "GadgetX", "quantity": 20, "unit_price": 400}]}`,
			approved:  true,
			paid:      true,
			codes:     []entity.FindingCode{entity.CodeQuantityExceedsStock},
			reasonHas: "within threshold",
		},
		{
			name: "unknown item blocks",
			content: `{"invoice_number": "INV-B", "vendor": "Widgets Inc.", "total": 500,
				"line_items": [{"item": "SuperGizmo", "quantity": 1, "unit_price": 500}]}`,
			codes:     []entity.FindingCode{entity.CodeUnknownItem},
			reasonHas: "blocking validation errors",
		},
		{
			name: "over threshold without findings",
			content: `{"invoice_number": "INV-C", "vendor": "Widgets Inc.", "total": 15000,
				"line_items": [{"item": "WidgetB", "quantity": 10}]}`,
			codes:     []entity.FindingCode{},
			reasonHas: "amount exceeds review threshold",
		},
		{
			name: "negative quantity from untrusted vendor",
			content: `{"invoice_number": "INV-D", "vendor": "NoProd Industries", "total": 0,
				"line_items": [{"item": "WidgetA", "quantity": -4, "unit_price": 250}]}`,
			codes:     []entity.FindingCode{entity.CodeNegativeQuantity, entity.CodeSuspiciousVendor},
			reasonHas: "negative_quantity",
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			path := writeInvoice(t, dir, fmt.Sprintf("invoice_%d.json", i), tt.content)

			result := f.runner.RunFile(context.Background(), path)

			require.NotNil(t, result)
			assert.Empty(t, result.InternalError)
			assert.Empty(t, result.Errors)
			assert.Equal(t, "run-1", result.RunID)
			assert.Equal(t, tt.codes, codes(result.Findings))
			require.NotNil(t, result.Decision)
			assert.Equal(t, tt.approved, result.Decision.Approved)
			assert.False(t, result.Decision.RevisionApplied)
			assert.Contains(t, result.Decision.Reasons[0], tt.reasonHas)
			require.NotNil(t, result.Payment)
			assert.Equal(t, tt.paid, result.Paid())
			if tt.paid {
				assert.Equal(t, 1, f.executor.Calls())
			} else {
				assert.Zero(t, f.executor.Calls())
				assert.Equal(t, entity.PaymentSkipped, result.Payment.Status)
			}
			require.Len(t, f.repo.saved, 1)
			assert.Same(t, result, f.repo.saved[0])
		})
	}
}

func TestRunFile_EventsInStageOrder(t *testing.T) {
	f := newFixture(t, nil, nil)
	path := writeInvoice(t, t.TempDir(), "ok.json", `{"vendor": "Widgets Inc.", "total": 500,
		"line_items": [{"item": "WidgetA", "quantity": 2, "unit_price": 250}]}`)

	f.runner.RunFile(context.Background(), path)

	assert.Equal(t, []event.Type{
		event.TypeInvoiceParsed,
		event.TypeFindingsProduced,
		event.TypeInitialDecision,
		event.TypeReflectionComplete,
		event.TypeFinalDecision,
		event.TypePaymentProcessed,
		event.TypeRunCompleted,
	}, *f.events)
}

func TestRunFile_UnsupportedFormatIsRejected(t *testing.T) {
	f := newFixture(t, nil, nil)
	path := writeInvoice(t, t.TempDir(), "invoice.xml", "<invoice/>")

	result := f.runner.RunFile(context.Background(), path)

	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "unsupported file type")
	assert.Equal(t, entity.VendorParseError, result.Invoice.Vendor)
	assert.Contains(t, codes(result.Findings), entity.CodeMissingRequiredField)
	assert.False(t, result.Approved())
	assert.Zero(t, f.executor.Calls())
}

func TestRunFile_InternalErrors(t *testing.T) {
	tests := []struct {
		name  string
		ing   port.Ingestor
		snaps SnapshotSource
		want  string
	}{
		{
			name: "ingestor panics",
			ing: &mockIngestor{ingestFn: func(ctx context.Context, path string) (*entity.Invoice, error) {
				panic("boom")
			}},
			want: "panic: boom",
		},
		{
			name: "ingestor returns nothing",
			ing: &mockIngestor{ingestFn: func(ctx context.Context, path string) (*entity.Invoice, error) {
				return nil, errors.New("gone")
			}},
			want: "no invoice",
		},
		{
			name: "negative total violates the invoice contract",
			ing: &mockIngestor{ingestFn: func(ctx context.Context, path string) (*entity.Invoice, error) {
				return &entity.Invoice{Vendor: "Widgets Inc.", Amount: -10}, nil
			}},
			want: "negative",
		},
		{
			name: "snapshot unavailable",
			ing: &mockIngestor{ingestFn: func(ctx context.Context, path string) (*entity.Invoice, error) {
				return &entity.Invoice{Vendor: "Widgets Inc.", Amount: 10}, nil
			}},
			snaps: SnapshotFunc(func(ctx context.Context) (port.SnapshotProvider, error) {
				return nil, errors.New("db locked")
			}),
			want: "snapshot unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.ing, tt.snaps)

			result := f.runner.RunFile(context.Background(), "x.json")

			assert.True(t, result.Failed())
			assert.Contains(t, result.InternalError, tt.want)
			assert.Nil(t, result.Decision)
			assert.Nil(t, result.Payment)
			assert.Zero(t, f.executor.Calls())
			assert.Contains(t, *f.events, event.TypeRunFailed)
			require.Len(t, f.repo.saved, 1)
		})
	}
}

func TestRunFile_PersistenceFailureIsRecorded(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.repo.saveErr = errors.New("disk full")
	path := writeInvoice(t, t.TempDir(), "ok.json", `{"vendor": "Widgets Inc.", "total": 250,
		"line_items": [{"item": "WidgetA", "quantity": 1, "unit_price": 250}]}`)

	result := f.runner.RunFile(context.Background(), path)

	assert.True(t, result.Paid())
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "disk full")
}

func TestRunBatch_PreservesOrderAndIsolation(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeInvoice(t, dir, "a.json", `{"invoice_number": "A", "vendor": "Widgets Inc.", "total": 250,
			"line_items": [{"item": "WidgetA", "quantity": 1, "unit_price": 250}]}`),
		writeInvoice(t, dir, "b.xml", `<bad/>`),
		writeInvoice(t, dir, "c.json", `{"invoice_number": "C", "vendor": "Widgets Inc.", "total": 500,
			"line_items": [{"item": "WidgetB", "quantity": 1, "unit_price": 500}]}`),
		writeInvoice(t, dir, "d.json", `{"invoice_number": "D", "vendor": "Widgets Inc.", "total": 20000,
			"line_items": [{"item": "WidgetB", "quantity": 1}]}`),
	}
	f := newFixture(t, nil, nil)

	results := f.runner.RunBatch(context.Background(), paths, 3)

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, paths[i], r.InvoicePath)
	}
	assert.True(t, results[0].Paid())
	assert.False(t, results[1].Approved())
	assert.True(t, results[2].Paid())
	assert.False(t, results[3].Approved())
	assert.Equal(t, 2, f.executor.Calls())
}

func TestRunBatch_Empty(t *testing.T) {
	f := newFixture(t, nil, nil)
	assert.Empty(t, f.runner.RunBatch(context.Background(), nil, 4))
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t, nil, nil)
	inv := &entity.Invoice{
		Vendor:    "Widgets Inc.",
		Amount:    750,
		LineItems: []entity.LineItem{{Item: "WidgetA", Quantity: 3, UnitPrice: entity.Float(250)}},
	}

	eval, err := f.runner.Evaluate(context.Background(), inv)
	require.NoError(t, err)
	assert.Empty(t, eval.Findings)
	assert.True(t, eval.Initial.Approved)
	assert.True(t, eval.Final.Approved)
	assert.Equal(t, "REFLECTED", eval.Final.ReflectionState)
	assert.Zero(t, f.executor.Calls())

	_, err = f.runner.Evaluate(context.Background(), nil)
	assert.ErrorIs(t, err, entity.ErrContractViolation)
}

func TestSubscribe_NotifiesDecidedRuns(t *testing.T) {
	d := dispatcher.NewDispatcher()
	notifier := &mockNotifier{}
	Subscribe(d, nil, notifier)

	decided := &entity.PipelineResult{RunID: "r1", Decision: &entity.FinalDecision{Approved: true}}
	failed := &entity.PipelineResult{RunID: "r2", InternalError: "x"}
	for _, r := range []*entity.PipelineResult{decided, failed} {
		require.NoError(t, d.Dispatch(context.Background(),
			event.NewEvent(event.TypeRunCompleted, r.RunID, "", map[string]interface{}{"result": r})))
	}

	require.Len(t, notifier.results, 1)
	assert.Equal(t, "r1", notifier.results[0].RunID)
	assert.Equal(t, []string{"audit-log", "decision-notifier"}, d.Handlers(event.TypeRunCompleted))

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeRunCompleted, "r3", "", nil))
	assert.Error(t, err)
}
