package services

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pagos/internal/amqp"
	"pagos/internal/cache"
	"pagos/internal/core"
	"pagos/internal/sheets/memory"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ReadAll(ctx context.Context) ([][]string, error) {
	args := m.Called(ctx)
	rows, _ := args.Get(0).([][]string)
	return rows, args.Error(1)
}

func (m *mockStore) OverwriteAll(ctx context.Context, rows [][]string) error {
	return m.Called(ctx, rows).Error(0)
}

func (m *mockStore) EnsureHeaders(ctx context.Context, headers []string) error {
	return m.Called(ctx, headers).Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishLedgerSaved(ctx context.Context, msg *amqp.LedgerSavedMessage) error {
	return m.Called(ctx, msg).Error(0)
}

var today = time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

func row(provider, amount, due, priority, status string) []string {
	cells := make([]string, core.NumColumns)
	cells[core.ColProvider] = provider
	cells[core.ColCurrency] = "PEN"
	cells[core.ColAmount] = amount
	cells[core.ColAmountLocal] = amount
	cells[core.ColDueDate] = due
	cells[core.ColPriority] = priority
	cells[core.ColStatus] = status
	return cells
}

func sheet(rows ...[]string) [][]string {
	return append([][]string{append([]string(nil), core.Headers...)}, rows...)
}

func ledgerRows() [][]string {
	return sheet(
		row("Acme", "100", "2024-05-10", "Alta", "Pendiente"),
		row("Beta", "50", "2024-05-12", "Baja", "Pagado"),
		row("Acme", "270", "2024-05-10", "Alta", "Pendiente"),
		row("Gamma", "75", "2024-06-01", "Alta", "Pagado"),
	)
}

func newService(store *mockStore, opts ...Option) *LedgerService {
	opts = append([]Option{
		WithClock(func() time.Time { return today }),
		WithCache(cache.NewLRUCache[core.Table](1, time.Minute)),
		WithBackendName("memory"),
	}, opts...)
	return NewLedgerService(store, opts...)
}

func TestLedgerService_LoadUsesCache(t *testing.T) {
	store := &mockStore{}
	store.On("ReadAll", mock.Anything).Return(ledgerRows(), nil).Twice()
	svc := newService(store)
	ctx := context.Background()

	first, err := svc.Load(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 4, first.Len())

	_, err = svc.Load(ctx, false)
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "ReadAll", 1)

	_, err = svc.Load(ctx, true)
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "ReadAll", 2)
}

func TestLedgerService_LoadError(t *testing.T) {
	store := &mockStore{}
	store.On("ReadAll", mock.Anything).Return(nil, errors.New("quota exceeded"))
	svc := newService(store)

	_, err := svc.Load(context.Background(), false)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.ErrorContains(t, err, "quota exceeded")
}

func TestLedgerService_Dashboard(t *testing.T) {
	store := &mockStore{}
	store.On("ReadAll", mock.Anything).Return(ledgerRows(), nil)
	svc := newService(store)

	d, err := svc.Dashboard(context.Background(), core.Filters{Priority: "Alta"}, false)
	require.NoError(t, err)

	require.Equal(t, "2024-05-10", d.Today.String())
	require.Equal(t, 4, d.All.Len())
	require.Equal(t, 3, d.View.Len())
	require.Equal(t, []string{"Alta", "Baja"}, d.PriorityOptions)
	require.Equal(t, []string{"Pendiente", "Pagado"}, d.StatusOptions)

	acme, ok := d.KPIs.DueToday.Find("Acme")
	require.True(t, ok)
	require.Equal(t, "370", acme.SumAmount.String())

	// Totals by status ignore the sidebar filter.
	paid, ok := d.KPIs.ByStatus.Find("Pagado")
	require.True(t, ok)
	require.Equal(t, "125", paid.SumAmount.String())
}

func TestLedgerService_SaveKeepsHiddenRows(t *testing.T) {
	store := &mockStore{}
	store.On("ReadAll", mock.Anything).Return(ledgerRows(), nil)

	var written [][]string
	store.On("OverwriteAll", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(1).([][]string) }).
		Return(nil).Once()

	pub := &mockPublisher{}
	pub.On("PublishLedgerSaved", mock.Anything, mock.MatchedBy(func(m *amqp.LedgerSavedMessage) bool {
		return m.Action == amqp.ActionSaved && m.Rows == 2 && m.Backend == "memory"
	})).Return(nil).Once()

	svc := newService(store, WithPublisher(pub))
	edited := []core.Record{core.RecordFromCells(row("Acme", "1300", "2024-05-10", "Alta", "Pagado"))}

	merged, err := svc.Save(context.Background(), core.Filters{Priority: "Alta"}, edited)
	require.NoError(t, err)
	require.Equal(t, 2, merged.Len())

	require.Len(t, written, 3)
	require.Equal(t, core.Headers, written[0])
	require.Equal(t, "Beta", written[1][core.ColProvider])
	require.Equal(t, "Acme", written[2][core.ColProvider])
	require.Equal(t, "1300", written[2][core.ColAmount])
	require.Equal(t, "Pagado", written[2][core.ColStatus])

	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestLedgerService_SaveFailureInvalidatesCache(t *testing.T) {
	store := &mockStore{}
	store.On("ReadAll", mock.Anything).Return(ledgerRows(), nil)
	store.On("OverwriteAll", mock.Anything, mock.Anything).Return(errors.New("permission denied"))
	pub := &mockPublisher{}
	svc := newService(store, WithPublisher(pub))
	ctx := context.Background()

	_, err := svc.Save(ctx, core.Filters{}, nil)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	pub.AssertNotCalled(t, "PublishLedgerSaved", mock.Anything, mock.Anything)

	_, err = svc.Load(ctx, false)
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "ReadAll", 2)
}

func TestLedgerService_PublishFailureDoesNotFailSave(t *testing.T) {
	store := &mockStore{}
	store.On("ReadAll", mock.Anything).Return(ledgerRows(), nil)
	store.On("OverwriteAll", mock.Anything, mock.Anything).Return(nil)
	pub := &mockPublisher{}
	pub.On("PublishLedgerSaved", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	svc := newService(store, WithPublisher(pub))

	_, err := svc.Save(context.Background(), core.Filters{}, nil)
	require.NoError(t, err)
}

func TestLedgerService_AddRecord(t *testing.T) {
	store := &mockStore{}
	store.On("ReadAll", mock.Anything).Return(ledgerRows(), nil)

	var written [][]string
	store.On("OverwriteAll", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(1).([][]string) }).
		Return(nil)
	svc := newService(store)

	r := core.RecordFromCells(row("Delta", "1,200.50", "2024-05-20", "Media", "Pendiente"))
	merged, err := svc.AddRecord(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, 5, merged.Len())
	require.Len(t, written, 6)
	require.Equal(t, "Delta", written[5][core.ColProvider])
	require.Equal(t, "1200.5", written[5][core.ColAmount])
}

func TestLedgerService_AddRecordValidation(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want error
	}{
		{"empty provider", row("  ", "10", "2024-05-20", "", ""), core.ErrEmptyProvider},
		{"invalid amount", row("Acme", "abc", "2024-05-20", "", ""), core.ErrInvalidAmount},
		{"missing due date", row("Acme", "10", "", "", ""), core.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			svc := newService(store)

			_, err := svc.AddRecord(context.Background(), core.RecordFromCells(tt.row))
			require.ErrorIs(t, err, tt.want)
			store.AssertNotCalled(t, "OverwriteAll", mock.Anything, mock.Anything)
			store.AssertNotCalled(t, "ReadAll", mock.Anything)
		})
	}
}

func TestLedgerService_ExportCSV(t *testing.T) {
	store := &mockStore{}
	store.On("ReadAll", mock.Anything).Return(ledgerRows(), nil)
	svc := newService(store)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), core.Filters{Status: "Pagado"}, &buf))

	out := buf.String()
	require.Contains(t, out, "Fecha Registro,Área,Tipo de Pago,Proveedor")
	require.Contains(t, out, "Beta")
	require.Contains(t, out, "Gamma")
	require.NotContains(t, out, "Acme")
}

func TestLedgerService_Init(t *testing.T) {
	store := &mockStore{}
	store.On("EnsureHeaders", mock.Anything, core.Headers).Return(nil).Once()
	svc := newService(store)
	require.NoError(t, svc.Init(context.Background()))

	failing := &mockStore{}
	failing.On("EnsureHeaders", mock.Anything, mock.Anything).Return(errors.New("not found"))
	err := newService(failing).Init(context.Background())
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

// gatedStore holds the first ReadAll, after it has taken its rows, until
// release is closed.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	reads   atomic.Int32
}

func newGatedStore(rows [][]string) *gatedStore {
	return &gatedStore{
		Store:   memory.New(rows),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) ReadAll(ctx context.Context) ([][]string, error) {
	rows, err := g.Store.ReadAll(ctx)
	if g.reads.Add(1) == 1 {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return rows, err
}

type loadResult struct {
	table core.Table
	err   error
}

func TestLedgerService_ReadDuringWriteIsNotCached(t *testing.T) {
	store := newGatedStore(ledgerRows())
	svc := NewLedgerService(store,
		WithClock(func() time.Time { return today }),
		WithCache(cache.NewLRUCache[core.Table](1, time.Minute)))
	ctx := context.Background()

	done := make(chan loadResult, 1)
	go func() {
		tbl, err := svc.Load(ctx, false)
		done <- loadResult{tbl, err}
	}()
	<-store.entered

	updated := core.Normalize(sheet(row("Delta", "10", "2024-05-11", "Media", "Pendiente")))
	require.NoError(t, svc.persist(ctx, updated))
	close(store.release)

	old := <-done
	require.NoError(t, old.err)
	require.Equal(t, 4, old.table.Len())

	fresh, err := svc.Load(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, fresh.Len())
	require.Equal(t, "Delta", fresh.Records[0].Provider)
	require.EqualValues(t, 2, store.reads.Load())
}

func TestLedgerService_SharedReadIgnoresCallerCancel(t *testing.T) {
	store := newGatedStore(ledgerRows())
	svc := newService(&mockStore{})
	svc.store = store

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan loadResult, 1)
	go func() {
		tbl, err := svc.Load(ctx, false)
		done <- loadResult{tbl, err}
	}()
	<-store.entered
	cancel()
	close(store.release)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, 4, res.table.Len())

	cached, err := svc.Load(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 4, cached.Len())
	require.EqualValues(t, 1, store.reads.Load())
}
