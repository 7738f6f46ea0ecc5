package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/id/uuid"
	"github.com/JakeFAU/equipment-crawler/internal/storage/memory"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) ExistsByNameAndCountry(ctx context.Context, name, country string) (bool, error) {
	args := m.Called(ctx, name, country)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) Create(ctx context.Context, rec equipment.Record) (equipment.Stored, error) {
	args := m.Called(ctx, rec)
	stored, _ := args.Get(0).(equipment.Stored)
	return stored, args.Error(1)
}

type fakeImages struct {
	hosted string
}

func (f fakeImages) Resolve(_ context.Context, rec equipment.Record) string {
	if rec.ImageURL == "" {
		return ""
	}
	return f.hosted
}

type published struct {
	topic   string
	payload any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{topic: topic, payload: payload})
	return fmt.Sprintf("msg-%d", len(p.sent)), p.err
}

func records(n int) []equipment.Record {
	out := make([]equipment.Record, n)
	for i := range out {
		out[i] = equipment.Record{Name: fmt.Sprintf("Tank %d", i), Type: "Tank", Country: "Germany"}
	}
	return out
}

func TestNewRequiresRepository(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestPersistBatchesWithDelayBetween(t *testing.T) {
	t.Parallel()

	repo := memory.NewEquipmentStore(uuid.New())
	p, err := New(Config{BatchSize: 3, Concurrency: 2, BatchDelay: time.Second}, repo, nil, nil, nil)
	require.NoError(t, err)
	var waits []time.Duration
	p.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	summary, err := p.Persist(context.Background(), records(7))
	require.NoError(t, err)

	assert.Equal(t, 7, summary.Saved)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, waits)
	require.Len(t, summary.Outcomes, 7)
	for i, o := range summary.Outcomes {
		assert.Equal(t, fmt.Sprintf("Tank %d", i), o.Name)
		assert.Equal(t, equipment.OutcomeSaved, o.Status)
		assert.NotEmpty(t, o.ID)
	}
	assert.Len(t, repo.List(), 7)
}

func TestPersistOutcomes(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	ctx := context.Background()
	recs := []equipment.Record{
		{Name: "T-72", Type: "Tank", Country: "Russia"},
		{Name: "Leopard 2", Type: "Tank", Country: "Germany"},
		{Name: "Leclerc", Type: "Tank", Country: "France"},
		{Name: "Merkava", Type: "Tank", Country: "Israel"},
	}
	repo.On("ExistsByNameAndCountry", mock.Anything, "T-72", "Russia").Return(true, nil)
	repo.On("ExistsByNameAndCountry", mock.Anything, "Leopard 2", "Germany").Return(false, errors.New("timeout"))
	repo.On("ExistsByNameAndCountry", mock.Anything, "Leclerc", "France").Return(false, nil)
	repo.On("ExistsByNameAndCountry", mock.Anything, "Merkava", "Israel").Return(false, nil)
	repo.On("Create", mock.Anything, recs[1]).Return(equipment.Stored{ID: "id-leo", Record: recs[1]}, nil)
	repo.On("Create", mock.Anything, recs[2]).Return(equipment.Stored{}, errors.New("unique violation"))
	repo.On("Create", mock.Anything, recs[3]).Return(equipment.Stored{ID: "id-mer", Record: recs[3]}, nil)

	p, err := New(Config{BatchSize: 10}, repo, nil, nil, nil)
	require.NoError(t, err)

	summary, err := p.Persist(ctx, recs)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Saved)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, equipment.Outcome{Name: "T-72", Country: "Russia", Status: equipment.OutcomeSkipped, Reason: equipment.ReasonAlreadyExists}, summary.Outcomes[0])
	assert.Equal(t, equipment.Outcome{Name: "Leopard 2", Country: "Germany", Status: equipment.OutcomeSaved, ID: "id-leo"}, summary.Outcomes[1])
	assert.Equal(t, equipment.OutcomeFailed, summary.Outcomes[2].Status)
	assert.Contains(t, summary.Outcomes[2].Reason, "unique violation")
	assert.Equal(t, "id-mer", summary.Outcomes[3].ID)
	repo.AssertNotCalled(t, "Create", mock.Anything, recs[0])
	repo.AssertExpectations(t)
}

func TestPersistResolvesImagesAndPublishes(t *testing.T) {
	t.Parallel()

	repo := memory.NewEquipmentStore(uuid.New())
	pub := &fakePublisher{err: errors.New("topic missing")}
	p, err := New(Config{}, repo, fakeImages{hosted: "https://cdn.example.test/t-72.jpg"}, pub, nil)
	require.NoError(t, err)

	summary, err := p.Persist(context.Background(), []equipment.Record{
		{Name: "T-72", Type: "Tank", Country: "Russia", ImageURL: "https://upload.example.test/t72.jpg", SourceURL: "https://example.test/T-72"},
		{Name: "Leclerc", Type: "Tank", Country: "France"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Saved)
	require.Len(t, summary.Outcomes, 2)
	assert.Equal(t, "https://cdn.example.test/t-72.jpg", summary.Outcomes[0].ImageURL)
	assert.Empty(t, summary.Outcomes[1].ImageURL)

	stored := repo.List()
	require.Len(t, stored, 2)
	byName := map[string]equipment.Record{}
	for _, s := range stored {
		byName[s.Record.Name] = s.Record
	}
	assert.Equal(t, "https://cdn.example.test/t-72.jpg", byName["T-72"].ImageURL)
	assert.Empty(t, byName["Leclerc"].ImageURL)

	require.Len(t, pub.sent, 2)
	for _, msg := range pub.sent {
		assert.Equal(t, CreatedTopic, msg.topic)
		created, ok := msg.payload.(Created)
		require.True(t, ok)
		assert.NotEmpty(t, created.ID)
		if created.Name == "T-72" {
			assert.Equal(t, "https://cdn.example.test/t-72.jpg", created.ImageURL)
			assert.Equal(t, "https://example.test/T-72", created.SourceURL)
		}
	}
}

func TestPersistStopsWhenCancelledBetweenBatches(t *testing.T) {
	t.Parallel()

	repo := memory.NewEquipmentStore(uuid.New())
	p, err := New(Config{BatchSize: 2, BatchDelay: time.Hour}, repo, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := p.Persist(ctx, records(5))

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, summary.Saved)
	assert.Len(t, summary.Outcomes, 2)
}

func TestPersistEmpty(t *testing.T) {
	t.Parallel()

	p, err := New(Config{}, memory.NewEquipmentStore(uuid.New()), nil, nil, nil)
	require.NoError(t, err)
	summary, err := p.Persist(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Saved+summary.Skipped+summary.Failed)
}
