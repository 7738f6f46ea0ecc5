package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/id/uuid"
)

func TestEquipmentStoreCreateAndExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewEquipmentStore(uuid.New())

	exists, err := store.ExistsByNameAndCountry(ctx, "T-72", "Russia")
	require.NoError(t, err)
	require.False(t, exists)

	stored, err := store.Create(ctx, equipment.Record{Name: "T-72", Type: "Tank", Country: "Russia"})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	exists, err = store.ExistsByNameAndCountry(ctx, " t-72 ", "RUSSIA")
	require.NoError(t, err)
	require.True(t, exists)

	_, err = store.Create(ctx, equipment.Record{Name: "t-72", Type: "Tank", Country: "russia"})
	require.ErrorIs(t, err, ErrDuplicate)

	require.Len(t, store.List(), 1)
}

func TestEquipmentStoreConcurrentCreates(t *testing.T) {
	t.Parallel()

	store := NewEquipmentStore(uuid.New())
	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.Create(context.Background(), equipment.Record{Name: "Leopard 2", Type: "Tank", Country: "Germany"})
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrDuplicate)
			failures++
		}
	}
	require.Equal(t, 19, failures)
	require.Len(t, store.List(), 1)
}
