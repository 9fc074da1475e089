package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/branch-delivery/internal/adapter/catalog"
	"github.com/rl1809/branch-delivery/internal/adapter/lock"
	"github.com/rl1809/branch-delivery/internal/adapter/storage"
	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/core/service"
	"github.com/rl1809/branch-delivery/internal/port"
)

var shirt = domain.ItemIdentity{Type: "sku", Key: "shirt-01"}

func newTestService(t *testing.T) *service.ReconciliationService {
	t.Helper()
	store := storage.NewMemoryAdapter()
	svc := service.NewReconciliationService(store, store, lock.NewLocalLocker(), nil, zap.NewNop())
	require.NoError(t, svc.SetStock(context.Background(), domain.StockKey{Location: "warehouse", Item: shirt}, 20))
	return svc
}

func testCatalog() port.Catalog {
	return catalog.NewStaticCatalog([]port.ItemDescriptor{
		{Identity: shirt, Description: "Oxford shirt", Brand: "Acme"},
	})
}
