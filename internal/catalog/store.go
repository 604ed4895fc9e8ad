package catalog

import (
	"context"

	id "limsd/pkg/domain"
)

// Store is the master-data lookup surface the workflow core depends on.
// Implementations return sentinel.ErrNotFound for unknown references.
type Store interface {
	GetClient(ctx context.Context, clientID id.ClientID) (*Client, error)
	GetProduct(ctx context.Context, productID id.ProductID) (*Product, error)
	GetTestMethod(ctx context.Context, methodID id.TestMethodID) (*TestMethod, error)
	// ListProductTests returns the product's assignment ordered by SortOrder.
	ListProductTests(ctx context.Context, productID id.ProductID) ([]ProductTest, error)

	// Name/code lookups used by the ERP import path.
	FindClientByName(ctx context.Context, name string) (*Client, error)
	FindProductByName(ctx context.Context, name string) (*Product, error)
	FindTestMethodByCode(ctx context.Context, code string) (*TestMethod, error)
}
