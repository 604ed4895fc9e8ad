package catalog

import (
	id "limsd/pkg/domain"
)

func ptr(v float64) *float64 { return &v }

// SeedDev loads a small development catalog so the service is usable before
// master-data sync is wired up. Never called in production wiring.
func SeedDev(store *MemoryStore) {
	clientID := id.NewClientID()
	store.PutClient(&Client{
		ID:     clientID,
		Name:   "Acme Beverages",
		Code:   "ACME",
		Email:  "qa@acme.example",
		Active: true,
	})

	ph := &TestMethod{
		ID:            id.NewTestMethodID(),
		Name:          "pH at 25C",
		Code:          "PH-25",
		StandardRef:   "ISO 10523",
		ResultType:    ResultQuantitative,
		Unit:          "pH",
		DecimalPlaces: 2,
		MinLimit:      ptr(3.5),
		MaxLimit:      ptr(4.5),
		TATHours:      24,
		Active:        true,
	}
	turbidity := &TestMethod{
		ID:            id.NewTestMethodID(),
		Name:          "Turbidity",
		Code:          "TURB",
		StandardRef:   "ISO 7027",
		ResultType:    ResultQuantitative,
		Unit:          "NTU",
		DecimalPlaces: 1,
		MinLimit:      ptr(0),
		MaxLimit:      ptr(5),
		TATHours:      24,
		Active:        true,
	}
	appearance := &TestMethod{
		ID:         id.NewTestMethodID(),
		Name:       "Visual appearance",
		Code:       "VIS",
		ResultType: ResultText,
		TATHours:   4,
		Active:     true,
	}
	micro := &TestMethod{
		ID:         id.NewTestMethodID(),
		Name:       "Coliform presence",
		Code:       "COLI",
		ResultType: ResultPassFail,
		TATHours:   48,
		Active:     true,
	}
	for _, m := range []*TestMethod{ph, turbidity, appearance, micro} {
		store.PutTestMethod(m)
	}

	product := &Product{
		ID:       id.NewProductID(),
		Name:     "Sparkling Water 500ml",
		Code:     "SW-500",
		Category: "Beverage",
		Active:   true,
	}
	store.PutProduct(product)

	store.PutProductTest(ProductTest{ProductID: product.ID, TestMethodID: ph.ID, Mandatory: true, SortOrder: 1})
	store.PutProductTest(ProductTest{ProductID: product.ID, TestMethodID: turbidity.ID, Mandatory: true, SortOrder: 2})
	store.PutProductTest(ProductTest{ProductID: product.ID, TestMethodID: micro.ID, Mandatory: true, SortOrder: 3})
	store.PutProductTest(ProductTest{ProductID: product.ID, TestMethodID: appearance.ID, Mandatory: false, SortOrder: 4})
}
