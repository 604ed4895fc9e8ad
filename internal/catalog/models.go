// Package catalog is the read-only master-data boundary: clients, products,
// test methods and the product→method assignment. The workflow core reads it
// at registration time and must tolerate it changing between registrations,
// so nothing here is cached.
package catalog

import (
	id "limsd/pkg/domain"
)

// ResultType constrains what kind of value a test method accepts.
type ResultType string

const (
	ResultQuantitative ResultType = "QUANTITATIVE"
	ResultPassFail     ResultType = "PASS_FAIL"
	ResultText         ResultType = "TEXT"
)

// Valid reports whether rt is a known result type.
func (rt ResultType) Valid() bool {
	switch rt {
	case ResultQuantitative, ResultPassFail, ResultText:
		return true
	}
	return false
}

// Client is a lab customer submitting samples.
type Client struct {
	ID            id.ClientID
	Name          string
	Code          string
	ContactPerson string
	Email         string
	Active        bool
}

// Product is a material the lab tests, carrying its default test assignment.
type Product struct {
	ID       id.ProductID
	Name     string
	Code     string
	Category string
	Active   bool
}

// TestMethod describes how one analysis is performed and judged.
type TestMethod struct {
	ID            id.TestMethodID
	Name          string
	Code          string
	StandardRef   string
	ResultType    ResultType
	Unit          string
	DecimalPlaces int
	// MinLimit/MaxLimit are the plausibility limits for QUANTITATIVE
	// methods; nil means unbounded on that side. Bounds are inclusive.
	MinLimit *float64
	MaxLimit *float64
	TATHours  int
	Active    bool
}

// ProductTest assigns a method to a product. Only mandatory assignments are
// attached automatically at registration.
type ProductTest struct {
	ProductID    id.ProductID
	TestMethodID id.TestMethodID
	Mandatory    bool
	SortOrder    int
}
