// Package mocks provides test doubles for the sheets client.
package mocks

import (
	"context"

	sheets "github.com/sells-group/sheet-enricher/pkg/sheets"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// GetValues provides a mock function with given fields: ctx, spreadsheetID, a1Range
func (_m *MockClient) GetValues(ctx context.Context, spreadsheetID string, a1Range string) ([][]string, error) {
	ret := _m.Called(ctx, spreadsheetID, a1Range)

	if len(ret) == 0 {
		panic("no return value specified for GetValues")
	}

	var r0 [][]string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) ([][]string, error)); ok {
		return rf(ctx, spreadsheetID, a1Range)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) [][]string); ok {
		r0 = rf(ctx, spreadsheetID, a1Range)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([][]string)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, spreadsheetID, a1Range)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// BatchUpdate provides a mock function with given fields: ctx, spreadsheetID, requests
func (_m *MockClient) BatchUpdate(ctx context.Context, spreadsheetID string, requests []sheets.Request) error {
	ret := _m.Called(ctx, spreadsheetID, requests)

	if len(ret) == 0 {
		panic("no return value specified for BatchUpdate")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, []sheets.Request) error); ok {
		r0 = rf(ctx, spreadsheetID, requests)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// GetSpreadsheet provides a mock function with given fields: ctx, spreadsheetID
func (_m *MockClient) GetSpreadsheet(ctx context.Context, spreadsheetID string) (*sheets.Spreadsheet, error) {
	ret := _m.Called(ctx, spreadsheetID)

	if len(ret) == 0 {
		panic("no return value specified for GetSpreadsheet")
	}

	var r0 *sheets.Spreadsheet
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*sheets.Spreadsheet, error)); ok {
		return rf(ctx, spreadsheetID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *sheets.Spreadsheet); ok {
		r0 = rf(ctx, spreadsheetID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*sheets.Spreadsheet)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, spreadsheetID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
