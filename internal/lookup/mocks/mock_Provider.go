// Package mocks provides test doubles for the lookup provider.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	lookup "github.com/sells-group/sheet-enricher/internal/lookup"
)

// MockProvider is a mock type for the Provider interface.
type MockProvider struct {
	mock.Mock
}

// FindProfile provides a mock function with given fields: ctx, name
func (_m *MockProvider) FindProfile(ctx context.Context, name string) (string, error) {
	ret := _m.Called(ctx, name)

	if len(ret) == 0 {
		panic("no return value specified for FindProfile")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string) (string, error)); ok {
		return rf(ctx, name)
	}
	return ret.String(0), ret.Error(1)
}

// FindProfileFallback provides a mock function with given fields: ctx, name
func (_m *MockProvider) FindProfileFallback(ctx context.Context, name string) (string, error) {
	ret := _m.Called(ctx, name)

	if len(ret) == 0 {
		panic("no return value specified for FindProfileFallback")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string) (string, error)); ok {
		return rf(ctx, name)
	}
	return ret.String(0), ret.Error(1)
}

// FetchDetails provides a mock function with given fields: ctx, profileURL
func (_m *MockProvider) FetchDetails(ctx context.Context, profileURL string) (lookup.Details, error) {
	ret := _m.Called(ctx, profileURL)

	if len(ret) == 0 {
		panic("no return value specified for FetchDetails")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string) (lookup.Details, error)); ok {
		return rf(ctx, profileURL)
	}

	var r0 lookup.Details
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(lookup.Details)
	}
	return r0, ret.Error(1)
}

// Close provides a mock function with no fields
func (_m *MockProvider) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}
	return ret.Error(0)
}

// NewMockProvider creates a new instance of MockProvider. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProvider {
	m := &MockProvider{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
