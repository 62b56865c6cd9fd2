// Package mocks provides test doubles for the apify client.
package mocks

import (
	"context"

	apify "github.com/sells-group/jobscout/pkg/apify"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// StartRun provides a mock function with given fields: ctx, actorID, input
func (_m *MockClient) StartRun(ctx context.Context, actorID string, input any) (*apify.Run, error) {
	ret := _m.Called(ctx, actorID, input)

	if len(ret) == 0 {
		panic("no return value specified for StartRun")
	}

	var r0 *apify.Run
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, any) (*apify.Run, error)); ok {
		return rf(ctx, actorID, input)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, any) *apify.Run); ok {
		r0 = rf(ctx, actorID, input)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*apify.Run)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, any) error); ok {
		r1 = rf(ctx, actorID, input)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GetRun provides a mock function with given fields: ctx, runID
func (_m *MockClient) GetRun(ctx context.Context, runID string) (*apify.Run, error) {
	ret := _m.Called(ctx, runID)

	if len(ret) == 0 {
		panic("no return value specified for GetRun")
	}

	var r0 *apify.Run
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*apify.Run, error)); ok {
		return rf(ctx, runID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *apify.Run); ok {
		r0 = rf(ctx, runID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*apify.Run)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, runID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// DatasetItems provides a mock function with given fields: ctx, datasetID, limit
func (_m *MockClient) DatasetItems(ctx context.Context, datasetID string, limit int) ([]map[string]any, error) {
	ret := _m.Called(ctx, datasetID, limit)

	if len(ret) == 0 {
		panic("no return value specified for DatasetItems")
	}

	var r0 []map[string]any
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, int) ([]map[string]any, error)); ok {
		return rf(ctx, datasetID, limit)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, int) []map[string]any); ok {
		r0 = rf(ctx, datasetID, limit)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]map[string]any)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, int) error); ok {
		r1 = rf(ctx, datasetID, limit)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
