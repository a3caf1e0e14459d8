package stats

import "github.com/stretchr/testify/mock"

// MockStatsUpdater records counter updates for the chat hub tests.
type MockStatsUpdater struct {
	mock.Mock
}

var _ StatsProvider = (*MockStatsUpdater)(nil)

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}

// ExpectRegistration expects each of Metrics to be registered exactly once.
func (m *MockStatsUpdater) ExpectRegistration() *MockStatsUpdater {
	for _, name := range Metrics {
		m.On("RegisterMetric", name).Return().Once()
	}
	return m
}
