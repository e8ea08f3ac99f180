package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger records log calls. Each level method is matched on
// (msg, keysAndValues).
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// ExpectOnce expects msg to be logged exactly once at level, which is one of
// "Debug", "Info", "Warn" or "Error".
func (m *MockLogger) ExpectOnce(level, msg string) *MockLogger {
	m.On(level, msg, mock.Anything).Once()
	return m
}

// AllowRest accepts every other log call. Register it after the ExpectOnce
// calls it should not shadow.
func (m *MockLogger) AllowRest() *MockLogger {
	for _, level := range []string{"Debug", "Info", "Warn", "Error"} {
		m.On(level, mock.Anything, mock.Anything).Maybe()
	}

	return m
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level Level) {
	m.Called(level)
}

func (m *MockLogger) Level() Level {
	args := m.Called()
	return args.Get(0).(Level)
}

// With returns the mock itself, so child loggers record on the same mock.
func (m *MockLogger) With(_ ...any) Logger {
	return m
}
