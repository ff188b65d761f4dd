package system

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name    string
	events  *[]string
	failOn  bool
	started bool
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(ctx context.Context) error {
	if s.failOn {
		return stderrors.New("start failed")
	}
	s.started = true
	*s.events = append(*s.events, "start:"+s.name)
	return nil
}

func (s *recordingService) Stop(ctx context.Context) error {
	s.started = false
	*s.events = append(*s.events, "stop:"+s.name)
	return nil
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	require.NoError(t, m.Register(&recordingService{name: "b", events: &events}))

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(ctx))

	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, events)
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	assert.Error(t, m.Register(&recordingService{name: "a", events: &events}))
	assert.Error(t, m.Register(nil))
}

func TestManagerUnwindsOnStartFailure(t *testing.T) {
	var events []string
	m := NewManager()
	first := &recordingService{name: "a", events: &events}
	require.NoError(t, m.Register(first))
	require.NoError(t, m.Register(&recordingService{name: "b", events: &events, failOn: true}))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.False(t, first.started)
	assert.Equal(t, []string{"start:a", "stop:a"}, events)
}

func TestManagerRejectsRegistrationAfterStart(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	require.NoError(t, m.Start(context.Background()))
	defer func() { _ = m.Stop(context.Background()) }()

	assert.Error(t, m.Register(&recordingService{name: "b", events: &events}))
}
