package settings

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) FetchSettings(ctx context.Context, userID int) (*Settings, error) {
	args := m.Called(ctx, userID)
	if s, ok := args.Get(0).(*Settings); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRemote) UpsertSettings(ctx context.Context, userID int, s Settings) error {
	args := m.Called(ctx, userID, s)
	return args.Error(0)
}

func TestStore_LoadNotFoundUsesDefaults(t *testing.T) {
	remote := &mockRemote{}
	remote.On("FetchSettings", mock.Anything, 7).Return(nil, ErrNotFound)

	store := NewStore(remote, 7, slog.Default())
	got := store.Load(context.Background())

	require.Equal(t, Defaults().WorkoutTypes, got.WorkoutTypes)
	require.NotNil(t, got.ExerciseDetails)
	remote.AssertExpectations(t)
}

func TestStore_LoadFailureFallsBack(t *testing.T) {
	remote := &mockRemote{}
	remote.On("FetchSettings", mock.Anything, 1).Return(nil, errors.New("connection refused"))

	store := NewStore(remote, 1, slog.Default())
	got := store.Load(context.Background())
	require.Equal(t, Defaults().MuscleGroups, got.MuscleGroups)
}

func TestStore_LoadRemote(t *testing.T) {
	remote := &mockRemote{}
	remote.On("FetchSettings", mock.Anything, 1).Return(&Settings{
		WorkoutTypes:    []string{"Push"},
		ExerciseDetails: map[string]ExerciseDetail{"Bench": {Muscles: []string{"Chest"}}},
	}, nil)

	store := NewStore(remote, 1, slog.Default())
	got := store.Load(context.Background())
	require.Equal(t, []string{"Push"}, got.WorkoutTypes)
	require.NotNil(t, got.MuscleGroups)
	require.NotNil(t, got.WorkoutColors)

	d, ok := store.Detail("Bench")
	require.True(t, ok)
	require.Equal(t, []string{"Chest"}, d.Muscles)
}

// TestStore_DetailSharedAcrossWeeks verifies exercise detail lives once per
// account and is written through on every change.
func TestStore_DetailSharedAcrossWeeks(t *testing.T) {
	remote := &mockRemote{}
	remote.On("UpsertSettings", mock.Anything, 1, mock.MatchedBy(func(s Settings) bool {
		d, ok := s.ExerciseDetails["Squat"]
		return ok && d.Sets == 5
	})).Return(nil).Once()

	store := NewStore(remote, 1, slog.Default())
	require.NoError(t, store.SetExerciseDetail(context.Background(), "Squat", ExerciseDetail{
		Muscles: []string{"Quads", "Glutes"},
		Sets:    5,
		Reps:    "5",
	}))

	d, ok := store.Detail("Squat")
	require.True(t, ok)
	require.Equal(t, 5, d.Sets)
	remote.AssertExpectations(t)
}

// TestStore_SaveFailureKeepsLocal verifies a failed write is reported but the
// in-memory change survives.
func TestStore_SaveFailureKeepsLocal(t *testing.T) {
	remote := &mockRemote{}
	remote.On("UpsertSettings", mock.Anything, 1, mock.Anything).Return(errors.New("timeout"))

	store := NewStore(remote, 1, slog.Default())
	err := store.SetWorkoutColor(context.Background(), "Push", "#000000")
	require.Error(t, err)

	c, ok := store.ColorFor("Push")
	require.True(t, ok)
	require.Equal(t, "#000000", c)
}

func TestStore_RenameExercise(t *testing.T) {
	remote := &mockRemote{}
	remote.On("UpsertSettings", mock.Anything, 1, mock.Anything).Return(nil)

	store := NewStore(remote, 1, slog.Default())
	ctx := context.Background()
	require.NoError(t, store.SetExerciseDetail(ctx, "Bench", ExerciseDetail{Sets: 3}))
	require.NoError(t, store.RenameExercise(ctx, "Bench", "Bench Press"))

	_, ok := store.Detail("Bench")
	require.False(t, ok)
	d, ok := store.Detail("Bench Press")
	require.True(t, ok)
	require.Equal(t, 3, d.Sets)

	require.NoError(t, store.RemoveExerciseDetail(ctx, "Bench Press"))
	_, ok = store.Detail("Bench Press")
	require.False(t, ok)
}

// TestStore_CurrentIsCopy verifies callers cannot mutate the owned settings.
func TestStore_CurrentIsCopy(t *testing.T) {
	store := NewStore(&mockRemote{}, 1, slog.Default())
	cur := store.Current()
	cur.WorkoutColors["Push"] = "#123456"
	cur.MuscleGroups[0] = "Neck"

	c, _ := store.ColorFor("Push")
	require.NotEqual(t, "#123456", c)
	require.Equal(t, "Chest", store.Current().MuscleGroups[0])
}
