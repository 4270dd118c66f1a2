package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"production_data_import/models"
)

func TestAdd_TrimsNameAndAllocatesIDs(t *testing.T) {
	r := New()

	first, err := r.Add("Makina 1", nil)
	require.NoError(t, err)
	require.Equal(t, 1, first.ID)
	require.True(t, first.Active)
	require.False(t, first.CreatedAt.IsZero())

	press, err := r.Add(" Press-4 ", nil)
	require.NoError(t, err)
	require.Equal(t, "Press-4", press.Name)
	require.Equal(t, 2, press.ID)
	require.Equal(t, "machine-2", press.Key())
}

func TestAdd_RejectsBlankName(t *testing.T) {
	r := New()

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := r.Add(name, nil)
		require.ErrorIs(t, err, models.ErrValidation)
	}
	require.Zero(t, r.Len())
}

func TestAdd_ProvisionFailureAbortsAdd(t *testing.T) {
	r := New()
	boom := errors.New("mkdir: permission denied")

	_, err := r.Add("Press-1", func(models.Machine) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Empty(t, r.List())

	m, err := r.Add("Press-1", func(m models.Machine) error {
		require.Equal(t, 1, m.ID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, m.ID)
}

func TestAdd_IDIsMaxPlusOneAfterRemoval(t *testing.T) {
	r := New()
	for _, name := range []string{"A", "B", "C"} {
		_, err := r.Add(name, nil)
		require.NoError(t, err)
	}

	_, err := r.Remove(2)
	require.NoError(t, err)

	d, err := r.Add("D", nil)
	require.NoError(t, err)
	require.Equal(t, 4, d.ID)

	// removing the highest id hands it out again, but never its generation
	_, err = r.Remove(4)
	require.NoError(t, err)
	again, err := r.Add("E", nil)
	require.NoError(t, err)
	require.Equal(t, 4, again.ID)
	require.Equal(t, d.Key(), again.Key())
	require.Greater(t, again.Generation, d.Generation)

	var names []string
	for _, m := range r.List() {
		names = append(names, m.Name)
	}
	require.Equal(t, []string{"A", "C", "E"}, names)
}

func TestRemove_LastMachineIsRejected(t *testing.T) {
	r := New()
	for _, name := range []string{"A", "B", "C"} {
		_, err := r.Add(name, nil)
		require.NoError(t, err)
	}

	_, err := r.Remove(1)
	require.NoError(t, err)
	_, err = r.Remove(3)
	require.NoError(t, err)

	before := r.List()
	_, err = r.Remove(2)
	require.ErrorIs(t, err, models.ErrInvariant)
	require.Equal(t, before, r.List())
}

func TestRemove_UnknownID(t *testing.T) {
	r := New()
	_, err := r.Add("A", nil)
	require.NoError(t, err)

	_, err = r.Remove(42)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, ok := r.Get(42)
	require.False(t, ok)
	m, ok := r.Get(1)
	require.True(t, ok)
	require.Equal(t, "A", m.Name)
}
