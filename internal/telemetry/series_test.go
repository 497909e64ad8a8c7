package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeries_AppendWithinCapacity(t *testing.T) {
	s := NewSeries()
	s.Append(1)
	s.Append(2)
	s.Append(3)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{1, 2, 3}, s.Values())

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 3.0, last)
}

func TestSeries_EvictsOldest(t *testing.T) {
	tests := []struct {
		name    string
		appends int
	}{
		{"exactly full", WindowSize},
		{"one over", WindowSize + 1},
		{"far over", WindowSize*3 + 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSeries()
			for i := 0; i < tt.appends; i++ {
				s.Append(float64(i))
			}

			values := s.Values()
			require.Len(t, values, WindowSize)
			assert.Equal(t, float64(tt.appends-WindowSize), values[0])
			assert.Equal(t, float64(tt.appends-1), values[WindowSize-1])
			for i := 1; i < len(values); i++ {
				assert.Equal(t, values[i-1]+1, values[i])
			}
		})
	}
}

func TestSeries_Empty(t *testing.T) {
	s := NewSeries()
	assert.Empty(t, s.Values())
	_, ok := s.Last()
	assert.False(t, ok)
}

func TestSeries_ValuesIsCopy(t *testing.T) {
	s := NewSeries()
	s.Append(5)
	v := s.Values()
	v[0] = 99
	assert.Equal(t, []float64{5}, s.Values())
}

func TestStore_ResetAndResetAll(t *testing.T) {
	st := NewStore()
	for _, ch := range Channels {
		st.Append(ch, 1)
		st.Append(ch, 2)
	}

	st.Reset(ChannelCPU)
	assert.Equal(t, 0, st.Len(ChannelCPU))
	assert.Equal(t, 2, st.Len(ChannelMemory))

	st.ResetAll()
	for _, ch := range Channels {
		assert.Equal(t, 0, st.Len(ch), "channel %s", ch)
	}
}

func TestStore_UnknownChannel(t *testing.T) {
	st := NewStore()
	assert.Nil(t, st.Values("nope"))
	assert.Equal(t, 0, st.Len("nope"))
	st.Reset("nope")

	st.Append("extra", 4)
	assert.Equal(t, []float64{4}, st.Values("extra"))
}

func TestStore_Copy(t *testing.T) {
	st := NewStore()
	st.Append(ChannelRead, 500)

	c := st.Copy()
	c[ChannelRead][0] = 0
	assert.Equal(t, []float64{500}, st.Values(ChannelRead))
	assert.Len(t, c, len(Channels))
}
