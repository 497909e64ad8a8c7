package telemetry

// WindowSize is the number of samples retained per metric channel.
const WindowSize = 200

// Channel names a scalar metric stream kept by the Store.
type Channel string

// Fixed process-level channels. Per-thread series live on ThreadMetric.
const (
	ChannelCPU    Channel = "cpu"
	ChannelMemory Channel = "memory"
	ChannelRead   Channel = "read"
	ChannelWrite  Channel = "write"
)

// Channels lists the process-level channels in display order.
var Channels = []Channel{ChannelCPU, ChannelMemory, ChannelRead, ChannelWrite}

// Series is a fixed-size circular buffer of samples. Appending to a full
// series evicts the oldest sample.
type Series struct {
	data  []float64
	head  int
	count int
}

// NewSeries returns an empty series holding at most WindowSize samples.
func NewSeries() *Series {
	return &Series{data: make([]float64, WindowSize)}
}

// Append adds a sample at the tail.
func (s *Series) Append(value float64) {
	s.data[s.head] = value
	s.head = (s.head + 1) % len(s.data)
	if s.count < len(s.data) {
		s.count++
	}
}

// Len returns the number of samples held.
func (s *Series) Len() int {
	return s.count
}

// Reset drops every sample.
func (s *Series) Reset() {
	s.head = 0
	s.count = 0
}

// Values returns the samples oldest first as a new slice.
func (s *Series) Values() []float64 {
	out := make([]float64, s.count)
	start := (s.head - s.count + len(s.data)) % len(s.data)
	for i := 0; i < s.count; i++ {
		out[i] = s.data[(start+i)%len(s.data)]
	}
	return out
}

// Last returns the newest sample, or false when empty.
func (s *Series) Last() (float64, bool) {
	if s.count == 0 {
		return 0, false
	}
	return s.data[(s.head-1+len(s.data))%len(s.data)], true
}

// Store keeps one Series per process-level channel.
// It is not safe for concurrent use; the Sampler guards it.
type Store struct {
	series map[Channel]*Series
}

// NewStore creates a store with an empty series for each fixed channel.
func NewStore() *Store {
	st := &Store{series: make(map[Channel]*Series, len(Channels))}
	for _, ch := range Channels {
		st.series[ch] = NewSeries()
	}
	return st
}

// Append adds a sample to the channel, creating the series on first use.
func (st *Store) Append(ch Channel, value float64) {
	s, ok := st.series[ch]
	if !ok {
		s = NewSeries()
		st.series[ch] = s
	}
	s.Append(value)
}

// Values returns a copy of the channel's samples, oldest first.
func (st *Store) Values(ch Channel) []float64 {
	s, ok := st.series[ch]
	if !ok {
		return nil
	}
	return s.Values()
}

// Len returns the number of samples in the channel.
func (st *Store) Len(ch Channel) int {
	if s, ok := st.series[ch]; ok {
		return s.Len()
	}
	return 0
}

// Reset clears one channel.
func (st *Store) Reset(ch Channel) {
	if s, ok := st.series[ch]; ok {
		s.Reset()
	}
}

// ResetAll clears every channel.
func (st *Store) ResetAll() {
	for _, s := range st.series {
		s.Reset()
	}
}

// Copy returns every channel's samples as independent slices.
func (st *Store) Copy() map[Channel][]float64 {
	out := make(map[Channel][]float64, len(st.series))
	for ch, s := range st.series {
		out[ch] = s.Values()
	}
	return out
}
