package vad

// State is the segmentation state.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	}
	return "unknown"
}

type EventKind int

const (
	NoEvent EventKind = iota
	Begin             // a new segment opens with this window
	End               // the open segment closes before this window
)

// Event tells the caller which file operation a verdict requires.
type Event struct {
	Kind  EventKind
	Index int
	// Bytes written to the segment; set for End.
	Bytes int64
}

// Machine is the hysteresis state machine that turns window verdicts into
// segment boundaries. Feed verdicts in capture order from one goroutine.
type Machine struct {
	t      Thresholds
	state  State
	voiced int
	quiet  int
	bytes  int64
	index  int // index of the open segment
	next   int
}

func NewMachine(t Thresholds) *Machine {
	return &Machine{t: t}
}

// Step consumes the verdict for the next window. After Step the caller
// appends the window to the segment if Recording reports true.
func (m *Machine) Step(v Verdict) Event {
	if v.Quiet {
		m.quiet++
		m.voiced = 0
	} else {
		m.voiced++
		m.quiet = 0
	}

	switch m.state {
	case Idle:
		if !v.Quiet && m.voiced >= m.t.OnsetWindows {
			m.state = Recording
			m.index = m.next
			m.next++
			m.bytes = 0
			return Event{Kind: Begin, Index: m.index}
		}
	case Recording:
		if m.quiet > m.t.OffsetWindows {
			return m.end()
		}
	}
	return Event{}
}

func (m *Machine) end() Event {
	ev := Event{Kind: End, Index: m.index, Bytes: m.bytes}
	m.state = Idle
	m.voiced = 0
	m.quiet = 0
	return ev
}

// Wrote records n bytes appended to the open segment.
func (m *Machine) Wrote(n int) {
	if m.state == Recording {
		m.bytes += int64(n)
	}
}

// ForceEnd closes the open segment at end of stream. In Idle it returns an
// event of kind NoEvent.
func (m *Machine) ForceEnd() Event {
	if m.state != Recording {
		return Event{}
	}
	return m.end()
}

// Abort drops the open segment after a failed write. Its index is handed out
// again by the next Begin. It reports the aborted index and whether a
// segment was open.
func (m *Machine) Abort() (int, bool) {
	if m.state != Recording {
		return 0, false
	}
	idx := m.index
	m.state = Idle
	m.voiced = 0
	m.quiet = 0
	m.bytes = 0
	m.next = idx
	return idx, true
}

// Reclaim hands index out again when the segment that just ended could not
// be kept. It reports false unless index is the last one handed out and no
// segment is open.
func (m *Machine) Reclaim(index int) bool {
	if m.state != Idle || index != m.next-1 {
		return false
	}
	m.next = index
	return true
}

// SetThresholds replaces the hysteresis limits from the next Step on. The
// counters and any open segment are kept.
func (m *Machine) SetThresholds(t Thresholds) { m.t = t }

func (m *Machine) State() State { return m.state }

func (m *Machine) Recording() bool { return m.state == Recording }

// Bytes written to the open segment.
func (m *Machine) Bytes() int64 { return m.bytes }

// Next is the index the next segment will receive.
func (m *Machine) Next() int { return m.next }

// Counters returns the consecutive voiced and quiet window counts.
func (m *Machine) Counters() (voiced, quiet int) { return m.voiced, m.quiet }
