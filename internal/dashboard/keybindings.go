package dashboard

import tea "github.com/charmbracelet/bubbletea"

// Tab is one page of the dashboard.
type Tab int

const (
	TabResources Tab = iota
	TabThreads
	TabConnections
	TabFiles
	TabStacks
	TabObjects
	TabInfo
	tabCount
)

var tabNames = [...]string{"Resources", "Threads", "Connections", "Files", "Stacks", "Objects", "Info"}

// String returns the tab title.
func (t Tab) String() string {
	if t < 0 || t >= tabCount {
		return "unknown"
	}
	return tabNames[t]
}

// Next cycles to the next tab.
func (t Tab) Next() Tab { return (t + 1) % tabCount }

// Prev cycles to the previous tab.
func (t Tab) Prev() Tab { return (t + tabCount - 1) % tabCount }

// scrolls reports whether the tab renders through the viewport.
func (t Tab) scrolls() bool {
	return t != TabResources && t != TabThreads
}

// Key bindings as constants for consistency.
const (
	KeyQuit       = "q"
	KeyQuitAlt    = "ctrl+c"
	KeyNextTab    = "tab"
	KeyNextTabL   = "right"
	KeyPrevTab    = "shift+tab"
	KeyPrevTabH   = "left"
	KeyToggleHelp = "?"
	KeyClose      = "esc"
)

// HandleKeyMsg processes keyboard input. It returns false for keys it does
// not handle so they can reach the viewport.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	key := msg.String()

	if key == KeyToggleHelp {
		m.showHelp = !m.showHelp
		return true, nil
	}
	if m.showHelp && key == KeyClose {
		m.showHelp = false
		return true, nil
	}

	switch key {
	case KeyQuit, KeyQuitAlt:
		m.quitting = true
		return true, tea.Quit
	case KeyNextTab, KeyNextTabL:
		m.setTab(m.tab.Next())
		return true, nil
	case KeyPrevTab, KeyPrevTabH:
		m.setTab(m.tab.Prev())
		return true, nil
	}

	if len(key) == 1 && key[0] >= '1' && key[0] < '1'+byte(tabCount) {
		m.setTab(Tab(key[0] - '1'))
		return true, nil
	}
	return false, nil
}
