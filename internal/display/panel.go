package display

const DefaultPanelLines = 500

// Panel is a scrollback of text lines that always shows the newest ones.
// The oldest lines are dropped once the capacity is reached.
type Panel struct {
	capacity int
	lines    []string
}

func NewPanel(capacity int) *Panel {
	if capacity <= 0 {
		capacity = DefaultPanelLines
	}
	return &Panel{capacity: capacity}
}

func (p *Panel) Append(line string) {
	p.lines = append(p.lines, line)
	if over := len(p.lines) - p.capacity; over > 0 {
		p.lines = append(p.lines[:0], p.lines[over:]...)
	}
}

func (p *Panel) Len() int {
	return len(p.lines)
}

// View returns the last n lines, the part scrolled into view.
func (p *Panel) View(n int) []string {
	if n <= 0 || n > len(p.lines) {
		n = len(p.lines)
	}
	out := make([]string, n)
	copy(out, p.lines[len(p.lines)-n:])
	return out
}
