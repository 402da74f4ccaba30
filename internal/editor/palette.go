// Package editor holds the slash-command palette of the event description
// editor. Rendering stays in the browser; this is the state it drives.
package editor

import "unicode/utf8"

// triggerWindow is how many runes before the caret are inspected.
const triggerWindow = 50

const trigger = '/'

type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

type Key int

const (
	KeyUp Key = iota
	KeyDown
	KeyEnter
	KeyEscape
)

// Command is one palette entry. Action names the editor command the client
// invokes.
type Command struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Action      string   `json:"action"`
	Keywords    []string `json:"keywords,omitempty"`
}

func DefaultCommands() []Command {
	return []Command{
		{ID: "heading-1", Title: "Heading 1", Description: "Large section heading", Action: "toggleHeading:1", Keywords: []string{"h1", "title"}},
		{ID: "heading-2", Title: "Heading 2", Description: "Medium section heading", Action: "toggleHeading:2", Keywords: []string{"h2", "subtitle"}},
		{ID: "bullet-list", Title: "Bullet List", Description: "Unordered list", Action: "toggleBulletList", Keywords: []string{"ul", "list"}},
		{ID: "ordered-list", Title: "Numbered List", Description: "Ordered list", Action: "toggleOrderedList", Keywords: []string{"ol", "numbers"}},
		{ID: "task-list", Title: "Task List", Description: "Checklist with toggles", Action: "toggleTaskList", Keywords: []string{"todo", "checkbox"}},
		{ID: "quote", Title: "Quote", Description: "Block quotation", Action: "toggleBlockquote", Keywords: []string{"blockquote"}},
		{ID: "code-block", Title: "Code Block", Description: "Monospaced block", Action: "toggleCodeBlock", Keywords: []string{"code", "pre"}},
		{ID: "divider", Title: "Divider", Description: "Horizontal rule", Action: "setHorizontalRule", Keywords: []string{"hr", "line"}},
	}
}

// Palette is open exactly while the rune before the caret is "/". While open
// the arrow keys move the selection, wrapping at both ends.
type Palette struct {
	Commands []Command
	// Execute receives the chosen command on Enter. Nil is allowed.
	Execute func(Command)

	state    State
	selected int
}

func NewPalette(commands []Command, execute func(Command)) *Palette {
	return &Palette{Commands: commands, Execute: execute}
}

func (p *Palette) State() State { return p.state }

func (p *Palette) SelectedIndex() int { return p.selected }

func (p *Palette) Selected() (Command, bool) {
	if p.state != Open || len(p.Commands) == 0 {
		return Command{}, false
	}
	return p.Commands[p.selected], true
}

// Update re-evaluates the trigger against the text before the caret.
// Opening resets the selection to the first command.
func (p *Palette) Update(textBeforeCaret string) State {
	if triggered(textBeforeCaret) {
		if p.state == Closed {
			p.selected = 0
		}
		p.state = Open
	} else {
		p.state = Closed
	}
	return p.state
}

func triggered(text string) bool {
	window := text
	if utf8.RuneCountInString(text) > triggerWindow {
		runes := []rune(text)
		window = string(runes[len(runes)-triggerWindow:])
	}
	r, size := utf8.DecodeLastRuneInString(window)
	return size > 0 && r == trigger
}

// Key applies one key press and reports whether the palette consumed it.
// Keys pressed while closed are never consumed.
func (p *Palette) Key(k Key) bool {
	if p.state != Open {
		return false
	}
	n := len(p.Commands)
	switch k {
	case KeyUp:
		if n > 0 {
			p.selected = (p.selected - 1 + n) % n
		}
	case KeyDown:
		if n > 0 {
			p.selected = (p.selected + 1) % n
		}
	case KeyEnter:
		cmd, ok := p.Selected()
		p.close()
		if ok && p.Execute != nil {
			p.Execute(cmd)
		}
	case KeyEscape:
		p.close()
	default:
		return false
	}
	return true
}

func (p *Palette) close() {
	p.state = Closed
	p.selected = 0
}
