package pager

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Page size bounds of the interactive browser.
const (
	DefaultPageSize = 20
	PageSizeStep    = 5
	MinPageSize     = 5
	MaxPageSize     = 100
)

// State is a state of the interactive loop.
type State int

const (
	Listing State = iota
	ViewingMessage
	Exiting
)

func (s State) String() string {
	switch s {
	case Listing:
		return "listing"
	case ViewingMessage:
		return "viewing"
	case Exiting:
		return "exiting"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CommandKind classifies a line of user input.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdSelect
	CmdNext
	CmdPrev
	CmdGrow
	CmdShrink
	CmdBack
	CmdQuit
)

// Command is one parsed line of input.
type Command struct {
	Kind CommandKind
	// N is the 1-based row number of a CmdSelect.
	N   int
	Raw string
}

// ParseCommand parses one line of input.
func ParseCommand(line string) Command {
	raw := strings.TrimSpace(line)
	cmd := Command{Raw: raw}
	switch strings.ToLower(raw) {
	case "n":
		cmd.Kind = CmdNext
	case "p":
		cmd.Kind = CmdPrev
	case "+":
		cmd.Kind = CmdGrow
	case "-":
		cmd.Kind = CmdShrink
	case "", "b":
		cmd.Kind = CmdBack
	case "q":
		cmd.Kind = CmdQuit
	default:
		if n, err := strconv.Atoi(raw); err == nil {
			cmd.Kind = CmdSelect
			cmd.N = n
		}
	}
	return cmd
}

// Options configures a Loop.
type Options struct {
	PageSize int
	Step     int
	MinSize  int
	MaxSize  int
	Width    int
	Theme    Theme
}

func (o Options) withDefaults() Options {
	if o.Step <= 0 {
		o.Step = PageSizeStep
	}
	if o.MinSize <= 0 {
		o.MinSize = MinPageSize
	}
	if o.MaxSize < o.MinSize {
		o.MaxSize = max(MaxPageSize, o.MinSize)
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	o.PageSize = min(max(o.PageSize, o.MinSize), o.MaxSize)
	o.Theme = o.Theme.orPlain()
	return o
}

type transition func(l *Loop, cmd Command) (State, error)

// transitions maps every state and command kind to its handler. Pairs that
// are missing are treated as unknown input, so going back, or an empty line,
// only means something while a message is shown.
var transitions = map[State]map[CommandKind]transition{
	Listing: {
		CmdSelect: (*Loop).selectRow,
		CmdNext:   (*Loop).nextPage,
		CmdPrev:   (*Loop).prevPage,
		CmdGrow:   (*Loop).grow,
		CmdShrink: (*Loop).shrink,
		CmdQuit:   (*Loop).quit,
	},
	ViewingMessage: {
		CmdSelect: (*Loop).selectRow,
		CmdNext:   (*Loop).nextPage,
		CmdPrev:   (*Loop).prevPage,
		CmdGrow:   (*Loop).grow,
		CmdShrink: (*Loop).shrink,
		CmdBack:   (*Loop).showPage,
		CmdQuit:   (*Loop).quit,
	},
}

// Loop is the interactive result browser. It reads one command per line
// from its input until q or end of input.
type Loop struct {
	session *Session
	in      *bufio.Scanner
	out     io.Writer
	opts    Options

	state State
	page  int
	size  int
}

// NewLoop returns a Loop over session in the Listing state.
func NewLoop(session *Session, in io.Reader, out io.Writer, opts Options) *Loop {
	opts = opts.withDefaults()
	return &Loop{
		session: session,
		in:      bufio.NewScanner(in),
		out:     out,
		opts:    opts,
		state:   Listing,
		size:    opts.PageSize,
	}
}

// State returns the current state.
func (l *Loop) State() State {
	return l.state
}

// PageIndex returns the zero-based current page.
func (l *Loop) PageIndex() int {
	return l.page
}

// PageSize returns the current page size.
func (l *Loop) PageSize() int {
	return l.size
}

// Run renders the first page and processes input until the session ends.
func (l *Loop) Run() error {
	if _, err := l.showPage(Command{}); err != nil {
		return err
	}
	for l.state != Exiting {
		if err := l.write(l.opts.Theme.Prompt(l.prompt())); err != nil {
			return err
		}
		if !l.in.Scan() {
			l.state = Exiting
			if err := l.in.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return l.write("\n")
		}
		if err := l.Step(ParseCommand(l.in.Text())); err != nil {
			return err
		}
	}
	return nil
}

// Step applies one command to the loop.
func (l *Loop) Step(cmd Command) error {
	handler, ok := transitions[l.state][cmd.Kind]
	if !ok {
		handler = (*Loop).unknown
	}
	next, err := handler(l, cmd)
	if err != nil {
		return err
	}
	l.state = next
	return nil
}

func (l *Loop) prompt() string {
	if l.state == ViewingMessage {
		return "Enter # to view, 'b' to go back, or 'q' to quit: "
	}
	return "Enter # to view, 'n'/'p' for next/prev page, '+'/'-' for page size, or 'q' to quit: "
}

func (l *Loop) showPage(Command) (State, error) {
	if l.session.Total() == 0 {
		return Listing, l.notice("No matches found.")
	}
	return Listing, RenderPage(l.out, l.session.Page(l.page, l.size), l.opts.Theme, l.opts.Width)
}

func (l *Loop) nextPage(cmd Command) (State, error) {
	if l.page+1 >= l.session.Pages(l.size) {
		return l.state, l.notice("Already on the last page.")
	}
	l.page++
	return l.showPage(cmd)
}

func (l *Loop) prevPage(cmd Command) (State, error) {
	if l.page == 0 {
		return l.state, l.notice("Already on the first page.")
	}
	l.page--
	return l.showPage(cmd)
}

func (l *Loop) grow(cmd Command) (State, error) {
	if l.size >= l.opts.MaxSize {
		return l.state, l.notice(fmt.Sprintf("Page size is already at the maximum of %d.", l.opts.MaxSize))
	}
	return l.resize(min(l.size+l.opts.Step, l.opts.MaxSize), cmd)
}

func (l *Loop) shrink(cmd Command) (State, error) {
	if l.size <= l.opts.MinSize {
		return l.state, l.notice(fmt.Sprintf("Page size is already at the minimum of %d.", l.opts.MinSize))
	}
	return l.resize(max(l.size-l.opts.Step, l.opts.MinSize), cmd)
}

func (l *Loop) resize(size int, cmd Command) (State, error) {
	l.size = size
	l.page = 0
	return l.showPage(cmd)
}

func (l *Loop) selectRow(cmd Command) (State, error) {
	page := l.session.Page(l.page, l.size)
	if page.OutOfRange || cmd.N < 1 || cmd.N > len(page.Rows) {
		return l.state, l.notice("Invalid number.")
	}

	view, err := l.session.Message(page.Start + cmd.N - 1)
	if errors.Is(err, ErrOutOfRange) {
		return l.state, l.notice("Invalid number.")
	}
	if err != nil {
		return l.state, err
	}
	return ViewingMessage, RenderMessage(l.out, view, l.opts.Theme)
}

func (l *Loop) quit(Command) (State, error) {
	return Exiting, nil
}

func (l *Loop) unknown(cmd Command) (State, error) {
	if cmd.Raw == "" {
		return l.state, l.notice("Invalid input.")
	}
	return l.state, l.notice(fmt.Sprintf("Unknown command %q.", cmd.Raw))
}

func (l *Loop) notice(msg string) error {
	return l.write(l.opts.Theme.Notice(msg) + "\n")
}

func (l *Loop) write(s string) error {
	_, err := io.WriteString(l.out, s)
	return err
}
