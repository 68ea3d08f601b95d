package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/vango-dev/slicestore/internal/errors"
	"github.com/vango-dev/slicestore/pkg/devtools"
	"github.com/vango-dev/slicestore/pkg/store"
)

const maxWatchEvents = 500

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	statusBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236")).Padding(0, 2)
	timeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	kindStyles     = map[store.ActionKind]lipgloss.Style{
		store.KindSet:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		store.KindMerge:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		store.KindUpdate:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		store.KindReset:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		store.KindRestore: lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		store.KindReplace: lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	}
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var (
		rawURL string
		plain  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream dispatched actions from a running server",
		Long: `Connect to a running devtools server and show every action
as it is dispatched.

Keys: q quit, p pause, c clear.

Examples:
  slicestore watch
  slicestore watch --url http://localhost:4200
  slicestore watch --plain | grep todos`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rawURL == "" {
				cfg, err := loadConfig(flags)
				if err != nil {
					return err
				}
				rawURL = cfg.DevtoolsURL()
			}

			wsURL, err := streamURL(rawURL)
			if err != nil {
				return errors.New("E400").Wrap(err)
			}

			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, http.Header{})
			if err != nil {
				return errors.New("E300").
					WithDetail("Could not connect to " + wsURL).
					WithSuggestion("Start the server with 'slicestore serve'").
					Wrap(err)
			}
			defer conn.Close()

			if plain {
				return streamPlain(cmd.Context(), cmd.OutOrStdout(), conn)
			}

			_, err = tea.NewProgram(newWatchModel(conn, wsURL), tea.WithAltScreen()).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&rawURL, "url", "", "Devtools server URL (default from slicestore.json)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print one line per action instead of the live view")

	return cmd
}

// streamURL turns a devtools base URL into its action stream URL.
func streamURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/actions"
	return u.String(), nil
}

// streamPlain prints events until the stream closes or ctx is done.
func streamPlain(ctx context.Context, w io.Writer, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	for {
		var ev devtools.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.New("E302").Wrap(err)
		}
		fmt.Fprintln(w, formatEvent(ev))
	}
}

// formatEvent renders one event as a single unstyled line.
func formatEvent(ev devtools.Event) string {
	line := fmt.Sprintf("%s %-8s %s", ev.Time.Format("15:04:05.000"), ev.Action.Kind, ev.Action.Type)
	if ev.Action.Payload != nil {
		line += " " + payloadSummary(ev.Action.Payload)
	}
	if ev.Error != "" {
		line += " (" + ev.Error + ")"
	}
	return line
}

func payloadSummary(payload any) string {
	const limit = 60
	s := fmt.Sprintf("%v", payload)
	if len(s) > limit {
		return s[:limit-3] + "..."
	}
	return s
}

type (
	eventMsg  devtools.Event
	streamErr struct{ err error }
)

// watchModel is the live action view.
type watchModel struct {
	conn   *websocket.Conn
	source string

	events  []devtools.Event
	counts  map[store.ActionKind]int
	paused  bool
	skipped int
	err     error

	width  int
	height int
}

func newWatchModel(conn *websocket.Conn, source string) watchModel {
	return watchModel{
		conn:   conn,
		source: source,
		counts: make(map[store.ActionKind]int),
	}
}

func waitForEvent(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		if conn == nil {
			return nil
		}
		var ev devtools.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return streamErr{err: err}
		}
		return eventMsg(ev)
	}
}

func (m watchModel) Init() tea.Cmd {
	return waitForEvent(m.conn)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p", " ":
			m.paused = !m.paused
		case "c":
			m.events = nil
			m.skipped = 0
			m.counts = make(map[store.ActionKind]int)
		}
		return m, nil

	case eventMsg:
		ev := devtools.Event(msg)
		m.counts[ev.Action.Kind]++
		if m.paused {
			m.skipped++
		} else {
			m.events = append(m.events, ev)
			if len(m.events) > maxWatchEvents {
				m.events = m.events[len(m.events)-maxWatchEvents:]
			}
		}
		return m, waitForEvent(m.conn)

	case streamErr:
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("slicestore watch"))
	b.WriteString(timeStyle.Render("  " + m.source))
	b.WriteString("\n\n")

	rows := m.height - 5
	if rows < 1 {
		rows = 20
	}
	start := 0
	if len(m.events) > rows {
		start = len(m.events) - rows
	}
	for _, ev := range m.events[start:] {
		b.WriteString(m.renderEvent(ev))
		b.WriteString("\n")
	}
	if len(m.events) == 0 {
		b.WriteString(timeStyle.Render("waiting for actions..."))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorLineStyle.Render("stream closed: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(statusBarStyle.Render(m.status()))
	return b.String()
}

func (m watchModel) renderEvent(ev devtools.Event) string {
	style, ok := kindStyles[ev.Action.Kind]
	if !ok {
		style = lipgloss.NewStyle()
	}
	line := timeStyle.Render(ev.Time.Format("15:04:05.000")) + " " +
		style.Render(fmt.Sprintf("%-8s", ev.Action.Kind)) + " " + ev.Action.Type
	if ev.Action.Payload != nil {
		line += " " + timeStyle.Render(payloadSummary(ev.Action.Payload))
	}
	if ev.Error != "" {
		line += " " + errorLineStyle.Render(ev.Error)
	}
	return line
}

func (m watchModel) status() string {
	total := 0
	for _, n := range m.counts {
		total += n
	}
	parts := []string{fmt.Sprintf("%d actions", total)}
	for _, kind := range []store.ActionKind{store.KindSet, store.KindMerge, store.KindUpdate, store.KindReset, store.KindRestore} {
		if n := m.counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", kind, n))
		}
	}
	if m.paused {
		parts = append(parts, fmt.Sprintf("paused (%d skipped)", m.skipped))
	}
	parts = append(parts, "q quit  p pause  c clear", time.Now().Format("15:04:05"))
	return strings.Join(parts, " · ")
}
