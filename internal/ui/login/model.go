// Package login is the terminal form that asks for credentials when they
// are not configured.
package login

import (
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fragmede/streakkeeper/internal/auth"
)

// ErrCancelled is returned when the form is dismissed.
var ErrCancelled = errors.New("login prompt cancelled")

var (
	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#20BEFF"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4136"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#20BEFF")).Bold(true).
			Padding(1, 0)
)

// Model is the credential form.
type Model struct {
	identityInput textinput.Model
	passwordInput textinput.Model
	focusIndex    int
	err           string
	title         string

	done      bool
	cancelled bool
}

// New creates the form. A non-empty identity is prefilled and focus starts
// on the password.
func New(title, identity string) Model {
	identityInput := textinput.New()
	identityInput.Placeholder = "email or username"
	identityInput.Width = 36
	identityInput.SetValue(identity)

	passwordInput := textinput.New()
	passwordInput.Placeholder = "password"
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.Width = 36

	m := Model{
		identityInput: identityInput,
		passwordInput: passwordInput,
		title:         title,
	}
	if identity != "" {
		m.focusIndex = 1
		m.passwordInput.Focus()
	} else {
		m.identityInput.Focus()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) setFocus(i int) {
	m.focusIndex = i
	if i == 0 {
		m.passwordInput.Blur()
		m.identityInput.Focus()
	} else {
		m.identityInput.Blur()
		m.passwordInput.Focus()
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		case "tab", "shift+tab", "up", "down":
			m.setFocus(1 - m.focusIndex)
			return m, nil
		case "enter":
			if m.focusIndex == 0 {
				m.setFocus(1)
				return m, nil
			}
			if strings.TrimSpace(m.identityInput.Value()) == "" || m.passwordInput.Value() == "" {
				m.err = "Identity and password required"
				return m, nil
			}
			m.err = ""
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	if m.focusIndex == 0 {
		m.identityInput, cmd = m.identityInput.Update(msg)
	} else {
		m.passwordInput, cmd = m.passwordInput.Update(msg)
	}
	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.done || m.cancelled {
		return ""
	}
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")
	sb.WriteString(labelStyle.Render("Identity:"))
	sb.WriteString("\n")
	sb.WriteString(m.identityInput.View())
	sb.WriteString("\n\n")
	sb.WriteString(labelStyle.Render("Password:"))
	sb.WriteString("\n")
	sb.WriteString(m.passwordInput.View())
	sb.WriteString("\n\n")

	if m.err != "" {
		sb.WriteString(errorStyle.Render(m.err))
		sb.WriteString("\n\n")
	}
	sb.WriteString(focusedStyle.Render("Enter") + " to submit, " + focusedStyle.Render("Esc") + " to cancel\n")
	return sb.String()
}

// Credentials returns what was entered. ok is false unless the form was
// submitted.
func (m Model) Credentials() (auth.Credentials, bool) {
	if !m.done {
		return auth.Credentials{}, false
	}
	return auth.Credentials{
		Identity: strings.TrimSpace(m.identityInput.Value()),
		Password: m.passwordInput.Value(),
	}, true
}

// Prompt runs the form on in/out and returns the entered credentials.
func Prompt(in io.Reader, out io.Writer, title, identity string) (auth.Credentials, error) {
	p := tea.NewProgram(New(title, identity), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return auth.Credentials{}, err
	}
	creds, ok := final.(Model).Credentials()
	if !ok {
		return auth.Credentials{}, ErrCancelled
	}
	return creds, nil
}
