package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type State int

const (
	StateStart State = iota
	StateWaitingForWorkers
	StateDispatching
	StateDone
	StateError
)

type Role int

const (
	RoleCoordinator Role = iota
	RoleWorker
)

// Messages

// StatusMsg is a one-line status update (e.g. "worker 2 connected").
type StatusMsg string

// ErrorMsg carries a terminal error.
type ErrorMsg error

// WorkersMsg reports how many of the expected workers have completed setup.
type WorkersMsg struct {
	Connected int
	Expected  int
}

// ProgressMsg reports batch-run task completion.
type ProgressMsg struct {
	TasksDone  int
	TasksTotal int
	Mode       string // "static" or "dynamic"
}

type Model struct {
	Role           Role
	State          State
	Code           string
	Mode           string
	Spinner        spinner.Model
	WorkerProgress progress.Model
	TaskProgress   progress.Model
	WorkersStr     string
	TasksStr       string
	Status         string
	Err            error
	Exit           bool
}

func NewModel(role Role, code string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	pWorkers := progress.New(
		progress.WithGradient(string(ColorPrimary), string(ColorSecondary)),
		progress.WithWidth(40),
	)
	pTasks := progress.New(
		progress.WithGradient("#00FF00", "#00FFFF"),
		progress.WithWidth(40),
	)

	return Model{
		Role:           role,
		State:          StateStart,
		Code:           code,
		Spinner:        s,
		WorkerProgress: pWorkers,
		TaskProgress:   pTasks,
		WorkersStr:     "0/0",
		TasksStr:       "0/0",
	}
}

func (m Model) Init() tea.Cmd {
	return m.Spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			m.Exit = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		newWorkers, cmdWorkers := m.WorkerProgress.Update(msg)
		newTasks, cmdTasks := m.TaskProgress.Update(msg)
		m.WorkerProgress = newWorkers.(progress.Model)
		m.TaskProgress = newTasks.(progress.Model)
		return m, tea.Batch(cmdWorkers, cmdTasks)

	case StatusMsg:
		m.Status = string(msg)
		if m.State == StateStart {
			m.State = StateWaitingForWorkers
		}

	case WorkersMsg:
		m.WorkersStr = fmt.Sprintf("%d/%d", msg.Connected, msg.Expected)
		ratio := 0.0
		if msg.Expected > 0 {
			ratio = float64(msg.Connected) / float64(msg.Expected)
		}
		cmd := m.WorkerProgress.SetPercent(ratio)
		if msg.Connected >= msg.Expected {
			m.State = StateDispatching
		}
		return m, cmd

	case ProgressMsg:
		m.State = StateDispatching
		m.Mode = msg.Mode
		m.TasksStr = fmt.Sprintf("%d/%d", msg.TasksDone, msg.TasksTotal)

		ratio := 0.0
		if msg.TasksTotal > 0 {
			ratio = float64(msg.TasksDone) / float64(msg.TasksTotal)
		}
		if ratio >= 1.0 {
			m.State = StateDone
			return m, tea.Quit
		}
		return m, m.TaskProgress.SetPercent(ratio)

	case ErrorMsg:
		m.State = StateError
		m.Err = msg
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) View() string {
	if m.Err != nil {
		return ContainerStyle.Render(
			lipgloss.JoinVertical(lipgloss.Left,
				ErrorStyle.Render("Error Occurred"),
				fmt.Sprintf("%v", m.Err),
			),
		)
	}

	var content string

	switch m.State {
	case StateStart, StateWaitingForWorkers:
		header := MatrixHeaderStyle.Render("FLOCKD")

		info := ""
		if m.Role == RoleCoordinator {
			info = ViewCode(m.Code)
		} else {
			info = MatrixTextStyle.Render(">> CONNECTING TO COORDINATOR... <<")
		}

		status := MatrixTextStyle.Render(fmt.Sprintf(">> %s", m.Status))

		content = lipgloss.JoinVertical(lipgloss.Center, header, info, m.Spinner.View(), status)

	case StateDispatching:
		header := TitleStyle.Render("Batch Running")

		telemetry := lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.JoinVertical(lipgloss.Left,
				StatLabelStyle.Render("MODE"),
				StatValueStyle.Render(m.Mode),
			),
			lipgloss.NewStyle().Width(4).Render(""),
			lipgloss.JoinVertical(lipgloss.Left,
				StatLabelStyle.Render("WORKERS"),
				StatValueStyle.Render(m.WorkersStr),
			),
		)

		bars := lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.JoinHorizontal(lipgloss.Bottom, StatLabelStyle.Render("Workers Ready"), m.WorkerProgress.View()),
			" ",
			lipgloss.JoinHorizontal(lipgloss.Bottom, StatLabelStyle.Render("Tasks Done   "), m.TaskProgress.View()),
			StatValueStyle.Render(m.TasksStr),
		)

		content = lipgloss.JoinVertical(lipgloss.Center, header, telemetry, " ", bars)

	case StateDone:
		content = TitleStyle.Render("Batch Complete!")
	}

	return ContainerStyle.Render(content)
}
