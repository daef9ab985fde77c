// Package monitor renders the bridge's event stream in the terminal.
package monitor

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"serialbridge/pkg/bus"
)

// Info describes the running bridge in the monitor header.
type Info struct {
	Session string
	Port    string
	Baud    int
	Output  string
	Input   string
	Command string
}

// Run shows live bridge events until the user quits or ctx is done.
func Run(ctx context.Context, mb *bus.MessageBus, info Info) error {
	events, unsubscribe := mb.SubscribeEvents(ctx, 0)
	defer unsubscribe()

	program := tea.NewProgram(newModel(events, info), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}

	fmt.Println(renderGoodbyeBanner())
	return nil
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("24")).
		Padding(1, 2)

	return style.Render("serial bridge monitor closed")
}
