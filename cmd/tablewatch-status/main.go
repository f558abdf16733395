// Command tablewatch-status inspects and controls a running tablewatch-core
// daemon through the shared cache files: it renders status.json and writes
// control commands to cmd.txt.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"github.com/tiroq/tablewatch/internal/ipc"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "pause", "resume", "reload", "quit":
			sendCommand(ipc.Command(os.Args[1]))
			return
		case "show":
			showOnce()
			return
		case "watch":
			watch()
			return
		default:
			fmt.Fprintf(os.Stderr, "usage: tablewatch-status [show|watch|pause|resume|reload|quit]\n")
			os.Exit(2)
		}
	}
	showOnce()
}

func sendCommand(cmd ipc.Command) {
	if err := ipc.WriteCommand(cmd); err != nil {
		pterm.Error.Printfln("Failed to send %s: %v", cmd, err)
		os.Exit(1)
	}
	pterm.Success.Printfln("Sent %s", cmd)
}

func showOnce() {
	status, err := ipc.ReadStatus()
	if err != nil {
		pterm.Error.Printfln("No status available (is tablewatch-core running?): %v", err)
		os.Exit(1)
	}
	fmt.Print(render(status))
}

func watch() {
	area, err := pterm.DefaultArea.WithFullscreen().Start()
	if err != nil {
		pterm.Error.Printfln("Failed to start display: %v", err)
		os.Exit(1)
	}
	defer func() { _ = area.Stop() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		status, err := ipc.ReadStatus()
		if err != nil {
			area.Update(pterm.Warning.Sprintfln("Waiting for tablewatch-core status..."))
		} else {
			area.Update(render(status))
		}
		select {
		case <-sigChan:
			return
		case <-ticker.C:
		}
	}
}

func render(status *ipc.StatusSnapshot) string {
	out := pterm.DefaultHeader.Sprint("Tablewatch")

	age := time.Since(status.Timestamp).Round(time.Second)
	mode := pterm.Green(string(status.Mode))
	if status.Mode == ipc.ModePaused {
		mode = pterm.Yellow(string(status.Mode))
	}
	level := status.DegradationLevel
	switch level {
	case "full":
		level = pterm.Green(level)
	case "partial", "minimal":
		level = pterm.Yellow(level)
	default:
		level = pterm.Red(level)
	}

	out += fmt.Sprintf("\nMode: %s   Level: %s   Clients: %d   Queue: %d   Updated: %s ago\n",
		mode, level, status.Clients, status.QueuedEvents, age)
	if status.LastError != "" {
		out += pterm.Red("Last error: "+status.LastError) + "\n"
	}

	if len(status.Tables) > 0 {
		rows := pterm.TableData{{"Table", "Title", "Street", "Pot", "Board", "Hero", "Source"}}
		for _, t := range status.Tables {
			source := "live"
			if t.Fallback {
				source = pterm.Yellow("cached")
			}
			rows = append(rows, []string{
				t.TableID, t.Title, t.Street,
				fmt.Sprintf("%.2f", t.Pot), t.Board, t.Hero, source,
			})
		}
		table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
		if err == nil {
			out += "\n" + table + "\n"
		}
	} else {
		out += "\nNo tables tracked.\n"
	}

	if len(status.Categories) > 0 {
		names := make([]string, 0, len(status.Categories))
		for name := range status.Categories {
			names = append(names, name)
		}
		sort.Strings(names)

		rows := pterm.TableData{{"Category", "Success", "Confidence", "P95", "Samples"}}
		for _, name := range names {
			h := status.Categories[name]
			success := fmt.Sprintf("%.0f%%", h.SuccessRate*100)
			if h.SuccessRate < 0.90 && h.Samples >= 20 {
				success = pterm.Yellow(success)
			}
			rows = append(rows, []string{
				name, success,
				fmt.Sprintf("%.2f", h.MeanConfidence),
				fmt.Sprintf("%dms", h.P95Millis),
				fmt.Sprintf("%d", h.Samples),
			})
		}
		table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
		if err == nil {
			out += "\n" + table + "\n"
		}
	}

	return out
}
