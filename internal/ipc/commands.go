package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// Command is a user command from the status CLI to the daemon.
type Command string

const (
	CmdPause  Command = "pause"  // suspend detection cycles
	CmdResume Command = "resume" // resume detection cycles
	CmdReload Command = "reload" // re-read the config file now
	CmdQuit   Command = "quit"   // shut down the daemon
)

// WriteCommand writes a command to ~/.cache/tablewatch/cmd.txt.
func WriteCommand(cmd Command) error {
	dir := cacheDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "cmd.txt"), []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears ~/.cache/tablewatch/cmd.txt. Returns the empty
// command when nothing is pending or the content is not a known command.
func ReadCommand() (Command, error) {
	cmdPath := filepath.Join(cacheDir(), "cmd.txt")

	data, err := os.ReadFile(cmdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	// Clear immediately so a command never executes twice.
	if err := os.WriteFile(cmdPath, []byte(""), 0644); err != nil {
		return "", err
	}

	cmd := Command(strings.TrimSpace(string(data)))
	switch cmd {
	case CmdPause, CmdResume, CmdReload, CmdQuit:
		return cmd, nil
	default:
		return "", nil
	}
}
