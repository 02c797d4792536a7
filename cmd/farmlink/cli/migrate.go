package cli

import (
	"fmt"
	"io"
)

// Migrator is the subset of db.Migrator the CLI drives.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
}

// MigrateCommand runs one migrate action and returns the process exit code.
func MigrateCommand(m Migrator, action string, stdout, stderr io.Writer) int {
	switch action {
	case "up":
		if err := m.Up(); err != nil {
			fmt.Fprintf(stderr, "migrate up: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "migrations applied")
	case "down":
		if err := m.Down(); err != nil {
			fmt.Fprintf(stderr, "migrate down: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "migrations rolled back")
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			fmt.Fprintf(stderr, "migrate version: %v\n", err)
			return 1
		}
		if version == 0 {
			fmt.Fprintln(stdout, "no migrations applied")
			return 0
		}
		fmt.Fprintf(stdout, "version %d dirty=%t\n", version, dirty)
	default:
		fmt.Fprintf(stderr, "unknown migrate action %q (want up, down or version)\n", action)
		return 2
	}
	return 0
}
