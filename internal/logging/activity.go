// Activity log: the append-only line-oriented artifact surfaced to the user.
// One line per event:
//
//	[<timestamp>] <event>
//	[<timestamp>] <event> | <details>
//
// Unlike category logs, the activity log is written regardless of debug mode.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ActivityLog records user-visible shell events to a single text file.
// Write is append-if-exists-else-create; Clear truncates the file and
// immediately logs the clear itself.
type ActivityLog struct {
	mu   sync.Mutex
	path string
}

// NewActivityLog creates an activity log writing to <stateDir>/activity.log.
func NewActivityLog(stateDir string) (*ActivityLog, error) {
	if stateDir == "" {
		return nil, fmt.Errorf("state dir required")
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &ActivityLog{path: filepath.Join(stateDir, "activity.log")}, nil
}

// Path returns the location of the activity log file.
func (a *ActivityLog) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

// Event appends one event line. Details are optional; multi-line details are
// flattened so the artifact stays line-oriented.
func (a *ActivityLog) Event(event string, details ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writeLocked(event, details)
}

// Clear truncates the log and records the clear as the first new entry.
func (a *ActivityLog) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.WriteFile(a.path, nil, 0644); err != nil {
		return fmt.Errorf("truncate activity log: %w", err)
	}
	a.writeLocked("Activity log cleared", nil)
	return nil
}

// Read returns the current contents, one entry per element. Missing file
// reads as empty.
func (a *ActivityLog) Read() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	raw := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func (a *ActivityLog) writeLocked(event string, details []string) {
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[activity] Warning: could not open %s: %v\n", a.path, err)
		return
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s", time.Now().Format("2006-01-02 15:04:05"), event)
	if detail := strings.Join(details, " "); detail != "" {
		line += " | " + strings.ReplaceAll(detail, "\n", " ")
	}
	fmt.Fprintln(f, line)
}
