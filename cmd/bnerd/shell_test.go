package main

import (
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stretchr/testify/assert"
)

type countingTarget struct {
	mu    sync.Mutex
	count int
}

func (c *countingTarget) Send(tea.Msg) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

// Core components start sending change events before the TUI program
// exists; binding must be safe against concurrent sends.
func TestNotifier_ConcurrentBindAndSend(t *testing.T) {
	n := &notifier{}
	target := &countingTarget{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n.send(refreshMsg{})
			}
		}()
	}
	n.bind(target)
	wg.Wait()

	n.send(refreshMsg{})
	target.mu.Lock()
	defer target.mu.Unlock()
	assert.Greater(t, target.count, 0, "sends after bind reach the target")
}

func TestNotifier_UnboundSendIsDropped(t *testing.T) {
	n := &notifier{}
	assert.NotPanics(t, func() { n.send(refreshMsg{}) })
}
