package agent

import (
	"context"
	"sync"
)

// Manager runs a fleet of Agents concurrently and fans their reports into
// one shared channel, the way the teacher's main.go ranges over a single
// reportChan fed by one running strategy, generalized to many.
type Manager struct {
	mu      sync.Mutex
	agents  []*Agent
	reports chan Report
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a Manager with a report channel buffered to
// bufSize.
func NewManager(bufSize int) *Manager {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Manager{reports: make(chan Report, bufSize)}
}

// Add registers agent with the manager. Must be called before Start.
func (m *Manager) Add(a *Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents = append(m.agents, a)
}

// Reports returns the channel every managed agent's lifecycle events are
// delivered on.
func (m *Manager) Reports() <-chan Report {
	return m.reports
}

// ReportsSink returns the send side of the shared report channel, for
// wiring into each Agent's Config.Reports before calling Add.
func (m *Manager) ReportsSink() chan<- Report {
	return m.reports
}

// Start launches every registered agent's Run loop in its own goroutine.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.mu.Lock()
	agents := make([]*Agent, len(m.agents))
	copy(agents, m.agents)
	m.mu.Unlock()

	for _, a := range agents {
		a := a
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			a.Run(ctx)
		}()
	}
}

// Stop cancels every agent's context and blocks until all have returned,
// then closes the report channel.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	close(m.reports)
}
