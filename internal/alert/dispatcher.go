package alert

import "sync"

// Dispatcher fans events out to the destinations whose Events list names
// the event status. Delivery runs in goroutines so a slow webhook never
// stalls a mission.
type Dispatcher struct {
	configs []Config
	wg      sync.WaitGroup
}

// NewDispatcher returns nil when no destinations are configured. A nil
// Dispatcher is valid: Dispatch and Wait are no-ops on it.
func NewDispatcher(configs []Config) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs}
}

// Dispatch fans the event out and returns immediately.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	for _, cfg := range d.configs {
		if !cfg.wants(event.Status) {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			Send(cfg, event)
		}()
	}
}

// Wait blocks until every delivery in flight has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (c Config) wants(status string) bool {
	for _, e := range c.Events {
		if e == status {
			return true
		}
	}
	return false
}
