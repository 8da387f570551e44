package orchestrator

import (
	"sync"

	"github.com/ternarybob/arbor"
)

// dispatcher is a bounded worker pool for prepare job execution.
// Promotion places at most one job per template on the pool at a time
// (the slot lease enforces that), so workers never run the same template
// concurrently; the pool only bounds how many templates prepare at once.
type dispatcher struct {
	tasks    chan func()
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	logger   arbor.ILogger
}

func newDispatcher(workers, depth int, logger arbor.ILogger) *dispatcher {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}

	d := &dispatcher{
		tasks:  make(chan func(), depth),
		quit:   make(chan struct{}),
		logger: logger,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	return d
}

func (d *dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case task := <-d.tasks:
			task()
		case <-d.quit:
			// Drain remaining tasks before exiting
			for {
				select {
				case task := <-d.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// submit blocks when the backlog is full (backpressure) and returns false
// only when the dispatcher has been stopped.
func (d *dispatcher) submit(task func()) bool {
	select {
	case <-d.quit:
		return false
	default:
	}

	select {
	case d.tasks <- task:
		return true
	case <-d.quit:
		return false
	}
}

// stop signals workers and waits for in-flight tasks to finish
func (d *dispatcher) stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
	})
	d.wg.Wait()
}
