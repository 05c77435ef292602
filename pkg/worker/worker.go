package worker

import (
	"sync"
)

type WorkerHandler = func(workerIndex int, job interface{})

// WorkerManager is a job manager based on goroutines. Define the number of
// internal workers, then publish jobs with Enqueue. Jobs are distributed
// among the pool; the workers are always listening until Exit is called.
type WorkerManager struct {
	bufferSize     int
	jobChannel     chan interface{}
	numberOfWorker int
	quit           chan struct{}
	do             WorkerHandler
	waiter         *sync.WaitGroup
	once           sync.Once
}

func NewWorkerManager(bufferSize, numberOfWorkers int, jobChannel chan interface{}) *WorkerManager {
	if jobChannel == nil {
		jobChannel = make(chan interface{}, bufferSize)
	}

	return &WorkerManager{
		bufferSize:     bufferSize,
		numberOfWorker: numberOfWorkers,
		jobChannel:     jobChannel,
		quit:           make(chan struct{}),
		waiter:         &sync.WaitGroup{},
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	if w.jobChannel == nil {
		return 0
	}
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) JobEvents() chan interface{} {
	return w.jobChannel
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue publishes a job onto the channel. Non-blocking: when the buffer
// is full the job is dropped and false is returned, so callers on hot
// paths are never stalled by a slow consumer.
func (w *WorkerManager) Enqueue(val interface{}) bool {
	select {
	case w.jobChannel <- val:
		return true
	default:
		return false
	}
}

// Start launches the workers and blocks until Exit is called.
func (w *WorkerManager) Start() {
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.jobChannel:
					w.do(index, job)
				case <-w.quit:
					return
				}
			}
		}(i)
	}
	w.waiter.Wait()
}

// Exit stops all workers. The job channel is not closed because it may be
// externally owned.
func (w *WorkerManager) Exit() {
	w.once.Do(func() {
		close(w.quit)
	})
}
