package utils

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool fans queued tasks out to a fixed set of workers supervised by
// the caller's tomb.
type WorkerPool struct {
	n     int      // number of workers
	tasks chan any // queued tasks awaiting a worker
}

func NewWorkerPool(size int) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, taskChanSize),
		n:     size,
	}
}

// AddTask queues a task for the pool. Blocks once the queue is full.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup launches the pool's workers on the tomb. Each worker runs until the
// tomb dies or its work function returns an error.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	log.Info().Int("workers", pool.n).Msg("starting worker pool")
	for range pool.n {
		t.Go(func() error {
			return pool.worker(t, work)
		})
	}
}

// Workers wait on tasks in the queue and action them.
func (pool *WorkerPool) worker(t *tomb.Tomb, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Msg("worker exiting")
				return err
			}
		}
	}
}
