package core

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"
)

const DefaultQueueSize = 100

// Sink receives a node's output batches in the order the inputs arrived.
type Sink func(nodeID int64, out Records)

// ErrorHandler receives batches a node rejected. The pipeline keeps running.
type ErrorHandler func(nodeID int64, batch Records, err error)

type pendingBatch struct {
	records Records
}

var (
	flushBatch    = &pendingBatch{}
	shutdownBatch = &pendingBatch{}
)

// Pipeline feeds one node from a queue: a processor goroutine runs batches
// through the node one at a time and an emitter goroutine hands outputs to
// the sink.
type Pipeline struct {
	node       *Node
	sink       Sink
	onError    ErrorHandler
	barrier    *Barrier
	inputQueue chan *pendingBatch
	emitQueue  chan *pendingBatch
	log        logr.Logger

	// mu orders enqueues against Close; stopped is closed when the
	// current Run returns.
	mu      sync.RWMutex
	closed  bool
	running bool
	stopped <-chan struct{}
}

func NewPipeline(node *Node, queueSize int, sink Sink, onError ErrorHandler) *Pipeline {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Pipeline{
		node:       node,
		sink:       sink,
		onError:    onError,
		barrier:    NewBarrier(),
		inputQueue: make(chan *pendingBatch, queueSize),
		emitQueue:  make(chan *pendingBatch, queueSize),
		log:        node.log.WithName("pipeline"),
	}
}

// Run processes batches until Close or ctx is done. It returns at once on a
// closed pipeline.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	if p.running {
		p.mu.Unlock()
		return errors.AssertionFailedf("pipeline of node %d is already running", p.node.id)
	}
	p.running = true
	stopped := make(chan struct{})
	p.stopped = stopped
	p.mu.Unlock()
	defer func() {
		close(stopped)
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	emitterDone := make(chan struct{})
	go func() {
		defer close(emitterDone)
		p.emit(ctx)
	}()
	defer func() { <-emitterDone }()
	p.log.V(1).Info("pipeline running")

	for {
		select {
		case batch := <-p.inputQueue:
			if batch == shutdownBatch || batch == flushBatch {
				select {
				case p.emitQueue <- batch:
				case <-ctx.Done():
					return nil
				}
				p.barrier.Notify(PROCESSOR)
				if batch == shutdownBatch {
					p.log.Info("pipeline closed")
					return nil
				}
				continue
			}
			out, err := p.node.Process(batch.records)
			if err != nil {
				if p.onError == nil {
					p.log.V(1).Info("dropping rejected batch", "records", len(batch.records))
				} else {
					p.onError(p.node.id, batch.records, err)
				}
				continue
			}
			if len(out) > 0 {
				select {
				case p.emitQueue <- &pendingBatch{records: out}:
				case <-ctx.Done():
					return nil
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Pipeline) emit(ctx context.Context) {
	for {
		select {
		case batch := <-p.emitQueue:
			switch batch {
			case shutdownBatch:
				p.barrier.Notify(EMITTER)
				return
			case flushBatch:
				p.barrier.Notify(EMITTER)
				continue
			}
			if p.sink != nil {
				p.sink(p.node.id, batch.records)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) Submit(ctx context.Context, batch Records) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.Wrapf(ErrClosed, "pipeline of node %d", p.node.id)
	}
	return p.enqueue(ctx, &pendingBatch{records: batch}, p.liveStop())
}

// Flush waits until every batch submitted before it has been processed and
// its output handed to the sink.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return errors.Wrapf(ErrClosed, "pipeline of node %d", p.node.id)
	}
	stopped := p.liveStop()
	err := p.enqueue(ctx, flushBatch, stopped)
	p.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := p.await(ctx, stopped); err != nil {
		return err
	}
	return nil
}

// Close rejects further batches, drains the queue if Run is serving it and
// stops Run. Closing a closed pipeline is a no-op.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopped := p.stopped
	err := p.enqueue(ctx, shutdownBatch, stopped)
	p.mu.Unlock()
	if err == nil {
		err = p.await(ctx, stopped)
	}
	if errors.Is(err, errPipelineStopped) {
		return nil
	}
	return err
}

var errPipelineStopped = errors.New("pipeline stopped")

// liveStop returns the stop channel of a running Run, or nil. p.mu must be
// held.
func (p *Pipeline) liveStop() <-chan struct{} {
	if !p.running {
		return nil
	}
	return p.stopped
}

func (p *Pipeline) enqueue(ctx context.Context, batch *pendingBatch, stopped <-chan struct{}) error {
	select {
	case p.inputQueue <- batch:
		return nil
	case <-stopped:
		return errPipelineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await waits for both stages to pass the marker. A nil stopped waits on
// ctx alone.
func (p *Pipeline) await(ctx context.Context, stopped <-chan struct{}) error {
	if err := p.barrier.WaitUntil(ctx, PROCESSOR, stopped); err != nil {
		return errors.Wrap(err, "waiting for processor")
	}
	if err := p.barrier.WaitUntil(ctx, EMITTER, stopped); err != nil {
		return errors.Wrap(err, "waiting for emitter")
	}
	return nil
}
