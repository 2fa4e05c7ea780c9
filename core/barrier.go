package core

import "context"

const (
	PROCESSOR = iota
	EMITTER
)

type Barrier struct {
	counters [2]chan bool
}

func NewBarrier() *Barrier {
	return &Barrier{
		counters: [2]chan bool{make(chan bool, 1), make(chan bool, 1)},
	}
}

func (b *Barrier) Notify(stage int) {
	b.counters[stage] <- true
}

func (b *Barrier) Wait(ctx context.Context, stage int) error {
	return b.WaitUntil(ctx, stage, nil)
}

// WaitUntil is Wait that also gives up with errPipelineStopped once stop is
// closed. A notification that is already pending wins over stop.
func (b *Barrier) WaitUntil(ctx context.Context, stage int, stop <-chan struct{}) error {
	select {
	case <-b.counters[stage]:
		return nil
	default:
	}
	select {
	case <-b.counters[stage]:
		return nil
	case <-stop:
		select {
		case <-b.counters[stage]:
			return nil
		default:
		}
		return errPipelineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
