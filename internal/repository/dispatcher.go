package repository

import (
	"slices"
	"sync"
)

// Dispatcher доставляет уведомления об изменениях слушателям коллекции.
// Все вызовы идут с одной горутины, серия уведомлений схлопывается в один вызов.
type Dispatcher struct {
	mu        sync.Mutex
	listeners []func()
	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	for {
		select {
		case <-d.done:
			return
		case <-d.signal:
			d.mu.Lock()
			listeners := slices.Clone(d.listeners)
			d.mu.Unlock()

			for _, fn := range listeners {
				select {
				case <-d.done:
					return
				default:
				}
				fn()
			}
		}
	}
}

func (d *Dispatcher) Add(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

func (d *Dispatcher) RemoveAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = nil
}

func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Notify не блокирует: если сигнал уже ждёт доставки, новый не нужен
func (d *Dispatcher) Notify() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Close не ждёт завершения текущего вызова слушателя,
// его можно звать из самого слушателя
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.RemoveAll()
		close(d.done)
	})
}
