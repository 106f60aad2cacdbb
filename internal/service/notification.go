package service

import (
	"context"
	"log"
	"sync"
	"time"
)

// Notification kinds
const (
	NotifyInvitationCreated    = "invitation_created"
	NotifyInvitationAccepted   = "invitation_accepted"
	NotifyJobInvitationCreated = "job_invitation_created"
	NotifyShiftsAssigned       = "shifts_assigned"
	NotifyShiftsUnavailable    = "shifts_unavailable"
)

// Notification is a plain text message about an invitation
type Notification struct {
	Kind    string
	To      string
	Subject string
	Text    string
}

// Transport delivers a single notification
type Transport interface {
	Send(ctx context.Context, n Notification) error
}

// Notifier accepts notifications for out-of-band delivery
type Notifier interface {
	Notify(n Notification)
}

// Dispatcher delivers notifications on a background worker. Delivery is at
// most once: a full queue drops the notification and a failed send is only logged.
type Dispatcher struct {
	transport Transport
	queue     chan Notification
	timeout   time.Duration
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
}

// NewDispatcher creates a dispatcher and starts its worker
func NewDispatcher(transport Transport, queueSize int, timeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		queue:     make(chan Notification, queueSize),
		timeout:   timeout,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Notify enqueues n without blocking. Notifications after Close are dropped.
func (d *Dispatcher) Notify(n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		log.Printf("Notification dispatcher closed, dropping %s to %s", n.Kind, n.To)
		return
	}
	select {
	case d.queue <- n:
	default:
		log.Printf("Notification queue full, dropping %s to %s", n.Kind, n.To)
	}
}

// Close stops accepting notifications and waits for queued ones to be sent
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		d.send(n)
	}
}

func (d *Dispatcher) send(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Notification transport panicked sending %s to %s: %v", n.Kind, n.To, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.transport.Send(ctx, n); err != nil {
		log.Printf("Failed to send %s notification to %s: %v", n.Kind, n.To, err)
	}
}

// LogTransport writes notifications to the log instead of delivering them
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, n Notification) error {
	log.Printf("Notification %s to %s: %s", n.Kind, n.To, n.Subject)
	return nil
}
