package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"reservation-sync-backend/internal/model"
	"reservation-sync-backend/internal/store"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender sends notifications through the webpush library.
type WebPushSender struct{}

// Send implements Sender.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// pushPayload is the JSON body delivered to the service worker on staff
// devices.
type pushPayload struct {
	Title         string `json:"title"`
	Body          string `json:"body"`
	ReservationID int64  `json:"reservationId"`
}

// WorkerPool fans out staff notifications for reservation events. Jobs are
// reservation ids; each job notifies every subscription registered for the
// reservation's branch.
type WorkerPool struct {
	size    int
	jobs    chan int64
	store   store.Store
	webpush *webpush.Options
	sender  Sender
	log     *zap.SugaredLogger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, st store.Store, webpushOptions *webpush.Options, log *zap.SugaredLogger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size),
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// SetSender swaps the sender, for tests.
func (wp *WorkerPool) SetSender(s Sender) {
	wp.sender = s
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debugw("notification worker started", "worker", id)
	for {
		select {
		case reservationID := <-wp.jobs:
			wp.notifyForReservation(ctx, reservationID)
		case <-ctx.Done():
			wp.log.Debugw("notification worker shutting down", "worker", id)
			return
		}
	}
}

// NotifyPinIssued enqueues a notification job for a reservation that just
// received a door PIN. Non-blocking from the caller's perspective apart
// from channel backpressure.
func (wp *WorkerPool) NotifyPinIssued(reservationID int64) {
	wp.jobs <- reservationID
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

// notifyForReservation loads the reservation and pushes to every staff
// subscription on its branch.
func (wp *WorkerPool) notifyForReservation(ctx context.Context, reservationID int64) {
	var reservation model.Reservation
	if err := wp.store.DB().WithContext(ctx).First(&reservation, reservationID).Error; err != nil {
		wp.log.Errorw("failed to load reservation for notification",
			"reservationId", reservationID, "error", err)
		return
	}

	subscriptions, err := wp.store.ListSubscriptionsForBranch(ctx, reservation.BranchID)
	if err != nil {
		wp.log.Errorw("failed to list subscriptions",
			"branchId", reservation.BranchID, "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(pushPayload{
		Title:         "Door PIN issued",
		Body:          fmt.Sprintf("%s completed check-in, a door PIN is ready", reservation.GuestName),
		ReservationID: reservation.ID,
	})
	if err != nil {
		wp.log.Errorw("failed to build push payload", "error", err)
		return
	}

	wp.log.Infow("sending staff notifications",
		"reservationId", reservation.ID, "subscriptions", len(subscriptions))
	for _, sub := range subscriptions {
		wp.send(ctx, sub, payload)
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Errorw("failed to send notification", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	// 410 means the browser dropped the subscription; prune it.
	if resp.StatusCode == http.StatusGone {
		wp.log.Infow("pruning expired subscription", "endpoint", sub.Endpoint)
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Errorw("failed to delete expired subscription",
				"endpoint", sub.Endpoint, "error", err)
		}
	}
}
