// Package dispatch maps committed domain changes onto room pushes.
//
// Planning is pure: each Plan function turns a change into the events it
// produces. Dispatch then serializes and broadcasts them. Pushes are
// best-effort and at-most-once; nothing here is ever reported back to the
// request that caused the change, because by the time it runs the change has
// already been persisted.
package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/taskhive-dev/taskhive/internal/apperrors"
	"github.com/taskhive-dev/taskhive/internal/models"
	"github.com/taskhive-dev/taskhive/internal/realtime"
	"github.com/taskhive-dev/taskhive/internal/types"
)

// Event names pushed to clients.
const (
	EventTaskCreated    = "taskCreated"
	EventTaskUpdated    = "taskUpdated"
	EventTaskDeleted    = "taskDeleted"
	EventCommentAdded   = "commentAdded"
	EventNotification   = "notification"
	EventMemberJoined   = "memberJoined"
	EventProjectUpdated = "projectUpdated"
	EventProjectDeleted = "projectDeleted"
)

// Subtypes carried in the "type" field of notification pushes.
const (
	PushInvitation         = "invitation"
	PushInvitationAccepted = "invitation_accepted"
	PushInvitationDeclined = "invitation_declined"
	PushTaskCreated        = "task_created"
	PushTaskUpdated        = "task_updated"
	PushTaskDeleted        = "task_deleted"
	PushProjectUpdated     = "project_updated"
)

const defaultTimeout = 2 * time.Second

// Broadcaster delivers a serialized frame to a room. *realtime.Registry and
// *realtime.RedisBus both satisfy it. CloseRoom delivers the frame and then
// evicts every member of the room.
type Broadcaster interface {
	Broadcast(ctx context.Context, room realtime.RoomKey, frame []byte) error
	CloseRoom(ctx context.Context, room realtime.RoomKey, frame []byte) error
}

// Event is one push: a named payload for one room. A closing event is the
// last push the room receives.
type Event struct {
	Room    realtime.RoomKey
	Name    string
	Payload any
	Close   bool
}

type Dispatcher struct {
	out     Broadcaster
	timeout time.Duration
}

func New(out Broadcaster) *Dispatcher {
	return &Dispatcher{out: out, timeout: defaultTimeout}
}

// Dispatch pushes events in order. Failures are logged per event and never
// stop the remaining events. It returns how many events failed, which is
// only of interest to tests and logs.
func (d *Dispatcher) Dispatch(ctx context.Context, events ...Event) int {
	if d == nil || d.out == nil {
		return 0
	}

	// The request may finish before delivery does; pushes outlive it.
	ctx = context.WithoutCancel(ctx)

	failed := 0
	for _, ev := range events {
		if err := d.push(ctx, ev); err != nil {
			failed++
			log.Printf("Dropped %s push to %s: %v", ev.Name, ev.Room, err)
		}
	}

	return failed
}

func (d *Dispatcher) push(ctx context.Context, ev Event) error {
	frame, err := realtime.EncodeFrame(ev.Name, ev.Payload)
	if err != nil {
		return apperrors.TransientDelivery(err, "encode %s", ev.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	send := d.out.Broadcast
	if ev.Close {
		send = d.out.CloseRoom
	}

	if err := send(ctx, ev.Room, frame); err != nil {
		return apperrors.TransientDelivery(err, "broadcast %s", ev.Name)
	}

	return nil
}

// NotificationPush is the payload of a "notification" event.
type NotificationPush struct {
	Type         string                      `json:"type"`
	Message      string                      `json:"message"`
	ProjectID    uint                        `json:"project_id,omitempty"`
	Notification *types.NotificationResponse `json:"notification,omitempty"`
}

// NewNotification is the pushed view of a persisted notification.
func NewNotification(n models.Notification) *types.NotificationResponse {
	resp := types.NewNotificationResponse(n)
	return &resp
}
