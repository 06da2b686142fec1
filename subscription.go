package notifier

import (
	"context"
	"time"
)

// SubscriberService is the interface that wraps methods related to the newsletter subscribers table
type SubscriberService interface {
	// Subscribe inserts the address if new. created is false for a repeat subscriber.
	Subscribe(ctx context.Context, email string) (s *Subscriber, created bool, err error)
	List(ctx context.Context) ([]Subscriber, error)
	Unsubscribe(ctx context.Context, email string) error
}

// Subscriber represents a newsletter subscriber
type Subscriber struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewSubscriber returns new subscriber
func NewSubscriber(id, email string) *Subscriber {
	return &Subscriber{
		ID:    id,
		Email: email,
	}
}

type SubscriptionRequest struct {
	Email string `json:"email"`
}

type SubscriptionResponse struct {
	OK         bool        `json:"ok"`
	Subscriber *Subscriber `json:"subscriber,omitempty"`
	Message    string      `json:"message,omitempty"`
}
