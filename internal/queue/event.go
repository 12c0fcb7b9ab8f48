// Package queue publishes reservation confirmations to RabbitMQ and runs
// the background consumer that hands them to the SMS sender.
package queue

// ConfirmedQueue is the durable queue carrying ReservationConfirmedEvent.
const ConfirmedQueue = "explanation.reservation.confirmed"

// ReservationConfirmedEvent is published after a reservation commits. It
// carries everything the SMS step needs so the consumer never reads the
// primary database.
type ReservationConfirmedEvent struct {
    Phone         string `json:"phone"`
    ApplicantName string `json:"applicant_name"`
    Schedule      string `json:"schedule"`
    ConfirmedAt   string `json:"confirmed_at"`
}
