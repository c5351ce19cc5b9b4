package authgate

import (
	"context"
	"fmt"
	"log"
)

// Message is one outbound email handed to the configured [Sender].
type Message struct {
	To      string
	From    string
	Subject string
	Body    string
}

// Sender delivers OTP emails. Send must return an error when delivery
// definitively failed; the engine rolls the issued OTP back so no code is
// outstanding that the user never received.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpSender discards every message. Useful in tests that only exercise
// non-OTP paths.
type NoOpSender struct{}

// Send describes the send operation and its observable behavior.
//
// Send may return an error when input validation, dependency calls, or security checks fail.
// Send does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (NoOpSender) Send(context.Context, Message) error { return nil }

// LogSender prints the message to the process log instead of delivering it.
// Intended for local development where no mail provider is configured.
type LogSender struct{}

// Send describes the send operation and its observable behavior.
//
// Send may return an error when input validation, dependency calls, or security checks fail.
// Send does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (LogSender) Send(_ context.Context, msg Message) error {
	log.Printf("authgate: [dev email] to=%s subject=%q body=%q", msg.To, msg.Subject, msg.Body)
	return nil
}

func loginOTPMessage(from, to, code string, minutes int) Message {
	return Message{
		To:      to,
		From:    from,
		Subject: "Your login verification code",
		Body:    fmt.Sprintf("Your one-time login code is %s. It expires in %d minutes.", code, minutes),
	}
}

func resetOTPMessage(from, to, code string, minutes int) Message {
	return Message{
		To:      to,
		From:    from,
		Subject: "Your password reset code",
		Body:    fmt.Sprintf("Your password reset code is %s. It expires in %d minutes. If you did not request a reset, ignore this email.", code, minutes),
	}
}
