package session

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultCredentialTimeout bounds how long a run waits for an operator to
// answer a credential request before the target fails as login-required.
const DefaultCredentialTimeout = 10 * time.Second

// ErrNoCredentials is returned when no credential source answers in time.
var ErrNoCredentials = eris.New("session: no credentials available")

// Source supplies credentials on demand. Request blocks until credentials
// arrive, the source's timeout elapses, or ctx is done.
type Source interface {
	Request(ctx context.Context, loginURL string) (Credentials, error)
}

// Static is a Source with fixed credentials, e.g. from config.
type Static struct {
	Creds Credentials
}

func (s Static) Request(context.Context, string) (Credentials, error) {
	if s.Creds.Username == "" {
		return Credentials{}, ErrNoCredentials
	}
	return s.Creds, nil
}

// CredentialRequest is one pending ask, delivered to whoever services the
// interactive source. Answer exactly once via Reply.
type CredentialRequest struct {
	LoginURL string
	Reply    chan Credentials
}

// Interactive bridges a running pipeline to an operator: each Request
// publishes a CredentialRequest on Requests and waits for the reply.
type Interactive struct {
	Requests chan CredentialRequest
	Timeout  time.Duration
}

// NewInteractive returns an Interactive source with the default timeout.
func NewInteractive() *Interactive {
	return &Interactive{
		Requests: make(chan CredentialRequest, 1),
		Timeout:  DefaultCredentialTimeout,
	}
}

// Request publishes the ask and waits for an answer. An unserviced request
// (nobody listening, or no reply in time) fails with ErrNoCredentials so
// the driver can report login-required instead of hanging the run.
func (i *Interactive) Request(ctx context.Context, loginURL string) (Credentials, error) {
	timeout := i.Timeout
	if timeout <= 0 {
		timeout = DefaultCredentialTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	req := CredentialRequest{LoginURL: loginURL, Reply: make(chan Credentials, 1)}

	select {
	case i.Requests <- req:
	case <-timer.C:
		return Credentials{}, ErrNoCredentials
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}

	select {
	case creds := <-req.Reply:
		if creds.Username == "" {
			return Credentials{}, ErrNoCredentials
		}
		return creds, nil
	case <-timer.C:
		return Credentials{}, ErrNoCredentials
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
}
