package biz

import (
	"context"
	"os"
	"sync"
	"time"

	"RelayGate/internal/conf"
	"RelayGate/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"google.golang.org/protobuf/types/known/durationpb"
)

// auditEvent is one captured audit call.
type auditEvent struct {
	KeyID     string
	EventType string
	PrevState string
	NextState string
	Details   map[string]interface{}
}

// stubAudit captures audit events in memory for assertions.
type stubAudit struct {
	mu     sync.Mutex
	events []auditEvent
}

func (s *stubAudit) Record(_ context.Context, keyID, eventType, prevState, nextState string, details map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, auditEvent{
		KeyID:     keyID,
		EventType: eventType,
		PrevState: prevState,
		NextState: nextState,
		Details:   details,
	})
}

func (s *stubAudit) eventsOfType(eventType string) []auditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auditEvent
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// testGatewayConf builds a Gateway config with tight, test-friendly values.
func testGatewayConf(keys ...string) *conf.Gateway {
	return &conf.Gateway{
		Keys:                 keys,
		MaxRequestsPerWindow: 30,
		Window:               durationpb.New(60 * time.Second),
		FailureThreshold:     5,
		RecoveryTimeout:      durationpb.New(60 * time.Second),
		BackoffBase:          durationpb.New(2 * time.Second),
		BackoffMax:           durationpb.New(60 * time.Second),
		MaxAttempts:          3,
		AttemptTimeout:       durationpb.New(30 * time.Second),
	}
}

func testLogger() log.Logger {
	return log.NewStdLogger(os.Stdout)
}

// testPool builds a key pool from the given secrets.
func testPool(secrets ...string) *data.Pool {
	pool, err := data.NewPool(testGatewayConf(secrets...), testLogger())
	if err != nil {
		panic(err)
	}
	return pool
}

// fixedJitter pins a BackoffPolicy's jitter draw so delays are deterministic.
func fixedJitter(p *BackoffPolicy, j float64) {
	p.jitter = func() float64 { return j }
}
