package realtime

import (
	"context"
	"strings"
	"sync"
)

// LocalBus is an in-process Subscriber and PublishFunc target for
// single-instance deployments. Delivery is synchronous on the publishing
// goroutine and subjects follow NATS token wildcards ("*" and ">").
type LocalBus struct {
	mu   sync.Mutex
	next int
	subs map[int]localSub
}

type localSub struct {
	pattern string
	handler func([]byte)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: map[int]localSub{}}
}

func (b *LocalBus) Publish(_ context.Context, subject string, payload []byte) error {
	b.mu.Lock()
	var targets []func([]byte)
	for _, s := range b.subs {
		if subjectMatches(s.pattern, subject) {
			targets = append(targets, s.handler)
		}
	}
	b.mu.Unlock()
	for _, h := range targets {
		h(payload)
	}
	return nil
}

func (b *LocalBus) Subscribe(subject string, handler func([]byte)) (func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = localSub{pattern: subject, handler: handler}
	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
		return nil
	}, nil
}

// Len reports the number of live subscriptions.
func (b *LocalBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func subjectMatches(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	for i, tok := range p {
		if tok == ">" {
			return len(s) > i
		}
		if i >= len(s) || (tok != "*" && tok != s[i]) {
			return false
		}
	}
	return len(p) == len(s)
}
