package events

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Bus is a typed publish/subscribe registry. Subscriptions are keyed by
// Kind plus an optional source; an empty source matches every source.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
	logger log.FieldLogger
	now    func() time.Time
}

// NewBus creates an empty bus.
func NewBus(logger log.FieldLogger) *Bus {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		logger: logger,
		now:    time.Now,
	}
}

// Subscription is a single registered handler.
type Subscription struct {
	id      uint64
	kind    Kind
	source  string
	handler Handler
	bus     *Bus
	once    sync.Once
}

// Close removes the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}

// Subscribe registers h for events of kind from source.
func (b *Bus) Subscribe(kind Kind, source string, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, kind: kind, source: source, handler: h, bus: b}
	b.subs[sub.id] = sub
	return sub
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers e synchronously to every matching subscriber in
// subscription order.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.RLock()
	matched := make([]*Subscription, 0, 4)
	for _, sub := range b.subs {
		if sub.kind != e.Kind {
			continue
		}
		if sub.source != "" && sub.source != e.Source {
			continue
		}
		matched = append(matched, sub)
	}
	b.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].id < matched[j].id })
	for _, sub := range matched {
		sub.handler(e)
	}
}

// Emit converts a named notification such as "gameinput.download.progress"
// with a JSON payload into a typed event and publishes it.
func (b *Bus) Emit(name string, payload []byte) error {
	e, err := Decode(name, payload)
	if err != nil {
		b.logger.WithField("event", name).Warnf("drop notification: %v", err)
		return err
	}
	b.Publish(e)
	return nil
}

// Name renders the notification name for kind and source.
func Name(kind Kind, source string) string {
	if kind == KindExtractProgress {
		return SourceExtract + "." + kind.String()
	}
	return source + "." + kind.String()
}

// Decode parses a named notification into a typed Event.
func Decode(name string, payload []byte) (Event, error) {
	kind, source, err := parseName(name)
	if err != nil {
		return Event{}, err
	}

	e := Event{Kind: kind, Source: source}
	switch kind {
	case KindDownloadStart:
		var p DownloadStart
		if err := decodePayload(payload, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", name, err)
		}
		e.Payload = p
	case KindDownloadProgress:
		var p DownloadProgress
		if err := decodePayload(payload, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", name, err)
		}
		e.Payload = p
	case KindDownloadError:
		var p DownloadError
		if err := decodePayload(payload, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", name, err)
		}
		e.Payload = p
	case KindEnsureDone:
		var p EnsureDone
		if err := decodePayload(payload, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", name, err)
		}
		e.Payload = p
	case KindExtractProgress:
		var p ExtractProgress
		if err := decodePayload(payload, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", name, err)
		}
		e.Payload = p
	}
	return e, nil
}

func decodePayload(payload []byte, dst any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, dst)
}

func parseName(name string) (Kind, string, error) {
	name = strings.TrimSpace(name)
	if name == Name(KindExtractProgress, "") {
		return KindExtractProgress, SourceExtract, nil
	}
	for kind, suffix := range kindNames {
		if kind == KindExtractProgress {
			continue
		}
		if !strings.HasSuffix(name, "."+suffix) {
			continue
		}
		source := strings.TrimSuffix(name, "."+suffix)
		if source == "" {
			break
		}
		return kind, source, nil
	}
	return KindUnknown, "", fmt.Errorf("unknown notification %q", name)
}
