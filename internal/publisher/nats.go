package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"tour-planner/internal/planner"
)

// Itinerary event kinds, one per planning endpoint.
const (
	KindGenerate = "generate"
	KindOptimize = "optimize"
)

type conn interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	nc          *nats.Conn
	conn        conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tour-planner"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, conn: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// ItineraryMessage announces a built itinerary.
type ItineraryMessage struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	Theme       string             `json:"theme,omitempty"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Itinerary   *planner.Itinerary `json:"itinerary"`
}

// NewItineraryMessage stamps it with a fresh ID and the current time.
func NewItineraryMessage(kind, theme string, it *planner.Itinerary) ItineraryMessage {
	return ItineraryMessage{
		ID:          uuid.NewString(),
		Kind:        kind,
		Theme:       theme,
		GeneratedAt: time.Now().UTC(),
		Itinerary:   it,
	}
}

// Subject is "<prefix>.<kind>".
func (p *NATSPublisher) Subject(kind string) string {
	return fmt.Sprintf("%s.%s", p.prefix, subjectToken(kind))
}

func (p *NATSPublisher) PublishItinerary(msg ItineraryMessage) error {
	subject := p.Subject(msg.Kind)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s id=%s", subject, msg.ID)
	}
	start := time.Now()
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
