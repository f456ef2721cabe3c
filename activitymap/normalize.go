package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-taskman"
)

const (
	// MetadataKeyUsername stores the username the event was raised for.
	MetadataKeyUsername = "username"
	// MetadataKeyOutcome stores success or failure, taken from the event type suffix.
	MetadataKeyOutcome = "outcome"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(taskman.ActivityEvent) string
}

// Normalize converts a taskman.ActivityEvent into a generic normalized shape.
func Normalize(event taskman.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.UserID),
		strings.TrimSpace(options.actorFallback),
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: strings.TrimSpace(options.objectType),
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    strings.TrimSpace(options.channel),
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// LogSink returns an ActivitySink that writes every normalized event to
// logger. Failures are logged at warn level, the rest at info.
func LogSink(logger taskman.Logger, opts ...Option) taskman.ActivitySink {
	if logger == nil {
		logger = taskman.DefaultLogger()
	}

	return taskman.ActivitySinkFunc(func(_ context.Context, event taskman.ActivityEvent) error {
		out := Normalize(event, opts...)
		if out.Metadata[MetadataKeyOutcome] == "failure" {
			logger.Warn("activity: %s", print.MaybePrettyJSON(out))
			return nil
		}
		logger.Info("activity: %s", print.MaybePrettyJSON(out))
		return nil
	})
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(taskman.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the event has no user id.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(event taskman.ActivityEvent, resolver func(taskman.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return firstNonEmpty(strings.TrimSpace(event.UserID), strings.TrimSpace(event.Username))
}

func normalizeMetadata(event taskman.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	if username := strings.TrimSpace(event.Username); username != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyUsername]; !exists {
			metadata[MetadataKeyUsername] = username
		}
	}

	if outcome := outcomeOf(event.EventType); outcome != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyOutcome] = outcome
	}

	return metadata
}

// auth.login.failure -> failure
func outcomeOf(eventType taskman.ActivityEventType) string {
	s := string(eventType)
	idx := strings.LastIndex(s, ".")
	if idx < 0 || idx == len(s)-1 {
		return ""
	}
	switch out := s[idx+1:]; out {
	case "success", "failure":
		return out
	default:
		return ""
	}
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
