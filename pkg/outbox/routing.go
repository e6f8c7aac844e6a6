package outbox

import "errors"

// NotificationsExchange is the durable topic exchange all domain events
// are published to.
const NotificationsExchange = "notifications"

// RoutingDescriptor names the broker destination for an event. Routing
// keys follow the `<entity>.<verb>` convention so consumers can bind
// with topic patterns like `message.*`.
type RoutingDescriptor struct {
	Exchange   string
	RoutingKey string
}

var (
	MessageCreated = RoutingDescriptor{Exchange: NotificationsExchange, RoutingKey: "message.created"}
	MessageUpdated = RoutingDescriptor{Exchange: NotificationsExchange, RoutingKey: "message.updated"}
	MessageDeleted = RoutingDescriptor{Exchange: NotificationsExchange, RoutingKey: "message.deleted"}
	ServerCreated  = RoutingDescriptor{Exchange: NotificationsExchange, RoutingKey: "server.created"}
	ServerDeleted  = RoutingDescriptor{Exchange: NotificationsExchange, RoutingKey: "server.deleted"}
	MemberCreated  = RoutingDescriptor{Exchange: NotificationsExchange, RoutingKey: "member.created"}
	MemberDeleted  = RoutingDescriptor{Exchange: NotificationsExchange, RoutingKey: "member.deleted"}
)

// Validate rejects descriptors that would produce unroutable rows.
func (d RoutingDescriptor) Validate() error {
	if d.Exchange == "" {
		return errors.New("exchange name is required")
	}
	if d.RoutingKey == "" {
		return errors.New("routing key is required")
	}
	return nil
}
