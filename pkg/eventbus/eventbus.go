package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type Event struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// TeamEvent announces a formation transition.
type TeamEvent struct {
	TeamID   string `json:"team_id"`
	CourseID string `json:"course_id"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

// VMEvent announces an admission decision the provisioner may need to
// realize on the cluster.
type VMEvent struct {
	VMID   string `json:"vm_id"`
	TeamID string `json:"team_id"`
	CPU    int    `json:"cpu"`
	RAMMB  int    `json:"ram_mb"`
	DiskMB int    `json:"disk_mb"`
	Active bool   `json:"active"`
}

type QuotaEvent struct {
	CourseID string `json:"course_id"`
}

const (
	ChannelTeam  = "cl:events:team"
	ChannelVM    = "cl:events:vm"
	ChannelQuota = "cl:events:quota"
)

const (
	EventTeamProposed  = "team_proposed"
	EventTeamActivated = "team_activated"
	EventTeamEvicted   = "team_evicted"
	EventVMCreated     = "vm_created"
	EventVMUpdated     = "vm_updated"
	EventVMDeleted     = "vm_deleted"
	EventQuotaUpdated  = "quota_updated"
)

type Bus struct {
	client redis.UniversalClient
}

func NewBus(client redis.UniversalClient) *Bus {
	return &Bus{client: client}
}

func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}, nil
}

func (b *Bus) Publish(ctx context.Context, channel string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *Bus) Subscribe(ctx context.Context, channels ...string) <-chan *Event {
	sub := b.client.Subscribe(ctx, channels...)
	ch := make(chan *Event, 100)

	go func() {
		defer close(ch)
		for msg := range sub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			ch <- &event
		}
	}()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	return ch
}
