package alert

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"live_broker/internal/core"
	"live_broker/internal/logging"
)

type recordingChannel struct {
	name string
	sent []Payload
	err  error
	mu   sync.Mutex
}

func (r *recordingChannel) Name() string {
	return r.name
}

func (r *recordingChannel) Send(ctx context.Context, alert Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, alert)
	return r.err
}

func (r *recordingChannel) getSent() []Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Payload, len(r.sent))
	copy(res, r.sent)
	return res
}

func TestManagerFansOutToAllChannels(t *testing.T) {
	mgr := NewManager(nil, logging.Nop())
	chA := &recordingChannel{name: "a"}
	chB := &recordingChannel{name: "b"}
	mgr.AddChannel(chA)
	mgr.AddChannel(chB)

	mgr.Send(context.Background(), Error, "submit rejected", "venue said no", map[string]string{"symbol": "AAPL"})

	for _, ch := range []*recordingChannel{chA, chB} {
		sent := ch.getSent()
		assert.Len(t, sent, 1)
		assert.Equal(t, Error, sent[0].Level)
		assert.Equal(t, "submit rejected", sent[0].Title)
		assert.Equal(t, "AAPL", sent[0].Fields["symbol"])
	}
}

func TestAlarmSeverityMapsToLevel(t *testing.T) {
	mgr := NewManager(nil, logging.Nop())
	ch := &recordingChannel{name: "a"}
	mgr.AddChannel(ch)

	mgr.Alarm(context.Background(), core.AlarmWarning, "lot too coarse", "rounds to zero", nil)
	mgr.Alarm(context.Background(), core.AlarmError, "buy abandoned", "kept rejecting", nil)
	mgr.Alarm(context.Background(), core.AlarmCritical, "uncertain mode", "snapshots failing", nil)
	mgr.Alarm(context.Background(), core.AlarmSeverity("bogus"), "unknown severity", "defaults up", nil)

	sent := ch.getSent()
	assert.Len(t, sent, 4)
	assert.Equal(t, Warning, sent[0].Level)
	assert.Equal(t, Error, sent[1].Level)
	assert.Equal(t, Critical, sent[2].Level)
	assert.Equal(t, Warning, sent[3].Level)
}

func TestChannelsNoopWhenUnconfigured(t *testing.T) {
	assert.NoError(t, NewTelegramChannel("", "").Send(context.Background(), Payload{}))
	assert.NoError(t, NewSlackChannel("").Send(context.Background(), Payload{}))
}
