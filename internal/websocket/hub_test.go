package websocket

import (
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestHub() *Hub {
	return NewHub([]string{"1m", "5m"}, nil, testLogger())
}

func addClient(h *Hub, buffer int) *Client {
	client := &Client{
		id:   "test-client",
		send: make(chan []byte, buffer),
		hub:  h,
	}
	h.clients[client] = true
	return client
}

func TestFanOutHonorsTimeframeFilter(t *testing.T) {
	hub := newTestHub()
	all := addClient(hub, 4)
	onlyFive := addClient(hub, 4)
	onlyFive.setTimeframes([]string{"5m"})

	hub.fanOut(outbound{timeframe: "1m", data: []byte(`{"event":"bar.updated"}`)})

	if len(all.send) != 1 {
		t.Errorf("unfiltered client got %d frames, want 1", len(all.send))
	}
	if len(onlyFive.send) != 0 {
		t.Errorf("5m-filtered client got %d frames for 1m event, want 0", len(onlyFive.send))
	}

	hub.fanOut(outbound{timeframe: "5m", data: []byte(`{"event":"bar.updated"}`)})

	if len(all.send) != 2 {
		t.Errorf("unfiltered client got %d frames, want 2", len(all.send))
	}
	if len(onlyFive.send) != 1 {
		t.Errorf("5m-filtered client got %d frames, want 1", len(onlyFive.send))
	}
}

func TestFanOutSendsUntaggedFramesToEveryone(t *testing.T) {
	hub := newTestHub()
	all := addClient(hub, 4)
	onlyFive := addClient(hub, 4)
	onlyFive.setTimeframes([]string{"5m"})

	hub.fanOut(outbound{data: []byte(`{"event":"signal.created"}`)})

	if len(all.send) != 1 || len(onlyFive.send) != 1 {
		t.Errorf("signal frame delivery = %d/%d, want 1/1", len(all.send), len(onlyFive.send))
	}
}

func TestFanOutDisconnectsSlowClient(t *testing.T) {
	hub := newTestHub()
	slow := addClient(hub, 1)
	slow.send <- []byte("backlog")

	hub.fanOut(outbound{data: []byte(`{"event":"signal.created"}`)})

	if hub.ConnectionCount() != 0 {
		t.Errorf("slow client still registered, count = %d", hub.ConnectionCount())
	}
	if _, ok := <-slow.send; !ok {
		t.Error("expected backlog frame before close")
	}
	if _, ok := <-slow.send; ok {
		t.Error("send channel should be closed after disconnect")
	}
}

func TestBroadcastEncodesEnvelope(t *testing.T) {
	hub := newTestHub()

	hub.Broadcast(models.EventSentimentUpdated, "", map[string]float64{"score": 12.5})

	select {
	case msg := <-hub.broadcast:
		if msg.timeframe != "" {
			t.Errorf("timeframe = %q, want empty", msg.timeframe)
		}
		var envelope models.WebSocketMessage
		if err := json.Unmarshal(msg.data, &envelope); err != nil {
			t.Fatalf("frame is not valid JSON: %v", err)
		}
		if envelope.Event != models.EventSentimentUpdated {
			t.Errorf("event = %q, want %q", envelope.Event, models.EventSentimentUpdated)
		}
	default:
		t.Fatal("Broadcast did not enqueue a frame")
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	hub := newTestHub()
	client := addClient(hub, 1)

	if !client.wantsTimeframe("1m") || !client.wantsTimeframe("4h") {
		t.Error("fresh client should receive every timeframe")
	}

	client.setTimeframes([]string{"1m", "15m"})
	if !client.wantsTimeframe("1m") || client.wantsTimeframe("5m") {
		t.Error("filter should allow 1m and reject 5m")
	}

	client.setTimeframes(nil)
	if !client.wantsTimeframe("5m") {
		t.Error("clearing the filter should restore all timeframes")
	}
}
