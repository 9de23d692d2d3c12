package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanwheel-leaderboard/internal/config"
	"github.com/humanwheel-leaderboard/internal/domain"
)

type recordingWriter struct {
	mu      sync.Mutex
	written []domain.PlayerSubmission
	failIDs map[string]error
}

func (w *recordingWriter) AddOrUpdatePlayer(_ context.Context, sub domain.PlayerSubmission) (domain.PlayerRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.failIDs[sub.ID]; err != nil {
		return domain.PlayerRecord{}, err
	}
	w.written = append(w.written, sub)
	return domain.PlayerRecord{ID: sub.ID}, nil
}

func (w *recordingWriter) ids() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.written))
	for _, s := range w.written {
		ids = append(ids, s.ID)
	}
	return ids
}

func newTestConsumer(writer PlayerWriter, batchSize int) *Consumer {
	return &Consumer{
		config: &config.KafkaConfig{BatchSize: batchSize, BatchTimeout: time.Hour},
		writer: writer,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestDecodeReading(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr error
		speed   float64
	}{
		{name: "valid", value: `{"player_id":"1","name":"Liam","category":"team","speed":15.9}`, speed: 15.9},
		{name: "string speed", value: `{"player_id":"1","name":"Liam","category":"team","speed":"12"}`, speed: 12},
		{name: "not json", value: `speed=12`, wantErr: domain.ErrInvalidRequest},
		{name: "missing id", value: `{"name":"Liam","category":"team","speed":1}`, wantErr: domain.ErrMissingFields},
		{name: "blank category", value: `{"player_id":"1","name":"Liam","category":" ","speed":1}`, wantErr: domain.ErrMissingFields},
		{name: "separator in category", value: `{"player_id":"1","name":"Liam","category":"team_b","speed":1}`, wantErr: domain.ErrInvalidCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading, err := DecodeReading([]byte(tt.value))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.speed, reading.Speed.Float())
		})
	}
}

func TestLatestPerPlayer(t *testing.T) {
	batch := []domain.SpeedReading{
		{PlayerID: "1", Category: "team", Speed: 10},
		{PlayerID: "2", Category: "team", Speed: 11},
		{PlayerID: "1", Category: "TEAM", Speed: 12},
		{PlayerID: "1", Category: "local", Speed: 13},
	}

	got := latestPerPlayer(batch)

	require.Len(t, got, 3)
	assert.Equal(t, domain.Number(11), got[0].Speed)
	assert.Equal(t, domain.Number(12), got[1].Speed)
	assert.Equal(t, domain.Number(13), got[2].Speed)
}

func TestWriteBatch_SkipsFailures(t *testing.T) {
	writer := &recordingWriter{failIDs: map[string]error{
		"bad":   domain.ErrMissingFields,
		"flaky": errors.New("store down"),
	}}
	c := newTestConsumer(writer, 10)

	written := c.writeBatch(context.Background(), []domain.SpeedReading{
		{PlayerID: "1", Name: "A", Category: "team"},
		{PlayerID: "bad", Name: "B", Category: "team"},
		{PlayerID: "flaky", Name: "C", Category: "team"},
		{PlayerID: "2", Name: "D", Category: "team"},
	})

	assert.Equal(t, 2, written)
	assert.Equal(t, []string{"1", "2"}, writer.ids())
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx context.Context

	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumeClaim_BatchesAndMarks(t *testing.T) {
	writer := &recordingWriter{}
	c := newTestConsumer(writer, 2)
	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 8)}

	values := []string{
		`{"player_id":"1","name":"A","category":"team","speed":10}`,
		`garbage`,
		`{"player_id":"2","name":"B","category":"team","speed":11}`,
		`{"player_id":"3","name":"C","category":"local","speed":12}`,
	}
	for i, v := range values {
		claim.messages <- &sarama.ConsumerMessage{Offset: int64(i), Value: []byte(v)}
	}
	close(claim.messages)

	handler := &consumerGroupHandler{consumer: c, ready: make(chan bool)}
	require.NoError(t, handler.ConsumeClaim(session, claim))

	assert.Equal(t, []string{"1", "2", "3"}, writer.ids())
	// one mark after the first full batch, one for the remainder
	assert.Equal(t, []int64{2, 3}, session.marked)
}
