package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestKafkaSink_Write(t *testing.T) {
	w := &captureWriter{}
	sink := &KafkaSink{writer: w}
	e := sampleEntry()

	require.NoError(t, sink.Write(context.Background(), e))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("ops"), w.msgs[0].Key)

	var decoded Entry
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, e.Hash, decoded.Hash)
	assert.True(t, e.Timestamp.Equal(decoded.Timestamp))

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_WriteError(t *testing.T) {
	sink := &KafkaSink{writer: &captureWriter{err: errors.New("leader not available")}}
	err := sink.Write(context.Background(), sampleEntry())
	assert.ErrorContains(t, err, "publish audit entry 7")
}

func TestNewKafkaSink(t *testing.T) {
	sink := NewKafkaSink([]string{"localhost:9092"}, "sdnguard.audit")
	w, ok := sink.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "sdnguard.audit", w.Topic)
	assert.Equal(t, 1, w.BatchSize)
	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)
	assert.False(t, w.Async, "writes report delivery errors")
}
