package publisher

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryKey(t *testing.T) {
	assert.Equal(t, "adm300:a:reports", HistoryKey("a"))
	assert.Equal(t, "adm300:unknown:reports", HistoryKey(""))
}

func TestNewRedisPublisher_Unreachable(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Nothing listens on port 1.
	pub, err := NewRedisPublisher(ctx, RedisOptions{Addr: "127.0.0.1:1", Channel: "adm300_reports"}, log)
	require.Error(t, err)
	assert.Nil(t, pub)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}
