package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-wallet/internal/logger"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(mr.Addr(), 0, logger.Discard())
	require.NoError(t, err)
	defer client.Close()

	_, err = Connect("127.0.0.1:1", 0, logger.Discard())
	assert.Error(t, err)
}
