package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, RetryDelay(0, nil, nil))
	assert.Equal(t, 2*time.Second, RetryDelay(1, nil, nil))
	assert.Equal(t, 8*time.Second, RetryDelay(3, nil, nil))
	assert.Equal(t, maxRetryDelay, RetryDelay(7, nil, nil))
	assert.Equal(t, maxRetryDelay, RetryDelay(40, nil, nil))
}
