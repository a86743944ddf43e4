package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInboundMessage_HasMedia(t *testing.T) {
	assert.False(t, (&InboundMessage{}).HasMedia())
	assert.False(t, (&InboundMessage{MediaKind: MediaNone}).HasMedia())
	assert.True(t, (&InboundMessage{MediaKind: MediaImage}).HasMedia())
	assert.True(t, (&InboundMessage{MediaKind: MediaVideo}).HasMedia())
	assert.True(t, (&InboundMessage{MediaKind: MediaDocument}).HasMedia())
	assert.True(t, (&InboundMessage{MediaKind: MediaOther}).HasMedia())
}
