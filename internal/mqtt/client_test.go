package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "autoflow/pixel/commands/wifi", Topic("autoflow", "pixel", "commands", "wifi"))
}

func TestLastLevel(t *testing.T) {
	assert.Equal(t, "WIFI", LastLevel("autoflow/events/WIFI"))
	assert.Equal(t, "solo", LastLevel("solo"))
	assert.Equal(t, "", LastLevel("trailing/"))
}
