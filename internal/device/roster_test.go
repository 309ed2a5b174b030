package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoster(t *testing.T) {
	input := `# fleet roster
192.168.1.10:5555:front-row-1

emulator-5554
192.168.1.11:5555
192.168.1.10:5555:duplicate-ignored
`
	records, err := ParseRoster(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "192.168.1.10:5555", records[0].ID)
	assert.Equal(t, "front-row-1", records[0].Name)
	assert.Equal(t, StateDisconnected, records[0].State)

	assert.Equal(t, "emulator-5554", records[1].ID)
	assert.Equal(t, "device emulator-5554", records[1].Name)

	assert.Equal(t, "192.168.1.11:5555", records[2].ID)
}

func TestParseRoster_SkipsBlankAndComments(t *testing.T) {
	records, err := ParseRoster(strings.NewReader("\n# comment\n\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}
