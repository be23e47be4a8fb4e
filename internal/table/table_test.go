package table

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	tbl := New(&buf, "PROVIDER", "MODEL")
	tbl.Append([]string{"LM Studio", "qwen2.5-7b-instruct"})
	tbl.Append([]string{"Groq", "llama-3.3-70b-versatile"})
	tbl.Render()

	var lines []string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "PROVIDER"))
	assert.True(t, strings.HasPrefix(lines[1], "LM Studio"))
	assert.Contains(t, lines[2], "llama-3.3-70b-versatile")
	assert.NotContains(t, buf.String(), "|")
}
