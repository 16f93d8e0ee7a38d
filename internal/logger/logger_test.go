package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func reset() {
	SetVerbose(false)
	SetOutput(os.Stderr)
}

func TestSetVerbose(t *testing.T) {
	defer reset()

	SetVerbose(false)
	assert.False(t, IsVerbose())

	SetVerbose(true)
	assert.True(t, IsVerbose())

	SetVerbose(false)
	assert.False(t, IsVerbose())
}

func TestDebug_WhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("test message %s", "arg")

	assert.Equal(t, "level=DEBUG msg=\"test message arg\"\n", buf.String())
}

func TestDebug_WhenNotVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("test message")
	Info("also hidden")

	assert.Zero(t, buf.Len())
}

func TestWarn_AlwaysPrinted(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Warn("disk %d%% full", 91)
	Error("boom")

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "disk 91% full")
	assert.Contains(t, out, "level=ERROR msg=boom")
}

func TestSection(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	Section("Hidden")
	assert.Zero(t, buf.Len())

	SetVerbose(true)
	Section("Indexing")
	assert.Equal(t, "\n=== Indexing ===\n", buf.String())
}

func TestWith(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	With("job_id", "j-1", "kind", "index").Info("started")

	assert.Equal(t, "level=INFO msg=started job_id=j-1 kind=index\n", buf.String())
}
