package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer func() {
		SetOutput(os.Stdout)
		SetLevel("info")
	}()

	SetLevel("warn")
	Infof("quiet %d", 1)
	Warnf("loud %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "quiet 1")
	assert.Contains(t, out, "loud 2")
}

func TestSetLevelUnknownFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer func() {
		SetOutput(os.Stdout)
		SetLevel("info")
	}()

	SetLevel("chatty")
	Debugf("hidden")
	Infof("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}
