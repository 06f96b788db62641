package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionCmd(t *testing.T) {
	oldVersion := version
	version = "1.2.3"
	defer func() { version = oldVersion }()

	out, err := executeCommand("version")

	assert.NoError(t, err)
	assert.Contains(t, out, "vectra version 1.2.3")
}

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "vectra", rootCmd.Use)
}
