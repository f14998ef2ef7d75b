package agentversion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionDefaultsToDev(t *testing.T) {
	assert.Contains(t, Version(), "version: dev,")
}

func TestVersionFromBuildInfo(t *testing.T) {
	defer func() { version, commit, buildTime = "", "", "" }()
	version = "1.4.0"
	commit = "ab12cd3"
	buildTime = "2024-06-01T10:00:00Z"

	assert.Equal(t,
		"version: 1.4.0, commit: ab12cd3, built: 2024-06-01T10:00:00Z",
		Version())
}
