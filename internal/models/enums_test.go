package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseJobType(t *testing.T) {
	for _, jt := range CoreJobTypes() {
		parsed, ok := ParseJobType(string(jt))
		assert.True(t, ok)
		assert.Equal(t, jt, parsed)
	}

	for _, raw := range []string{"", "Legal_Research", "legal", "directors"} {
		_, ok := ParseJobType(raw)
		assert.False(t, ok, "raw=%q", raw)
	}
}

func TestCoreJobTypes(t *testing.T) {
	core := CoreJobTypes()
	assert.Len(t, core, 4)
	seen := map[JobType]bool{}
	for _, jt := range core {
		assert.False(t, seen[jt])
		seen[jt] = true
	}
}
