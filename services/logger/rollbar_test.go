package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/coachdesk/core"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewRollbarLogger(log.New(&buf, "", 0), &core.Config{Env: "TEST", TestMode: true})
	coach := core.Coach{ID: "c1", Name: "Neema", Email: "neema@test.cd"}

	args := l.prepare("boom", []interface{}{errors.New("cause"), coach, map[string]interface{}{"session": "s1"}})
	assert.Len(t, args, 3, "the coach is reported as the person, not as data")

	l.Warn("dropping alert change", errors.New("bad json"), coach)
	assert.Equal(t, "WARN: dropping alert change\n  bad json\n", buf.String())
}
