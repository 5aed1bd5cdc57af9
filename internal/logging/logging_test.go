package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerStampsApp(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithOutput(&buf, "campusattend-api", "debug", "json")
	logger.WithField("student_id", "stu-1").Debug("checked in")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "campusattend-api", line["app"])
	assert.Equal(t, "stu-1", line["student_id"])
	assert.Equal(t, "checked in", line["msg"])
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithOutput(&buf, "worker", "loud", "text")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.Contains(t, buf.String(), "invalid LOG_LEVEL")
	assert.Contains(t, buf.String(), "app=worker")
}
