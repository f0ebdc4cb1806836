package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLoggerTraceLevels(t *testing.T) {
	query := func() (string, int64) { return "SELECT 1", 1 }

	cases := []struct {
		name    string
		mode    gormlogger.LogLevel
		begin   time.Time
		err     error
		entries int
		level   logrus.Level
		message string
	}{
		{name: "query error", mode: gormlogger.Warn, begin: time.Now(), err: errors.New("boom"), entries: 1, level: logrus.ErrorLevel, message: "boom"},
		{name: "record not found is quiet", mode: gormlogger.Warn, begin: time.Now(), err: gorm.ErrRecordNotFound},
		{name: "slow query", mode: gormlogger.Warn, begin: time.Now().Add(-time.Second), entries: 1, level: logrus.WarnLevel, message: "slow query"},
		{name: "fast query at warn", mode: gormlogger.Warn, begin: time.Now()},
		{name: "fast query at info", mode: gormlogger.Info, begin: time.Now(), entries: 1, level: logrus.DebugLevel, message: "SELECT 1"},
		{name: "silent drops errors", mode: gormlogger.Silent, begin: time.Now(), err: errors.New("boom")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			logger.SetLevel(logrus.DebugLevel)
			gl := NewGormLogger(logger).LogMode(tc.mode)

			gl.Trace(context.Background(), tc.begin, query, tc.err)

			require.Len(t, hook.AllEntries(), tc.entries)
			if tc.entries == 0 {
				return
			}
			entry := hook.LastEntry()
			assert.Equal(t, tc.level, entry.Level)
			assert.Equal(t, tc.message, entry.Message)
		})
	}
}

func TestLogErrorFields(t *testing.T) {
	logger, hook := test.NewNullLogger()

	LogError(logger, "transaction", "Record", "insert transaction", map[string]int{"consignment_id": 3}, errors.New("db down"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "db down", entry.Message)
	assert.Equal(t, "transaction", entry.Data["module"])
	assert.Equal(t, "Record", entry.Data["funcName"])
	assert.Equal(t, "insert transaction", entry.Data["context"])
	assert.Equal(t, map[string]int{"consignment_id": 3}, entry.Data["data"])
}
