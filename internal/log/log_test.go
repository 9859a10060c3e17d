package log

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/storagedaemon/autochangerd/internal/config"
)

func TestNewLoggerCarriesStaticFields(t *testing.T) {
	cfg := &config.Config{
		Debug: false,
		Changers: []*config.ChangerConfig{
			{Name: "lib0"},
		},
	}

	entry := NewLogger(cfg)

	assert.Equal(t, false, entry.Data["debug"])
	assert.Equal(t, 1, entry.Data["changers"])
}

func TestProductionLoggerDiscardsOutputAtErrorLevel(t *testing.T) {
	l := newProductionLogger()
	assert.Equal(t, io.Discard, l.Out)
	assert.Equal(t, logrus.ErrorLevel, l.GetLevel())
}
