package cerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCodeMatchesConstructor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"config", Config("missing changer_name"), CodeConfig},
		{"helper", Helper("exit 2"), CodeHelper},
		{"lock", Lock("deadlock detected"), CodeLock},
		{"veto", Veto("plugin refused"), CodeVeto},
		{"busy", Busy("drive1 busy"), CodeBusy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, HasCode(tt.err, tt.code))
		})
	}
}

func TestHasCodeRejectsWrongCode(t *testing.T) {
	err := Config("missing changer_name")
	assert.False(t, HasCode(err, CodeHelper))
}

func TestHasCodeOnPlainError(t *testing.T) {
	assert.False(t, HasCode(fmt.Errorf("not a ComplexError"), CodeConfig))
}

func TestErrorStringIncludesMessage(t *testing.T) {
	err := Helper("load of slot 9 into drive \"drive0\" failed")
	assert.Contains(t, err.Error(), "load of slot 9 into drive")
}
