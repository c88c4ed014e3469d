package log_test

import (
	"bytes"
	"context"
	"log"
	"testing"

	. "github.com/aptpod/mptcp-go/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "", want: LevelInfo},
		{in: "INFO", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: "Error", want: LevelError},
		{in: "trace", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		min  Level
		want string
	}{
		{name: "debug", min: LevelDebug, want: "DEBUG: d\nINFO: i\nWARN: w\nERROR: e\n"},
		{name: "info", min: LevelInfo, want: "INFO: i\nWARN: w\nERROR: e\n"},
		{name: "warn", min: LevelWarn, want: "WARN: w\nERROR: e\n"},
		{name: "error", min: LevelError, want: "ERROR: e\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			testee := Filter(NewStdWith(log.New(&buf, "", 0)), tt.min)
			ctx := context.Background()
			testee.Debugf(ctx, "d")
			testee.Infof(ctx, "i")
			testee.Warnf(ctx, "w")
			testee.Errorf(ctx, "e")
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
