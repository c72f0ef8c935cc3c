package mms

import (
	stderrors "errors"
	"testing"

	"github.com/NamanBalaji/mmsdl/internal/errors"
)

func TestDecideStart(t *testing.T) {
	tests := []struct {
		pause    bool
		consumed int64
		want     int64
	}{
		{true, 0, 0},
		{true, 7, 7},
		{false, 7, 0},
		{false, 0, 0},
	}

	for _, tt := range tests {
		if got := decideStart(tt.pause, tt.consumed); got != tt.want {
			t.Errorf("decideStart(%t, %d) = %d, want %d", tt.pause, tt.consumed, got, tt.want)
		}
	}
}

func TestOnHeaderReceived(t *testing.T) {
	tests := []struct {
		name      string
		pause     bool
		consumed  int64
		want      headerAction
		wantOpens []bool
	}{
		{"fresh", true, 0, writeHeader, nil},
		{"fresh without pause", false, 0, writeHeader, nil},
		{"resume", true, 7, appendAfterHeader, []bool{true}},
		{"restart", false, 7, restartFromScratch, []bool{false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memSink{}
			got, err := onHeaderReceived(tt.pause, tt.consumed, sink)
			if err != nil {
				t.Fatalf("onHeaderReceived() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("action = %s, want %s", got, tt.want)
			}

			opens := sink.openModes()
			if len(opens) != len(tt.wantOpens) {
				t.Fatalf("opens = %v, want %v", opens, tt.wantOpens)
			}
			for i := range opens {
				if opens[i] != tt.wantOpens[i] {
					t.Errorf("opens = %v, want %v", opens, tt.wantOpens)
				}
			}
		})
	}
}

func TestOnHeaderReceivedReopenFailure(t *testing.T) {
	sink := &memSink{openErr: stderrors.New("read-only filesystem")}

	_, err := onHeaderReceived(true, 3, sink)
	if !errors.IsIOError(err) {
		t.Errorf("error = %v, want io error", err)
	}
}

func TestHeaderActionString(t *testing.T) {
	if got := appendAfterHeader.String(); got != "append" {
		t.Errorf("String() = %q", got)
	}
	if got := headerAction(99).String(); got != "unknown" {
		t.Errorf("String() = %q", got)
	}
}
