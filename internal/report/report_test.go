package report

import (
	"errors"
	"strings"
	"testing"
)

func TestReporterLatestPerSession(t *testing.T) {
	r := NewReporter()

	if r.Latest(1) != nil {
		t.Error("expected no error for fresh session")
	}

	r.Report(1, HTTP(502))
	r.Report(2, InBand("model overloaded"))

	if got := r.Latest(1); got == nil || got.Kind != KindHTTP || got.Status != 502 {
		t.Errorf("unexpected session 1 error: %+v", got)
	}
	if got := r.Latest(2); got == nil || got.Kind != KindInBand {
		t.Errorf("unexpected session 2 error: %+v", got)
	}

	r.Clear(1)
	if r.Latest(1) != nil {
		t.Error("expected session 1 error cleared")
	}
	if r.Latest(2) == nil {
		t.Error("clearing session 1 must not touch session 2")
	}
}

func TestReportOverwritesPrevious(t *testing.T) {
	r := NewReporter()
	r.Report(1, HTTP(500))
	r.Report(1, InBand("later"))

	if got := r.Latest(1); got.Kind != KindInBand {
		t.Errorf("expected latest error to win, got %+v", got)
	}
}

func TestTransportUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transport(cause)

	if !errors.Is(err, cause) {
		t.Error("expected Transport to wrap its cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{NoActiveSession(), "no active session"},
		{HTTP(503), "503"},
		{InBand("boom"), "boom"},
	}
	for _, tt := range tests {
		if !strings.Contains(tt.err.Error(), tt.want) {
			t.Errorf("expected %q in %q", tt.want, tt.err.Error())
		}
	}
}
