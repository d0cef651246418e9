package overlay

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func staticView(text string) RenderFunc {
	return func(w io.Writer, mode DisplayMode) error {
		_, err := io.WriteString(w, text+" "+mode.String()+"\n")
		return err
	}
}

func TestRegistry_RenderOrderAndPrune(t *testing.T) {
	r := NewRegistry()
	a := r.Register("a", staticView("first"), DisplayFull)
	b := r.Register("b", staticView("second"), DisplayMinimized)
	if a == nil || b == nil {
		t.Fatal("Register returned nil")
	}

	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		t.Fatal(err)
	}
	want := "== a (full)\nfirst full\n== b (minimized)\nsecond minimized\n"
	if buf.String() != want {
		t.Errorf("render =\n%q\nwant\n%q", buf.String(), want)
	}

	a.SetMode(DisplayNone)
	buf.Reset()
	if err := r.Render(&buf); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "first") {
		t.Errorf("hidden entry rendered: %q", buf.String())
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d after prune, want 1", r.Len())
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	e := r.Register("x", staticView("x"), DisplayFull)
	e.Unregister()
	e.Unregister()
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry()
	r.Register("x", staticView("x"), DisplayFull)
	r.Close()
	if r.Len() != 0 {
		t.Errorf("Len() = %d after Close, want 0", r.Len())
	}
	if e := r.Register("y", staticView("y"), DisplayFull); e != nil {
		t.Error("Register after Close should return nil")
	}
}

func TestRegistry_NilRender(t *testing.T) {
	r := NewRegistry()
	if e := r.Register("x", nil, DisplayFull); e != nil {
		t.Error("Register with nil render should return nil")
	}
}

func TestRegistry_RenderError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register("bad", func(io.Writer, DisplayMode) error { return boom }, DisplayFull)
	err := r.Render(io.Discard)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

func TestParseDisplayMode(t *testing.T) {
	tests := []struct {
		in      string
		want    DisplayMode
		wantErr bool
	}{
		{"", DisplayNone, false},
		{"none", DisplayNone, false},
		{"FULL", DisplayFull, false},
		{"minimized", DisplayMinimized, false},
		{"min", DisplayMinimized, false},
		{"huge", DisplayNone, true},
	}
	for _, tt := range tests {
		got, err := ParseDisplayMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDisplayMode(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseDisplayMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
