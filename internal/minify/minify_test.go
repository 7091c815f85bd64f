package minify

import (
	"strings"
	"testing"
)

func TestJS(t *testing.T) {
	src := "function add ( a , b ) {\n  // sum\n  return a + b ;\n};\r\nvar x = add( 1 , 2 );\r\n"

	out, err := New().JS([]byte(src))
	if err != nil {
		t.Fatal(err)
	}

	if len(out) >= len(src) {
		t.Fatalf("expected smaller output, got %q", out)
	}
	if strings.Contains(string(out), "// sum") || strings.Contains(string(out), "\n") {
		t.Fatalf("expected comments and newlines stripped, got %q", out)
	}
}

func TestCSS(t *testing.T) {
	src := "/* http://localhost/a.css */\r\nbody {\n  color : #ff0000 ;\n  margin : 0px ;\n}\r\n"

	out, err := New().CSS([]byte(src))
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(string(out), "/*") || len(out) >= len(src) {
		t.Fatalf("expected compact css, got %q", out)
	}
	if !strings.Contains(string(out), "body{") {
		t.Fatalf("expected body rule, got %q", out)
	}
}

func TestJSSyntaxError(t *testing.T) {
	if _, err := New().JS([]byte("function (")); err == nil {
		t.Fatal("expected error")
	}
}
