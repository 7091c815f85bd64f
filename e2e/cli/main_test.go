//go:build e2e

package cli

import (
	"cmp"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rogpeppe/go-internal/testscript"
)

var originFiles = map[string]string{
	"/js/a.js":      "var a = 1",
	"/js/b.js":      "var b = 2",
	"/js/c.js":      "var c = 3",
	"/js/jquery.js": "var $ = {}",
	"/js/app.js":    "var app = {}",
	"/css/a.css":    "a { background: url(../img/a.png) }",
	"/css/b.css":    "b { color: blue }",
}

func testServer() *httptest.Server {
	mux := http.NewServeMux()
	for path, body := range originFiles {
		mux.HandleFunc("GET "+path, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, body)
		})
	}
	return httptest.NewServer(mux)
}

func TestScript(t *testing.T) {
	assetpack := cmp.Or(os.Getenv("ASSETPACK"), "assetpack")
	srv := testServer()
	t.Cleanup(srv.Close)

	testscript.Run(t, testscript.Params{
		Dir: ".",
		Setup: func(e *testscript.Env) error {
			e.Vars = append(e.Vars,
				"ORIGIN="+srv.URL,
				"ASSETPACK="+assetpack,
			)
			for _, kv := range os.Environ() {
				if strings.HasPrefix(kv, "E2E_") {
					e.Vars = append(e.Vars, kv)
				}
			}
			return nil
		},
		Cmds: map[string]func(*testscript.TestScript, bool, []string){
			"expand":  expandCmd,
			"httpget": httpGetCmd,
		},
		// NB: To quickly update expectations in txtar files, try re-running the tests with
		// E2E_UPDATE=y, for example:
		//   E2E_UPDATE=y go test -tags e2e ./e2e/cli -run TestScript/merge -v -count=1
		UpdateScripts: os.Getenv("E2E_UPDATE") != "",
	})
}

// expandCmd replaces $VAR references in a file with the script's environment.
func expandCmd(ts *testscript.TestScript, neg bool, args []string) {
	if neg || len(args) != 1 {
		ts.Fatalf("usage: expand file")
	}

	path := ts.MkAbs(args[0])
	bs, err := os.ReadFile(path)
	ts.Check(err)
	ts.Check(os.WriteFile(path, []byte(os.Expand(string(bs), ts.Getenv)), 0644))
}

// httpGetCmd fetches a URL and writes the body to stdout. It retries up to 5
// times with exponential delay starting with 100ms, so it can wait for a
// server started in the background.
func httpGetCmd(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 1 {
		ts.Fatalf("usage: httpget url")
	}

	const maxRetries = 5
	const initialDelay = 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			delay := initialDelay * (1 << (i - 1))
			ts.Logf("retrying in %v (attempt %d/%d)", delay, i+1, maxRetries)
			time.Sleep(delay)
		}

		resp, err := http.Get(args[0])
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unsuccessful status code %d", resp.StatusCode)
			continue
		}

		if neg {
			ts.Fatalf("unexpected success")
		}
		_, err = ts.Stdout().Write(body)
		ts.Check(err)
		return
	}

	if neg {
		return
	}

	ts.Fatalf("request failed after %d attempts: %v", maxRetries, lastErr)
}
