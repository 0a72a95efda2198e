// Command store_compare replays read requests against two running instances
// of the timetable API, typically one started with STORE_DRIVER=csv and one
// with STORE_DRIVER=postgres after importing the same data, and reports any
// difference in status or payload. Response metadata is ignored.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

type result struct {
	target      target
	statusA     int
	statusB     int
	durA, durB  time.Duration
	bodiesEqual bool
	err         error
}

func (r result) ok() bool {
	return r.err == nil && r.statusA == r.statusB && r.bodiesEqual
}

func main() {
	var (
		baseA, baseB string
		token        string
		targetsPath  string
		timeout      time.Duration
	)
	flag.StringVar(&baseA, "a", "http://localhost:8080", "first instance base URL")
	flag.StringVar(&baseB, "b", "http://localhost:8081", "second instance base URL")
	flag.StringVar(&token, "token", os.Getenv("TIMETABLE_TOKEN"), "admin bearer token")
	flag.StringVar(&targetsPath, "targets", "", "JSON file with a list of {method, path}; defaults to a built-in set")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets := defaultTargets(flag.Args())
	if targetsPath != "" {
		loaded, err := loadTargets(targetsPath)
		if err != nil {
			log.Fatalf("load targets: %v", err)
		}
		targets = loaded
	}

	client := &http.Client{Timeout: timeout}
	diffs := 0
	for _, tgt := range targets {
		res := compare(client, baseA, baseB, token, tgt)
		report(res)
		if !res.ok() {
			diffs++
		}
	}
	fmt.Printf("%d targets, %d differences\n", len(targets), diffs)
	if diffs > 0 {
		os.Exit(1)
	}
}

// defaultTargets covers the UC-level reads for every UC code given on the
// command line.
func defaultTargets(ucCodes []string) []target {
	targets := []target{{Method: http.MethodGet, Path: "/ready"}}
	for _, uc := range ucCodes {
		for _, suffix := range []string{"sections", "schedule", "students?order=id-asc", "students?order=name-desc"} {
			targets = append(targets, target{Method: http.MethodGet, Path: "/api/v1/ucs/" + uc + "/" + suffix})
		}
	}
	return targets
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var targets []target
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return targets, nil
}

func compare(client *http.Client, baseA, baseB, token string, tgt target) result {
	res := result{target: tgt}
	bodyA, statusA, durA, err := fetch(client, baseA, token, tgt)
	if err != nil {
		res.err = fmt.Errorf("%s: %w", baseA, err)
		return res
	}
	bodyB, statusB, durB, err := fetch(client, baseB, token, tgt)
	if err != nil {
		res.err = fmt.Errorf("%s: %w", baseB, err)
		return res
	}
	res.statusA, res.statusB = statusA, statusB
	res.durA, res.durB = durA, durB
	res.bodiesEqual = sameData(bodyA, bodyB)
	return res
}

func fetch(client *http.Client, base, token string, tgt target) ([]byte, int, time.Duration, error) {
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	return body, resp.StatusCode, time.Since(start), err
}

// sameData compares two envelopes without their meta block.
func sameData(a, b []byte) bool {
	var ea, eb map[string]interface{}
	if json.Unmarshal(a, &ea) != nil || json.Unmarshal(b, &eb) != nil {
		return strings.TrimSpace(string(a)) == strings.TrimSpace(string(b))
	}
	delete(ea, "meta")
	delete(eb, "meta")
	return reflect.DeepEqual(ea, eb)
}

func report(res result) {
	status := "OK"
	if !res.ok() {
		status = "DIFF"
	}
	if res.err != nil {
		status = "ERROR"
	}
	fmt.Printf("[%s] %s %s\n", status, res.target.Method, res.target.Path)
	if res.err != nil {
		fmt.Printf("  error: %v\n", res.err)
		return
	}
	fmt.Printf("  a: %d (%s)  b: %d (%s)  body match: %t\n", res.statusA, res.durA, res.statusB, res.durB, res.bodiesEqual)
}
