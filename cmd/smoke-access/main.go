package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"
)

// Exercises a running gateway end to end: an anonymous request to a guarded
// page must redirect to sign-in, a magic link must establish a session, and
// the session must answer the role query.
func main() {
	base := os.Getenv("DESIGNLAB_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	email := os.Getenv("DESIGNLAB_SMOKE_EMAIL")
	if email == "" {
		email = "smoke@designlab.org"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{
		Jar:     jar,
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// Guard: anonymous /admin must bounce to the sign-in page.
	resp, err := client.Get(base + "/admin/")
	if err != nil {
		log.Fatalf("get /admin/: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		log.Fatalf("anonymous /admin/: want 302, got %d", resp.StatusCode)
	}

	// Issue a magic link. Outside production the response carries the link.
	body, _ := json.Marshal(map[string]string{"email": email, "callbackUrl": "/community/"})
	resp, err = client.Post(base+"/v1/auth/magic-link", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("magic-link: %v", err)
	}
	var issued struct {
		OK   bool   `json:"ok"`
		Link string `json:"link"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&issued); err != nil {
		log.Fatalf("magic-link decode: %v", err)
	}
	resp.Body.Close()
	if !issued.OK || issued.Link == "" {
		log.Fatalf("magic-link: no link in response (production mode?)")
	}

	// Follow the link: the redirect sets the session cookie.
	resp, err = client.Get(issued.Link)
	if err != nil {
		log.Fatalf("verify: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		log.Fatalf("verify: want 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/community/" {
		log.Fatalf("verify: want redirect to /community/, got %q", loc)
	}

	// The session must answer the role query.
	resp, err = client.Get(base + "/v1/me/roles")
	if err != nil {
		log.Fatalf("roles: %v", err)
	}
	var roles struct {
		Roles []string `json:"roles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&roles); err != nil {
		log.Fatalf("roles decode: %v", err)
	}
	resp.Body.Close()
	if len(roles.Roles) == 0 {
		log.Fatalf("roles: signed-in caller has no roles")
	}

	fmt.Printf("✅ access smoke test passed: %s roles=%v\n", email, roles.Roles)
}
