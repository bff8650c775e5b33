package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"horizon.shop/internal/auth"
	"horizon.shop/internal/stream"
)

func TestOrderStreamDeliversEvents(t *testing.T) {
	api := newTestAPI(t)
	admin := api.user("admin@x.com", auth.RoleAdmin)
	customer := api.user("c@x.com", auth.RoleCustomer)

	expectError(t, api.do(http.MethodGet, "/orders/stream", nil, customer), http.StatusForbidden, kindForbidden)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, api.srv.URL+"/orders/stream", nil)
	req.Header.Set("Authorization", admin["Authorization"])
	resp, err := api.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, ": stream started") {
		t.Fatalf("unexpected preamble %q", line)
	}
	deadline := time.Now().Add(2 * time.Second)
	for api.events.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	resp2 := api.do(http.MethodPost, "/order", map[string]any{"quantity": 1}, customer)
	expectStatus(t, resp2, http.StatusOK)
	resp2.Body.Close()

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt stream.OrderEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt.Kind != stream.OrderPlaced || evt.UserEmail != "c@x.com" {
			t.Fatalf("unexpected event: %+v", evt)
		}
		return
	}
}
