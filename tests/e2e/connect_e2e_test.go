package e2e

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func wsURL(userID string) string {
	u, err := url.Parse(baseURL)
	Expect(err).NotTo(HaveOccurred())
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws/vm"
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String()
}

var _ = Describe("Connection Hub handshake", func() {
	It("rejects a connection whose first frame isn't auth", func() {
		c, _, err := websocket.DefaultDialer.Dial(wsURL("e2e-vm-bad-handshake"), nil)
		Expect(err).NotTo(HaveOccurred())
		defer c.Close()

		Expect(c.WriteJSON(map[string]any{"type": "heartbeat"})).To(Succeed())

		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err = c.ReadMessage()
		Expect(err).To(HaveOccurred())
		Expect(websocket.IsCloseError(err, 4001)).To(BeTrue())
	})

	It("rejects an auth frame carrying an invalid token", func() {
		c, _, err := websocket.DefaultDialer.Dial(wsURL("e2e-vm-bad-token"), nil)
		Expect(err).NotTo(HaveOccurred())
		defer c.Close()

		Expect(c.WriteJSON(map[string]any{"type": "auth", "token": "not-a-real-token"})).To(Succeed())

		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err = c.ReadMessage()
		Expect(err).To(HaveOccurred())
		Expect(websocket.IsCloseError(err, 4001)).To(BeTrue())
	})

	It("accepts a valid auth frame and sends an init frame back", func() {
		c, _, err := websocket.DefaultDialer.Dial(wsURL("e2e-vm-good"), nil)
		Expect(err).NotTo(HaveOccurred())
		defer c.Close()

		token := mintToken("e2e-user-1", "e2e-org-1")
		Expect(c.WriteJSON(map[string]any{"type": "auth", "token": token})).To(Succeed())

		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame map[string]any
		Expect(c.ReadJSON(&frame)).To(Succeed())
		Expect(frame["type"]).To(Equal("init"))
	})
})

var _ = Describe("Connect-rate limiting", func() {
	It("eventually returns a 429 under a burst of connection attempts", func() {
		var sawTooManyRequests bool
		for i := 0; i < 50; i++ {
			c, resp, err := websocket.DefaultDialer.Dial(wsURL("e2e-vm-burst"), nil)
			if resp != nil && resp.StatusCode == 429 {
				sawTooManyRequests = true
				break
			}
			if err == nil {
				c.Close()
			}
		}
		Expect(sawTooManyRequests).To(BeTrue(), "expected at least one connection attempt to be rate limited")
	})
})

var _ = Describe("SSE relay", func() {
	It("opens a streaming response for a session's event feed", func() {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(baseURL + "/sessions/e2e-unknown-session/events")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("text/event-stream"))
	})
})
