package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/fleet-approval/internal/core/events"
	"github.com/frahmantamala/fleet-approval/internal/notification"
)

type fixedTokens map[string]int64

func (f fixedTokens) UserIDFromToken(token string) (int64, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return 0, errors.New("invalid token")
}

var _ = Describe("Hub", func() {
	var (
		hub    *notification.Hub
		server *httptest.Server
	)

	BeforeEach(func() {
		hub = notification.NewHub(nil, discard)
		server = httptest.NewServer(hub.ServeWS(fixedTokens{"alice": 7}))
		DeferCleanup(server.Close)
	})

	dial := func(token string) (*websocket.Conn, *http.Response, error) {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?token=" + token
		return websocket.DefaultDialer.Dial(url, nil)
	}

	It("pushes created notifications to the recipient's sockets", func() {
		conn, _, err := dial("alice")
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()
		Eventually(func() int { return hub.Connected(7) }).Should(Equal(1))

		event := events.NewNotificationCreatedEvent(7, 99, map[string]string{"title": "Request forwarded"})
		Expect(hub.OnNotificationCreated(context.Background(), event)).To(Succeed())

		Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		_, msg, err := conn.ReadMessage()
		Expect(err).NotTo(HaveOccurred())

		var body map[string]interface{}
		Expect(json.Unmarshal(msg, &body)).To(Succeed())
		Expect(body["type"]).To(Equal("notification"))
		Expect(body["notification"]).To(HaveKeyWithValue("title", "Request forwarded"))
	})

	It("delivers nothing to users without sockets", func() {
		Expect(hub.Deliver(8, []byte(`{}`))).To(Equal(0))
	})

	It("forgets a socket once the client goes away", func() {
		conn, _, err := dial("alice")
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() int { return hub.Connected(7) }).Should(Equal(1))

		Expect(conn.Close()).To(Succeed())
		Eventually(func() int { return hub.Connected(7) }).Should(Equal(0))
	})

	It("refuses handshakes without a valid token", func() {
		_, resp, err := dial("")
		Expect(err).To(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

		_, resp, err = dial("mallory")
		Expect(err).To(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})
})
