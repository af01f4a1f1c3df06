// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"google.golang.org/grpc"

	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/gate"
	reservdgrpc "github.com/reservd/reservd/internal/grpc"
	"github.com/reservd/reservd/internal/httpapi"
	"github.com/reservd/reservd/internal/notification"
	"github.com/reservd/reservd/internal/payment"
	"github.com/reservd/reservd/internal/repository/postgres"
	"github.com/reservd/reservd/internal/reservation"
	"github.com/reservd/reservd/internal/token"
)

const stream = "reservd:notifications:test"

// stack is every service wired over real sockets, PostgreSQL and Redis.
type stack struct {
	authHTTP    *httptest.Server
	reservation *httptest.Server
	stops       []func()
}

func (s *stack) stop() {
	for i := len(s.stops) - 1; i >= 0; i-- {
		s.stops[i]()
	}
}

func serveGRPC(s *stack, srv *grpc.Server) string {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	go func() { _ = srv.Serve(lis) }()
	s.stops = append(s.stops, srv.Stop)
	return lis.Addr().String()
}

func newGate(s *stack, authAddr string, logger *slog.Logger) *gate.Gate {
	client, err := reservdgrpc.NewClient(reservdgrpc.ClientConfig{Address: authAddr})
	Expect(err).NotTo(HaveOccurred())
	s.stops = append(s.stops, func() { _ = client.Close() })
	g, err := gate.New(client, gate.WithLogger(logger), gate.WithTimeout(5*time.Second))
	Expect(err).NotTo(HaveOccurred())
	return g
}

func startStack() *stack {
	logger := slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s := &stack{}

	users := auth.NewRepositoryUserStore(postgres.New(env.pool, auth.UserSchema()))
	hasher, err := auth.NewPasswordHasher(auth.HasherConfig{Algorithm: auth.AlgorithmBcrypt, BcryptCost: 4})
	Expect(err).NotTo(HaveOccurred())
	accounts, err := auth.NewService(users, hasher, auth.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())
	tokens, err := token.NewManager("integration-secret-0123456789", time.Hour,
		token.WithRevocationStore(token.NewRedisRevocationStore(env.redis, "reservd:revoked:")))
	Expect(err).NotTo(HaveOccurred())
	authn, err := auth.NewAuthenticator(tokens, users)
	Expect(err).NotTo(HaveOccurred())

	authHandler, err := httpapi.NewAuthHandler(accounts, tokens, authn, httpapi.AuthOptions{Logger: logger})
	Expect(err).NotTo(HaveOccurred())
	authRouter := httpapi.NewRouter("auth", logger, nil)
	authRouter.Mount("/", authHandler.Routes())
	s.authHTTP = httptest.NewServer(authRouter)
	s.stops = append(s.stops, s.authHTTP.Close)

	authSrv := reservdgrpc.NewServer(reservdgrpc.ServerConfig{Logger: logger})
	reservdgrpc.NewAuthServer(authn).Register(authSrv)
	authAddr := serveGRPC(s, authSrv)

	producer, err := notification.NewProducer(env.redis, stream)
	Expect(err).NotTo(HaveOccurred())
	paySvc, err := payment.NewService(postgres.New(env.pool, payment.ChargeSchema()), producer, logger)
	Expect(err).NotTo(HaveOccurred())
	paySrv := reservdgrpc.NewServer(reservdgrpc.ServerConfig{Logger: logger},
		newGate(s, authAddr, logger).UnaryServerInterceptor(payment.CreateChargeMethod))
	payment.NewServer(paySvc, logger).Register(paySrv)
	payAddr := serveGRPC(s, paySrv)

	payConn, err := reservdgrpc.Dial(reservdgrpc.ClientConfig{Address: payAddr})
	Expect(err).NotTo(HaveOccurred())
	s.stops = append(s.stops, func() { _ = payConn.Close() })
	svc, err := reservation.NewService(postgres.New(env.pool, reservation.Schema()), payment.NewClient(payConn), logger)
	Expect(err).NotTo(HaveOccurred())
	resRouter := httpapi.NewRouter("reservation", logger, nil)
	resRouter.Mount("/", reservation.NewHandler(svc, newGate(s, authAddr, logger), logger).Routes())
	s.reservation = httptest.NewServer(resRouter)
	s.stops = append(s.stops, s.reservation.Close)

	return s
}

// browser keeps cookies per host, so the session cookie set by the auth
// service also reaches the reservation service on the same host.
type browser struct {
	client *http.Client
}

func newBrowser() *browser {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &browser{client: &http.Client{Jar: jar}}
}

func (b *browser) do(method, url, body string, cookies ...*http.Cookie) (int, []byte) {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := b.client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, raw
}

// signUp registers creds and logs in, returning the session cookie.
func (b *browser) signUp(s *stack, creds string) *http.Cookie {
	status, _ := b.do(http.MethodPost, s.authHTTP.URL+"/users", creds)
	Expect(status).To(Equal(http.StatusCreated))
	status, _ = b.do(http.MethodPost, s.authHTTP.URL+"/auth/login", creds)
	Expect(status).To(Equal(http.StatusOK))
	u, err := url.Parse(s.reservation.URL)
	Expect(err).NotTo(HaveOccurred())
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == token.CookieName {
			return c
		}
	}
	Fail("login set no session cookie")
	return nil
}

const booking = `{"place_id":"cabin-9","start_date":"2026-08-01T15:00:00Z","end_date":"2026-08-04T10:00:00Z","amount_cents":45000}`

var _ = Describe("Booking a place", func() {
	var s *stack

	BeforeEach(func() {
		env.reset()
		s = startStack()
	})

	AfterEach(func() {
		s.stop()
	})

	It("charges the guest, stores the reservation and queues a receipt", func() {
		creds := `{"email":"guest@example.com","password":"long enough password"}`
		b := newBrowser()
		b.signUp(s, creds)

		status, raw := b.do(http.MethodPost, s.reservation.URL+"/reservations", booking)
		Expect(status).To(Equal(http.StatusCreated), string(raw))
		var created reservation.Reservation
		Expect(json.Unmarshal(raw, &created)).To(Succeed())
		Expect(created.InvoiceID).To(HavePrefix("inv_"))

		var amount int64
		Expect(env.pool.QueryRow(env.ctx,
			`SELECT amount_cents FROM charges WHERE invoice_id = $1`, created.InvoiceID).Scan(&amount)).To(Succeed())
		Expect(amount).To(Equal(int64(45000)))

		status, raw = b.do(http.MethodGet, s.reservation.URL+"/reservations/"+created.ID.String(), "")
		Expect(status).To(Equal(http.StatusOK))
		var fetched reservation.Reservation
		Expect(json.Unmarshal(raw, &fetched)).To(Succeed())
		Expect(fetched.PlaceID).To(Equal("cabin-9"))
		Expect(fetched.StartDate.Equal(created.StartDate)).To(BeTrue())

		var (
			mu       sync.Mutex
			receipts []notification.EmailNotification
		)
		consumer, err := notification.NewConsumer(env.redis, notification.ConsumerConfig{
			Stream:   stream,
			Group:    "mailers",
			Consumer: "mailer-1",
			Block:    100 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())
		consumer.Handle(notification.PatternNotifyEmail, func(_ context.Context, msg notification.Message) error {
			var n notification.EmailNotification
			if err := msg.Decode(&n); err != nil {
				return err
			}
			mu.Lock()
			receipts = append(receipts, n)
			mu.Unlock()
			return nil
		})
		// A fresh group starts at the end of the stream; read from the start.
		Expect(env.redis.XGroupCreateMkStream(env.ctx, stream, "mailers", "0").Err()).To(Succeed())

		handled, err := consumer.Poll(env.ctx, ">")
		Expect(err).NotTo(HaveOccurred())
		Expect(handled).To(Equal(1))
		Expect(receipts).To(ConsistOf(notification.EmailNotification{
			Email:       "guest@example.com",
			UserID:      created.UserID.String(),
			InvoiceID:   created.InvoiceID,
			AmountCents: 45000,
			Currency:    payment.DefaultCurrency,
		}))

		pending, err := env.redis.XPending(env.ctx, stream, "mailers").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending.Count).To(BeZero())
	})

	It("keeps each guest's reservations private", func() {
		alice, bob := newBrowser(), newBrowser()
		alice.signUp(s, `{"email":"alice@example.com","password":"alice password"}`)
		bob.signUp(s, `{"email":"bob@example.com","password":"bobs password!"}`)

		status, raw := alice.do(http.MethodPost, s.reservation.URL+"/reservations", booking)
		Expect(status).To(Equal(http.StatusCreated))
		var created reservation.Reservation
		Expect(json.Unmarshal(raw, &created)).To(Succeed())

		status, _ = bob.do(http.MethodGet, s.reservation.URL+"/reservations/"+created.ID.String(), "")
		Expect(status).To(Equal(http.StatusNotFound))
		status, _ = bob.do(http.MethodDelete, s.reservation.URL+"/reservations/"+created.ID.String(), "")
		Expect(status).To(Equal(http.StatusNotFound))

		status, raw = bob.do(http.MethodGet, s.reservation.URL+"/reservations", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(string(raw)).To(MatchJSON(`[]`))

		status, _ = alice.do(http.MethodGet, s.reservation.URL+"/reservations/"+ulid.Make().String(), "")
		Expect(status).To(Equal(http.StatusNotFound))
	})

	It("rejects a duplicate e-mail address", func() {
		b := newBrowser()
		creds := `{"email":"dup@example.com","password":"long enough password"}`
		status, _ := b.do(http.MethodPost, s.authHTTP.URL+"/users", creds)
		Expect(status).To(Equal(http.StatusCreated))
		status, _ = b.do(http.MethodPost, s.authHTTP.URL+"/users", strings.Replace(creds, "dup@", "DUP@", 1))
		Expect(status).To(Equal(http.StatusConflict))
	})

	It("refuses a token after logout", func() {
		b := newBrowser()
		session := b.signUp(s, `{"email":"leaver@example.com","password":"long enough password"}`)

		status, _ := b.do(http.MethodPost, s.authHTTP.URL+"/auth/logout", "")
		Expect(status).To(Equal(http.StatusNoContent))

		// Replay the old cookie from a client that never saw the logout.
		status, _ = newBrowser().do(http.MethodGet, s.reservation.URL+"/reservations", "", session)
		Expect(status).To(Equal(http.StatusUnauthorized))

		keys, err := env.redis.Keys(env.ctx, "reservd:revoked:*").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(HaveLen(1))
	})
})
