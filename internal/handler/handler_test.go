package handler_test

import (
    "bytes"
    "context"
    "encoding/base64"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log/slog"
    "net/http"
    "net/http/httptest"
    "strconv"
    "testing"
    "time"

    "github.com/h2non/gock"
    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/easel-entry/internal/handler"
    "github.com/iliyamo/easel-entry/internal/model"
    "github.com/iliyamo/easel-entry/internal/payment"
    "github.com/iliyamo/easel-entry/internal/router"
    "github.com/iliyamo/easel-entry/internal/service"
    "github.com/iliyamo/easel-entry/internal/store/memory"
    "github.com/iliyamo/easel-entry/internal/utils"
    "github.com/iliyamo/easel-entry/internal/webhook"
)

const (
    jwtSecret   = "idp-test-secret"
    yocoURL     = "http://yoco.test"
    competition = "spring"
)

var webhookSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("easel-handler-test-key"))

type app struct {
    e            *echo.Echo
    verifier     *webhook.Verifier
    participants *memory.Participants
    slots        *memory.Slots
}

func newApp(t *testing.T, capacity int) *app {
    t.Helper()
    return newAppWith(t, capacity, nil)
}

// newAppWith builds the app with the participant store wrapped by wrap, if
// set, so tests can inject persistence failures.
func newAppWith(t *testing.T, capacity int, wrap func(*memory.Participants) service.ParticipantStore) *app {
    t.Helper()
    logger := slog.New(slog.NewTextHandler(io.Discard, nil))

    participants, slots, events := memory.NewParticipants(), memory.NewSlots(), memory.NewEvents()
    var store service.ParticipantStore = participants
    if wrap != nil {
        store = wrap(participants)
    }
    comps := service.NewCompetitions(capacity, competition)
    require.NoError(t, comps.Seed(context.Background(), slots))

    verifier, err := webhook.NewVerifier(webhookSecret, 3*time.Minute)
    require.NoError(t, err)

    alloc := service.NewAllocator(slots, logger)
    entries := service.NewEntryService(store, alloc, events, nil, comps, logger)
    checkout := service.NewCheckoutService(store, alloc,
        payment.NewClient(yocoURL, "sk_test", time.Second, logger), comps,
        service.CheckoutOptions{EntryFeeCents: 5000, Currency: "ZAR", AppURL: "https://easel.test"}, logger)
    waitlist := service.NewWaitlistService(store, alloc, comps, logger)

    e := echo.New()
    router.RegisterRoutes(e, nil, nil)
    router.RegisterWebhooks(e, handler.NewWebhookHandler(verifier, entries, logger))
    router.RegisterParticipant(e, handler.NewCheckoutHandler(checkout), handler.NewWaitlistHandler(waitlist), jwtSecret, nil)

    t.Cleanup(gock.Off)
    return &app{e: e, verifier: verifier, participants: participants, slots: slots}
}

func token(t *testing.T, userID, name string) string {
    t.Helper()
    tok, err := utils.NewIdentityToken(jwtSecret, userID, utils.RoleAuthenticated, utils.UserMetadata{FullName: name}, time.Hour)
    require.NoError(t, err)
    return tok.Token
}

func (a *app) do(method, path, bearer string, body []byte, hdr http.Header) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, bytes.NewReader(body))
    if len(body) > 0 {
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
    if bearer != "" {
        req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
    }
    for k, v := range hdr {
        req.Header[k] = v
    }
    rec := httptest.NewRecorder()
    a.e.ServeHTTP(rec, req)
    return rec
}

func (a *app) signed(id string, body []byte) http.Header {
    ts := strconv.FormatInt(time.Now().Unix(), 10)
    h := http.Header{}
    h.Set(webhook.HeaderID, id)
    h.Set(webhook.HeaderTimestamp, ts)
    h.Set(webhook.HeaderSignature, a.verifier.Sign(id, ts, body))
    return h
}

func (a *app) deliver(eventID, eventType, userID string) *httptest.ResponseRecorder {
    body := paymentBody(eventID, eventType, userID)
    return a.do(http.MethodPost, "/v1/webhooks/yoco", "", body, a.signed("msg_"+eventID, body))
}

func paymentBody(eventID, eventType, userID string) []byte {
    return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"createdDate":"2026-03-01T10:00:00Z","payload":{"id":"p_%s","type":"payment","status":"succeeded","mode":"test","amount":5000,"currency":"ZAR","metadata":{"checkoutId":"ch_%s","userId":%q,"competitionId":%q,"name":"Artist"}}}`,
        eventID, eventType, eventID, userID, userID, competition))
}

func (a *app) expectCheckout(userID string) {
    gock.New(yocoURL).
        Post("/api/checkouts").
        Reply(200).
        JSON(map[string]any{
            "id":          "ch_" + userID,
            "redirectUrl": "https://c.yoco.test/checkout/ch_" + userID,
            "status":      "created",
            "amount":      5000,
            "currency":    "ZAR",
        })
}

// pay runs checkout for userID through the API.
func (a *app) pay(t *testing.T, userID string) {
    t.Helper()
    a.expectCheckout(userID)
    rec := a.do(http.MethodPost, "/v1/competitions/"+competition+"/checkout", token(t, userID, "Artist "+userID), nil, nil)
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (a *app) participant(t *testing.T, userID string) model.Participant {
    t.Helper()
    p, err := a.participants.Get(context.Background(), competition, userID)
    require.NoError(t, err)
    return p
}

func TestCheckout_Created(t *testing.T) {
    a := newApp(t, 8)
    a.expectCheckout("a")

    rec := a.do(http.MethodPost, "/v1/competitions/spring/checkout", token(t, "a", "A"), []byte(`{"amount":5000}`), nil)

    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    assert.JSONEq(t, `{"id":"ch_a","redirect_url":"https://c.yoco.test/checkout/ch_a","amount":5000,"currency":"ZAR","status":"created"}`, rec.Body.String())
    p := a.participant(t, "a")
    assert.Equal(t, model.StatusPending, p.Status)
    assert.Equal(t, "A", p.DisplayName)
    assert.True(t, gock.IsDone())
}

func TestCheckout_Errors(t *testing.T) {
    a := newApp(t, 8)

    rec := a.do(http.MethodPost, "/v1/competitions/spring/checkout", "", nil, nil)
    assert.Equal(t, http.StatusUnauthorized, rec.Code)

    rec = a.do(http.MethodPost, "/v1/competitions/spring/checkout", token(t, "a", "A"), []byte(`{"amount":0}`), nil)
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = a.do(http.MethodPost, "/v1/competitions/autumn/checkout", token(t, "a", "A"), nil, nil)
    assert.Equal(t, http.StatusNotFound, rec.Code)

    gock.New(yocoURL).Post("/api/checkouts").Reply(503)
    rec = a.do(http.MethodPost, "/v1/competitions/spring/checkout", token(t, "a", "A"), nil, nil)
    assert.Equal(t, http.StatusBadGateway, rec.Code)
    assert.JSONEq(t, `{"error":"payment provider unavailable"}`, rec.Body.String())
    _, err := a.participants.Get(context.Background(), competition, "a")
    assert.Error(t, err, "failed checkout must not persist a participant")
}

func TestCheckout_AlreadyEntered(t *testing.T) {
    a := newApp(t, 8)
    a.pay(t, "a")
    require.Equal(t, http.StatusOK, a.deliver("evt_a", webhook.TypePaymentSucceeded, "a").Code)

    rec := a.do(http.MethodPost, "/v1/competitions/spring/checkout", token(t, "a", "A"), nil, nil)

    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.JSONEq(t, `{"error":"already entered"}`, rec.Body.String())
}

func TestWebhook_EntersParticipantsInOrder(t *testing.T) {
    a := newApp(t, 8)
    a.pay(t, "a")
    a.pay(t, "b")

    rec := a.deliver("evt_a", webhook.TypePaymentSucceeded, "a")
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"received":true}`, rec.Body.String())
    require.Equal(t, http.StatusOK, a.deliver("evt_b", webhook.TypePaymentSucceeded, "b").Code)

    assert.Equal(t, 1, *a.participant(t, "a").SlotNumber)
    assert.Equal(t, 2, *a.participant(t, "b").SlotNumber)

    // redelivery is acknowledged without changes
    require.Equal(t, http.StatusOK, a.deliver("evt_a", webhook.TypePaymentSucceeded, "a").Code)
    assert.Equal(t, 1, *a.participant(t, "a").SlotNumber)
}

func TestWebhook_Rejections(t *testing.T) {
    a := newApp(t, 1)
    a.pay(t, "a")
    a.pay(t, "b")
    require.Equal(t, http.StatusOK, a.deliver("evt_a", webhook.TypePaymentSucceeded, "a").Code)

    body := paymentBody("evt_b", webhook.TypePaymentSucceeded, "b")
    forged := a.signed("msg_x", body)
    tampered := append([]byte{}, body...)
    tampered[len(tampered)-3] ^= 0x01

    tests := []struct {
        name   string
        body   []byte
        hdr    http.Header
        status int
        msg    string
    }{
        {"empty body", nil, a.signed("msg_e", nil), http.StatusBadRequest, "invalid request"},
        {"no headers", body, nil, http.StatusUnauthorized, "unauthorized"},
        {"tampered body", tampered, forged, http.StatusUnauthorized, "unauthorized"},
        {"malformed json", []byte(`{"id":`), a.signed("msg_m", []byte(`{"id":`)), http.StatusBadRequest, "invalid payload"},
        {"unknown participant", paymentBody("evt_g", webhook.TypePaymentSucceeded, "ghost"),
            a.signed("msg_g", paymentBody("evt_g", webhook.TypePaymentSucceeded, "ghost")), http.StatusNotFound, "participant not found"},
        {"capacity exceeded", body, forged, http.StatusConflict, "capacity exceeded"},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            rec := a.do(http.MethodPost, "/v1/webhooks/yoco", "", tt.body, tt.hdr)
            assert.Equal(t, tt.status, rec.Code)
            assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tt.msg), rec.Body.String())
        })
    }

    b := a.participant(t, "b")
    assert.Equal(t, model.StatusPending, b.Status)
    assert.Nil(t, b.SlotNumber)
}

type brokenEnter struct {
    *memory.Participants
}

func (brokenEnter) MarkEntered(context.Context, string, string, int) error {
    return errors.New("db down")
}

func TestWebhook_PersistenceFailureIsRetryable(t *testing.T) {
    a := newAppWith(t, 8, func(p *memory.Participants) service.ParticipantStore { return brokenEnter{p} })
    a.pay(t, "a")

    rec := a.deliver("evt_a", webhook.TypePaymentSucceeded, "a")

    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
    p := a.participant(t, "a")
    assert.Equal(t, model.StatusPending, p.Status)
    assert.Nil(t, p.SlotNumber)
    free, err := a.slots.Free(context.Background(), competition)
    require.NoError(t, err)
    assert.Len(t, free, 8)
}

func TestWebhook_IgnoresOtherTypes(t *testing.T) {
    a := newApp(t, 8)
    a.pay(t, "a")

    rec := a.deliver("evt_f", "payment.failed", "a")

    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, model.StatusPending, a.participant(t, "a").Status)
}

func TestWaitlist_Lifecycle(t *testing.T) {
    a := newApp(t, 8)
    tok := token(t, "w", "Wendy")

    rec := a.do(http.MethodGet, "/v1/competitions/spring/me", tok, nil, nil)
    assert.Equal(t, http.StatusNotFound, rec.Code)

    rec = a.do(http.MethodPost, "/v1/competitions/spring/waitlist", tok, nil, nil)
    require.Equal(t, http.StatusOK, rec.Code)
    var p model.Participant
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
    assert.Equal(t, model.StatusWaiting, p.Status)
    assert.Equal(t, "Wendy", p.DisplayName)

    rec = a.do(http.MethodGet, "/v1/competitions/spring/me", tok, nil, nil)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), `"position":1`)

    a.pay(t, "w")
    require.Equal(t, http.StatusOK, a.deliver("evt_w", webhook.TypePaymentSucceeded, "w").Code)

    rec = a.do(http.MethodGet, "/v1/competitions/spring/me", tok, nil, nil)
    require.Equal(t, http.StatusOK, rec.Code)
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
    assert.Equal(t, model.StatusEntered, p.Status)
    assert.True(t, p.Paid)
    require.NotNil(t, p.SlotNumber)
    assert.Equal(t, 1, *p.SlotNumber)
    assert.NotContains(t, rec.Body.String(), `"position"`)

    rec = a.do(http.MethodDelete, "/v1/competitions/spring/waitlist", tok, nil, nil)
    assert.Equal(t, http.StatusNoContent, rec.Code)
    free, err := a.slots.Free(context.Background(), competition)
    require.NoError(t, err)
    assert.Len(t, free, 8)
}

func TestHealth(t *testing.T) {
    a := newApp(t, 1)

    rec := a.do(http.MethodGet, "/healthz", "", nil, nil)

    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "ok", rec.Body.String())
}
