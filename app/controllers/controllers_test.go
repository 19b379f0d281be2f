package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/markbates/goth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/ignews/app/models"
	"github.com/ManuelReschke/ignews/internal/pkg/billing"
	"github.com/ManuelReschke/ignews/internal/pkg/cms"
	"github.com/ManuelReschke/ignews/internal/pkg/identity"
	"github.com/ManuelReschke/ignews/internal/pkg/posts"
	"github.com/ManuelReschke/ignews/internal/pkg/usercontext"
	"github.com/ManuelReschke/ignews/views"
)

// newTestApp renders the embedded views. X-Test-Email signs the request in,
// X-Test-Active adds an active subscription.
func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{
		Views: html.NewFileSystem(http.FS(views.FS), ".html"),
	})
	app.Use(func(c *fiber.Ctx) error {
		email := c.Get("X-Test-Email")
		if email == "" {
			return c.Next()
		}
		sess := identity.Session{User: identity.SessionUser{Name: "Reader", Email: email}}
		if c.Get("X-Test-Active") != "" {
			sess.ActiveSubscription = &models.Subscription{ID: "sub_123", Status: models.SubscriptionStatusActive}
		}
		c.Locals(usercontext.LocalsKey, usercontext.UserContext{IsLoggedIn: true, Session: sess})
		return c.Next()
	})
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

type fakePosts struct {
	err  error
	list []posts.Summary
}

func (f *fakePosts) Preview(_ context.Context, slug string) (*posts.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &posts.Post{Slug: slug, Title: "Hello", Content: "<p>one</p>", UpdatedAt: "25 de março de 2021"}, nil
}

func (f *fakePosts) Post(_ context.Context, slug string) (*posts.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &posts.Post{Slug: slug, Title: "Hello", Content: "<p>one</p><p>four</p>", UpdatedAt: "25 de março de 2021"}, nil
}

func (f *fakePosts) List(context.Context) ([]posts.Summary, error) {
	return f.list, f.err
}

func postApp(source PostSource) *fiber.App {
	app := newTestApp()
	pc := NewPostController(source)
	app.Get("/posts", pc.HandleIndex)
	app.Get("/posts/preview/:slug", pc.HandlePreview)
	app.Get("/posts/:slug", pc.HandleShow)
	return app
}

func TestHandlePreview(t *testing.T) {
	app := postApp(&fakePosts{})

	t.Run("anonymous reader sees the preview", func(t *testing.T) {
		resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/posts/preview/hello", nil))
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "<p>one</p>")
		assert.Contains(t, body, "Wanna continue reading?")
		assert.Contains(t, body, "/api/auth/session")
		assert.Contains(t, body, "<title>Hello | ig.news</title>")
	})

	t.Run("signed in without subscription sees the preview", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/posts/preview/hello", nil)
		req.Header.Set("X-Test-Email", "free@example.com")
		resp, _ := do(t, app, req)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("subscriber is redirected to the full post", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/posts/preview/hello", nil)
		req.Header.Set("X-Test-Email", "paid@example.com")
		req.Header.Set("X-Test-Active", "1")
		resp, _ := do(t, app, req)
		assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/posts/hello", resp.Header.Get("Location"))
	})
}

func TestHandlePreview_Errors(t *testing.T) {
	resp, body := do(t, postApp(&fakePosts{err: fmt.Errorf("%w: missing", cms.ErrNotFound)}),
		httptest.NewRequest(http.MethodGet, "/posts/preview/missing", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Post not found.")

	resp, _ = do(t, postApp(&fakePosts{err: errors.New("cms down")}),
		httptest.NewRequest(http.MethodGet, "/posts/preview/hello", nil))
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

func TestHandleShow(t *testing.T) {
	resp, body := do(t, postApp(&fakePosts{}), httptest.NewRequest(http.MethodGet, "/posts/hello", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<p>four</p>")
	assert.NotContains(t, body, "Wanna continue reading?")
}

func TestHandleIndex(t *testing.T) {
	source := &fakePosts{list: []posts.Summary{{Slug: "hello", Title: "Hello", Excerpt: "first", UpdatedAt: "25 de março de 2021"}}}
	resp, body := do(t, postApp(source), httptest.NewRequest(http.MethodGet, "/posts", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `href="/posts/preview/hello"`)
	assert.Contains(t, body, "25 de março de 2021")
}

type fakePrices struct {
	price *billing.Price
	err   error
}

func (f fakePrices) Price(context.Context) (*billing.Price, error) {
	return f.price, f.err
}

func TestHandleHome(t *testing.T) {
	app := newTestApp()
	app.Get("/", NewHomeController(fakePrices{price: &billing.Price{ID: "price_789", Amount: "$9.90", Currency: "usd"}}, "pk_test").HandleHome)
	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "for $9.90 month")
	assert.Contains(t, body, `href="/auth/github"`)

	app = newTestApp()
	app.Get("/", NewHomeController(fakePrices{err: errors.New("stripe down")}, "pk_test").HandleHome)
	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "month")
	assert.Contains(t, body, "Subscribe now")
}

type fakeBridge struct {
	allow    bool
	profiles []identity.Profile
}

func (f *fakeBridge) SignIn(_ context.Context, p identity.Profile) bool {
	f.profiles = append(f.profiles, p)
	return f.allow
}

type fakeSessions struct {
	logins  []identity.SessionUser
	logouts int
}

func (f *fakeSessions) Login(_ *fiber.Ctx, user identity.SessionUser) error {
	f.logins = append(f.logins, user)
	return nil
}

func (f *fakeSessions) Logout(*fiber.Ctx) error {
	f.logouts++
	return nil
}

func authApp(ac *AuthController) *fiber.App {
	app := newTestApp()
	app.Get("/auth/:provider/callback", ac.HandleOAuthCallback)
	app.Post("/logout", ac.HandleLogout)
	app.Get("/api/auth/session", ac.HandleSession)
	return app
}

func TestHandleOAuthCallback(t *testing.T) {
	bridge := &fakeBridge{allow: true}
	sessions := &fakeSessions{}
	ac := NewAuthController(bridge, sessions)
	ac.completeAuth = func(*fiber.Ctx) (goth.User, error) {
		return goth.User{Email: " Reader@Example.com ", NickName: "reader", AvatarURL: "https://avatars/1"}, nil
	}

	resp, _ := do(t, authApp(ac), httptest.NewRequest(http.MethodGet, "/auth/github/callback", nil))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	require.Len(t, sessions.logins, 1)
	assert.Equal(t, identity.SessionUser{Name: "reader", Email: "reader@example.com", Image: "https://avatars/1"}, sessions.logins[0])
	assert.Equal(t, "reader", bridge.profiles[0].Name)
}

func TestHandleOAuthCallback_Denied(t *testing.T) {
	sessions := &fakeSessions{}
	ac := NewAuthController(&fakeBridge{allow: false}, sessions)
	ac.completeAuth = func(*fiber.Ctx) (goth.User, error) {
		return goth.User{Email: ""}, nil
	}
	resp, _ := do(t, authApp(ac), httptest.NewRequest(http.MethodGet, "/auth/github/callback", nil))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Empty(t, sessions.logins)

	ac.completeAuth = func(*fiber.Ctx) (goth.User, error) {
		return goth.User{}, errors.New("state mismatch")
	}
	resp, _ = do(t, authApp(ac), httptest.NewRequest(http.MethodGet, "/auth/github/callback", nil))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Empty(t, sessions.logins)
}

func TestHandleLogout(t *testing.T) {
	sessions := &fakeSessions{}
	resp, _ := do(t, authApp(NewAuthController(&fakeBridge{}, sessions)), httptest.NewRequest(http.MethodPost, "/logout", nil))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, 1, sessions.logouts)
}

func TestHandleSession(t *testing.T) {
	app := authApp(NewAuthController(&fakeBridge{}, &fakeSessions{}))

	_, body := do(t, app, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
	assert.JSONEq(t, `{}`, body)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("X-Test-Email", "paid@example.com")
	req.Header.Set("X-Test-Active", "1")
	_, body = do(t, app, req)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "paid@example.com", got["user"].(map[string]any)["email"])
	assert.Equal(t, "sub_123", got["activeSubscription"].(map[string]any)["id"])

	req = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("X-Test-Email", "free@example.com")
	_, body = do(t, app, req)
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Nil(t, got["activeSubscription"])
}

type fakeSubscriber struct {
	emails []string
	err    error
}

func (f *fakeSubscriber) Subscribe(_ context.Context, email string) (string, error) {
	f.emails = append(f.emails, email)
	return "cs_test_1", f.err
}

type fakeVerifier struct{}

func (fakeVerifier) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	if signature != "valid" {
		return stripe.Event{}, errors.New("bad signature")
	}
	var e stripe.Event
	err := json.Unmarshal(payload, &e)
	return e, err
}

type fakeEvents struct {
	stored   map[string]*models.BillingWebhookEvent
	recorded int
	marked   []error
}

func (f *fakeEvents) RecordWebhookEvent(_ context.Context, in billing.WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	f.recorded++
	if e, ok := f.stored[in.ProviderEventID]; ok {
		return false, e, nil
	}
	e := &models.BillingWebhookEvent{ID: uint(len(f.stored) + 1), ProviderEventID: in.ProviderEventID}
	f.stored[in.ProviderEventID] = e
	return true, e, nil
}

func (f *fakeEvents) MarkWebhookProcessed(_ context.Context, id uint, processingErr error) error {
	f.marked = append(f.marked, processingErr)
	now := time.Now()
	for _, e := range f.stored {
		if e.ID == id {
			e.ProcessedAt = &now
			e.ProcessingError = ""
			if processingErr != nil {
				e.ProcessingError = processingErr.Error()
			}
		}
	}
	return nil
}

type fakeProcessor struct {
	err   error
	calls int
}

func (f *fakeProcessor) Process(context.Context, stripe.Event) error {
	f.calls++
	return f.err
}

func billingApp(bc *BillingController) *fiber.App {
	app := newTestApp()
	app.Post("/api/subscribe", bc.HandleSubscribe)
	app.Post("/api/webhooks", bc.HandleStripeWebhook)
	return app
}

func TestHandleSubscribe(t *testing.T) {
	sub := &fakeSubscriber{}
	app := billingApp(NewBillingController(sub, fakeVerifier{}, nil, nil))

	resp, _ := do(t, app, httptest.NewRequest(http.MethodPost, "/api/subscribe", nil))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/subscribe", nil)
	req.Header.Set("X-Test-Email", "paid@example.com")
	req.Header.Set("X-Test-Active", "1")
	resp, body := do(t, app, req)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.JSONEq(t, `{"error":"already_subscribed"}`, body)

	req = httptest.NewRequest(http.MethodPost, "/api/subscribe", nil)
	req.Header.Set("X-Test-Email", "Free@Example.com")
	resp, body = do(t, app, req)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"sessionId":"cs_test_1"}`, body)
	assert.Equal(t, []string{"free@example.com"}, sub.emails)

	sub.err = errors.New("stripe down")
	req = httptest.NewRequest(http.MethodPost, "/api/subscribe", nil)
	req.Header.Set("X-Test-Email", "free@example.com")
	resp, _ = do(t, app, req)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func webhookRequest(id, signature string) *http.Request {
	body := fmt.Sprintf(`{"id":%q,"type":"customer.subscription.updated","data":{"object":{}}}`, id)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks", strings.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	return req
}

func TestHandleStripeWebhook_Signature(t *testing.T) {
	events := &fakeEvents{stored: map[string]*models.BillingWebhookEvent{}}
	processor := &fakeProcessor{}
	app := billingApp(NewBillingController(nil, fakeVerifier{}, events, processor))

	resp, _ := do(t, app, webhookRequest("evt_1", ""))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, app, webhookRequest("evt_1", "forged"))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"invalid_signature"}`, body)

	assert.Zero(t, events.recorded)
	assert.Zero(t, processor.calls)
}

func TestHandleStripeWebhook_ProcessesOnce(t *testing.T) {
	events := &fakeEvents{stored: map[string]*models.BillingWebhookEvent{}}
	processor := &fakeProcessor{}
	app := billingApp(NewBillingController(nil, fakeVerifier{}, events, processor))

	resp, body := do(t, app, webhookRequest("evt_1", "valid"))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"received":true}`, body)

	resp, body = do(t, app, webhookRequest("evt_1", "valid"))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"received":true,"duplicate":true}`, body)
	assert.Equal(t, 1, processor.calls)
}

func TestHandleStripeWebhook_FailureIsRetried(t *testing.T) {
	events := &fakeEvents{stored: map[string]*models.BillingWebhookEvent{}}
	processor := &fakeProcessor{err: errors.New("stripe timeout")}
	app := billingApp(NewBillingController(nil, fakeVerifier{}, events, processor))

	resp, _ := do(t, app, webhookRequest("evt_2", "valid"))
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	processor.err = nil
	resp, _ = do(t, app, webhookRequest("evt_2", "valid"))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, processor.calls)
	require.Len(t, events.marked, 2)
	assert.Error(t, events.marked[0])
	assert.NoError(t, events.marked[1])
}

func TestHandleStripeWebhook_PermanentFailuresAcknowledged(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "duplicate subscription", err: fmt.Errorf("save: %w", billing.ErrDuplicateSubscription)},
		{name: "unknown customer", err: fmt.Errorf("resolve cus_x: %w", billing.ErrUnknownCustomer)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeEvents{stored: map[string]*models.BillingWebhookEvent{}}
			processor := &fakeProcessor{err: tt.err}
			app := billingApp(NewBillingController(nil, fakeVerifier{}, events, processor))

			resp, body := do(t, app, webhookRequest("evt_3", "valid"))
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.JSONEq(t, `{"received":true,"ignored":true}`, body)
			require.Len(t, events.marked, 1)
			assert.ErrorIs(t, events.marked[0], tt.err)
		})
	}
}

type fakeRevalidator struct {
	slugs []string
	err   error
}

func (f *fakeRevalidator) Revalidate(_ context.Context, slug string) error {
	f.slugs = append(f.slugs, slug)
	return f.err
}

func TestHandleRevalidate(t *testing.T) {
	rv := &fakeRevalidator{}
	app := newTestApp()
	app.Post("/admin/posts/:slug/revalidate", NewAdminController(rv).HandleRevalidate)

	resp, body := do(t, app, httptest.NewRequest(http.MethodPost, "/admin/posts/hello/revalidate", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"revalidated":"hello"}`, body)
	assert.Equal(t, []string{"hello"}, rv.slugs)

	rv.err = errors.New("redis down")
	resp, _ = do(t, app, httptest.NewRequest(http.MethodPost, "/admin/posts/hello/revalidate", nil))
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
