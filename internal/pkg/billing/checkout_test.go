package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/ignews/app/models"
)

type fakeProvider struct {
	customers  int
	sessionFor string
	priceCalls int
	err        error
}

func (f *fakeProvider) CreateCustomer(_ context.Context, email string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.customers++
	return "cus_new", nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, customerID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sessionFor = customerID
	return "cs_test_1", nil
}

func (f *fakeProvider) GetPrice(_ context.Context) (*stripe.Price, error) {
	f.priceCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.Price{ID: "price_789", UnitAmount: 990, Currency: stripe.CurrencyUSD}, nil
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = value
	return nil
}

func TestCheckout_SubscribeCreatesCustomerOnce(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	_, err := repos.User.FirstOrCreateByEmail(ctx, &models.User{Email: "reader@example.com"})
	require.NoError(t, err)

	provider := &fakeProvider{}
	checkout := NewCheckout(provider, repos.User, nil)

	sessionID, err := checkout.Subscribe(ctx, "reader@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sessionID)
	assert.Equal(t, "cus_new", provider.sessionFor)

	u, err := repos.User.GetByStripeCustomerID(ctx, "cus_new")
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", u.Email)

	_, err = checkout.Subscribe(ctx, "reader@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.customers)
}

func TestCheckout_SubscribeErrors(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	_, err := NewCheckout(&fakeProvider{}, repos.User, nil).Subscribe(ctx, "ghost@example.com")
	assert.Error(t, err)

	_, err = repos.User.FirstOrCreateByEmail(ctx, &models.User{Email: "reader@example.com"})
	require.NoError(t, err)
	_, err = NewCheckout(&fakeProvider{err: errors.New("stripe down")}, repos.User, nil).Subscribe(ctx, "reader@example.com")
	assert.Error(t, err)
}

func TestCheckout_PriceIsCached(t *testing.T) {
	provider := &fakeProvider{}
	checkout := NewCheckout(provider, nil, &memoryCache{})

	for i := 0; i < 3; i++ {
		p, err := checkout.Price(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "$9.90", p.Amount)
		assert.Equal(t, "price_789", p.ID)
	}
	assert.Equal(t, 1, provider.priceCalls)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$9.90", FormatAmount(990, "usd"))
	assert.Equal(t, "$0.00", FormatAmount(0, ""))
	assert.Equal(t, "12.50 EUR", FormatAmount(1250, "eur"))
}
