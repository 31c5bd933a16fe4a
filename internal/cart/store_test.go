package cart_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/cart"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := cart.NewRedisStore(client, time.Hour)
	ctx := context.Background()

	_, err = store.Load(ctx, "missing")
	require.ErrorIs(t, err, cart.ErrNotFound)

	f := newFixture()
	f.svc.Store = store
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("2")})

	require.True(t, mr.Exists("cart:c1"))
	require.Equal(t, time.Hour, mr.TTL("cart:c1"))

	loaded, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, c.Checksum, loaded.Checksum)
	require.Len(t, loaded.Lines, 1)
	require.True(t, loaded.Lines[0].Quantity.Equal(dec("2")))
	require.True(t, loaded.Totals["EUR"].Gross.Equal(dec("23.8")))

	require.NoError(t, store.Delete(ctx, "c1"))
	require.False(t, mr.Exists("cart:c1"))
}
