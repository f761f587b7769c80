package memgateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/nutrisync/internal/client/gateway"
	"github.com/dmitrijs2005/nutrisync/internal/client/models"
)

var _ gateway.Gateway = (*Server)(nil)

func TestCreate_IsIdempotentPerChangeID(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := gateway.Mutation{Entity: models.EntityFood, OwnerID: "u1", ChangeID: "c1", Payload: models.Food{Name: "Oats"}}

	a1, err := s.Create(ctx, m)
	require.NoError(t, err)
	a2, err := s.Create(ctx, m)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Equal(t, "srv1", a1.RemoteID)
	assert.Equal(t, 1, s.Len(models.EntityFood))
}

func TestList_FiltersByOwnerAndDay(t *testing.T) {
	s := New()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Seed(models.EntityWeight, "u1", "w1", models.Weight{Date: "2024-03-01", WeightKg: 70}, at)
	s.Seed(models.EntityWeight, "u1", "w2", models.Weight{Date: "2024-01-01", WeightKg: 72}, at)
	s.Seed(models.EntityWeight, "u2", "w3", models.Weight{Date: "2024-03-01", WeightKg: 90}, at)

	got, err := s.List(context.Background(), models.EntityWeight, "u1", models.Filter{From: "2024-02-01", To: "2024-03-31"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "w1", got[0].RemoteID)
	assert.Equal(t, at, got[0].UpdatedAt)
}

func TestUpdate_Unknown(t *testing.T) {
	s := New()
	_, err := s.Update(context.Background(), gateway.Mutation{Entity: models.EntityWater, RemoteID: "nope", Payload: models.Water{}})
	require.ErrorIs(t, err, gateway.ErrRejected)
}

func TestDownAndIntercept(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.SetDown(true)
	require.ErrorIs(t, s.Ping(ctx), gateway.ErrUnavailable)

	s.SetDown(false)
	boom := errors.New("boom")
	s.Intercept(func(ctx context.Context, c Call) error {
		if c.Op == "delete" {
			return boom
		}
		return nil
	})
	require.NoError(t, s.Ping(ctx))
	require.ErrorIs(t, s.Delete(ctx, gateway.Mutation{Entity: models.EntityFood, RemoteID: "x"}), boom)

	assert.Equal(t, 2, s.CountCalls("ping"))
	assert.Equal(t, 1, s.CountCalls("delete"))
}
