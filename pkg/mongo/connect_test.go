package mongo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/entitlements/pkg/mongo"
)

func TestConnect_RequiresURL(t *testing.T) {
	t.Parallel()

	cfg := mongo.Config{}
	assert.False(t, cfg.Enabled())

	_, _, err := mongo.Connect(context.Background(), cfg)
	assert.ErrorIs(t, err, mongo.ErrEmptyConnectionURL)
}
