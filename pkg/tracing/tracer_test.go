package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestConfig_AllowInsecure(t *testing.T) {
	assert.True(t, Config{Insecure: true, Environment: "development"}.allowInsecure())
	assert.False(t, Config{Insecure: true, Environment: "production"}.allowInsecure())
	assert.False(t, Config{Insecure: false, Environment: "development"}.allowInsecure())
}

func TestSpanHelpers(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "engine.update")
	assert.NotNil(t, ctx)
	EndSpan(span, errors.New("boom"))

	_, dbSpan := StartDBSpan(context.Background(), DBSpanConfig{Operation: "SELECT", Table: "credentials"})
	EndDBSpan(dbSpan, nil, 1)
	dbSpan.End()
}
