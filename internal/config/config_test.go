package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BILLING_SHORTFALL_POLICY", "")
	t.Setenv("RESERVATION_HOLD_MINUTES", "0")

	_, err := Load()
	require.Error(t, err, "empty policy is not a valid choice")

	t.Setenv("BILLING_SHORTFALL_POLICY", "penalize")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ShortfallPenalize, cfg.ShortfallPolicy)
	assert.Equal(t, time.Duration(0), cfg.ReservationHold)
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("BILLING_SHORTFALL_POLICY", "ignore")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadParsesHoldAndFallsBackOnGarbage(t *testing.T) {
	t.Setenv("BILLING_SHORTFALL_POLICY", "REJECT")
	t.Setenv("RESERVATION_HOLD_MINUTES", "15")
	t.Setenv("DB_PORT", "not-a-port")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ShortfallReject, cfg.ShortfallPolicy)
	assert.Equal(t, 15*time.Minute, cfg.ReservationHold)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadRejectsNegativeHold(t *testing.T) {
	t.Setenv("BILLING_SHORTFALL_POLICY", "penalize")
	t.Setenv("RESERVATION_HOLD_MINUTES", "-5")
	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: 5433, DBName: "parking", DBSslMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5433/parking?sslmode=disable", cfg.DatabaseURL())
}
