package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blnkfinance/paysync/config"
)

func TestRedactedConfig(t *testing.T) {
	cnf := &config.Configuration{
		ProjectName: "paysync",
		Server:      config.ServerConfig{SecretKey: "master"},
		Billing:     config.BillingConfig{URL: "http://billing", Password: "pw"},
		Tenants: []config.TenantConfig{
			{ID: "tenant-1", APIKeyID: "key", SecretAPIKey: "secret", BillingAPISecret: "bsecret", WebhookSecret: "whsecret"},
			{ID: "tenant-2"},
		},
	}

	out := redactedConfig(cnf)

	assert.Equal(t, redacted, out.Server.SecretKey)
	assert.Equal(t, redacted, out.Billing.Password)
	assert.Equal(t, "http://billing", out.Billing.URL)
	assert.Equal(t, "key", out.Tenants[0].APIKeyID)
	assert.Equal(t, redacted, out.Tenants[0].SecretAPIKey)
	assert.Equal(t, redacted, out.Tenants[0].BillingAPISecret)
	assert.Equal(t, redacted, out.Tenants[0].WebhookSecret)
	assert.Empty(t, out.Tenants[1].SecretAPIKey)

	// the loaded configuration is untouched
	assert.Equal(t, "master", cnf.Server.SecretKey)
	assert.Equal(t, "secret", cnf.Tenants[0].SecretAPIKey)
}
