package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/paysync/config"
)

const redacted = "********"

func redact(value string) string {
	if value == "" {
		return ""
	}
	return redacted
}

// redactedConfig returns a copy of cnf that is safe to print.
func redactedConfig(cnf *config.Configuration) config.Configuration {
	out := *cnf
	out.Server.SecretKey = redact(out.Server.SecretKey)
	out.Billing.Password = redact(out.Billing.Password)
	out.Notification.Slack.WebhookUrl = redact(out.Notification.Slack.WebhookUrl)

	out.Tenants = make([]config.TenantConfig, len(cnf.Tenants))
	for i, tenant := range cnf.Tenants {
		tenant.SecretAPIKey = redact(tenant.SecretAPIKey)
		tenant.BillingAPISecret = redact(tenant.BillingAPISecret)
		tenant.WebhookSecret = redact(tenant.WebhookSecret)
		out.Tenants[i] = tenant
	}
	return out
}

func configCommands(p *paysyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instance's computed configuration",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := json.MarshalIndent(redactedConfig(p.cnf), "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}
