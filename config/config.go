/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"

	DefaultGatewayEndpoint   = "https://api-sandbox.globalcollect.com"
	DefaultAuthorizationType = "V1HMAC"
	DefaultIntegrator        = "Ingenico"
	DefaultConnectTimeoutMs  = 30000
	DefaultSocketTimeoutMs   = 60000
	DefaultMaxConnections    = 10

	DefaultNotificationQueue = "paysync_notifications"
	DefaultMaxRetries        = 10
	DefaultMonitoringPort    = "5004"
	DefaultDynamoTable       = "paysync_gateway_transactions"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"PAYSYNC_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"PAYSYNC_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PAYSYNC_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"PAYSYNC_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"PAYSYNC_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"PAYSYNC_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns            string `json:"dns" envconfig:"PAYSYNC_DATA_SOURCE_DNS"`
	Driver         string `json:"driver" envconfig:"PAYSYNC_DATA_SOURCE_DRIVER"`
	DynamoTable    string `json:"dynamo_table" envconfig:"PAYSYNC_DYNAMO_TABLE"`
	DynamoRegion   string `json:"dynamo_region" envconfig:"PAYSYNC_DYNAMO_REGION"`
	DynamoEndpoint string `json:"dynamo_endpoint" envconfig:"PAYSYNC_DYNAMO_ENDPOINT"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"PAYSYNC_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"PAYSYNC_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	NotificationQueue string `json:"notification_queue" envconfig:"PAYSYNC_QUEUE_NOTIFICATION_QUEUE"`
	MaxRetries        int    `json:"max_retries" envconfig:"PAYSYNC_QUEUE_MAX_RETRIES"`
	WorkerConcurrency int    `json:"worker_concurrency" envconfig:"PAYSYNC_QUEUE_WORKER_CONCURRENCY"`
	MonitoringPort    string `json:"monitoring_port" envconfig:"PAYSYNC_QUEUE_MONITORING_PORT"`
}

// GatewayConfig holds connection settings. At the top level they are the
// defaults; on a tenant they override the defaults field by field.
type GatewayConfig struct {
	Endpoint          string `json:"endpoint" envconfig:"PAYSYNC_GATEWAY_ENDPOINT"`
	AuthorizationType string `json:"authorization_type" envconfig:"PAYSYNC_GATEWAY_AUTHORIZATION_TYPE"`
	Integrator        string `json:"integrator" envconfig:"PAYSYNC_GATEWAY_INTEGRATOR"`
	ConnectTimeoutMs  int    `json:"connect_timeout_ms" envconfig:"PAYSYNC_GATEWAY_CONNECT_TIMEOUT_MS"`
	SocketTimeoutMs   int    `json:"socket_timeout_ms" envconfig:"PAYSYNC_GATEWAY_SOCKET_TIMEOUT_MS"`
	MaxConnections    int    `json:"max_connections" envconfig:"PAYSYNC_GATEWAY_MAX_CONNECTIONS"`
}

func (g GatewayConfig) ConnectTimeout() time.Duration {
	return time.Duration(g.ConnectTimeoutMs) * time.Millisecond
}

func (g GatewayConfig) SocketTimeout() time.Duration {
	return time.Duration(g.SocketTimeoutMs) * time.Millisecond
}

// overlay returns g with every non-zero field of o applied.
func (g GatewayConfig) overlay(o *GatewayConfig) GatewayConfig {
	if o == nil {
		return g
	}
	if o.Endpoint != "" {
		g.Endpoint = o.Endpoint
	}
	if o.AuthorizationType != "" {
		g.AuthorizationType = o.AuthorizationType
	}
	if o.Integrator != "" {
		g.Integrator = o.Integrator
	}
	if o.ConnectTimeoutMs > 0 {
		g.ConnectTimeoutMs = o.ConnectTimeoutMs
	}
	if o.SocketTimeoutMs > 0 {
		g.SocketTimeoutMs = o.SocketTimeoutMs
	}
	if o.MaxConnections > 0 {
		g.MaxConnections = o.MaxConnections
	}
	return g
}

type TenantConfig struct {
	ID               string         `json:"id"`
	MerchantID       string         `json:"merchant_id"`
	APIKeyID         string         `json:"api_key_id"`
	SecretAPIKey     string         `json:"secret_api_key"`
	BillingAPIKey    string         `json:"billing_api_key"`
	BillingAPISecret string         `json:"billing_api_secret"`
	WebhookKeyID     string         `json:"webhook_key_id"`
	WebhookSecret    string         `json:"webhook_secret"`
	Gateway          *GatewayConfig `json:"gateway,omitempty"`
}

type BillingConfig struct {
	URL       string `json:"url" envconfig:"PAYSYNC_BILLING_URL"`
	Username  string `json:"username" envconfig:"PAYSYNC_BILLING_USERNAME"`
	Password  string `json:"password" envconfig:"PAYSYNC_BILLING_PASSWORD"`
	TimeoutMs int    `json:"timeout_ms" envconfig:"PAYSYNC_BILLING_TIMEOUT_MS"`
}

type ClassificationConfig struct {
	OverridesFile string `json:"overrides_file" envconfig:"PAYSYNC_CLASSIFICATION_OVERRIDES_FILE"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"PAYSYNC_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"PAYSYNC_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"PAYSYNC_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"PAYSYNC_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName     string               `json:"project_name" envconfig:"PAYSYNC_PROJECT_NAME"`
	Server          ServerConfig         `json:"server"`
	DataSource      DataSourceConfig     `json:"data_source"`
	Redis           RedisConfig          `json:"redis"`
	Queue           QueueConfig          `json:"queue"`
	Gateway         GatewayConfig        `json:"gateway"`
	Tenants         []TenantConfig       `json:"tenants" ignored:"true"`
	Billing         BillingConfig        `json:"billing"`
	Classification  ClassificationConfig `json:"classification"`
	Notification    Notification         `json:"notification"`
	RateLimit       RateLimitConfig      `json:"rate_limit"`
	EnableTelemetry bool                 `json:"enable_telemetry" envconfig:"PAYSYNC_ENABLE_TELEMETRY"`
}

// GatewayFor returns the effective gateway settings of a tenant.
func (cnf *Configuration) GatewayFor(tenant TenantConfig) GatewayConfig {
	return cnf.Gateway.overlay(tenant.Gateway)
}

// Tenant looks up a configured tenant by id.
func (cnf *Configuration) Tenant(id string) (TenantConfig, bool) {
	for _, t := range cnf.Tenants {
		if t.ID == id {
			return t, true
		}
	}
	return TenantConfig{}, false
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("paysync", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called paysync.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "PaySync"
	}

	cnf.DataSource.Driver = strings.ToLower(strings.TrimSpace(cnf.DataSource.Driver))
	if cnf.DataSource.Driver == "" {
		cnf.DataSource.Driver = DriverPostgres
	}
	switch cnf.DataSource.Driver {
	case DriverPostgres:
		if cnf.DataSource.Dns == "" {
			log.Println("Error: Data source DNS is empty. It's a required field.")
			return errors.New("data source DNS is required")
		}
	case DriverDynamoDB:
		if cnf.DataSource.DynamoTable == "" {
			cnf.DataSource.DynamoTable = DefaultDynamoTable
			log.Printf("Warning: DynamoDB table not specified. Setting default table: %s", DefaultDynamoTable)
		}
		if cnf.DataSource.DynamoRegion == "" {
			cnf.DataSource.DynamoRegion = "us-east-1"
		}
	default:
		return fmt.Errorf("unsupported data source driver %q", cnf.DataSource.Driver)
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Gateway = GatewayConfig{
		Endpoint:          DefaultGatewayEndpoint,
		AuthorizationType: DefaultAuthorizationType,
		Integrator:        DefaultIntegrator,
		ConnectTimeoutMs:  DefaultConnectTimeoutMs,
		SocketTimeoutMs:   DefaultSocketTimeoutMs,
		MaxConnections:    DefaultMaxConnections,
	}.overlay(&cnf.Gateway)

	seen := make(map[string]bool, len(cnf.Tenants))
	for i := range cnf.Tenants {
		t := &cnf.Tenants[i]
		t.ID = strings.TrimSpace(t.ID)
		switch {
		case t.ID == "":
			return fmt.Errorf("tenant %d: id is required", i)
		case seen[t.ID]:
			return fmt.Errorf("tenant %s is configured twice", t.ID)
		case t.MerchantID == "":
			return fmt.Errorf("tenant %s: merchant id is required", t.ID)
		case t.APIKeyID == "" || t.SecretAPIKey == "":
			return fmt.Errorf("tenant %s: api key id and secret are required", t.ID)
		}
		seen[t.ID] = true
	}
	if len(cnf.Tenants) == 0 {
		log.Println("Warning: no tenants configured. Every gateway call will be reported as not sent.")
	}

	if cnf.Queue.NotificationQueue == "" {
		cnf.Queue.NotificationQueue = DefaultNotificationQueue
	}
	if cnf.Queue.MaxRetries <= 0 {
		cnf.Queue.MaxRetries = DefaultMaxRetries
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DefaultMonitoringPort
	}
	if cnf.Queue.WorkerConcurrency <= 0 {
		cnf.Queue.WorkerConcurrency = cnf.Gateway.MaxConnections
		log.Printf("Warning: worker concurrency not specified. Matching gateway max connections: %d", cnf.Queue.WorkerConcurrency)
	}

	if cnf.Billing.TimeoutMs <= 0 {
		cnf.Billing.TimeoutMs = DefaultSocketTimeoutMs
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
