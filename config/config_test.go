package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"
)

func TestValidateAndAddDefaults(t *testing.T) {
	// Test case with empty ProjectName and DataSource DNS
	cnf := Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}
	cnf = Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "postgres://localhost:5432",
		},
		Redis: RedisConfig{
			Dns: "",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}

	// Test case with all required fields filled, expect no error
	cnf = Configuration{
		ProjectName: "Test Project",
		DataSource: DataSourceConfig{
			Dns: "some-dns",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cnf.Server.Port != DEFAULT_PORT {
		t.Errorf("Expected default port %s, got %s", DEFAULT_PORT, cnf.Server.Port)
	}
	if cnf.DataSource.Driver != DriverPostgres {
		t.Errorf("Expected default driver %s, got %s", DriverPostgres, cnf.DataSource.Driver)
	}
}

func TestValidateAndAddDefaults_Gateway(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "some-dns"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Gateway:    GatewayConfig{SocketTimeoutMs: 5000},
	}

	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cnf.Gateway.Endpoint != DefaultGatewayEndpoint {
		t.Errorf("Expected endpoint %s, got %s", DefaultGatewayEndpoint, cnf.Gateway.Endpoint)
	}
	if cnf.Gateway.AuthorizationType != DefaultAuthorizationType {
		t.Errorf("Expected authorization type %s, got %s", DefaultAuthorizationType, cnf.Gateway.AuthorizationType)
	}
	if cnf.Gateway.ConnectTimeout() != 30*time.Second {
		t.Errorf("Expected connect timeout 30s, got %s", cnf.Gateway.ConnectTimeout())
	}
	if cnf.Gateway.SocketTimeout() != 5*time.Second {
		t.Errorf("Expected configured socket timeout to survive defaults, got %s", cnf.Gateway.SocketTimeout())
	}
	if cnf.Queue.WorkerConcurrency != DefaultMaxConnections {
		t.Errorf("Expected worker concurrency %d, got %d", DefaultMaxConnections, cnf.Queue.WorkerConcurrency)
	}
	if cnf.Queue.NotificationQueue != DefaultNotificationQueue {
		t.Errorf("Expected queue %s, got %s", DefaultNotificationQueue, cnf.Queue.NotificationQueue)
	}
}

func TestValidateAndAddDefaults_Tenants(t *testing.T) {
	base := func(tenants ...TenantConfig) Configuration {
		return Configuration{
			DataSource: DataSourceConfig{Dns: "some-dns"},
			Redis:      RedisConfig{Dns: "localhost:6379"},
			Tenants:    tenants,
		}
	}
	valid := TenantConfig{ID: "tenant-1", MerchantID: "1234", APIKeyID: "key", SecretAPIKey: "secret"}

	cnf := base(valid)
	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	cnf = base(valid, valid)
	if err := cnf.validateAndAddDefaults(); err == nil {
		t.Error("Expected duplicate tenant error")
	}

	missingMerchant := valid
	missingMerchant.MerchantID = ""
	cnf = base(missingMerchant)
	if err := cnf.validateAndAddDefaults(); err == nil {
		t.Error("Expected missing merchant id error")
	}

	missingKey := valid
	missingKey.SecretAPIKey = ""
	cnf = base(missingKey)
	if err := cnf.validateAndAddDefaults(); err == nil {
		t.Error("Expected missing api key error")
	}
}

func TestValidateAndAddDefaults_DynamoDB(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Driver: "DynamoDB"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	}
	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error without a DNS for dynamodb, got %v", err)
	}
	if cnf.DataSource.DynamoTable != DefaultDynamoTable {
		t.Errorf("Expected default table %s, got %s", DefaultDynamoTable, cnf.DataSource.DynamoTable)
	}

	cnf = Configuration{
		DataSource: DataSourceConfig{Driver: "mysql", Dns: "x"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	}
	if err := cnf.validateAndAddDefaults(); err == nil {
		t.Error("Expected unsupported driver error")
	}
}

func TestGatewayFor(t *testing.T) {
	cnf := Configuration{
		Gateway: GatewayConfig{
			Endpoint:          DefaultGatewayEndpoint,
			AuthorizationType: DefaultAuthorizationType,
			ConnectTimeoutMs:  1000,
			SocketTimeoutMs:   2000,
			MaxConnections:    4,
		},
	}
	tenant := TenantConfig{ID: "tenant-1", Gateway: &GatewayConfig{Endpoint: "https://world.api-ingenico.com", MaxConnections: 20}}

	effective := cnf.GatewayFor(tenant)
	if effective.Endpoint != "https://world.api-ingenico.com" {
		t.Errorf("Expected tenant endpoint, got %s", effective.Endpoint)
	}
	if effective.MaxConnections != 20 {
		t.Errorf("Expected tenant max connections, got %d", effective.MaxConnections)
	}
	if effective.SocketTimeoutMs != 2000 {
		t.Errorf("Expected default socket timeout, got %d", effective.SocketTimeoutMs)
	}

	plain := cnf.GatewayFor(TenantConfig{ID: "tenant-2"})
	if plain != cnf.Gateway {
		t.Errorf("Expected defaults for a tenant without overrides, got %+v", plain)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	// Create a temporary file
	tmpFile, err := os.CreateTemp("", "paysync.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource: DataSourceConfig{
			Dns: "temp-dns",
		},
		Redis: RedisConfig{
			Dns: "temp-redis",
		},
		Tenants: []TenantConfig{
			{ID: "tenant-1", MerchantID: "1234", APIKeyID: "key", SecretAPIKey: "secret"},
		},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close()

	// Set an environment variable to override the project name
	os.Setenv("PAYSYNC_PROJECT_NAME", "Env Project")
	defer os.Unsetenv("PAYSYNC_PROJECT_NAME")
	os.Setenv("PAYSYNC_GATEWAY_MAX_CONNECTIONS", "3")
	defer os.Unsetenv("PAYSYNC_GATEWAY_MAX_CONNECTIONS")

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	loadedConfig, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if loadedConfig.ProjectName != "Env Project" {
		t.Errorf("Expected ProjectName to be 'Env Project', got '%s'", loadedConfig.ProjectName)
	}
	if loadedConfig.DataSource.Dns != "temp-dns" {
		t.Errorf("Expected DataSource.Dns to be 'temp-dns', got '%s'", loadedConfig.DataSource.Dns)
	}
	if loadedConfig.Gateway.MaxConnections != 3 {
		t.Errorf("Expected Gateway.MaxConnections to be 3, got %d", loadedConfig.Gateway.MaxConnections)
	}
	if _, ok := loadedConfig.Tenant("tenant-1"); !ok {
		t.Error("Expected tenant-1 to be loaded from file")
	}
}

func TestInitConfig(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "paysync.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "InitConfig Test",
		DataSource: DataSourceConfig{
			Dns: "init-config-dns",
		}, Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close()

	if err := InitConfig(tmpFile.Name()); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	loadedConfig, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if loadedConfig.ProjectName != "InitConfig Test" {
		t.Errorf("Expected ProjectName to be 'InitConfig Test', got '%s'", loadedConfig.ProjectName)
	}
	if loadedConfig.DataSource.Dns != "init-config-dns" {
		t.Errorf("Expected DataSource.Dns to be 'init-config-dns', got '%s'", loadedConfig.DataSource.Dns)
	}
}
