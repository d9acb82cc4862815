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

// Package dynamo keeps the gateway transaction ledger in a DynamoDB table.
//
// Table layout:
//   - PK: pk (string, "<tenant>#<transaction id>"), SK: record_id (number)
//   - GSI gateway_transaction-index: gateway_key / record_id
//   - GSI payment-index: payment_key / record_id
package dynamo

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/blnkfinance/paysync/config"
)

// API is the part of the DynamoDB client the ledger uses.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// NewAWSConfig builds the SDK configuration of the data source. A custom
// endpoint (DynamoDB Local, LocalStack) gets static credentials unless real
// ones are present in the environment; local DynamoDB does not validate them.
func NewAWSConfig(ctx context.Context, ds config.DataSourceConfig) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(ds.DynamoRegion),
	}

	if endpoint := ds.DynamoEndpoint; endpoint != "" {
		if os.Getenv("AWS_ACCESS_KEY_ID") == "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("local", "local", ""),
			))
		}
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == dynamodb.ServiceID {
				return aws.Endpoint{URL: endpoint, SigningRegion: region, HostnameImmutable: true}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	return awsconfig.LoadDefaultConfig(ctx, loadOpts...)
}

// NewDataSource connects the DynamoDB ledger described by the configuration.
func NewDataSource(ctx context.Context, cnf *config.Configuration) (*Ledger, error) {
	awsCfg, err := NewAWSConfig(ctx, cnf.DataSource)
	if err != nil {
		return nil, err
	}
	return NewLedger(dynamodb.NewFromConfig(awsCfg), cnf.DataSource.DynamoTable), nil
}
