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

package database

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/blnkfinance/paysync/config"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
)

var (
	instance *Datasource
	connErr  error
	once     sync.Once
)

// connectAttempts bounds the pings made before giving up on the database.
const connectAttempts = 5

type Datasource struct {
	Conn *sql.DB
}

var _ LedgerStore = (*Datasource)(nil)

func NewDataSource(configuration *config.Configuration) (LedgerStore, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection returns the process-wide ledger connection, opening it on
// first use. A failed first connection is remembered.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	once.Do(func() {
		con, err := ConnectDB(configuration.DataSource.Dns)
		if err != nil {
			connErr = err
			return
		}
		instance = &Datasource{Conn: con}
	})
	return instance, connErr
}

// ConnectDB opens a pooled connection and pings it with exponential backoff.
func ConnectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 200 * time.Millisecond
	retry.MaxElapsedTime = 10 * time.Second
	err = backoff.RetryNotify(db.Ping, backoff.WithMaxRetries(retry, connectAttempts-1), func(err error, next time.Duration) {
		log.Printf("database not reachable, retrying in %s: %v", next, err)
	})
	if err != nil {
		log.Printf("Database connection error ❌: %v", err)
		_ = db.Close()
		return nil, err
	}

	log.Println("Database connection established ✅")
	return db, nil
}
