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

package redis_db

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const azureRedisSuffix = ".redis.cache.windows.net"

// ParseRedisURL turns the configured Redis DSN into client options. It accepts
// docker style "host:port" addresses, redis:// and rediss:// URLs, and URLs
// carrying a bare password before the '@'.
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	var opts *redis.Options
	if !strings.Contains(rawURL, "://") {
		opts = &redis.Options{Addr: rawURL}
		if host, _, ok := strings.Cut(rawURL, ":"); ok && strings.HasSuffix(host, azureRedisSuffix) {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	} else {
		// redis://secret@host:6379 carries a password, not a user name
		if scheme, rest, ok := strings.Cut(rawURL, "://"); ok {
			if userinfo, host, ok := strings.Cut(rest, "@"); ok && !strings.Contains(userinfo, ":") {
				rawURL = fmt.Sprintf("%s://:%s@%s", scheme, userinfo, host)
			}
		}
		parsed, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig.InsecureSkipVerify = true
	}
	return opts, nil
}

// AsynqOptions builds the asynq connection for the notification queue.
func AsynqOptions(rawURL string, skipTLSVerify bool) (asynq.RedisClientOpt, error) {
	opts, err := ParseRedisURL(rawURL, skipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}

// Ping checks that Redis answers within timeout.
func Ping(ctx context.Context, rawURL string, skipTLSVerify bool, timeout time.Duration) error {
	opts, err := ParseRedisURL(rawURL, skipTLSVerify)
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}
