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

package paysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/blnkfinance/paysync/gateway"
	"github.com/blnkfinance/paysync/model"
	"gopkg.in/yaml.v3"
)

// Rule maps one family of call errors to an ErrorCategory.
type Rule struct {
	Name     string
	Category model.ErrorCategory
	Match    func(err error) bool
}

// DefaultRules returns the classification table in priority order; the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "connection_refused", Category: model.RequestNotSent, Match: func(err error) bool {
			return errors.Is(err, syscall.ECONNREFUSED) || messageContains(err, "connection refused")
		}},
		{Name: "host_unresolved", Category: model.RequestNotSent, Match: func(err error) bool {
			var dnsErr *net.DNSError
			return errors.As(err, &dnsErr) || messageContains(err, "no such host")
		}},
		{Name: "dial_failed", Category: model.RequestNotSent, Match: func(err error) bool {
			var opErr *net.OpError
			return errors.As(err, &opErr) && opErr.Op == "dial"
		}},
		{Name: "client_unavailable", Category: model.RequestNotSent, Match: func(err error) bool {
			return errors.Is(err, gateway.ErrClientNotConfigured) || errors.Is(err, gateway.ErrRegistryClosed)
		}},
		{Name: "read_timeout", Category: model.ResponseNotReceived, Match: isReadTimeout},
		{Name: "truncated_response", Category: model.ResponseInvalid, Match: func(err error) bool {
			return errors.Is(err, syscall.ECONNRESET) ||
				errors.Is(err, io.ErrUnexpectedEOF) ||
				errors.Is(err, io.EOF) ||
				messageContains(err, "Unexpected end of file", "connection reset by peer")
		}},
		{Name: "malformed_response", Category: model.ResponseInvalid, Match: func(err error) bool {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			return errors.As(err, &syntaxErr) ||
				errors.As(err, &typeErr) ||
				errors.Is(err, gateway.ErrMalformedResponse) ||
				messageContains(err, "Invalid Http response", "Bogus chunk size", "malformed HTTP", "malformed chunked encoding")
		}},
		{Name: "validation", Category: model.ResponseRejectedRequest, Match: func(err error) bool {
			var target *gateway.ValidationError
			return errors.As(err, &target)
		}},
		{Name: "declined_payment", Category: model.ResponseRejectedRequest, Match: func(err error) bool {
			var target *gateway.DeclinedPaymentError
			return errors.As(err, &target)
		}},
		{Name: "declined_payout", Category: model.ResponseRejectedRequest, Match: func(err error) bool {
			var target *gateway.DeclinedPayoutError
			return errors.As(err, &target)
		}},
		{Name: "declined_refund", Category: model.ResponseRejectedRequest, Match: func(err error) bool {
			var target *gateway.DeclinedRefundError
			return errors.As(err, &target)
		}},
		{Name: "authorization", Category: model.RequestNotSent, Match: func(err error) bool {
			var target *gateway.AuthorizationError
			return errors.As(err, &target)
		}},
		{Name: "reference", Category: model.RequestNotSent, Match: func(err error) bool {
			var target *gateway.ReferenceError
			return errors.As(err, &target)
		}},
		{Name: "idempotence", Category: model.RequestNotSent, Match: func(err error) bool {
			var target *gateway.IdempotenceError
			return errors.As(err, &target)
		}},
	}
}

func isReadTimeout(err error) bool {
	if messageContains(err, "Unexpected end of file") {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return messageContains(err, "Read timed out", "Client.Timeout exceeded", "timeout awaiting response headers")
}

func messageContains(err error, fragments ...string) bool {
	msg := err.Error()
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// Classifier applies a rule table to call errors.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds the default table with per-rule category overrides.
// Overriding a rule that does not exist is an error.
func NewClassifier(overrides map[string]model.ErrorCategory) (*Classifier, error) {
	c := &Classifier{rules: DefaultRules()}
	for name, category := range overrides {
		if err := c.Override(name, category); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Override changes the category a named rule yields.
func (c *Classifier) Override(name string, category model.ErrorCategory) error {
	if !category.Valid() {
		return fmt.Errorf("rule %s: unknown error category %q", name, category)
	}
	for i := range c.rules {
		if c.rules[i].Name == name {
			c.rules[i].Category = category
			return nil
		}
	}
	return fmt.Errorf("unknown classification rule %q", name)
}

// Classify returns the category of err and the name of the rule that matched.
// Errors no rule recognizes are UNKNOWN_FAILURE.
func (c *Classifier) Classify(err error) (model.ErrorCategory, string) {
	for _, rule := range c.rules {
		if rule.Match(err) {
			return rule.Category, rule.Name
		}
	}
	return model.UnknownFailure, "unrecognized"
}

// Rules returns a copy of the table in priority order.
func (c *Classifier) Rules() []Rule {
	rules := make([]Rule, len(c.rules))
	copy(rules, c.rules)
	return rules
}

type overridesFile struct {
	Categories map[string]model.ErrorCategory `yaml:"categories"`
}

// LoadCategoryOverrides reads rule overrides from a YAML file of the form
//
//	categories:
//	  authorization: RESPONSE_REJECTED_REQUEST
func LoadCategoryOverrides(path string) (map[string]model.ErrorCategory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classification overrides: %w", err)
	}
	var file overridesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse classification overrides %s: %w", path, err)
	}
	return file.Categories, nil
}
