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
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"
)

const (
	ErrorCodeMaxLength    = 32
	ErrorMessageMaxLength = 255
)

// AbbreviateClassName shortens a package-qualified type name to at most target bytes.
// Earlier segments (split on '.' and '/') are cut to their first character, left to
// right, until the name fits; the last segment is never abbreviated. If the last
// segment alone is too long the front is dropped so the tail stays readable.
func AbbreviateClassName(name string, target int) string {
	if len(name) <= target {
		return name
	}
	last := strings.LastIndexAny(name, "./")
	if last < 0 {
		return keepTail(name, target)
	}

	head, tail := name[:last+1], name[last+1:]
	toTrim := len(name) - target

	var b strings.Builder
	start := 0
	for i := 0; i < len(head); i++ {
		if head[i] != '.' && head[i] != '/' {
			continue
		}
		segment := head[start:i]
		if toTrim > 0 && segment != "" {
			_, size := utf8.DecodeRuneInString(segment)
			b.WriteString(segment[:size])
			toTrim -= len(segment) - size
		} else {
			b.WriteString(segment)
		}
		b.WriteByte(head[i])
		start = i + 1
	}
	b.WriteString(tail)

	return keepTail(b.String(), target)
}

func keepTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := len(s) - max
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// errorCode picks what is stored as a transaction's error code: the gateway's
// own code, else its status, else the abbreviated class of the root error.
func errorCode(gatewayCode, gatewayStatus, rootClass string) string {
	switch {
	case gatewayCode != "":
		return truncate(gatewayCode, ErrorCodeMaxLength)
	case gatewayStatus != "":
		return truncate(gatewayStatus, ErrorCodeMaxLength)
	default:
		return AbbreviateClassName(rootClass, ErrorCodeMaxLength)
	}
}

// errorClassName returns the package-qualified type name of err,
// e.g. "github.com/blnkfinance/paysync/gateway.DeclinedPaymentError".
func errorClassName(err error) string {
	if err == nil {
		return ""
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return fmt.Sprintf("%T", err)
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}
