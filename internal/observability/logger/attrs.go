// Copyright 2026 The Hangar Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import "log/slog"

// Attribute keys shared across the application.
const (
	KeyTraceID      = "trace_id"
	KeySpanID       = "span_id"
	KeyRequestID    = "request_id"
	KeySubjectID    = "subject_id"
	KeyImpersonator = "impersonator_id"
	KeyRoles        = "roles"
	KeyNamespace    = "namespace"
	KeyDecision     = "decision"
	KeyReason       = "reason"
)

// Request attributes
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

func Method(method string) slog.Attr {
	return slog.String("method", method)
}

func Path(path string) slog.Attr {
	return slog.String("path", path)
}

func RemoteAddr(addr string) slog.Attr {
	return slog.String("remote_addr", addr)
}

func UserAgent(ua string) slog.Attr {
	return slog.String("user_agent", ua)
}

func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

func Duration(ms int64) slog.Attr {
	return slog.Int64("duration_ms", ms)
}

// Identity attributes
func SubjectID(id string) slog.Attr {
	return slog.String(KeySubjectID, id)
}

func Impersonator(id string) slog.Attr {
	return slog.String(KeyImpersonator, id)
}

func Email(email string) slog.Attr {
	return slog.String("email", email)
}

// Roles logs role names as a list.
func Roles[T ~string](roles []T) slog.Attr {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return slog.Any(KeyRoles, names)
}

// Access control attributes
func Namespace(ns string) slog.Attr {
	return slog.String(KeyNamespace, ns)
}

func Decision(outcome string) slog.Attr {
	return slog.String(KeyDecision, outcome)
}

func Reason(reason string) slog.Attr {
	return slog.String(KeyReason, reason)
}

func Capability(c string) slog.Attr {
	return slog.String("capability", c)
}

// Error attributes
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Component attributes
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Operation(op string) slog.Attr {
	return slog.String("operation", op)
}

// String creates a generic string attribute
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}
