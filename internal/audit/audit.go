// Package audit provides a structured audit logger for CLI command invocations.
// It logs command name, config source and the backends in use so operators
// can trace what happened without exposing secret values.
//
// Secrets are logged as presence/absence only. Connection URLs are logged
// with their credentials stripped.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// redaction controls how an env var value is rendered.
type redaction int

const (
	plain    redaction = iota // value logged as-is
	secret                    // "set" or "unset"
	redactDB                  // URL with userinfo removed
)

// auditEntry defines an env var to include in the audit log.
type auditEntry struct {
	// key is the environment variable name.
	key string
	// mode selects how the value is sanitised.
	mode redaction
}

// auditKeys is the ordered list of env vars included in every audit log entry.
var auditKeys = []auditEntry{
	{"STORE_BACKEND", plain},
	{"SUPABASE_URL", plain},
	{"SUPABASE_SERVICE_KEY", secret},
	{"SUPABASE_TABLE", plain},
	{"DATABASE_URL", redactDB},
	{"QDRANT_HOST", plain},
	{"QDRANT_COLLECTION", plain},
	{"QDRANT_API_KEY", secret},
	{"SQLITE_PATH", plain},
	{"EMBEDDING_PROVIDER", plain},
	{"EMBEDDING_MODEL", plain},
	{"EMBEDDING_API_KEY", secret},
	{"MODEL_PROVIDER", plain},
	{"GEMINI_API_KEY", secret},
	{"GOOGLE_API_KEY", secret},
	{"GEMINI_MODEL", plain},
	{"OPENAI_API_KEY", secret},
	{"OPENAI_MODEL", plain},
	{"AZURE_OPENAI_API_KEY", secret},
	{"AZURE_OPENAI_ENDPOINT", plain},
	{"AZURE_OPENAI_DEPLOYMENT", plain},
	{"OLLAMA_HOST", plain},
	{"OLLAMA_MODEL", plain},
	{"ARK_API_KEY", secret},
	{"ARK_MODEL", plain},
	{"REDIS_URL", redactDB},
	{"RAG_FALLBACK_LIMIT", plain},
	{"RAG_STRICT_EMBEDDINGS", plain},
	{"INGEST_FAIL_FAST", plain},
	{"DOCRAG_API_KEY", secret},
	{"LOG_LEVEL", plain},
	{"LOG_FORMAT", plain},
	{"LANGFUSE_PUBLIC_KEY", secret},
	{"LANGFUSE_SECRET_KEY", secret},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", plain},
}

// modes indexes auditKeys by name for SanitiseKey.
var modes = func() map[string]redaction {
	m := make(map[string]redaction, len(auditKeys))
	for _, e := range auditKeys {
		m[e.key] = e.mode
	}
	return m
}()

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised environment.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}

	for _, entry := range auditKeys {
		attrs = append(attrs, slog.String(entry.key, sanitise(entry.mode, os.Getenv(entry.key))))
	}

	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns the loggable form of an env var value: "set"/"unset"
// for secrets, a credential-free URL for connection strings and the value
// itself otherwise. Unknown keys are treated as plain.
func SanitiseKey(key, value string) string {
	return sanitise(modes[key], value)
}

func sanitise(mode redaction, v string) string {
	switch mode {
	case secret:
		return presence(v)
	case redactDB:
		return redactURL(v)
	default:
		return valOrUnset(v)
	}
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// redactURL strips userinfo from a connection URL. Values that do not parse
// are reported by presence only.
func redactURL(v string) string {
	if v == "" {
		return "unset"
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" {
		return "set"
	}
	u.User = nil
	return u.String()
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
