package service

// Shared structured-log field names so log aggregation sees one
// vocabulary across the HTTP surface and the relay core.
const (
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldStatusCode = "status_code"
	LogFieldDuration   = "duration_ms"
	LogFieldSize       = "response_size"
	LogFieldService    = "service"
	LogFieldComponent  = "component"
	LogFieldUserID     = "userId"
	LogFieldRuleID     = "ruleId"
)
