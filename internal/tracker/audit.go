package tracker

import _ "embed"

// AuditMapping is the index mapping of the delivery event audit trail.
//
//go:embed audit_mapping.json
var AuditMapping []byte
