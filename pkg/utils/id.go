package utils

import (
	"github.com/google/uuid"
)

// GenNotificationID returns a new opaque notification identifier.
func GenNotificationID() string {
	return "ntf-" + uuid.NewString()
}

// GenRequestID returns a short correlation id for request telemetry.
func GenRequestID() string {
	u := uuid.NewString()
	return "req-" + u[:8]
}
