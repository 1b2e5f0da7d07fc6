// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the outbound collaborator clients.
var HTTPClient = &http.Client{
	Timeout: 10 * time.Second,
}
