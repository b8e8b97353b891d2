package logging

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewSessionID returns "<unix-ns>-<epoch-ms>-<uuid4>", generated once per
// process and attached to log lines and ledger rows.
func NewSessionID() string {
	now := time.Now().UTC()
	return strconv.FormatInt(now.UnixNano(), 10) + "-" +
		strconv.FormatInt(now.UnixMilli(), 10) + "-" +
		uuid.NewString()
}
