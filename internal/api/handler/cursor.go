package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mhrncir/parlsync/internal/queue"
)

// Job list cursors are opaque to clients: base64 over
// "<created_at unix nanos>|<job id>", matching the keyset order of ListJobs.

func DecodeJobCursor(cursorStr string) (*queue.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	nanosStr, jobID, ok := strings.Cut(string(decoded), "|")
	if !ok || jobID == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	nanos, err := strconv.ParseInt(nanosStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}

	return &queue.JobCursor{
		CreatedAt: time.Unix(0, nanos),
		JobID:     jobID,
	}, nil
}

func EncodeJobCursor(cursor *queue.JobCursor) string {
	raw := strconv.FormatInt(cursor.CreatedAt.UnixNano(), 10) + "|" + cursor.JobID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}
