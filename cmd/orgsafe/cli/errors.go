package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"orgsafe/pkg/fileops"
)

// kindTitles are the user facing names of error kinds.
var kindTitles = map[fileops.Kind]string{
	fileops.KindPathRejected:         "path not allowed",
	fileops.KindSensitivePathBlocked: "sensitive file blocked",
	fileops.KindRateLimited:          "rate limited",
	fileops.KindTooLarge:             "file too large",
	fileops.KindNotFound:             "not found",
	fileops.KindAccessDenied:         "access denied",
	fileops.KindSymlinkLoop:          "symbolic link refused",
	fileops.KindAborted:              "operation canceled",
	fileops.KindOffsetBeyondEnd:      "offset beyond end of file",
	fileops.KindDestinationCollision: "destination collision",
	fileops.KindBackupRestoreFailed:  "CRITICAL: backup could not be restored",
	fileops.KindManifestNotFound:     "manifest not found",
	fileops.KindManifestCorrupt:      "manifest corrupt",
	fileops.KindInvalidManifestID:    "invalid manifest id",
	fileops.KindIsDirectory:          "is a directory",
	fileops.KindNotRegular:           "not a regular file",
}

// formatError converts errors to user-friendly messages with hints.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return errorStyle.Render("Error: operation canceled")
	}

	typed, ok := fileops.AsError(err)
	if !ok {
		return errorStyle.Render(fmt.Sprintf("Error: %v", err))
	}

	title, known := kindTitles[typed.Kind]
	if !known {
		title = typed.Kind.String()
	}

	var b strings.Builder
	b.WriteString(errorStyle.Render("Error: " + title))
	b.WriteString("\n")
	b.WriteString(indent(wrap(err.Error()), "  "))

	if typed.Kind == fileops.KindRateLimited && typed.RetryAfter > 0 {
		b.WriteString("\n")
		b.WriteString(hintStyle.Render(fmt.Sprintf("  retry in %s", typed.RetryAfter.Round(100*time.Millisecond))))
	}
	if typed.Hint != "" {
		b.WriteString("\n")
		b.WriteString(hintStyle.Render(indent(wrap("Hint: "+typed.Hint), "  ")))
	}
	return b.String()
}
