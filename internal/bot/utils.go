package bot

import (
	"strings"
	"unicode/utf8"

	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// maskSecret masks sensitive information for logging
func maskSecret(s string) string {
	if len(s) <= constants.MinSecretLengthForMasking {
		return "***"
	}
	return s[:constants.SecretMaskPrefixLength] + "***" + s[len(s)-constants.SecretMaskSuffixLength:]
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
// Reports are ordered by severity so the head is what gets kept.
func truncate(s string, max int, platform string) string {
	if max <= 0 || len(s) <= max {
		return s
	}

	logger.WithFields(logrus.Fields{
		"original_length": len(s),
		"max_length":      max,
	}).Info("truncating-message-for-" + platform + "-limit")

	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// truncateLines cuts s to at most max bytes at the last sep boundary, so
// markup of the kept lines stays intact. A first line longer than max falls
// back to truncate.
func truncateLines(s, sep string, max int, platform string) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if i := strings.LastIndex(s[:max], sep); i > 0 {
		logger.WithFields(logrus.Fields{
			"original_length": len(s),
			"max_length":      max,
		}).Info("truncating-message-for-" + platform + "-limit")
		return s[:i]
	}
	return truncate(s, max, platform)
}
