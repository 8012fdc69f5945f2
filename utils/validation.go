package utils

import "regexp"

var (
	emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	// TradingView handles: letters, digits, underscores and hyphens only
	tvUsernameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
)

func ValidateEmail(email string) bool {
	return emailRegexp.MatchString(email)
}

func ValidateTradingViewUsername(username string) bool {
	return tvUsernameRegexp.MatchString(username)
}
