package mail

import (
	"fmt"
	"time"
)

// LoginCodeMessage builds the email carrying a one-time login code.
func LoginCodeMessage(to, code string, validFor time.Duration) Message {
	minutes := int(validFor.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return Message{
		To:      []string{to},
		Subject: "Your login code",
		Body: fmt.Sprintf("Your login code is: %s\n\nThis code expires in %d minutes.\n"+
			"If you did not request it, you can ignore this email.\n", code, minutes),
	}
}
