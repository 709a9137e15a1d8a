package cache

import "github.com/google/uuid"

const keyNamespace = "skybid:"

func BiddingPermittedKey(pilotID uuid.UUID) string {
	return keyNamespace + "account:bidding:" + pilotID.String()
}

// RateLimitKey is per account, not per key.
func RateLimitKey(accountID uuid.UUID) string {
	return keyNamespace + "ratelimit:" + accountID.String()
}
