package cache

import "strconv"

const prefix = "impor:"

// KeyLatestRates is the key of the cached active rate snapshot.
func KeyLatestRates() string {
	return prefix + "rates:latest"
}

// KeyRatesVersion is the key of a cached historical rate snapshot.
func KeyRatesVersion(version int64) string {
	return prefix + "rates:v:" + strconv.FormatInt(version, 10)
}

// KeyOrderLock is the lock key that serialises commits of one cart.
func KeyOrderLock(cartID string) string {
	return prefix + "lock:cart:" + cartID
}
