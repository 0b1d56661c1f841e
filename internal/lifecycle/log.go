package lifecycle

import "github.com/btcsuite/btclog/v2"

var log = btclog.Disabled

// UseLogger sets the logger used by the lifecycle package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
