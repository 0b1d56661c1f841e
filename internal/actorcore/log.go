package actorcore

import "github.com/btcsuite/btclog/v2"

// log is the package-level logger for the actorcore subsystem. It is
// disabled by default until the embedding application calls UseLogger.
var log = btclog.Disabled

// UseLogger sets the logger used by the actorcore package. Callers should
// do this in their application's init/main before spawning any actors.
func UseLogger(logger btclog.Logger) {
	log = logger
}
