package account

import "github.com/matheus3301/multichat/internal/store"

// validTransitions defines the allowed account lifecycle transitions.
//
// pending and disconnected render identically to not_connected in the UI but
// are kept distinct to preserve history. The source data treats not_connected
// and disconnected as synonyms in places; that duplication looks accidental
// and is carried as-is rather than collapsed.
var validTransitions = map[store.AccountStatus][]store.AccountStatus{
	store.StatusPending:      {store.StatusScanning},
	store.StatusNotConnected: {store.StatusScanning},
	store.StatusDisconnected: {store.StatusScanning},
	store.StatusScanning:     {store.StatusConnected, store.StatusNotConnected},
	store.StatusConnected:    {store.StatusDisconnected, store.StatusNotConnected},
}

// CanTransition reports whether an account may move from one status to
// another.
func CanTransition(from, to store.AccountStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
