package tasks

const (
	TypeUserSweep  = "dca:sweep:user"
	TypeMultiSweep = "dca:sweep:multi"

	QUEUE_NAME = "dca_sweep_queue"
)

// UserSweepPayload asks the keeper to sweep one user's queue.
type UserSweepPayload struct {
	User string `json:"user"`
}

// MultiSweepPayload asks the keeper to sweep a list of users.
type MultiSweepPayload struct {
	Users []string `json:"users"`
}
